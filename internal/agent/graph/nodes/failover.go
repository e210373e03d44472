package nodes

import (
	"context"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	errx "github.com/tonagent/server/internal/core/error"
	logx "github.com/tonagent/server/pkg/logger"
)

const overloadRetryDelay = 2 * time.Second

// failoverChatModel wraps a primary and a fallback chat model. An overloaded
// primary is retried once after a short delay, then the fallback gets the
// same treatment; only when both are exhausted does the caller see an
// overload failure. Non-overload errors propagate immediately.
type failoverChatModel struct {
	primary      einomodel.BaseChatModel
	fallback     einomodel.BaseChatModel
	primaryName  string
	fallbackName string
	retryDelay   time.Duration
}

func NewFailoverChatModel(primary, fallback einomodel.BaseChatModel, primaryName, fallbackName string) einomodel.BaseChatModel {
	return &failoverChatModel{
		primary:      primary,
		fallback:     fallback,
		primaryName:  primaryName,
		fallbackName: fallbackName,
		retryDelay:   overloadRetryDelay,
	}
}

func (m *failoverChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	candidates := []struct {
		name string
		cm   einomodel.BaseChatModel
	}{
		{m.primaryName, m.primary},
		{m.fallbackName, m.fallback},
	}

	for i, c := range candidates {
		for attempt := 0; attempt < 2; attempt++ {
			out, err := c.cm.Generate(ctx, input, opts...)
			if err == nil {
				return out, nil
			}
			if !isOverloaded(err) {
				return nil, err
			}
			if attempt == 0 {
				logx.Warn().Str("model", c.name).Err(err).Msg("model overloaded, retrying")
				select {
				case <-time.After(m.retryDelay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			if i == 0 {
				logx.Warn().Str("model", c.name).Msg("model still overloaded, trying fallback model")
			}
		}
	}

	logx.Error().Str("primary", m.primaryName).Str("fallback", m.fallbackName).
		Msg("all models overloaded")
	return nil, errx.ErrLLMOverloaded
}

func (m *failoverChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.primary.Stream(ctx, input, opts...)
	if err != nil && isOverloaded(err) {
		logx.Warn().Str("model", m.primaryName).Err(err).Msg("model overloaded, streaming from fallback model")
		return m.fallback.Stream(ctx, input, opts...)
	}
	return out, err
}

// isOverloaded classifies provider errors by status-code and wording, since
// the chat model component surfaces transport failures as opaque errors.
func isOverloaded(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"429", "503", "529", "RESOURCE_EXHAUSTED", "UNAVAILABLE", "overloaded"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
