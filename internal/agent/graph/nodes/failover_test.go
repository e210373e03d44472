package nodes

import (
	"context"
	"errors"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/tonagent/server/internal/core/error"
)

// scriptedChatModel replays a fixed sequence of outcomes, one per call.
type scriptedChatModel struct {
	outcomes []outcome
	calls    int
}

type outcome struct {
	reply string
	err   error
}

func (s *scriptedChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	i := s.calls
	s.calls++
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	o := s.outcomes[i]
	if o.err != nil {
		return nil, o.err
	}
	return schema.AssistantMessage(o.reply, nil), nil
}

func (s *scriptedChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := s.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func newTestFailover(primary, fallback einomodel.BaseChatModel) *failoverChatModel {
	return &failoverChatModel{
		primary:      primary,
		fallback:     fallback,
		primaryName:  "primary",
		fallbackName: "fallback",
		retryDelay:   time.Millisecond,
	}
}

func TestFailoverPrimarySucceeds(t *testing.T) {
	primary := &scriptedChatModel{outcomes: []outcome{{reply: "ok"}}}
	fallback := &scriptedChatModel{outcomes: []outcome{{reply: "never"}}}
	m := newTestFailover(primary, fallback)

	msg, err := m.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", msg.Content)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, fallback.calls)
}

func TestFailoverRetriesPrimaryOnce(t *testing.T) {
	primary := &scriptedChatModel{outcomes: []outcome{
		{err: errors.New("rpc error: code 429 RESOURCE_EXHAUSTED")},
		{reply: "recovered"},
	}}
	fallback := &scriptedChatModel{outcomes: []outcome{{reply: "never"}}}
	m := newTestFailover(primary, fallback)

	msg, err := m.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", msg.Content)
	assert.Equal(t, 2, primary.calls)
	assert.Zero(t, fallback.calls)
}

func TestFailoverSwitchesToFallback(t *testing.T) {
	overload := errors.New("model is overloaded, try again later (529)")
	primary := &scriptedChatModel{outcomes: []outcome{{err: overload}, {err: overload}}}
	fallback := &scriptedChatModel{outcomes: []outcome{{reply: "from fallback"}}}
	m := newTestFailover(primary, fallback)

	msg, err := m.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "from fallback", msg.Content)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestFailoverAllOverloaded(t *testing.T) {
	overload := errors.New("503 UNAVAILABLE")
	primary := &scriptedChatModel{outcomes: []outcome{{err: overload}}}
	fallback := &scriptedChatModel{outcomes: []outcome{{err: overload}}}
	m := newTestFailover(primary, fallback)

	_, err := m.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, errx.ErrLLMOverloaded)
	assert.Equal(t, 2, primary.calls)
	assert.Equal(t, 2, fallback.calls)
}

func TestFailoverNonOverloadErrorPropagates(t *testing.T) {
	boom := errors.New("invalid request: bad prompt")
	primary := &scriptedChatModel{outcomes: []outcome{{err: boom}}}
	fallback := &scriptedChatModel{outcomes: []outcome{{reply: "never"}}}
	m := newTestFailover(primary, fallback)

	_, err := m.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, fallback.calls)
}

func TestIsOverloaded(t *testing.T) {
	assert.True(t, isOverloaded(errors.New("HTTP 429 too many requests")))
	assert.True(t, isOverloaded(errors.New("RESOURCE_EXHAUSTED")))
	assert.True(t, isOverloaded(errors.New("the model is overloaded")))
	assert.False(t, isOverloaded(errors.New("context deadline exceeded")))
	assert.False(t, isOverloaded(nil))
}
