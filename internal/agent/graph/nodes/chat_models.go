package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/tonagent/server/internal/agent/model"
	logx "github.com/tonagent/server/pkg/logger"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	APIKey        string
	BaseURL       string
	ExtractConfig *model.ExtractModelConfig
	ReportConfig  *model.ReportModelConfig
}

// ChatModels holds the extraction/routing model and the report model. Each is
// a primary + overload-fallback pair behind the failover wrapper.
type ChatModels struct {
	Extract          einomodel.BaseChatModel
	Report           einomodel.BaseChatModel
	ExtractModelName string
	ReportModelName  string
}

// NewChatModels creates both chat models with the given configuration
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	newModel := func(name string, temperature float32, maxTokens int) (*gemini.ChatModel, error) {
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       name,
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
		})
	}

	extractPrimary, err := newModel(config.ExtractConfig.Model, config.ExtractConfig.Temperature, config.ExtractConfig.MaxTokens)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating extraction model")
		return nil, fmt.Errorf("error creating extraction model: %w", err)
	}
	extractFallback, err := newModel(config.ExtractConfig.FallbackModel, config.ExtractConfig.Temperature, config.ExtractConfig.MaxTokens)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating extraction fallback model")
		return nil, fmt.Errorf("error creating extraction fallback model: %w", err)
	}

	reportPrimary, err := newModel(config.ReportConfig.Model, config.ReportConfig.Temperature, config.ReportConfig.MaxTokens)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating report model")
		return nil, fmt.Errorf("error creating report model: %w", err)
	}
	reportFallback, err := newModel(config.ReportConfig.FallbackModel, config.ReportConfig.Temperature, config.ReportConfig.MaxTokens)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating report fallback model")
		return nil, fmt.Errorf("error creating report fallback model: %w", err)
	}

	return &ChatModels{
		Extract:          NewFailoverChatModel(extractPrimary, extractFallback, config.ExtractConfig.Model, config.ExtractConfig.FallbackModel),
		Report:           NewFailoverChatModel(reportPrimary, reportFallback, config.ReportConfig.Model, config.ReportConfig.FallbackModel),
		ExtractModelName: config.ExtractConfig.Model,
		ReportModelName:  config.ReportConfig.Model,
	}, nil
}
