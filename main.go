package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/tonagent/server/internal/agent/graph"
	"github.com/tonagent/server/internal/agent/model"
	"github.com/tonagent/server/internal/agent/repo"
	"github.com/tonagent/server/internal/core"
	"github.com/tonagent/server/internal/mcp"
	"github.com/tonagent/server/internal/server"
	logx "github.com/tonagent/server/pkg/logger"
	pkgredis "github.com/tonagent/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the agent server,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Server server.Config
	Redis  pkgredis.Config
	MCP    mcp.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Extract      model.ExtractModelConfig
	Report       model.ReportModelConfig
	Conversation model.ConversationConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("ttl", cfg.Conversation.TTL).Msg("Invalid CONVERSATION_TTL")
	}

	var history model.HistoryRepository
	if cfg.Redis.Enabled() {
		rdb, err := cfg.Redis.New()
		if err != nil {
			logx.Fatal().Err(err).Msg("Failed to initialise Redis client")
		}
		defer rdb.Close()
		history = repo.NewRedisHistoryRepository(rdb, ttl, cfg.Conversation.Capacity)
		logx.Info().Msg("Using Redis-backed session history")
	} else {
		history = repo.NewMemoryHistoryRepository(cfg.Conversation.Capacity)
		logx.Info().Msg("Using in-memory session history")
	}

	runner, err := graph.BuildAnalysisGraph(ctx, graph.Config{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		ExtractModel: cfg.Extract,
		ReportModel:  cfg.Report,
		Conversation: cfg.Conversation,
		HistoryRepo:  history,
		Catalog:      mcp.NewCatalog(cfg.MCP),
		Bridge:       mcp.NewBridge(cfg.MCP),
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build analysis graph")
	}

	srv := server.New(cfg.Server, runner, history)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logx.Info().Str("addr", cfg.Server.Addr).Str("mcp_server", cfg.MCP.ServerURL).Msg("Agent server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-runCtx.Done()
	logx.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("Graceful shutdown failed")
	}
}
