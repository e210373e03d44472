package graph

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/tonagent/server/internal/agent/graph/conversations"
	"github.com/tonagent/server/internal/agent/graph/nodes"
	"github.com/tonagent/server/internal/agent/graph/observers"
	"github.com/tonagent/server/internal/agent/model"
	"github.com/tonagent/server/internal/mcp"
	logx "github.com/tonagent/server/pkg/logger"
)

// Runner is a thin wrapper to execute the compiled graph with the public QueryInput.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (string, error)
}

// Config holds everything needed to compose the full analysis graph
// end-to-end. This is a convenience layer over GraphConfig that also
// constructs ChatModels and the HistoryManager.
type Config struct {
	APIKey       string
	BaseURL      string
	ExtractModel model.ExtractModelConfig
	ReportModel  model.ReportModelConfig
	Conversation model.ConversationConfig
	HistoryRepo  model.HistoryRepository
	Catalog      *mcp.Catalog
	Bridge       *mcp.Bridge

	// Models, when set, replaces the Gemini-backed chat models. Tests inject
	// stub models here.
	Models *nodes.ChatModels
}

// GraphConfig holds all configuration needed to build the graph
type GraphConfig struct {
	ChatModels     *nodes.ChatModels
	HistoryManager *conversations.HistoryManager
	Catalog        *mcp.Catalog
	Bridge         *mcp.Bridge
	ReportEnabled  bool
}

// GraphBuilder handles the construction of the analysis graph
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.QueryInput, *schema.Message]
}

type graphRunner struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
}

func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (string, error) {
	out, err := r.runnable.Invoke(ctx, model.QueryInput{
		ConversationID: in.ConversationID,
		Query:          in.Query,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return "", err
	}
	if out == nil {
		return "", nil
	}
	return out.Content, nil
}

// BuildAnalysisGraph composes ChatModels and the HistoryManager, builds the
// graph, and returns a Runner.
func BuildAnalysisGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.HistoryRepo == nil {
		return nil, fmt.Errorf("history repo is nil")
	}
	if cfg.Catalog == nil || cfg.Bridge == nil {
		return nil, fmt.Errorf("mcp catalog/bridge are not initialized")
	}

	cms := cfg.Models
	if cms == nil {
		var err error
		cms, err = nodes.NewChatModels(ctx, nodes.ChatModelConfig{
			APIKey:        cfg.APIKey,
			BaseURL:       cfg.BaseURL,
			ExtractConfig: &cfg.ExtractModel,
			ReportConfig:  &cfg.ReportModel,
		})
		if err != nil {
			return nil, err
		}
	}

	hm := conversations.NewHistoryManager(cfg.HistoryRepo, cfg.Conversation)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		ChatModels:     cms,
		HistoryManager: hm,
		Catalog:        cfg.Catalog,
		Bridge:         cfg.Bridge,
		ReportEnabled:  cfg.ReportModel.Enabled,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Analysis graph built successfully")
	return &graphRunner{runnable: runnable}, nil
}

// BuildGraph constructs and returns the compiled analysis graph
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.ChatModels == nil || config.ChatModels.Extract == nil || config.ChatModels.Report == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if config.HistoryManager == nil {
		return nil, fmt.Errorf("history manager is nil")
	}
	if config.Catalog == nil || config.Bridge == nil {
		return nil, fmt.Errorf("mcp catalog/bridge are not initialized")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.QueryInput, *schema.Message](
			compose.WithGenLocalState(func(ctx context.Context) *model.AppState {
				return &model.AppState{}
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeInputConverter,
		nodes.NewInputConverterNode(b.config.HistoryManager),
		compose.WithStatePreHandler(nodes.NewInputConverterPreHandler()),
	)

	b.graph.AddChatModelNode(nodes.NodeExtractModel,
		b.config.ChatModels.Extract,
		compose.WithStatePostHandler(nodes.NewModelCostPostHandler(nodes.NodeExtractModel, b.config.ChatModels.ExtractModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeExtractionParser,
		nodes.NewExtractionParserNode(),
		compose.WithStatePostHandler(nodes.NewExtractionParserPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeRouterAssembler,
		nodes.NewRouterAssemblerNode(b.config.Catalog),
	)

	// Routing reuses the extraction model: same low temperature, single-token
	// style answer.
	b.graph.AddChatModelNode(nodes.NodeRouterModel,
		b.config.ChatModels.Extract,
		compose.WithStatePostHandler(nodes.NewModelCostPostHandler(nodes.NodeRouterModel, b.config.ChatModels.ExtractModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeToolResolver,
		nodes.NewToolResolverNode(b.config.HistoryManager),
		compose.WithStatePostHandler(nodes.NewToolResolverPostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeBridge,
		nodes.NewBridgeNode(b.config.Bridge, b.config.HistoryManager),
		compose.WithStatePostHandler(nodes.NewBridgePostHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeReportAssembler,
		nodes.NewReportAssemblerNode(),
	)

	b.graph.AddChatModelNode(nodes.NodeReportModel,
		b.config.ChatModels.Report,
		compose.WithStatePostHandler(nodes.NewModelCostPostHandler(nodes.NodeReportModel, b.config.ChatModels.ReportModelName)),
	)

	b.graph.AddLambdaNode(nodes.NodeDirectReply,
		nodes.NewDirectReplyNode(),
	)
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeInputConverter},
		{nodes.NodeInputConverter, nodes.NodeExtractModel},
		{nodes.NodeExtractModel, nodes.NodeExtractionParser},
		{nodes.NodeExtractionParser, nodes.NodeRouterAssembler},
		{nodes.NodeRouterAssembler, nodes.NodeRouterModel},
		{nodes.NodeRouterModel, nodes.NodeToolResolver},
		{nodes.NodeToolResolver, nodes.NodeBridge},
		{nodes.NodeReportAssembler, nodes.NodeReportModel},
		{nodes.NodeReportModel, compose.END},
		{nodes.NodeDirectReply, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates conditional routing branches
func (b *GraphBuilder) addBranches() error {
	reportBranch := compose.NewGraphBranch(
		nodes.NewReportCondition(b.config.ReportEnabled),
		map[string]bool{
			nodes.NodeReportAssembler: true,
			nodes.NodeDirectReply:     true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeBridge, reportBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding report branch")
		return fmt.Errorf("error adding report branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.QueryInput, *schema.Message], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(20))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
