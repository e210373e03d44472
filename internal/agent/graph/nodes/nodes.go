package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/tonagent/server/internal/agent/graph/conversations"
	"github.com/tonagent/server/internal/agent/graph/parsers"
	"github.com/tonagent/server/internal/agent/graph/prompts"
	"github.com/tonagent/server/internal/agent/model"
	"github.com/tonagent/server/internal/agent/stream"
	"github.com/tonagent/server/internal/mcp"
	logx "github.com/tonagent/server/pkg/logger"
)

// Graph node names.
const (
	NodeInputConverter   = "input_converter"
	NodeExtractModel     = "extract_chat_model"
	NodeExtractionParser = "extraction_parser"
	NodeRouterAssembler  = "router_assembler"
	NodeRouterModel      = "router_chat_model"
	NodeToolResolver     = "tool_resolver"
	NodeBridge           = "mcp_bridge"
	NodeReportAssembler  = "report_assembler"
	NodeReportModel      = "report_chat_model"
	NodeDirectReply      = "direct_reply"
)

// NewInputConverterPreHandler seeds the per-invocation state from the query
// before the pipeline runs.
func NewInputConverterPreHandler() func(context.Context, model.QueryInput, *model.AppState) (model.QueryInput, error) {
	return func(_ context.Context, input model.QueryInput, state *model.AppState) (model.QueryInput, error) {
		state.ConversationID = input.ConversationID
		state.Prompt = input.Query
		state.Parsed = nil
		state.Catalog = nil
		state.RouterHint = ""
		state.Invocation = nil
		state.BridgeResult = ""
		state.TotalCostUSD = 0
		return input, nil
	}
}

// NewInputConverterNode builds the entity-extraction messages: the system
// prompt plus the user prompt prefixed with recent session history.
func NewInputConverterNode(history *conversations.HistoryManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, input model.QueryInput) ([]*schema.Message, error) {
		systemPrompt, err := prompts.RenderExtractSystem(ctx)
		if err != nil {
			return nil, fmt.Errorf("render extract system prompt: %w", err)
		}

		user := history.Context(ctx, input.ConversationID) + "Prompt: " + input.Query

		return []*schema.Message{
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(user),
		}, nil
	})
}

// NewExtractionParserNode turns the raw extraction reply into a ParsedPrompt.
// Parsing is tolerant: malformed output degrades to an empty parse and the
// fallback tier takes over downstream.
func NewExtractionParserNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (model.ParsedPrompt, error) {
		parsed := parsers.ParseExtraction(resp.Content)
		stream.Emit(ctx, "LLM extracted: %s", marshalJSON(parsed))
		return parsed, nil
	})
}

func NewExtractionParserPostHandler() func(context.Context, model.ParsedPrompt, *model.AppState) (model.ParsedPrompt, error) {
	return func(_ context.Context, parsed model.ParsedPrompt, state *model.AppState) (model.ParsedPrompt, error) {
		p := parsed
		state.Parsed = &p
		logx.Debug().
			Strs("addresses", parsed.Addresses).
			Strs("tx_hashes", parsed.TransactionHashes).
			Str("intent", parsed.Intent).
			Msg("extraction parsed")
		return parsed, nil
	}
}

// NewRouterAssemblerNode fetches the tool catalog and renders the routing
// prompt. A failed catalog fetch yields an empty tool list; routing then
// resolves nothing and the heuristic fallback decides.
func NewRouterAssemblerNode(catalog *mcp.Catalog) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, parsed model.ParsedPrompt) ([]*schema.Message, error) {
		tools := catalog.Tools(ctx)
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.Catalog = tools
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		content, err := prompts.RenderRouter(ctx, parsed.Intent, sortedNames(tools), tools)
		if err != nil {
			return nil, fmt.Errorf("render router prompt: %w", err)
		}
		return []*schema.Message{schema.UserMessage(content)}, nil
	})
}

// NewToolResolverNode resolves the routing model's reply to a tool
// invocation. The normal tier pairs the resolved catalog tool with the first
// extracted target; when either side is missing, the heuristic tier scans
// the prompt and session history instead.
func NewToolResolverNode(history *conversations.HistoryManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, resp *schema.Message) (*mcp.ToolInvocation, error) {
		token := parsers.FirstToken(resp.Content)

		var (
			prompt string
			convID string
			parsed *model.ParsedPrompt
			tools  map[string]mcp.ToolDescriptor
		)
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			prompt = state.Prompt
			convID = state.ConversationID
			parsed = state.Parsed
			tools = state.Catalog
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if parsed == nil {
			parsed = &model.ParsedPrompt{}
		}

		resolved := parsers.ResolveToolName(token, sortedNames(tools))
		hint := resolved
		if hint == "" {
			hint = token
		}
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			state.RouterHint = hint
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		var inv *mcp.ToolInvocation
		if resolved != "" && parsed.HasTargets() {
			args := map[string]any{}
			if len(parsed.Addresses) > 0 {
				args["address"] = parsed.Addresses[0]
			} else {
				args["tx_hash"] = parsed.TransactionHashes[0]
			}
			inv = &mcp.ToolInvocation{Name: resolved, Arguments: args}
		} else {
			fb, warn, err := parsers.ResolveFallback(hint, prompt, history.Recent(ctx, convID))
			if err != nil {
				return nil, err
			}
			stream.Emit(ctx, "%s", warn)
			inv = fb
		}

		stream.Emit(ctx, "Selected MCP tool '%s' with arguments %v", inv.Name, inv.Arguments)
		history.Append(ctx, convID, model.HistoryEntry{
			Prompt:   prompt,
			Parsed:   parsed,
			Tool:     inv.Name,
			ToolArgs: inv.Arguments,
		})
		return inv, nil
	})
}

func NewToolResolverPostHandler() func(context.Context, *mcp.ToolInvocation, *model.AppState) (*mcp.ToolInvocation, error) {
	return func(_ context.Context, inv *mcp.ToolInvocation, state *model.AppState) (*mcp.ToolInvocation, error) {
		state.Invocation = inv
		return inv, nil
	}
}

// NewBridgeNode drives the MCP session bridge and records the result turn.
func NewBridgeNode(bridge *mcp.Bridge, history *conversations.HistoryManager) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, inv *mcp.ToolInvocation) (string, error) {
		stream.Emit(ctx, "[MCP] Connecting to SSE for session_id and results...")

		result, err := bridge.Run(ctx, *inv, func(line string) {
			stream.Emit(ctx, "%s", line)
		})
		if err != nil {
			return "", err
		}

		if result != "" {
			var (
				prompt string
				convID string
				parsed *model.ParsedPrompt
			)
			if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
				prompt = state.Prompt
				convID = state.ConversationID
				parsed = state.Parsed
				return nil
			}); err != nil {
				return "", fmt.Errorf("failed to access state: %w", err)
			}
			history.Append(ctx, convID, model.HistoryEntry{
				Prompt:   prompt,
				Parsed:   parsed,
				Tool:     inv.Name,
				ToolArgs: inv.Arguments,
				Result:   result,
			})
		}
		return result, nil
	})
}

func NewBridgePostHandler() func(context.Context, string, *model.AppState) (string, error) {
	return func(_ context.Context, result string, state *model.AppState) (string, error) {
		state.BridgeResult = result
		return result, nil
	}
}

// NewReportCondition routes the bridge output: a non-empty result goes to
// the report model when reporting is enabled, everything else short-circuits
// to the direct reply.
func NewReportCondition(reportEnabled bool) func(context.Context, string) (string, error) {
	return func(_ context.Context, result string) (string, error) {
		if reportEnabled && strings.TrimSpace(result) != "" {
			return NodeReportAssembler, nil
		}
		return NodeDirectReply, nil
	}
}

// NewReportAssemblerNode renders the report prompt from the invocation and
// the raw tool result.
func NewReportAssemblerNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, result string) ([]*schema.Message, error) {
		var inv *mcp.ToolInvocation
		if err := compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
			inv = state.Invocation
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}
		if inv == nil {
			return nil, fmt.Errorf("no tool invocation in state")
		}

		content, err := prompts.RenderReport(ctx, *inv, result)
		if err != nil {
			return nil, fmt.Errorf("render report prompt: %w", err)
		}
		return []*schema.Message{schema.UserMessage(content)}, nil
	})
}

// NewDirectReplyNode closes the pipeline without a report pass. The raw
// result already went out as a stream line, so the reply is empty unless the
// stream produced nothing at all.
func NewDirectReplyNode() *compose.Lambda {
	return compose.InvokableLambda(func(_ context.Context, result string) (*schema.Message, error) {
		if strings.TrimSpace(result) == "" {
			return schema.AssistantMessage("[MCP] Stream closed with no result events.", nil), nil
		}
		return schema.AssistantMessage("", nil), nil
	})
}

// NewModelCostPostHandler accumulates the USD cost of one chat model call
// into the invocation state.
func NewModelCostPostHandler(node, modelName string) func(context.Context, *schema.Message, *model.AppState) (*schema.Message, error) {
	return func(_ context.Context, msg *schema.Message, state *model.AppState) (*schema.Message, error) {
		if !model.CostEnabled() || msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
			return msg, nil
		}
		usage := msg.ResponseMeta.Usage
		inputCost, outputCost, total := model.ComputeCost(usage, model.ResolvePricing(modelName))
		state.TotalCostUSD += total
		logx.Info().
			Str("node", node).
			Str("model", modelName).
			Int("prompt_tokens", usage.PromptTokens).
			Int("completion_tokens", usage.CompletionTokens).
			Float64("input_cost_usd", inputCost).
			Float64("output_cost_usd", outputCost).
			Float64("total_cost_usd", state.TotalCostUSD).
			Msg("usage cost")
		return msg, nil
	}
}

func sortedNames(tools map[string]mcp.ToolDescriptor) []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
