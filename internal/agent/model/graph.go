package model

import (
	"github.com/tonagent/server/internal/mcp"
)

// AppState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - This struct is registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers:
//     WithStatePreHandler, WithStatePostHandler, or compose.ProcessState.
//   - Eino serializes access to state within these handlers, so no additional
//     mutex/atomic is required as long as you never touch it outside handlers.
type AppState struct {
	ConversationID string
	Prompt         string
	Parsed         *ParsedPrompt
	Catalog        map[string]mcp.ToolDescriptor
	// RouterHint is the raw first token of the routing model's reply, kept for
	// the fallback tier even when it resolved to nothing.
	RouterHint string
	Invocation *mcp.ToolInvocation
	// BridgeResult is the last raw event payload the bridge relayed.
	BridgeResult string

	// Accumulated total LLM cost (USD) across model invocations for this query
	TotalCostUSD float64
}

// QueryInput represents the input for processing user queries.
type QueryInput struct {
	ConversationID string `json:"conversation_id"`
	Query          string `json:"query"`
}
