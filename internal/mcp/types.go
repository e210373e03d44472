package mcp

import (
	"time"
)

// Request is the JSON-RPC envelope sent over the correlated message channel.
// Notifications omit the ID.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// CallParams is the params shape of a tools/call request.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDescriptor describes one remote analysis capability from the catalog.
type ToolDescriptor struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	UsageExample string `json:"usage_example,omitempty"`
}

// ToolInvocation is a resolved tool call: which tool, with which arguments.
type ToolInvocation struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Config holds everything needed to reach the MCP server. Every blocking
// handoff in the bridge has its own bound so a stalled remote can never hang
// a caller indefinitely.
type Config struct {
	ServerURL string `envconfig:"MCP_SERVER_URL" required:"true"`
	APIToken  string `envconfig:"MCP_API_TOKEN"`

	CatalogTimeout time.Duration `envconfig:"MCP_CATALOG_TIMEOUT" default:"10s"`
	CatalogTTL     time.Duration `envconfig:"MCP_CATALOG_TTL" default:"5m"`

	// SessionTimeout bounds the wait for the endpoint event's session id.
	SessionTimeout time.Duration `envconfig:"MCP_SESSION_TIMEOUT" default:"10s"`
	// HandshakeTimeout bounds initialize and notifications/initialized.
	HandshakeTimeout time.Duration `envconfig:"MCP_HANDSHAKE_TIMEOUT" default:"30s"`
	// CallTimeout bounds the tools/call POST itself; results arrive over the
	// stream, not in this response.
	CallTimeout time.Duration `envconfig:"MCP_CALL_TIMEOUT" default:"60s"`
	// StreamTimeout bounds the whole SSE connection lifetime.
	StreamTimeout time.Duration `envconfig:"MCP_STREAM_TIMEOUT" default:"180s"`

	// EventWait is the per-read wait for the next streamed event.
	EventWait time.Duration `envconfig:"MCP_EVENT_WAIT" default:"10s"`
	// StreamBudget is the overall wall clock allowed for result events.
	StreamBudget time.Duration `envconfig:"MCP_STREAM_BUDGET" default:"60s"`
	// MaxEvents caps how many result events are relayed per call.
	MaxEvents int `envconfig:"MCP_MAX_EVENTS" default:"10"`
}
