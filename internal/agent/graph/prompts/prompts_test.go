package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonagent/server/internal/mcp"
)

func TestRenderExtractSystem(t *testing.T) {
	out, err := RenderExtractSystem(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "transaction_hashes")
	// The JSON example must survive rendering untouched.
	assert.Contains(t, out, `{"addresses": ["UQ...", "0:..."]`)
}

func TestRenderRouterListsToolsInOrder(t *testing.T) {
	catalog := map[string]mcp.ToolDescriptor{
		"analyze_address": {
			Name:         "analyze_address",
			Description:  "Analyze a TON address",
			UsageExample: "analyze_address EQabc",
		},
		"get_transaction_details": {
			Name:        "get_transaction_details",
			Description: "Look up a transaction",
		},
	}

	out, err := RenderRouter(context.Background(), "check balance", []string{"analyze_address", "get_transaction_details"}, catalog)
	require.NoError(t, err)
	assert.Contains(t, out, "User intent: 'check balance'")
	assert.Contains(t, out, "- analyze_address: Analyze a TON address (Example: analyze_address EQabc)")
	assert.Contains(t, out, "- get_transaction_details: Look up a transaction")
}

func TestRenderRouterEmptyCatalog(t *testing.T) {
	out, err := RenderRouter(context.Background(), "", nil, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "User intent: ''")
}

func TestRenderReport(t *testing.T) {
	inv := mcp.ToolInvocation{
		Name:      "analyze_address",
		Arguments: map[string]any{"address": "EQabc"},
	}

	out, err := RenderReport(context.Background(), inv, `{"balance":"12.5"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "The tool 'analyze_address' was invoked")
	assert.Contains(t, out, `{"address":"EQabc"}`)
	assert.Contains(t, out, `{"balance":"12.5"}`)
}
