package prompts

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/tonagent/server/internal/mcp"
)

//go:embed template/report_prompt.txt
var reportPrompt string

// RenderReport renders the prompt that turns a raw tool result into a
// human-readable analysis.
func RenderReport(ctx context.Context, inv mcp.ToolInvocation, rawResult string) (string, error) {
	args, err := json.Marshal(inv.Arguments)
	if err != nil {
		args = []byte("{}")
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.UserMessage(reportPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Tool":      inv.Name,
		"Arguments": string(args),
		"Result":    rawResult,
	})
	if err != nil {
		return "", fmt.Errorf("report prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("report prompt render: empty result")
	}
	return msgs[0].Content, nil
}
