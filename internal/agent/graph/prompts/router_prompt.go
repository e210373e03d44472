package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/tonagent/server/internal/mcp"
)

//go:embed template/router_prompt.txt
var routerPrompt string

// RenderRouter renders the intent-to-tool routing prompt, enumerating every
// catalog tool with its description and usage example. The tool order is the
// caller's (sorted) order so routing stays deterministic.
func RenderRouter(ctx context.Context, intent string, names []string, catalog map[string]mcp.ToolDescriptor) (string, error) {
	var tools strings.Builder
	for _, name := range names {
		t, ok := catalog[name]
		if !ok {
			continue
		}
		tools.WriteString("- " + t.Name + ": " + t.Description)
		if t.UsageExample != "" {
			tools.WriteString(" (Example: " + t.UsageExample + ")")
		}
		tools.WriteString("\n")
	}

	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.UserMessage(routerPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Intent": intent,
		"Tools":  tools.String(),
	})
	if err != nil {
		return "", fmt.Errorf("router prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("router prompt render: empty result")
	}
	return msgs[0].Content, nil
}
