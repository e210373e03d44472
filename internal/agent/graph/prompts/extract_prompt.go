package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed template/extract_prompt.txt
var extractSystemPrompt string

// RenderExtractSystem renders the entity-extraction system prompt via the
// Eino prompt component. The template contains JSON braces, so it is passed
// through a messages placeholder rather than FString-formatted.
func RenderExtractSystem(ctx context.Context) (string, error) {
	tpl := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("system_messages", false),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"system_messages": []*schema.Message{schema.SystemMessage(extractSystemPrompt)},
	})
	if err != nil {
		return "", fmt.Errorf("extract prompt callbacks: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("extract prompt callbacks: empty result")
	}
	return msgs[0].Content, nil
}
