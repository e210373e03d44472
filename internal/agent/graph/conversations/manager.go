package conversations

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/tonagent/server/internal/agent/model"
	logx "github.com/tonagent/server/pkg/logger"
)

// HistoryManager mediates between the pipeline and the history repository:
// it renders recent turns into LLM context and records new turns.
type HistoryManager struct {
	repo         model.HistoryRepository
	contextTurns int
}

func NewHistoryManager(repo model.HistoryRepository, cfg model.ConversationConfig) *HistoryManager {
	return &HistoryManager{
		repo:         repo,
		contextTurns: cfg.ContextTurns,
	}
}

// Context renders the most recent turns as a [SESSION HISTORY] block for
// prepending to LLM prompts. Unknown sessions render as an empty string.
// History is best-effort context, so repository failures degrade to empty
// rather than failing the request.
func (m *HistoryManager) Context(ctx context.Context, sessionKey string) string {
	entries, err := m.repo.Recent(ctx, sessionKey)
	if err != nil {
		logx.Warn().Err(err).Str("session_key", sessionKey).Msg("could not load session history")
		return ""
	}
	if len(entries) == 0 {
		return ""
	}

	if len(entries) > m.contextTurns {
		entries = entries[len(entries)-m.contextTurns:]
	}

	var b strings.Builder
	b.WriteString("[SESSION HISTORY]\n")
	for _, turn := range entries {
		b.WriteString("Prompt: " + turn.Prompt + "\n")
		if turn.Parsed != nil {
			b.WriteString("Parsed: " + marshal(turn.Parsed) + "\n")
		}
		if turn.Tool != "" {
			b.WriteString("Tool: " + turn.Tool + "\n")
		}
		if len(turn.ToolArgs) > 0 {
			b.WriteString("Tool Args: " + marshal(turn.ToolArgs) + "\n")
		}
		if turn.Result != "" {
			b.WriteString("Result: " + marshal(turn.Result) + "\n")
		}
	}
	b.WriteString("---\n")
	return b.String()
}

// Append records a turn. Failures are logged, not propagated: history is a
// context aid, never a reason to fail an analysis.
func (m *HistoryManager) Append(ctx context.Context, sessionKey string, entry model.HistoryEntry) {
	if err := m.repo.Append(ctx, sessionKey, entry); err != nil {
		logx.Warn().Err(err).Str("session_key", sessionKey).Msg("could not append session history")
	}
}

// Recent exposes the stored turns oldest first for the fallback heuristics.
func (m *HistoryManager) Recent(ctx context.Context, sessionKey string) []model.HistoryEntry {
	entries, err := m.repo.Recent(ctx, sessionKey)
	if err != nil {
		logx.Warn().Err(err).Str("session_key", sessionKey).Msg("could not load session history")
		return nil
	}
	return entries
}

func marshal(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
