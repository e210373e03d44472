package model

import (
	"context"
)

// HistoryEntry is one conversational turn: the prompt, what was extracted from
// it, which tool ran with which arguments, and (once known) the raw result.
// The JSON tags are the storage format for the Redis repository and the
// serialization the fallback heuristics scan.
type HistoryEntry struct {
	Prompt   string         `json:"prompt"`
	Parsed   *ParsedPrompt  `json:"parsed,omitempty"`
	Tool     string         `json:"tool,omitempty"`
	ToolArgs map[string]any `json:"tool_args,omitempty"`
	Result   string         `json:"result,omitempty"`
}

// HistoryRepository stores a bounded, ordered history log per conversation
// session. Appends within one session key are applied in call order; different
// keys are independent.
type HistoryRepository interface {
	// Append adds an entry to the tail, evicting the oldest entry when the
	// configured capacity is exceeded.
	Append(ctx context.Context, sessionKey string, entry HistoryEntry) error

	// Recent returns the stored entries oldest first; empty for unknown keys.
	Recent(ctx context.Context, sessionKey string) ([]HistoryEntry, error)

	// Clear removes all history for a session key.
	Clear(ctx context.Context, sessionKey string) error

	// Count returns the number of stored entries for a session key.
	Count(ctx context.Context, sessionKey string) (int, error)
}
