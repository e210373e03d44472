package parsers

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tonagent/server/internal/agent/model"
	errx "github.com/tonagent/server/internal/core/error"
	"github.com/tonagent/server/internal/mcp"
)

// The heuristic tier can only fill these two argument shapes, so these are
// the only tool names it ever produces. The catalog-driven router stays
// generic; the literals live here and nowhere else.
const (
	ToolAnalyzeAddress     = "analyze_address"
	ToolTransactionDetails = "get_transaction_details"
)

var (
	// Friendly (UQ/EQ base64url) or raw (workchain:hex) TON address forms.
	addressPattern = regexp.MustCompile(`(UQ|EQ)[A-Za-z0-9_-]{48}|0:[0-9a-fA-F]{64}`)
	txHashPattern  = regexp.MustCompile(`(0x)?[0-9a-fA-F]{64}`)
	explorerTxURL  = regexp.MustCompile(`tonviewer\.com/transaction/([0-9a-fA-F]{64})`)
)

// FindAddress scans the prompt, then the history newest first, for a TON
// address. The returned source names where the match came from.
func FindAddress(prompt string, history []model.HistoryEntry) (address, source string) {
	if m := addressPattern.FindString(prompt); m != "" {
		return m, "prompt"
	}
	for i := len(history) - 1; i >= 0; i-- {
		if m := addressPattern.FindString(serializeEntry(history[i])); m != "" {
			return m, "session_history"
		}
	}
	return "", ""
}

// FindTxHash scans for a transaction hash: a bare 64-hex token in the prompt,
// an explorer URL embedding one, then the history newest first by the same
// two sub-rules.
func FindTxHash(prompt string, history []model.HistoryEntry) (hash, source string) {
	if m := txHashPattern.FindString(prompt); m != "" {
		return m, "prompt"
	}
	if m := explorerTxURL.FindStringSubmatch(prompt); m != nil {
		return m[1], "prompt_url"
	}
	for i := len(history) - 1; i >= 0; i-- {
		text := serializeEntry(history[i])
		if m := txHashPattern.FindString(text); m != "" {
			return m, "session_history"
		}
		if m := explorerTxURL.FindStringSubmatch(text); m != nil {
			return m[1], "session_history_url"
		}
	}
	return "", ""
}

// ResolveFallback decides the single operation to invoke when extraction or
// routing came up empty. The router's hint wins when its argument is
// available; otherwise an address beats a hash; otherwise there is nothing to
// act on. The returned warn line explains what was salvaged and from where.
func ResolveFallback(hint, prompt string, history []model.HistoryEntry) (*mcp.ToolInvocation, string, error) {
	address, addrSource := FindAddress(prompt, history)
	hash, hashSource := FindTxHash(prompt, history)

	switch {
	case hint == ToolAnalyzeAddress && address != "":
		return addressInvocation(address), fallbackWarn("address", address, addrSource, ToolAnalyzeAddress), nil
	case hint == ToolTransactionDetails && hash != "":
		return hashInvocation(hash), fallbackWarn("transaction hash", hash, hashSource, ToolTransactionDetails), nil
	case address != "":
		return addressInvocation(address), fallbackWarn("address", address, addrSource, ToolAnalyzeAddress), nil
	case hash != "":
		return hashInvocation(hash), fallbackWarn("transaction hash", hash, hashSource, ToolTransactionDetails), nil
	}
	return nil, "", errx.ErrNothingExtractable
}

func addressInvocation(address string) *mcp.ToolInvocation {
	return &mcp.ToolInvocation{Name: ToolAnalyzeAddress, Arguments: map[string]any{"address": address}}
}

func hashInvocation(hash string) *mcp.ToolInvocation {
	return &mcp.ToolInvocation{Name: ToolTransactionDetails, Arguments: map[string]any{"tx_hash": hash}}
}

func fallbackWarn(kind, value, source, tool string) string {
	return fmt.Sprintf("[WARN] Fallback: extracted %s %s from %s. Proceeding with %s.", kind, value, source, tool)
}

// ResolveToolName matches a routing reply token against the catalog: exact
// name first, then case-insensitive substring in either direction, walking
// the catalog in sorted-name order so ties resolve deterministically. Empty
// means no match.
func ResolveToolName(token string, names []string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	for _, name := range names {
		if token == name {
			return name
		}
	}
	lower := strings.ToLower(token)
	for _, name := range names {
		nameLower := strings.ToLower(name)
		if strings.Contains(nameLower, lower) || strings.Contains(lower, nameLower) {
			return name
		}
	}
	return ""
}

// FirstToken returns the first whitespace-delimited token of a model reply.
func FirstToken(reply string) string {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func serializeEntry(e model.HistoryEntry) string {
	b, err := json.Marshal(e)
	if err != nil {
		return e.Prompt
	}
	return string(b)
}
