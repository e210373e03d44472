package parsers

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tonagent/server/internal/agent/model"
	logx "github.com/tonagent/server/pkg/logger"
)

var (
	fenceOpen  = regexp.MustCompile("^```[a-zA-Z]*\n?")
	fenceClose = regexp.MustCompile("```$")
	jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)
)

// rawExtraction tolerates the singular key variants some model replies use.
type rawExtraction struct {
	Addresses         []string `json:"addresses"`
	Address           string   `json:"address"`
	TransactionHashes []string `json:"transaction_hashes"`
	TransactionHash   string   `json:"transaction_hash"`
	BlockNumbers      []int64  `json:"block_numbers"`
	Intent            string   `json:"intent"`
}

// ParseExtraction turns a model reply into a ParsedPrompt. Replies may be a
// bare JSON object, an object wrapped in a markdown code fence, prose with an
// embedded object, or a JSON array of content blocks; anything unparseable
// yields an empty ParsedPrompt. It never fails.
func ParseExtraction(content string) model.ParsedPrompt {
	text := strings.TrimSpace(content)
	if text == "" {
		return model.ParsedPrompt{}
	}

	// Content-block list shape: try the text of each block until one parses.
	if strings.HasPrefix(text, "[") {
		var blocks []any
		if err := json.Unmarshal([]byte(text), &blocks); err == nil {
			for _, b := range blocks {
				var candidate string
				switch v := b.(type) {
				case string:
					candidate = v
				case map[string]any:
					if t, ok := v["text"].(string); ok {
						candidate = t
					}
				}
				if candidate == "" {
					continue
				}
				if parsed, ok := parseObject(candidate); ok {
					return parsed
				}
			}
			return model.ParsedPrompt{}
		}
	}

	if parsed, ok := parseObject(text); ok {
		return parsed
	}

	logx.Debug().Str("content", snippet(text)).Msg("extraction reply was not parseable JSON")
	return model.ParsedPrompt{}
}

func parseObject(text string) (model.ParsedPrompt, bool) {
	text = strings.TrimSpace(text)
	text = fenceOpen.ReplaceAllString(text, "")
	text = fenceClose.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	if raw, ok := tryUnmarshal(text); ok {
		return normalize(raw), true
	}
	// Prose around the object: take the outermost {...} span.
	if m := jsonObject.FindString(text); m != "" {
		if raw, ok := tryUnmarshal(m); ok {
			return normalize(raw), true
		}
	}
	return model.ParsedPrompt{}, false
}

func tryUnmarshal(text string) (rawExtraction, bool) {
	if !strings.HasPrefix(text, "{") {
		return rawExtraction{}, false
	}
	var raw rawExtraction
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return rawExtraction{}, false
	}
	return raw, true
}

func normalize(raw rawExtraction) model.ParsedPrompt {
	p := model.ParsedPrompt{
		Addresses:         raw.Addresses,
		TransactionHashes: raw.TransactionHashes,
		BlockNumbers:      raw.BlockNumbers,
		Intent:            strings.TrimSpace(raw.Intent),
	}
	if raw.Address != "" {
		p.Addresses = append(p.Addresses, raw.Address)
	}
	if raw.TransactionHash != "" {
		p.TransactionHashes = append(p.TransactionHashes, raw.TransactionHash)
	}
	return p
}

func snippet(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max]
}
