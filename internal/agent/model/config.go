package model

// ================ Config ================
type ConversationConfig struct {
	TTL string `envconfig:"CONVERSATION_TTL" default:"15m"`
	// Capacity bounds the per-session history log; the oldest entry is
	// evicted first once it is exceeded.
	Capacity int `envconfig:"CONVERSATION_HISTORY_CAPACITY" default:"5"`
	// ContextTurns is how many recent turns are prepended to LLM calls.
	ContextTurns int `envconfig:"CONVERSATION_CONTEXT_TURNS" default:"5"`
}

type ExtractModelConfig struct {
	Model         string  `envconfig:"EXTRACT_MODEL" default:"gemini-2.5-flash"`
	FallbackModel string  `envconfig:"EXTRACT_FALLBACK_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens     int     `envconfig:"EXTRACT_MAX_TOKENS" default:"1024"`
	Temperature   float32 `envconfig:"EXTRACT_TEMPERATURE" default:"0.1"`
}

type ReportModelConfig struct {
	Model         string  `envconfig:"REPORT_MODEL" default:"gemini-2.5-flash"`
	FallbackModel string  `envconfig:"REPORT_FALLBACK_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens     int     `envconfig:"REPORT_MAX_TOKENS" default:"2000"`
	Temperature   float32 `envconfig:"REPORT_TEMPERATURE" default:"0.4"`
	// Enabled toggles the final report stage; when off the raw tool result is
	// the last line of the stream.
	Enabled bool `envconfig:"REPORT_ENABLED" default:"true"`
}
