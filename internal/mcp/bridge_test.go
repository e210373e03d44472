package mcp

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/tonagent/server/internal/core/error"
)

func testBridgeConfig(serverURL string) Config {
	return Config{
		ServerURL:        serverURL,
		CatalogTimeout:   time.Second,
		CatalogTTL:       5 * time.Minute,
		SessionTimeout:   2 * time.Second,
		HandshakeTimeout: 2 * time.Second,
		CallTimeout:      2 * time.Second,
		StreamTimeout:    10 * time.Second,
		EventWait:        2 * time.Second,
		StreamBudget:     5 * time.Second,
		MaxEvents:        10,
	}
}

// mockMCP emulates the remote MCP server: an /sse stream that reveals the
// session id, and a correlated /messages/ endpoint accepting JSON-RPC posts.
type mockMCP struct {
	t         *testing.T
	sessionID string

	initializeStatus int
	events           []string

	mu       sync.Mutex
	methods  []string
	queries  []string
	toolCall chan struct{}

	srv *httptest.Server
}

func newMockMCP(t *testing.T) *mockMCP {
	m := &mockMCP{
		t:                t,
		sessionID:        "ABC123",
		initializeStatus: http.StatusAccepted,
		toolCall:         make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/sse", m.handleSSE)
	mux.HandleFunc("/messages/", m.handleMessages)
	m.srv = httptest.NewServer(mux)
	t.Cleanup(m.srv.Close)
	return m
}

func (m *mockMCP) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		m.t.Error("response writer does not support flushing")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprintf(w, "event: endpoint\ndata: /messages/?session_id=%s\n\n", m.sessionID)
	flusher.Flush()

	// Hold the stream open until the tool call lands, then deliver results
	// and close.
	select {
	case <-m.toolCall:
	case <-r.Context().Done():
		return
	case <-time.After(5 * time.Second):
		return
	}

	for _, ev := range m.events {
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", ev)
		flusher.Flush()
	}
}

func (m *mockMCP) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		m.t.Errorf("decode message body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	m.mu.Lock()
	m.methods = append(m.methods, req.Method)
	m.queries = append(m.queries, r.URL.RawQuery)
	m.mu.Unlock()

	switch req.Method {
	case "initialize":
		w.WriteHeader(m.initializeStatus)
	case "tools/call":
		w.WriteHeader(http.StatusAccepted)
		close(m.toolCall)
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

func (m *mockMCP) recordedMethods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.methods...)
}

func TestBridgeRunHappyPath(t *testing.T) {
	mock := newMockMCP(t)
	mock.events = []string{`{"step":"fetching"}`, `{"balance":"12.5 TON"}`}

	b := NewBridge(testBridgeConfig(mock.srv.URL))

	var lines []string
	last, err := b.Run(t.Context(), ToolInvocation{
		Name:      "analyze_address",
		Arguments: map[string]any{"address": "EQabc"},
	}, func(line string) { lines = append(lines, line) })

	require.NoError(t, err)
	assert.Equal(t, `{"balance":"12.5 TON"}`, last)

	assert.Equal(t, []string{"initialize", "notifications/initialized", "tools/call"}, mock.recordedMethods())
	for _, q := range mock.queries {
		assert.Equal(t, "session_id=ABC123", q)
	}

	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "[MCP] Using session_id: ABC123")
	assert.Contains(t, joined, "[MCP] initialize status: 202")
	assert.Contains(t, joined, "Calling MCP tool 'analyze_address' with session_id ABC123")
	assert.Contains(t, joined, `[MCP SSE] {"step":"fetching"}`)
	assert.Contains(t, joined, `[MCP SSE] {"balance":"12.5 TON"}`)

	var sseLines int
	for _, l := range lines {
		if strings.HasPrefix(l, "[MCP SSE] ") {
			sseLines++
		}
	}
	assert.Equal(t, 2, sseLines)
}

func TestBridgeRunSessionTimeout(t *testing.T) {
	// A server that accepts the stream but never sends the endpoint event.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	cfg := testBridgeConfig(srv.URL)
	cfg.SessionTimeout = 100 * time.Millisecond
	b := NewBridge(cfg)

	start := time.Now()
	last, err := b.Run(t.Context(), ToolInvocation{Name: "analyze_address"}, func(string) {})

	assert.ErrorIs(t, err, errx.ErrSessionTimeout)
	assert.Empty(t, last)
	// Run must join its stream worker before returning, and that must not
	// take anywhere near the full stream timeout.
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBridgeRunHandshakeRejected(t *testing.T) {
	mock := newMockMCP(t)
	mock.initializeStatus = http.StatusInternalServerError

	b := NewBridge(testBridgeConfig(mock.srv.URL))

	_, err := b.Run(t.Context(), ToolInvocation{Name: "analyze_address"}, func(string) {})

	assert.ErrorIs(t, err, errx.ErrHandshakeRejected)
	// Nothing past initialize may have been sent.
	assert.Equal(t, []string{"initialize"}, mock.recordedMethods())
}

func TestBridgeRunResultTimeout(t *testing.T) {
	mock := newMockMCP(t)
	mock.events = nil // tool call accepted, but no result ever arrives

	cfg := testBridgeConfig(mock.srv.URL)
	cfg.EventWait = 100 * time.Millisecond
	cfg.StreamBudget = time.Second
	b := NewBridge(cfg)

	last, err := b.Run(t.Context(), ToolInvocation{Name: "analyze_address"}, func(string) {})

	// The mock closes the stream after delivering zero events, so Run either
	// observes the close (empty result, no error) or the read timeout,
	// depending on which the relay loop sees first. Both are terminal.
	if err != nil {
		assert.ErrorIs(t, err, errx.ErrResultTimeout)
	}
	assert.Empty(t, last)
}

func TestBridgeRunCapsRelayedEvents(t *testing.T) {
	mock := newMockMCP(t)
	for i := 0; i < 6; i++ {
		mock.events = append(mock.events, fmt.Sprintf(`{"seq":%d}`, i))
	}

	cfg := testBridgeConfig(mock.srv.URL)
	cfg.MaxEvents = 3
	b := NewBridge(cfg)

	var sseLines []string
	last, err := b.Run(t.Context(), ToolInvocation{Name: "analyze_address"}, func(line string) {
		if strings.HasPrefix(line, "[MCP SSE] ") {
			sseLines = append(sseLines, line)
		}
	})

	require.NoError(t, err)
	assert.Len(t, sseLines, 3)
	assert.Equal(t, `{"seq":2}`, last)
}

func TestBridgeSessionIDFromLastSuffix(t *testing.T) {
	mock := newMockMCP(t)
	mock.sessionID = "f00dfeed"
	mock.events = []string{`{"done":true}`}

	b := NewBridge(testBridgeConfig(mock.srv.URL))

	var lines []string
	_, err := b.Run(t.Context(), ToolInvocation{Name: "analyze_address"}, func(line string) {
		lines = append(lines, line)
	})

	require.NoError(t, err)
	assert.Contains(t, strings.Join(lines, "\n"), "[MCP] Using session_id: f00dfeed")
}
