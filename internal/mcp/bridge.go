package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	errx "github.com/tonagent/server/internal/core/error"
	logx "github.com/tonagent/server/pkg/logger"
)

const eventBuffer = 100

// Bridge correlates a one-shot tools/call with the MCP server's asynchronous
// event stream. The server only reveals where follow-up calls go via the
// first stream event, and only delivers results via further stream events, so
// each Run stitches the two channels together under one session id:
//
//	open /sse -> endpoint event carries session_id -> POST initialize ->
//	POST notifications/initialized -> POST tools/call -> relay stream events.
//
// A Bridge is cheap and stateless across runs; every Run owns its own stream
// worker and tears it down on all exit paths.
type Bridge struct {
	cfg    Config
	client *http.Client
}

func NewBridge(cfg Config) *Bridge {
	return &Bridge{
		cfg: cfg,
		// Per-request timeouts are applied via context; the client itself
		// stays unbounded so one shared transport can serve them all.
		client: &http.Client{},
	}
}

// Run performs the session handshake, submits the invocation, and relays
// result events through emit as they arrive. It returns the last relayed
// payload. Partial results already emitted stay emitted on failure, and the
// stream worker is always joined before Run returns.
func (b *Bridge) Run(ctx context.Context, inv ToolInvocation, emit func(string)) (lastResult string, err error) {
	streamCtx, cancel := context.WithCancel(ctx)

	sessionCh := make(chan string, 1)
	events := make(chan string, eventBuffer)

	var wg sync.WaitGroup
	wg.Add(1)
	go b.listen(streamCtx, sessionCh, events, &wg)

	defer wg.Wait()
	defer cancel()

	var sessionID string
	select {
	case sessionID = <-sessionCh:
	case <-time.After(b.cfg.SessionTimeout):
		return "", errx.ErrSessionTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
	emit("[MCP] Using session_id: " + sessionID)

	postURL := strings.TrimSuffix(b.cfg.ServerURL, "/") + "/messages/?session_id=" + sessionID

	// Handshake: initialize must be accepted before anything else is sent.
	status, err := b.post(ctx, postURL, b.cfg.HandshakeTimeout, Request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": 1,
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "ton-agent", "version": "0.1"},
		},
	})
	if err != nil {
		return "", fmt.Errorf("initialize: %w", err)
	}
	emit(fmt.Sprintf("[MCP] initialize status: %d", status))
	if status != http.StatusAccepted {
		return "", errx.ErrHandshakeRejected
	}

	status, err = b.post(ctx, postURL, b.cfg.HandshakeTimeout, Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
		Params:  map[string]any{},
	})
	if err != nil {
		return "", fmt.Errorf("notifications/initialized: %w", err)
	}
	emit(fmt.Sprintf("[MCP] notifications/initialized status: %d", status))

	emit(fmt.Sprintf("Calling MCP tool '%s' with session_id %s and arguments %v...", inv.Name, sessionID, inv.Arguments))
	status, err = b.post(ctx, postURL, b.cfg.CallTimeout, Request{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  "tools/call",
		Params:  CallParams{Name: inv.Name, Arguments: inv.Arguments},
	})
	if err != nil {
		return "", fmt.Errorf("tools/call: %w", err)
	}
	emit(fmt.Sprintf("MCP response status: %d", status))

	return b.relay(ctx, events, emit)
}

// relay forwards stream events to the caller until the event count or wall
// clock budget is exhausted, the stream closes, or a read times out.
func (b *Bridge) relay(ctx context.Context, events <-chan string, emit func(string)) (string, error) {
	deadline := time.Now().Add(b.cfg.StreamBudget)
	timer := time.NewTimer(b.cfg.EventWait)
	defer timer.Stop()

	var last string
	count := 0
	for count < b.cfg.MaxEvents {
		wait := b.cfg.EventWait
		if remaining := time.Until(deadline); remaining < wait {
			if remaining <= 0 {
				break
			}
			wait = remaining
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case data, ok := <-events:
			if !ok {
				// Stream source closed; whatever arrived so far stands.
				return last, nil
			}
			emit("[MCP SSE] " + data)
			last = data
			count++
		case <-timer.C:
			if count == 0 {
				return "", errx.ErrResultTimeout
			}
			emit("[ERROR] Timeout waiting for SSE message from MCP.")
			return last, nil
		case <-ctx.Done():
			return last, ctx.Err()
		}
	}
	return last, nil
}

// listen is the per-request stream worker. It publishes the session id from
// the first endpoint event, then forwards every subsequent event payload
// FIFO. It stops on context cancellation (request teardown), stream close, or
// the overall stream timeout, and closes events so the relay loop observes
// the end of the stream.
func (b *Bridge) listen(ctx context.Context, sessionCh chan<- string, events chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(events)

	url := strings.TrimSuffix(b.cfg.ServerURL, "/") + "/sse"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		logx.Error().Err(err).Msg("create SSE request failed")
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if b.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIToken)
	}

	// The client timeout bounds the whole connection so an abandoned stream
	// can never outlive its budget even without cancellation.
	client := &http.Client{Timeout: b.cfg.StreamTimeout}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			logx.Error().Err(err).Str("url", url).Msg("SSE connection failed")
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logx.Error().Int("status", resp.StatusCode).Str("url", url).Msg("SSE returned non-200")
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventName string
	sessionSeen := false
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if !sessionSeen {
				if eventName == "endpoint" && strings.Contains(data, "session_id=") {
					id := data[strings.LastIndex(data, "session_id=")+len("session_id="):]
					sessionSeen = true
					// Buffered; never blocks even if the caller already
					// timed out and went away.
					sessionCh <- id
				} else {
					logx.Debug().Str("event", eventName).Str("data", data).
						Msg("ignoring stream event while waiting for session id")
				}
				continue
			}
			select {
			case events <- data:
			case <-ctx.Done():
				return
			}
		case line == "":
			eventName = ""
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		logx.Warn().Err(err).Msg("SSE stream read ended with error")
	}
}

func (b *Bridge) post(ctx context.Context, url string, timeout time.Duration, payload Request) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIToken)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return resp.StatusCode, nil
}
