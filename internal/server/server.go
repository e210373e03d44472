package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tonagent/server/internal/agent/graph"
	"github.com/tonagent/server/internal/agent/model"
	"github.com/tonagent/server/internal/agent/stream"
	errx "github.com/tonagent/server/internal/core/error"
	logx "github.com/tonagent/server/pkg/logger"
)

// Server exposes the analysis pipeline over HTTP: one streaming analyze
// endpoint plus session history and health probes.
type Server struct {
	cfg     Config
	runner  graph.Runner
	history model.HistoryRepository
}

func New(cfg Config, runner graph.Runner, history model.HistoryRepository) *Server {
	return &Server{cfg: cfg, runner: runner, history: history}
}

// Routes assembles the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/session_history", s.handleSessionHistory)
	})

	return r
}

// requireBearer rejects requests that don't carry the configured API token.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token != s.cfg.APIToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing bearer token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type analyzeRequest struct {
	Prompt string `json:"prompt"`
}

// handleAnalyze runs the full pipeline and streams progress lines back as
// server-sent events. Every line the pipeline emits becomes one data frame;
// failures end the stream with a single [ERROR] line rather than a non-200,
// since headers are long gone by then.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt is required"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}

	session := conversationSession(r)
	if _, err := r.Cookie(sessionCookie); err != nil && r.Header.Get(sessionHeader) == "" {
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: session, Path: "/", HttpOnly: true})
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	em := stream.NewEmitter(0)
	ctx := stream.NewContext(r.Context(), em)

	go func() {
		defer em.Close()

		stream.Emit(ctx, "Received prompt: %s", prompt)
		out, err := s.runner.Invoke(ctx, model.QueryInput{
			ConversationID: session,
			Query:          prompt,
		})
		if err != nil {
			logx.Warn().Err(err).Str("session", session).Msg("analysis failed")
			stream.Emit(ctx, "[ERROR] %s", userMessage(err))
			return
		}
		if out != "" {
			stream.Emit(ctx, "%s", out)
		}
	}()

	for line := range em.Lines() {
		fmt.Fprintf(w, "data: %s\n\n", line)
		flusher.Flush()
	}
}

// handleSessionHistory returns the stored turns for the caller's session. An
// explicit session_id query parameter overrides the derived session.
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session_id")
	if session == "" {
		session = conversationSession(r)
	}
	entries, err := s.history.Recent(r.Context(), session)
	if err != nil {
		logx.Error().Err(err).Str("session", session).Msg("failed to load session history")
		var appErr *errx.AppError
		if errors.As(err, &appErr) {
			writeJSON(w, appErr.Status, map[string]string{"error": appErr.Message})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": errx.SystemErrorMessage})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": session,
		"history":    entries,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// userMessage maps pipeline failures to the single user-facing error line.
func userMessage(err error) string {
	switch {
	case errors.Is(err, errx.ErrNothingExtractable):
		return "No address or transaction hash found in prompt or session history, aborting."
	case errors.Is(err, errx.ErrSessionTimeout):
		return "Could not obtain MCP session_id from SSE."
	case errors.Is(err, errx.ErrResultTimeout):
		return "Timeout waiting for SSE message from MCP."
	case errors.Is(err, errx.ErrHandshakeRejected):
		return "MCP server rejected the session handshake."
	case errors.Is(err, errx.ErrLLMOverloaded):
		return "The language model is overloaded. Please try again later."
	}
	var appErr *errx.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return errx.SystemErrorMessage
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logx.Error().Err(err).Msg("failed to encode response body")
	}
}
