package errx

import (
	"errors"
	"fmt"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "redis key not found"
)

// Sentinels for the failure modes the analysis pipeline can surface to the
// caller. Component-local failures (extraction, routing) degrade silently to
// the next fallback tier and never carry one of these.
var (
	// ErrNothingExtractable: no address or transaction hash anywhere, the
	// pipeline has nothing to act on.
	ErrNothingExtractable = errors.New("no address or transaction hash found in prompt or session history")
	// ErrSessionTimeout: the SSE stream never produced an endpoint event with
	// a session id within the bound.
	ErrSessionTimeout = errors.New("could not obtain MCP session_id from SSE")
	// ErrHandshakeRejected: initialize was not accepted by the MCP server.
	ErrHandshakeRejected = errors.New("MCP initialize was not accepted")
	// ErrResultTimeout: no result events arrived within the stream budget.
	ErrResultTimeout = errors.New("timeout waiting for SSE message from MCP")
	// ErrLLMOverloaded: every model and retry was exhausted against an
	// overloaded provider.
	ErrLLMOverloaded = errors.New("LLM provider is overloaded for all models")
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}
