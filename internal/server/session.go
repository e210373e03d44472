package server

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
)

const (
	sessionHeader = "X-Session-Id"
	sessionCookie = "session_id"
)

// conversationSession derives a stable conversation key for the request:
// explicit header first, then cookie, then a digest of client IP and user
// agent so bare curl sessions still correlate across calls.
func conversationSession(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		host = h
	}
	sum := sha256.Sum256([]byte(host + ":" + r.UserAgent()))
	return hex.EncodeToString(sum[:])
}
