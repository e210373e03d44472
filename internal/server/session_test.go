package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationSessionHeaderWins(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(sessionHeader, "explicit")
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: "from-cookie"})

	assert.Equal(t, "explicit", conversationSession(r))
}

func TestConversationSessionCookieFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: sessionCookie, Value: "from-cookie"})

	assert.Equal(t, "from-cookie", conversationSession(r))
}

func TestConversationSessionDerivedIsStable(t *testing.T) {
	mk := func(addr, ua string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		r.Header.Set("User-Agent", ua)
		return r
	}

	a := conversationSession(mk("10.0.0.1:1234", "curl/8.0"))
	b := conversationSession(mk("10.0.0.1:9999", "curl/8.0"))
	c := conversationSession(mk("10.0.0.2:1234", "curl/8.0"))
	d := conversationSession(mk("10.0.0.1:1234", "other-agent"))

	// Same client IP and agent map to the same session regardless of port.
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Len(t, a, 64) // sha256 hex
}
