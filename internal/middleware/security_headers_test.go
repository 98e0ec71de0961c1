package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/bastion/internal/settings"
	"github.com/stretchr/testify/assert"
)

func serveWith(mw func(http.Handler) http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	mw(okHandler()).ServeHTTP(w, req)
	return w
}

func TestSecurityHeaders_Production(t *testing.T) {
	mw := SecurityHeaders(settings.FromList([]string{settings.SecurityHeaders}), SecurityHeadersConfig{Env: "production"})

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := serveWith(mw, req)

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.NotContains(t, w.Header().Get("Content-Security-Policy"), "ws:")
	assert.Contains(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000")
}

func TestSecurityHeaders_DevelopmentSkipsHSTS(t *testing.T) {
	mw := SecurityHeaders(settings.FromList([]string{settings.SecurityHeaders}), SecurityHeadersConfig{Env: "development"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w := serveWith(mw, req)

	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "ws:")
}

func TestSecurityHeaders_ToggleOff(t *testing.T) {
	mw := SecurityHeaders(settings.New(nil), SecurityHeadersConfig{Env: "production"})
	w := serveWith(mw, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Empty(t, w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Content-Security-Policy"))
}
