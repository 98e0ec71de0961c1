package routes

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/ledger"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/BradenHooton/bastion/internal/services"
	"github.com/BradenHooton/bastion/internal/settings"
	pkglogger "github.com/BradenHooton/bastion/pkg/logger"
	"github.com/stretchr/testify/assert"
)

type staticAuthenticator struct{}

func (staticAuthenticator) Authenticate(ctx context.Context, username, credential string) (*models.User, error) {
	if username == "alice" && credential == "correct" {
		return &models.User{ID: "user-1", Username: "alice"}, nil
	}
	return nil, models.ErrInvalidCredentials
}

func newTestRouter(features settings.Settings, loginRate int) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l := ledger.NewMemoryLedger()
	gate := services.NewLockoutGate(l, staticAuthenticator{}, features, models.DefaultLockoutPolicy(), logger, pkglogger.NewAuditLogger(logger))
	notices := auth.NewNoticeManager("routes-test-notice-secret-0123456789")

	return NewRouter(Dependencies{
		AuthHandler:     handlers.NewAuthHandler(gate, notices, auth.CookieConfig{Name: "login_lockout_notice"}, features, nil, logger),
		HealthHandler:   handlers.NewHealthHandler(l, "memory", features, logger),
		Features:        features,
		Logger:          logger,
		Env:             "development",
		ProductName:     "bastion",
		HiddenEndpoints: []string{"/wp-json/wp/v2/users"},
		LoginRatePerMin: loginRate,
	})
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "192.0.2.10:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter(settings.FromList([]string{settings.LoginLockout}), 0)

	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/auth/login", "").Code)
	assert.Equal(t, http.StatusOK, do(router, http.MethodPost, "/auth/login", `{"username":"alice","password":"correct"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodPost, "/auth/login", `{"username":"alice","password":"nope"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/nowhere", "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(router, http.MethodDelete, "/auth/login", "").Code)
}

func TestRouter_LockoutThroughFullChain(t *testing.T) {
	router := newTestRouter(settings.FromList([]string{settings.LoginLockout, settings.SecureCookies}), 0)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusUnauthorized, do(router, http.MethodPost, "/auth/login", `{"username":"bob","password":"x"}`).Code)
	}
	w := do(router, http.MethodPost, "/auth/login", `{"username":"bob","password":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), "HttpOnly")
}

func TestRouter_HardeningFilters(t *testing.T) {
	all := settings.FromList([]string{
		settings.DisableXMLRPC, settings.FilterRESTEndpoints,
		settings.BlockAuthorEnumeration, settings.HideVersion, settings.SecurityHeaders,
	})
	router := newTestRouter(all, 0)

	assert.Equal(t, http.StatusForbidden, do(router, http.MethodPost, "/xmlrpc.php", "").Code)
	assert.Equal(t, http.StatusNotFound, do(router, http.MethodGet, "/wp-json/wp/v2/users", "").Code)
	assert.Equal(t, http.StatusFound, do(router, http.MethodGet, "/?author=1", "").Code)

	w := do(router, http.MethodGet, "/health", "")
	assert.Equal(t, "bastion", w.Header().Get("Server"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))

	// Nothing is filtered with every toggle off
	none := newTestRouter(settings.New(nil), 0)
	assert.Equal(t, http.StatusNotFound, do(none, http.MethodPost, "/xmlrpc.php", "").Code)
	assert.Equal(t, http.StatusNotFound, do(none, http.MethodGet, "/?author=1", "").Code)
	assert.Empty(t, do(none, http.MethodGet, "/health", "").Header().Get("X-Frame-Options"))
}

func TestRouter_LoginThrottleIsSeparateFromLockout(t *testing.T) {
	router := newTestRouter(settings.New(nil), 2)

	do(router, http.MethodPost, "/auth/login", `{"username":"alice","password":"correct"}`)
	do(router, http.MethodPost, "/auth/login", `{"username":"alice","password":"correct"}`)
	w := do(router, http.MethodPost, "/auth/login", `{"username":"alice","password":"correct"}`)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	// The form is not throttled
	assert.Equal(t, http.StatusOK, do(router, http.MethodGet, "/auth/login", "").Code)
}
