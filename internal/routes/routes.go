package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/middleware"
	pkghttp "github.com/BradenHooton/bastion/pkg/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Dependencies carries everything the router needs
type Dependencies struct {
	AuthHandler     *handlers.AuthHandler
	HealthHandler   *handlers.HealthHandler
	Features        middleware.FeatureSettings
	Logger          *slog.Logger
	IPConfig        *pkghttp.IPConfig
	Env             string
	ProductName     string
	HiddenEndpoints []string
	LoginRatePerMin int
	RequestTimeout  time.Duration
}

// NewRouter builds the middleware chain and registers all application routes
func NewRouter(deps Dependencies) chi.Router {
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.SecureLogger(deps.Logger, deps.IPConfig))
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Timeout(timeout))

	// Hardening filters, each a no-op while its toggle is off
	router.Use(middleware.HideVersion(deps.Features, deps.ProductName))
	router.Use(middleware.SecureCookies(deps.Features))
	router.Use(middleware.SecurityHeaders(deps.Features, middleware.SecurityHeadersConfig{Env: deps.Env}))
	router.Use(middleware.DisableXMLRPC(deps.Features))
	router.Use(middleware.FilterRESTEndpoints(deps.Features, deps.HiddenEndpoints))
	router.Use(middleware.BlockAuthorEnumeration(deps.Features))

	RegisterRoutes(router, deps)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteNotFound(w, "resource not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		pkghttp.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return router
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	loginThrottle := middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestsPerMinute: deps.LoginRatePerMin,
		IPConfig:          deps.IPConfig,
	})

	router.Get("/health", deps.HealthHandler.Health)

	router.Route("/auth", func(r chi.Router) {
		r.Get("/login", deps.AuthHandler.LoginForm)
		r.With(loginThrottle).Post("/login", deps.AuthHandler.Login)
	})
}
