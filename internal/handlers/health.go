package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/bastion/pkg/http"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and ledger health
type HealthHandler struct {
	ledger   Pinger
	backend  string
	features FeatureEnumerator
	logger   *slog.Logger
}

// FeatureEnumerator lists the enabled hardening toggles
type FeatureEnumerator interface {
	Enabled() []string
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string   `json:"status"`
	Ledger   string   `json:"ledger"`
	Backend  string   `json:"backend"`
	Features []string `json:"features"`
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(ledger Pinger, backend string, features FeatureEnumerator, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		ledger:   ledger,
		backend:  backend,
		features: features,
		logger:   logger,
	}
}

// Health reports 503 when the ledger is unreachable. Logins keep working in
// that state because the lockout fails open.
// @Summary Health check
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:   "ok",
		Ledger:   "ok",
		Backend:  h.backend,
		Features: h.features.Enabled(),
	}
	status := http.StatusOK

	if err := h.ledger.Ping(ctx); err != nil {
		h.logger.Warn("ledger health check failed", slog.String("backend", h.backend), slog.Any("error", err))
		resp.Status = "degraded"
		resp.Ledger = "unavailable"
		status = http.StatusServiceUnavailable
	}

	pkghttp.WriteJSON(w, status, resp)
}
