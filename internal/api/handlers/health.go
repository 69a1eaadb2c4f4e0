package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-pkgz/lgr"
)

// HealthHandler answers liveness checks.
type HealthHandler struct {
	logger lgr.L
	checks []func() error
}

// NewHealthHandler builds a HealthHandler that runs checks, in order, on
// every request.
func NewHealthHandler(logger lgr.L, checks ...func() error) *HealthHandler {
	return &HealthHandler{logger: logger, checks: checks}
}

// HandleHealth returns the service's health status.
// @Summary Health check
// @Description Reports whether the service and its dependencies are reachable
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} ErrorResponse
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	for _, check := range h.checks {
		if err := check(); err != nil {
			h.logger.Logf("WARN health check failed: %v", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
