package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	checks  []namedCheck
	timeout time.Duration
}

type namedCheck struct {
	name     string
	checker  HealthChecker
	optional bool
}

// NewHealthHandler creates a new HealthHandler. The store is always
// checked; broker may be nil when the event stream is disabled.
func NewHealthHandler(store, broker HealthChecker) *HealthHandler {
	return &HealthHandler{
		checks: []namedCheck{
			{name: "postgres", checker: store},
			{name: "redis", checker: broker, optional: true},
		},
		timeout: 5 * time.Second,
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is a liveness probe. It never touches dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every configured dependency and reports 503 if any fails
// or if the store is missing.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	healthy := true

	for _, c := range h.checks {
		switch {
		case c.checker == nil && c.optional:
			checks[c.name] = "disabled"
		case c.checker == nil:
			checks[c.name] = "not configured"
			healthy = false
		default:
			if err := c.checker.Ping(ctx); err != nil {
				checks[c.name] = "error: " + err.Error()
				healthy = false
			} else {
				checks[c.name] = "ok"
			}
		}
	}

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}
