package handler

import (
	"net/http"
)

// MetricsHandler serves the Prometheus exposition, or 404 when metrics
// are disabled.
type MetricsHandler struct {
	exposition http.Handler
}

// NewMetricsHandler creates a new MetricsHandler. A nil exposition means
// metrics are turned off.
func NewMetricsHandler(exposition http.Handler) *MetricsHandler {
	return &MetricsHandler{exposition: exposition}
}

// Metrics handles GET /metrics.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.exposition == nil {
		http.NotFound(w, r)
		return
	}
	h.exposition.ServeHTTP(w, r)
}
