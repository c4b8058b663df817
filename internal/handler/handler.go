// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/keygate/keygate/internal/dispatch"
)

// Version is reported by the service info endpoint.
const Version = "1.0.0"

// Handler serves the small static endpoints.
type Handler struct {
	env string
}

// New creates a new Handler instance.
func New(env string) *Handler {
	return &Handler{env: env}
}

// InfoResponse describes the running service.
type InfoResponse struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// Info reports the service name and version.
// GET /
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, InfoResponse{
		Service:     "keygate",
		Version:     Version,
		Environment: h.env,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, dispatch.Envelope{Success: false, Message: "Not found."})
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, dispatch.Envelope{Success: false, Message: "Method not allowed."})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
