package handler

import (
	"net/http"

	"github.com/shoplens-ai/catalog-assistant/internal/events"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	natsClient *events.Client
	auditing   bool
}

// NewHealthHandler creates a new health handler. A nil NATS client means
// auditing is disabled and does not gate readiness.
func NewHealthHandler(natsClient *events.Client, auditing bool) *HealthHandler {
	return &HealthHandler{
		natsClient: natsClient,
		auditing:   auditing,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.auditing && (h.natsClient == nil || !h.natsClient.IsConnected()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
