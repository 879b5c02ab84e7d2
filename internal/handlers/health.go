package handlers

import (
	"encoding/json"
	"net/http"

	"chess-gateway/internal/hub"
)

// HealthHandler reports liveness and the current connection count.
type HealthHandler struct {
	hub *hub.Hub
}

func NewHealthHandler(h *hub.Hub) *HealthHandler {
	return &HealthHandler{hub: h}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"connections": h.hub.Connections(),
	})
}
