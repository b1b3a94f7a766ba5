package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mcdev12/tabletalk/go/internal/room"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for room sessions
type WebSocketHandler struct {
	connectionManager *ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
	}
}

// HandleRoomConnection opens a session for the user named in the query.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	identity := room.Identity{
		UserID:    strings.TrimSpace(q.Get("user_id")),
		Name:      strings.TrimSpace(q.Get("name")),
		AvatarURL: q.Get("avatar_url"),
	}
	if identity.UserID == "" {
		http.Error(w, "user_id is required", http.StatusUnauthorized)
		return
	}

	// the upgrader has already written an error response on failure
	if err := h.connectionManager.UpgradeConnection(w, r, identity); err != nil {
		log.Error().
			Err(err).
			Str("user_id", identity.UserID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	stats := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		log.Error().Err(err).Msg("failed to encode connection stats")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
