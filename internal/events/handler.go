package events

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/Saail289/gitsight/internal/identity"
	"github.com/coder/websocket"
)

// Handler upgrades /ws/events requests and parks them on the hub.
type Handler struct {
	hub           *Hub
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new notification stream handler.
func NewHandler(hub *Hub, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		hub:           hub,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept notification stream", "error", err, "user_id", userID)
		return
	}

	connID := h.hub.Register(userID, ws)
	defer h.hub.Unregister(userID, connID)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close notification stream", "error", closeErr, "user_id", userID)
		}
	}()

	// Clients never send application data on this stream; the read loop
	// exists to observe close frames and request cancellation.
	ctx := r.Context()
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				slog.Debug("Notification stream read ended", "user_id", userID, "error", err)
			}
			return
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev || h.allowedOrigin == "" {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return strings.HasPrefix(origin, h.allowedOrigin)
}
