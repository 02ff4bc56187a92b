// Package events pushes change notifications to connected clients over
// WebSocket: session lifecycle changes, ingestion completions, and
// sign-out. Clients use the stream to keep the sidebar session list
// current without polling.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Event types published by the application.
const (
	TypeSessionCreated     = "session.created"
	TypeSessionUpdated     = "session.updated"
	TypeSessionDeleted     = "session.deleted"
	TypeRepositoryIngested = "repository.ingested"
	TypeSignedOut          = "auth.signed_out"
)

// writeTimeout bounds a single fan-out write so a stalled client cannot
// block the publisher.
const writeTimeout = 5 * time.Second

// Event is one change notification.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub manages active notification connections per user.
type Hub struct {
	mu     sync.RWMutex
	active map[string]map[int64]*websocket.Conn
	nextID int64
}

// NewHub creates a new notification hub.
func NewHub() *Hub {
	return &Hub{
		active: make(map[string]map[int64]*websocket.Conn),
	}
}

// Register adds a connection for a user and returns its handle.
func (h *Hub) Register(userID string, conn *websocket.Conn) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	if _, exists := h.active[userID]; !exists {
		h.active[userID] = make(map[int64]*websocket.Conn)
	}
	h.active[userID][id] = conn
	slog.Info("Notification stream registered", "user_id", userID, "conn_id", id)
	return id
}

// Unregister removes a connection for a user.
func (h *Hub) Unregister(userID string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.active[userID]; ok {
		if _, exists := conns[id]; exists {
			delete(conns, id)
			if len(conns) == 0 {
				delete(h.active, userID)
			}
			slog.Info("Notification stream unregistered", "user_id", userID, "conn_id", id)
		}
	}
}

// ActiveConnections returns the number of open connections for a user.
func (h *Hub) ActiveConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[userID])
}

// Publish fans an event out to all of a user's connections. Writes that
// fail or time out drop the connection; publishing never blocks on a
// dead client.
func (h *Hub) Publish(userID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal notification event", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	conns := make(map[int64]*websocket.Conn, len(h.active[userID]))
	for id, conn := range h.active[userID] {
		conns[id] = conn
	}
	h.mu.RUnlock()

	for id, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := conn.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("dropping dead notification stream", "user_id", userID, "conn_id", id, "error", err)
			_ = conn.Close(websocket.StatusNormalClosure, "write failed")
			h.Unregister(userID, id)
		}
	}
}

// CloseUser terminates all of a user's connections; used on sign-out
// after the final notification has been delivered.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.active[userID]
	if !ok {
		return
	}
	for id, conn := range conns {
		_ = conn.Close(websocket.StatusNormalClosure, "signed out")
		slog.Info("Notification stream closed", "user_id", userID, "conn_id", id)
	}
	delete(h.active, userID)
}
