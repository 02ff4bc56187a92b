package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Saail289/gitsight/internal/assistant"
	"github.com/Saail289/gitsight/internal/config"
	"github.com/Saail289/gitsight/internal/events"
	"github.com/Saail289/gitsight/internal/identity"
	"github.com/Saail289/gitsight/internal/store"
	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// Backend is the slice of the assistant client the system handlers use.
type Backend interface {
	Health(ctx context.Context) (*assistant.HealthStatus, error)
	Models(ctx context.Context) (*assistant.ModelsResult, error)
}

// SystemHandler serves identity, configuration, and model metadata.
type SystemHandler struct {
	repo    store.Repository
	backend Backend
	hub     *events.Hub
	cfg     *config.Config
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(repo store.Repository, backend Backend, hub *events.Hub, cfg *config.Config) *SystemHandler {
	return &SystemHandler{repo: repo, backend: backend, hub: hub, cfg: cfg}
}

// RegisterRoutes registers system routes.
func (h *SystemHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Get("/models", h.GetModels)
		r.Post("/auth/signout", h.SignOut)
	})
}

// GetMe returns the current user's information.
func (h *SystemHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  user.UserID,
		"username": user.Username,
	})
}

// GetConfig returns the startup configuration surface for the frontend.
func (h *SystemHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"maintenance_mode":  h.cfg.MaintenanceMode,
		"assistant_api_url": h.cfg.AssistantAPIURL,
		"default_llm_model": h.cfg.DefaultLLMModel,
	})
}

// GetModels proxies the assistant backend's model list.
func (h *SystemHandler) GetModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.backend.Models(r.Context())
	if err != nil {
		slog.Warn("Failed to fetch model list", "error", err)
		Error(w, http.StatusBadGateway, err.Error())
		return
	}
	JSON(w, http.StatusOK, models)
}

// SignOut clears the identity cookie and closes the user's notification
// streams after a final signed-out event.
func (h *SystemHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	identity.ClearCookie(w, h.cfg.IsDevelopment())
	h.hub.Publish(userID, events.Event{Type: events.TypeSignedOut})
	h.hub.CloseUser(userID)

	slog.Info("User signed out", "user_id", userID)
	JSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo    store.Repository
	backend Backend
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, backend Backend) *HealthHandler {
	return &HealthHandler{repo: repo, backend: backend}
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}

// Health reports the health of the API, the session store, and the
// remote assistant backend.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := map[string]interface{}{
		"status": "healthy",
		"checks": map[string]string{"api": "ok"},
	}
	statusCode := http.StatusOK
	checks := status["checks"].(map[string]string)

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if _, err := h.backend.Health(ctx); err != nil {
		slog.Warn("Assistant health check failed", "error", err)
		status["status"] = "degraded"
		checks["assistant"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["assistant"] = "ok"
	}

	JSON(w, statusCode, status)
}
