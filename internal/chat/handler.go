// Package chat implements the conversation surface: session and message
// CRUD, repository ingestion, and question answering against the remote
// assistant backend.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Saail289/gitsight/internal/api"
	"github.com/Saail289/gitsight/internal/assistant"
	"github.com/Saail289/gitsight/internal/config"
	"github.com/Saail289/gitsight/internal/domain"
	"github.com/Saail289/gitsight/internal/events"
	"github.com/Saail289/gitsight/internal/identity"
	"github.com/Saail289/gitsight/internal/markdown"
	"github.com/Saail289/gitsight/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/lithammer/shortuuid/v4"
)

// maxRequestBodySize bounds chat request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Backend is the slice of the assistant client the chat handlers use.
type Backend interface {
	Ingest(ctx context.Context, req assistant.IngestRequest) (*assistant.IngestResult, error)
	Query(ctx context.Context, req assistant.QueryRequest) (*assistant.QueryResult, error)
	DeleteRepository(ctx context.Context, repoURL string) (*assistant.DeleteResult, error)
}

// Handler handles chat session and message endpoints.
type Handler struct {
	repo       store.Repository
	backend    Backend
	hub        *events.Hub
	transcript *TranscriptLogger
	cfg        *config.Config

	// askLocks and ingestLocks are per-user busy flags: a second
	// identical action is rejected while one is outstanding, not queued.
	askLocks    sync.Map
	ingestLocks sync.Map
}

// NewHandler creates a new chat handler.
func NewHandler(repo store.Repository, backend Backend, hub *events.Hub, transcript *TranscriptLogger, cfg *config.Config) *Handler {
	return &Handler{
		repo:       repo,
		backend:    backend,
		hub:        hub,
		transcript: transcript,
		cfg:        cfg,
	}
}

// RegisterRoutes registers chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", h.ListSessions)
		r.Post("/sessions", h.CreateSession)
		r.Patch("/sessions/{id}", h.RenameSession)
		r.Delete("/sessions/{id}", h.DeleteSession)
		r.Get("/sessions/{id}/messages", h.ListMessages)
		r.Post("/sessions/{id}/messages", h.Ask)
		r.Post("/repositories/ingest", h.Ingest)
		r.Delete("/repository", h.DeleteRepository)
	})
}

type sessionResponse struct {
	ID        string `json:"id"`
	RepoURL   string `json:"repo_url"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// messageResponse carries a message plus its rendered HTML fragment. The
// fragment is derived, never stored: it is recomputed from the content
// on every response.
type messageResponse struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	HTML      string `json:"html"`
	CreatedAt int64  `json:"created_at"`
}

func toSessionResponse(s *domain.ChatSession) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		RepoURL:   s.RepoURL,
		Title:     s.Title,
		CreatedAt: s.CreatedAt.Unix(),
		UpdatedAt: s.UpdatedAt.Unix(),
	}
}

func toMessageResponse(m *domain.ChatMessage) messageResponse {
	return messageResponse{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Content,
		HTML:      markdown.Render(m.Content),
		CreatedAt: m.CreatedAt.Unix(),
	}
}

// ListSessions returns the caller's sessions, most recently updated first.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessions, err := h.repo.ListSessions(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to list sessions", "error", err, "user_id", userID)
		api.Error(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, toSessionResponse(s))
	}
	api.JSON(w, http.StatusOK, resp)
}

type createSessionRequest struct {
	RepoURL string `json:"repo_url"`
	Title   string `json:"title"`
}

// CreateSession creates a new session for a repository URL.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if req.RepoURL == "" {
		api.Error(w, http.StatusBadRequest, "repo_url is required")
		return
	}
	if req.Title == "" {
		req.Title = domain.TitleFromRepoURL(req.RepoURL)
	}

	session, err := h.createSession(r.Context(), userID, req.RepoURL, req.Title)
	if err != nil {
		slog.Error("Failed to create session", "error", err, "user_id", userID)
		api.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.hub.Publish(userID, events.Event{Type: events.TypeSessionCreated, Payload: toSessionResponse(session)})
	api.JSON(w, http.StatusCreated, toSessionResponse(session))
}

func (h *Handler) createSession(ctx context.Context, userID, repoURL, title string) (*domain.ChatSession, error) {
	now := time.Now()
	session := &domain.ChatSession{
		ID:        shortuuid.New(),
		UserID:    userID,
		RepoURL:   repoURL,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

type renameSessionRequest struct {
	Title string `json:"title"`
}

// RenameSession updates a session's title.
func (h *Handler) RenameSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	session, ok := h.ownedSession(w, r, userID)
	if !ok {
		return
	}

	var req renameSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	if err := h.repo.UpdateSessionTitle(r.Context(), session.ID, req.Title); err != nil {
		slog.Error("Failed to rename session", "error", err, "session_id", session.ID)
		api.Error(w, http.StatusInternalServerError, "failed to rename session")
		return
	}

	h.hub.Publish(userID, events.Event{Type: events.TypeSessionUpdated, Payload: map[string]string{
		"id":    session.ID,
		"title": req.Title,
	}})
	api.JSON(w, http.StatusOK, map[string]string{"id": session.ID, "title": req.Title})
}

// DeleteSession removes a session and its messages.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	session, ok := h.ownedSession(w, r, userID)
	if !ok {
		return
	}

	if err := h.repo.DeleteSession(r.Context(), session.ID); err != nil {
		slog.Error("Failed to delete session", "error", err, "session_id", session.ID)
		api.Error(w, http.StatusInternalServerError, "failed to delete session")
		return
	}

	h.hub.Publish(userID, events.Event{Type: events.TypeSessionDeleted, Payload: map[string]string{"id": session.ID}})
	api.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ListMessages returns a session's messages in append order, each with
// its rendered fragment.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	session, ok := h.ownedSession(w, r, userID)
	if !ok {
		return
	}

	messages, err := h.repo.ListMessages(r.Context(), session.ID)
	if err != nil {
		slog.Error("Failed to list messages", "error", err, "session_id", session.ID)
		api.Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	resp := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, toMessageResponse(m))
	}
	api.JSON(w, http.StatusOK, resp)
}

type askRequest struct {
	Question string `json:"question"`
	LLMModel string `json:"llm_model"`
}

type askResponse struct {
	Messages []messageResponse `json:"messages"`
}

// Ask submits a question about the session's repository. The user
// message is appended first; the assistant's answer (or, on failure, a
// system-style error message) is appended when its producing call
// completes, so display order always equals append order.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.cfg.MaintenanceMode {
		api.Error(w, http.StatusServiceUnavailable, "service is under maintenance")
		return
	}

	// Busy flag: one outstanding question per user. Concurrent
	// submissions are rejected, not queued.
	lock, _ := h.askLocks.LoadOrStore(userID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Question already in progress", "user_id", userID)
		api.Error(w, http.StatusConflict, "question_in_progress")
		return
	}
	defer func() {
		mutex.Unlock()
		h.askLocks.Delete(userID)
	}()

	session, ok := h.ownedSession(w, r, userID)
	if !ok {
		return
	}

	var req askRequest
	if err := decodeBody(w, r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.LLMModel == "" {
		req.LLMModel = h.cfg.DefaultLLMModel
	}

	ctx := r.Context()
	appended := make([]messageResponse, 0, 2)

	userMsg := &domain.ChatMessage{SessionID: session.ID, Role: domain.RoleUser, Content: req.Question}
	h.appendMessage(ctx, userMsg)
	appended = append(appended, toMessageResponse(userMsg))
	h.transcript.Log(TranscriptEvent{
		UserID:    userID,
		SessionID: session.ID,
		Role:      domain.RoleUser,
		Content:   req.Question,
	})

	slog.Info("Query request",
		"user_id", userID,
		"session_id", session.ID,
		"repo_url", session.RepoURL,
		"llm_model", req.LLMModel,
		"question_length", len(req.Question),
	)

	result, err := h.backend.Query(ctx, assistant.QueryRequest{
		RepoURL:  session.RepoURL,
		Question: req.Question,
		LLMModel: req.LLMModel,
	})

	var reply *domain.ChatMessage
	if err != nil {
		// Both transport and application failures surface as a
		// system-style chat message; nothing is retried.
		slog.Error("Query failed", "error", err, "user_id", userID, "session_id", session.ID)
		reply = &domain.ChatMessage{
			SessionID: session.ID,
			Role:      domain.RoleSystem,
			Content:   err.Error(),
		}
	} else {
		reply = &domain.ChatMessage{
			SessionID: session.ID,
			Role:      domain.RoleAI,
			Content:   result.Answer,
		}
	}

	h.appendMessage(ctx, reply)
	appended = append(appended, toMessageResponse(reply))
	h.transcript.Log(TranscriptEvent{
		UserID:    userID,
		SessionID: session.ID,
		Role:      reply.Role,
		Content:   reply.Content,
	})

	h.touchSession(ctx, userID, session.ID)
	api.JSON(w, http.StatusOK, askResponse{Messages: appended})
}

type ingestRequest struct {
	RepoURL string `json:"repo_url"`
}

// Ingest triggers server-side ingestion of a repository and records the
// outcome as a system message in the repository's session.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.cfg.MaintenanceMode {
		api.Error(w, http.StatusServiceUnavailable, "service is under maintenance")
		return
	}

	lock, _ := h.ingestLocks.LoadOrStore(userID, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("Ingestion already in progress", "user_id", userID)
		api.Error(w, http.StatusConflict, "ingestion_in_progress")
		return
	}
	defer func() {
		mutex.Unlock()
		h.ingestLocks.Delete(userID)
	}()

	var req ingestRequest
	if err := decodeBody(w, r, &req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if req.RepoURL == "" {
		api.Error(w, http.StatusBadRequest, "repo_url is required")
		return
	}

	ctx := r.Context()
	slog.Info("Ingest request", "user_id", userID, "repo_url", req.RepoURL)

	result, err := h.backend.Ingest(ctx, assistant.IngestRequest{RepoURL: req.RepoURL, UserID: userID})
	if err != nil {
		slog.Error("Ingestion failed", "error", err, "user_id", userID, "repo_url", req.RepoURL)
		status := http.StatusBadGateway
		var apiErr *assistant.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		api.Error(w, status, err.Error())
		return
	}

	session, err := h.repo.GetSessionByRepo(ctx, userID, req.RepoURL)
	if err != nil {
		slog.Warn("Failed to look up session after ingest", "error", err, "user_id", userID)
	}
	if session == nil {
		session, err = h.createSession(ctx, userID, req.RepoURL, domain.TitleFromRepoURL(req.RepoURL))
		if err != nil {
			slog.Warn("Failed to create session after ingest", "error", err, "user_id", userID)
		} else {
			h.hub.Publish(userID, events.Event{Type: events.TypeSessionCreated, Payload: toSessionResponse(session)})
		}
	}

	if session != nil {
		notice := &domain.ChatMessage{
			SessionID: session.ID,
			Role:      domain.RoleSystem,
			Content:   result.Message,
		}
		h.appendMessage(ctx, notice)
		h.transcript.Log(TranscriptEvent{
			UserID:    userID,
			SessionID: session.ID,
			Role:      domain.RoleSystem,
			Content:   result.Message,
		})
		h.touchSession(ctx, userID, session.ID)
	}

	h.hub.Publish(userID, events.Event{Type: events.TypeRepositoryIngested, Payload: map[string]any{
		"repo_url":            result.RepoURL,
		"documents_processed": result.DocumentsProcessed,
	}})

	resp := map[string]any{
		"status":              result.Status,
		"message":             result.Message,
		"documents_processed": result.DocumentsProcessed,
		"repo_url":            result.RepoURL,
	}
	if session != nil {
		resp["session_id"] = session.ID
	}
	api.JSON(w, http.StatusOK, resp)
}

// DeleteRepository removes a repository's indexed data from the backend
// and drops the caller's local sessions for it.
func (h *Handler) DeleteRepository(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	repoURL := strings.TrimSpace(r.URL.Query().Get("repo_url"))
	if repoURL == "" {
		api.Error(w, http.StatusBadRequest, "repo_url is required")
		return
	}

	ctx := r.Context()
	result, err := h.backend.DeleteRepository(ctx, repoURL)
	if err != nil {
		slog.Error("Repository deletion failed", "error", err, "user_id", userID, "repo_url", repoURL)
		status := http.StatusBadGateway
		var apiErr *assistant.APIError
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		api.Error(w, status, err.Error())
		return
	}

	deleted, err := h.repo.DeleteSessionsByRepo(ctx, userID, repoURL)
	if err != nil {
		slog.Warn("Failed to delete local sessions for repository", "error", err, "user_id", userID, "repo_url", repoURL)
	} else if deleted > 0 {
		h.hub.Publish(userID, events.Event{Type: events.TypeSessionDeleted, Payload: map[string]any{
			"repo_url": repoURL,
			"count":    deleted,
		}})
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"status":   result.Status,
		"message":  result.Message,
		"repo_url": result.RepoURL,
	})
}

// ownedSession loads the session from the URL parameter and verifies the
// caller owns it. Writes the error response itself when returning !ok.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request, userID string) (*domain.ChatSession, bool) {
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}

	id := chi.URLParam(r, "id")
	session, err := h.repo.GetSession(r.Context(), id)
	if err != nil {
		slog.Error("Failed to load session", "error", err, "session_id", id)
		api.Error(w, http.StatusInternalServerError, "failed to load session")
		return nil, false
	}
	if session == nil || session.UserID != userID {
		api.Error(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return session, true
}

// appendMessage persists a message. Persistence failures are logged and
// swallowed: the conversation continues even when history is lost.
func (h *Handler) appendMessage(ctx context.Context, msg *domain.ChatMessage) {
	if err := h.repo.AppendMessage(ctx, msg); err != nil {
		slog.Warn("Failed to persist chat message",
			"error", err,
			"session_id", msg.SessionID,
			"role", msg.Role,
		)
		msg.CreatedAt = time.Now()
	}
}

func (h *Handler) touchSession(ctx context.Context, userID, sessionID string) {
	if err := h.repo.TouchSession(ctx, sessionID); err != nil {
		slog.Warn("Failed to touch session", "error", err, "session_id", sessionID)
		return
	}
	h.hub.Publish(userID, events.Event{Type: events.TypeSessionUpdated, Payload: map[string]string{"id": sessionID}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(v)
}
