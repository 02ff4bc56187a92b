package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Saail289/gitsight/internal/assistant"
	"github.com/Saail289/gitsight/internal/config"
	"github.com/Saail289/gitsight/internal/events"
	"github.com/Saail289/gitsight/internal/identity"
	"github.com/Saail289/gitsight/internal/store"
	"github.com/go-chi/chi/v5"
)

const testUserID = "gs_0123456789abcdef0123456789abcdef"

type fakeBackend struct {
	healthErr error
	models    *assistant.ModelsResult
	modelsErr error
}

func (f *fakeBackend) Health(_ context.Context) (*assistant.HealthStatus, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &assistant.HealthStatus{Status: "healthy"}, nil
}

func (f *fakeBackend) Models(_ context.Context) (*assistant.ModelsResult, error) {
	if f.modelsErr != nil {
		return nil, f.modelsErr
	}
	if f.models != nil {
		return f.models, nil
	}
	return &assistant.ModelsResult{Models: map[string]string{"nemotron": "nvidia"}}, nil
}

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newSystemRouter(t *testing.T, repo store.Repository, backend Backend, cfg *config.Config) chi.Router {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{DefaultLLMModel: "nemotron", AssistantAPIURL: "http://localhost:8000"}
	}
	h := NewSystemHandler(repo, backend, events.NewHub(), cfg)
	r := chi.NewRouter()
	r.Use(identity.Middleware(repo, true))
	h.RegisterRoutes(r)
	return r
}

func doRequest(router http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.AddCookie(&http.Cookie{Name: identity.CookieName, Value: testUserID})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGetMe(t *testing.T) {
	t.Parallel()

	router := newSystemRouter(t, newTestRepo(t), &fakeBackend{}, nil)
	rr := doRequest(router, http.MethodGet, "/api/me")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["user_id"] != testUserID {
		t.Fatalf("unexpected user_id: %q", resp["user_id"])
	}
	if resp["username"] != "user-89abcdef" {
		t.Fatalf("unexpected username: %q", resp["username"])
	}
}

func TestGetConfig(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		DefaultLLMModel: "mistral",
		AssistantAPIURL: "http://assistant:8000",
		MaintenanceMode: true,
	}
	router := newSystemRouter(t, newTestRepo(t), &fakeBackend{}, cfg)
	rr := doRequest(router, http.MethodGet, "/api/config")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["maintenance_mode"] != true {
		t.Fatalf("expected maintenance_mode true, got %+v", resp)
	}
	if resp["default_llm_model"] != "mistral" {
		t.Fatalf("unexpected default_llm_model: %+v", resp)
	}
}

func TestGetModelsProxiesBackend(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{models: &assistant.ModelsResult{Models: map[string]string{
		"nemotron": "nvidia",
		"mistral":  "mistralai",
	}}}
	router := newSystemRouter(t, newTestRepo(t), backend, nil)
	rr := doRequest(router, http.MethodGet, "/api/models")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp assistant.ModelsResult
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Models) != 2 {
		t.Fatalf("expected 2 models, got %+v", resp.Models)
	}
}

func TestGetModelsBackendDown(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{modelsErr: errors.New("assistant API unreachable: connection refused")}
	router := newSystemRouter(t, newTestRepo(t), backend, nil)
	rr := doRequest(router, http.MethodGet, "/api/models")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

func TestSignOutClearsIdentity(t *testing.T) {
	t.Parallel()

	router := newSystemRouter(t, newTestRepo(t), &fakeBackend{}, nil)
	rr := doRequest(router, http.MethodPost, "/api/auth/signout")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var cleared bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == identity.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatal("expected identity cookie to be expired")
	}
}

func TestHealthAllChecksPass(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler(newTestRepo(t), &fakeBackend{})
	r := chi.NewRouter()
	h.RegisterHealth(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", resp.Status)
	}
	if resp.Checks["database"] != "ok" || resp.Checks["assistant"] != "ok" {
		t.Fatalf("unexpected checks: %+v", resp.Checks)
	}
}

func TestHealthDegradedWhenAssistantDown(t *testing.T) {
	t.Parallel()

	h := NewHealthHandler(newTestRepo(t), &fakeBackend{healthErr: errors.New("connection refused")})
	r := chi.NewRouter()
	h.RegisterHealth(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Fatalf("expected degraded, got %q", resp.Status)
	}
	if resp.Checks["assistant"] != "unreachable" {
		t.Fatalf("unexpected checks: %+v", resp.Checks)
	}
	if resp.Checks["database"] != "ok" {
		t.Fatalf("expected database still ok, got %+v", resp.Checks)
	}
}
