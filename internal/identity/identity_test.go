package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Saail289/gitsight/internal/store"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestMiddlewareIssuesIdentityOnFirstRequest(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	var seenUserID, seenUsername string
	handler := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = UserIDFromContext(r.Context())
		seenUsername = UsernameFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !isValidUserID(seenUserID) {
		t.Fatalf("expected a generated user id, got %q", seenUserID)
	}
	if seenUsername == "" {
		t.Fatal("expected a derived username")
	}

	var cookie *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == CookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("expected identity cookie to be set")
	}
	if cookie.Value != seenUserID {
		t.Fatalf("cookie %q does not match context user %q", cookie.Value, seenUserID)
	}

	user, err := repo.GetUser(context.Background(), seenUserID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if user == nil {
		t.Fatal("expected user row to be created")
	}
	if user.Username != seenUsername {
		t.Fatalf("stored username %q does not match context %q", user.Username, seenUsername)
	}
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	const id = "gs_0123456789abcdef0123456789abcdef"

	var seen string
	handler := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: id})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != id {
		t.Fatalf("expected cookie identity %q to be reused, got %q", id, seen)
	}
}

func TestMiddlewareRejectsMalformedCookie(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	var seen string
	handler := Middleware(repo, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "not-a-valid-id"})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen == "not-a-valid-id" {
		t.Fatal("expected malformed identity to be replaced")
	}
	if !isValidUserID(seen) {
		t.Fatalf("expected a fresh valid id, got %q", seen)
	}
}

func TestMiddlewareSkipsConfiguredPrefixes(t *testing.T) {
	t.Parallel()

	repo := newTestRepo(t)
	var seen string
	handler := Middleware(repo, true, "/api/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen != "" {
		t.Fatalf("expected no identity on skipped path, got %q", seen)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatal("expected no cookie on skipped path")
	}
}

func TestDeriveUsername(t *testing.T) {
	t.Parallel()

	if got := deriveUsername("gs_0123456789abcdef0123456789abcdef"); got != "user-89abcdef" {
		t.Fatalf("deriveUsername = %q, want user-89abcdef", got)
	}
	if got := deriveUsername("short"); got != "user" {
		t.Fatalf("deriveUsername = %q, want user", got)
	}
}

func TestClearCookieExpiresIdentity(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	ClearCookie(rr, true)

	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("expected one identity cookie, got %+v", cookies)
	}
	if cookies[0].MaxAge >= 0 {
		t.Fatalf("expected expired cookie, got MaxAge %d", cookies[0].MaxAge)
	}
}
