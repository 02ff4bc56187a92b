// Package identity provides the per-request authentication context.
//
// The OAuth sign-in flow itself belongs to an external provider; this
// package establishes the server-side identity the rest of the
// application consumes: a validated cookie identity, a user row in the
// store, and context accessors. Sign-out clears the cookie and the
// associated fields rather than destroying anything.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/Saail289/gitsight/internal/domain"
	"github.com/Saail289/gitsight/internal/store"
)

const (
	// CookieName carries the device identity across requests.
	CookieName    = "gitsight_uid"
	cookieMaxAge  = 30 * 24 * time.Hour
	idBytesLength = 16
)

type contextKey int

const (
	userIDKey contextKey = iota
	usernameKey
)

var userIDPattern = regexp.MustCompile(`^gs_[a-f0-9]{32}$`)

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// UsernameFromContext extracts the username from the request context.
func UsernameFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

func generateUserID() (string, error) {
	buf := make([]byte, idBytesLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}
	return "gs_" + hex.EncodeToString(buf), nil
}

func isValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

func deriveUsername(userID string) string {
	if len(userID) > 11 {
		return "user-" + userID[len(userID)-8:]
	}
	return "user"
}

func ensureUser(ctx context.Context, repo store.Repository, userID string) error {
	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user != nil {
		return repo.UpdateLastSeen(ctx, userID, time.Now())
	}

	now := time.Now()
	return repo.UpsertUser(ctx, &domain.User{
		UserID:     userID,
		Username:   deriveUsername(userID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func setIdentityCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		Expires:  time.Now().Add(cookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateUserID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(CookieName); err == nil && isValidUserID(c.Value) {
		setIdentityCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateUserID()
	if err != nil {
		return "", err
	}
	setIdentityCookie(w, id, isDev)
	return id, nil
}

// ClearCookie expires the identity cookie; used on sign-out.
func ClearCookie(w http.ResponseWriter, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

// Middleware injects the per-request identity context, creating the user
// row on first sight. Websocket and static asset paths pass through
// untouched only when skipPrefixes match.
func Middleware(repo store.Repository, isDev bool, skipPrefixes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range skipPrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			userID, err := getOrCreateUserID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureUser(r.Context(), repo, userID); err != nil {
				http.Error(w, `{"error":"failed to initialize user"}`, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, usernameKey, deriveUsername(userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
