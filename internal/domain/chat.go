package domain

import (
	"strings"
	"time"
)

// Message roles as persisted in the session store.
const (
	RoleUser   = "user"
	RoleAI     = "ai"
	RoleSystem = "system"
)

// ChatSession is a persisted conversation thread bound to one repository
// URL and one user. Sessions are listed most recently updated first.
type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RepoURL   string    `json:"repo_url"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is a single message within a session. Messages are
// append-only and ordered by creation time ascending.
type ChatMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidRole reports whether role is one of the persisted message roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAI, RoleSystem:
		return true
	}
	return false
}

// TitleFromRepoURL derives a default session title from a repository URL,
// e.g. "https://github.com/golang/go" -> "golang/go".
func TitleFromRepoURL(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}
	if trimmed == "" {
		return "New Chat"
	}
	return trimmed
}
