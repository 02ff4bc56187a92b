// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/Saail289/gitsight/internal/config"
	"github.com/Saail289/gitsight/internal/domain"
)

// Repository defines the interface for persisting users, chat sessions,
// and chat messages.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns (nil, nil) when
	// the user does not exist.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// CreateSession persists a new chat session.
	CreateSession(ctx context.Context, session *domain.ChatSession) error

	// GetSession retrieves a session by ID. Returns (nil, nil) when the
	// session does not exist.
	GetSession(ctx context.Context, id string) (*domain.ChatSession, error)

	// GetSessionByRepo returns the user's most recently updated session
	// for the given repository URL, or (nil, nil).
	GetSessionByRepo(ctx context.Context, userID, repoURL string) (*domain.ChatSession, error)

	// ListSessions returns a user's sessions ordered by updated_at
	// descending.
	ListSessions(ctx context.Context, userID string) ([]*domain.ChatSession, error)

	// UpdateSessionTitle renames a session and bumps updated_at.
	UpdateSessionTitle(ctx context.Context, id, title string) error

	// TouchSession bumps a session's updated_at to now.
	TouchSession(ctx context.Context, id string) error

	// DeleteSession removes a session and all of its messages.
	DeleteSession(ctx context.Context, id string) error

	// DeleteSessionsByRepo removes all of a user's sessions (and their
	// messages) for the given repository URL.
	DeleteSessionsByRepo(ctx context.Context, userID, repoURL string) (int64, error)

	// AppendMessage persists a message, filling in its ID and CreatedAt.
	AppendMessage(ctx context.Context, msg *domain.ChatMessage) error

	// ListMessages returns a session's messages ordered by creation time
	// ascending.
	ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error)

	// DeleteIdleSessions removes sessions not updated within the given
	// age, returning the number deleted.
	DeleteIdleSessions(ctx context.Context, olderThan time.Duration) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Open returns the repository selected by the configured driver.
func Open(cfg *config.Config) (Repository, error) {
	if cfg.DBDriver == config.DriverPostgres {
		return NewPostgres(cfg.DatabaseURL)
	}
	return NewSQLite(cfg.DBPath)
}
