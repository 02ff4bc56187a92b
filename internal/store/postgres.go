package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Saail289/gitsight/internal/domain"
	_ "github.com/lib/pq"
)

// PostgresStore implements Repository using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a new Postgres-backed repository.
func NewPostgres(databaseURL string) (Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id      TEXT PRIMARY KEY,
			username     TEXT   NOT NULL,
			last_seen_at BIGINT NOT NULL,
			created_at   BIGINT NOT NULL,
			updated_at   BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id         TEXT PRIMARY KEY,
			user_id    TEXT   NOT NULL,
			repo_url   TEXT   NOT NULL,
			title      TEXT   NOT NULL DEFAULT 'New Chat',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_updated ON chat_sessions(user_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id         BIGSERIAL PRIMARY KEY,
			session_id TEXT   NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			role       TEXT   NOT NULL,
			content    TEXT   NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = $1`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var lastSeen, createdAt, updatedAt int64

	err := row.Scan(&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = time.Unix(lastSeen, 0)
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

// UpsertUser creates or updates a user record.
func (s *PostgresStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username,
		user.LastSeenAt.Unix(), user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *PostgresStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = $1, updated_at = $2 WHERE user_id = $3`
	result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}

	return nil
}

// CreateSession persists a new chat session.
func (s *PostgresStore) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	query := `
	INSERT INTO chat_sessions (id, user_id, repo_url, title, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.UserID, session.RepoURL, session.Title,
		session.CreatedAt.Unix(), session.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *PostgresStore) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	query := `
		SELECT id, user_id, repo_url, title, created_at, updated_at
		FROM chat_sessions WHERE id = $1`

	return s.scanSession(s.db.QueryRowContext(ctx, query, id))
}

// GetSessionByRepo returns the user's most recently updated session for
// the given repository URL.
func (s *PostgresStore) GetSessionByRepo(ctx context.Context, userID, repoURL string) (*domain.ChatSession, error) {
	query := `
		SELECT id, user_id, repo_url, title, created_at, updated_at
		FROM chat_sessions WHERE user_id = $1 AND repo_url = $2
		ORDER BY updated_at DESC LIMIT 1`

	return s.scanSession(s.db.QueryRowContext(ctx, query, userID, repoURL))
}

func (s *PostgresStore) scanSession(row *sql.Row) (*domain.ChatSession, error) {
	var session domain.ChatSession
	var createdAt, updatedAt int64

	err := row.Scan(&session.ID, &session.UserID, &session.RepoURL, &session.Title, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)
	return &session, nil
}

// ListSessions returns a user's sessions ordered by updated_at descending.
func (s *PostgresStore) ListSessions(ctx context.Context, userID string) ([]*domain.ChatSession, error) {
	query := `
		SELECT id, user_id, repo_url, title, created_at, updated_at
		FROM chat_sessions WHERE user_id = $1
		ORDER BY updated_at DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.ChatSession
	for rows.Next() {
		var session domain.ChatSession
		var createdAt, updatedAt int64

		if err := rows.Scan(&session.ID, &session.UserID, &session.RepoURL, &session.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}

		session.CreatedAt = time.Unix(createdAt, 0)
		session.UpdatedAt = time.Unix(updatedAt, 0)
		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// UpdateSessionTitle renames a session and bumps updated_at.
func (s *PostgresStore) UpdateSessionTitle(ctx context.Context, id, title string) error {
	query := `UPDATE chat_sessions SET title = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, title, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update session title: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found")
	}
	return nil
}

// TouchSession bumps a session's updated_at to now.
func (s *PostgresStore) TouchSession(ctx context.Context, id string) error {
	query := `UPDATE chat_sessions SET updated_at = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, time.Now().Unix(), id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeleteSession removes a session; messages cascade.
func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteSessionsByRepo removes all of a user's sessions for a repository.
func (s *PostgresStore) DeleteSessionsByRepo(ctx context.Context, userID, repoURL string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE user_id = $1 AND repo_url = $2`, userID, repoURL)
	if err != nil {
		return 0, fmt.Errorf("delete repo sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repo sessions rows affected: %w", err)
	}
	return deleted, nil
}

// AppendMessage persists a message, filling in its ID and CreatedAt.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if !domain.ValidRole(msg.Role) {
		return fmt.Errorf("invalid message role %q", msg.Role)
	}

	now := time.Now()
	query := `
	INSERT INTO chat_messages (session_id, role, content, created_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id`

	if err := s.db.QueryRowContext(ctx, query,
		msg.SessionID, msg.Role, msg.Content, now.Unix(),
	).Scan(&msg.ID); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	msg.CreatedAt = now
	return nil
}

// ListMessages returns a session's messages ordered by creation time
// ascending. Insert order breaks ties within the same second.
func (s *PostgresStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages WHERE session_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var messages []*domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		var createdAt int64

		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}

		msg.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, &msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

// DeleteIdleSessions removes sessions not updated within the given age.
func (s *PostgresStore) DeleteIdleSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := time.Now().Add(-olderThan).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE updated_at < $1`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
