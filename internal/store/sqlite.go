package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Saail289/gitsight/internal/domain"
	"github.com/Saail289/gitsight/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		repo_url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT 'New Chat',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_updated ON chat_sessions(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

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
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
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
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
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
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	query := `
	INSERT INTO chat_sessions (id, user_id, repo_url, title, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

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
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	query := `
		SELECT id, user_id, repo_url, title, created_at, updated_at
		FROM chat_sessions WHERE id = ?`

	return s.scanSession(s.db.QueryRowContext(ctx, query, id))
}

// GetSessionByRepo returns the user's most recently updated session for
// the given repository URL.
func (s *SQLiteStore) GetSessionByRepo(ctx context.Context, userID, repoURL string) (*domain.ChatSession, error) {
	query := `
		SELECT id, user_id, repo_url, title, created_at, updated_at
		FROM chat_sessions WHERE user_id = ? AND repo_url = ?
		ORDER BY updated_at DESC LIMIT 1`

	return s.scanSession(s.db.QueryRowContext(ctx, query, userID, repoURL))
}

func (s *SQLiteStore) scanSession(row *sql.Row) (*domain.ChatSession, error) {
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
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]*domain.ChatSession, error) {
	query := `
		SELECT id, user_id, repo_url, title, created_at, updated_at
		FROM chat_sessions WHERE user_id = ?
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
func (s *SQLiteStore) UpdateSessionTitle(ctx context.Context, id, title string) error {
	query := `UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ?`
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
func (s *SQLiteStore) TouchSession(ctx context.Context, id string) error {
	query := `UPDATE chat_sessions SET updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, time.Now().Unix(), id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// DeleteSession removes a session and all of its messages.
// Implements retry logic with exponential backoff to handle SQLITE_BUSY
// errors.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := s.deleteSessionOnce(ctx, id)
		if err == nil {
			return nil
		}

		if shared.IsSQLiteConflictError(err) {
			if i < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
				slog.Debug("DeleteSession hit a locked database, retrying",
					"session_id", id,
					"attempt", i+1,
					"delay", delay)
				time.Sleep(delay)
				continue
			}
		}

		return fmt.Errorf("failed to delete session %s after %d attempts: %w", id, maxRetries, err)
	}

	return nil
}

func (s *SQLiteStore) deleteSessionOnce(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			slog.Warn("failed to roll back session delete", "error", rollbackErr)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return tx.Commit()
}

// DeleteSessionsByRepo removes all of a user's sessions for a repository.
func (s *SQLiteStore) DeleteSessionsByRepo(ctx context.Context, userID, repoURL string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			slog.Warn("failed to roll back repo session delete", "error", rollbackErr)
		}
	}()

	msgQuery := `
		DELETE FROM chat_messages WHERE session_id IN (
			SELECT id FROM chat_sessions WHERE user_id = ? AND repo_url = ?
		)`
	if _, err := tx.ExecContext(ctx, msgQuery, userID, repoURL); err != nil {
		return 0, fmt.Errorf("delete repo messages: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE user_id = ? AND repo_url = ?`, userID, repoURL)
	if err != nil {
		return 0, fmt.Errorf("delete repo sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repo sessions rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit repo session delete: %w", err)
	}
	return deleted, nil
}

// AppendMessage persists a message, filling in its ID and CreatedAt.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.ChatMessage) error {
	if !domain.ValidRole(msg.Role) {
		return fmt.Errorf("invalid message role %q", msg.Role)
	}

	now := time.Now()
	query := `
	INSERT INTO chat_messages (session_id, role, content, created_at)
	VALUES (?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query, msg.SessionID, msg.Role, msg.Content, now.Unix())
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("message insert id: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = now
	return nil
}

// ListMessages returns a session's messages ordered by creation time
// ascending. Insert order breaks ties within the same second.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages WHERE session_id = ?
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
func (s *SQLiteStore) DeleteIdleSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	threshold := time.Now().Add(-olderThan).Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin retention transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && rollbackErr != sql.ErrTxDone {
			slog.Warn("failed to roll back retention sweep", "error", rollbackErr)
		}
	}()

	msgQuery := `
		DELETE FROM chat_messages WHERE session_id IN (
			SELECT id FROM chat_sessions WHERE updated_at < ?
		)`
	if _, err := tx.ExecContext(ctx, msgQuery, threshold); err != nil {
		return 0, fmt.Errorf("delete idle session messages: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("delete idle sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idle sessions rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit retention sweep: %w", err)
	}
	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
