// Package sqlitestore persists council sessions to a SQLite database via
// modernc.org/sqlite (pure Go, no cgo). Each session's message list is
// stored as a single JSON document per spec.md §6: "the persistence layer
// must support append and full replace of a session document; atomicity
// required at the single-document level."
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/councilml/council/internal/council"
)

// Store implements council.SessionStore backed by SQLite.
type Store struct {
	db         *sql.DB
	maxPerUser int
}

// Open opens (creating if necessary) the database at dbPath and ensures its
// schema exists.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlitestore: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return store, nil
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		messages TEXT NOT NULL DEFAULT '[]',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (user_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// SetMaxSessionsPerUser bounds how many sessions Create will allocate for one
// user; 0 means unbounded. Set once at construction time by the caller.
func (s *Store) SetMaxSessionsPerUser(n int) { s.maxPerUser = n }

// Create allocates a new session row for userID, returning a distinguishable
// *ErrSessionLimitReached when the user already owns the configured maximum
// number of sessions, per spec.md §6.
func (s *Store) Create(ctx context.Context, userID string) (*council.Session, error) {
	maxPerUser := s.maxPerUser
	sessionID := uuid.NewString()
	if maxPerUser > 0 {
		var count int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&count); err != nil {
			return nil, fmt.Errorf("sqlitestore: count sessions: %w", err)
		}
		if count >= maxPerUser {
			return nil, &ErrSessionLimitReached{UserID: userID}
		}
	}

	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (user_id, session_id, title, messages, created_at, updated_at) VALUES (?, ?, '', '[]', ?, ?)`,
		userID, sessionID, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: insert session: %w", err)
	}
	return &council.Session{UserID: userID, SessionID: sessionID, CreatedAt: now, UpdatedAt: now}, nil
}

// Get implements council.SessionStore.
func (s *Store) Get(ctx context.Context, userID, sessionID string) (*council.Session, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT title, messages, created_at, updated_at FROM sessions WHERE user_id = ? AND session_id = ?`,
		userID, sessionID)

	var title, messagesJSON, createdAt, updatedAt string
	if err := row.Scan(&title, &messagesJSON, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sqlitestore: get session: %w", err)
	}

	var messages []council.SessionMessage
	if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
		return nil, false, fmt.Errorf("sqlitestore: decode messages: %w", err)
	}
	created, _ := time.Parse(time.RFC3339Nano, createdAt)
	updated, _ := time.Parse(time.RFC3339Nano, updatedAt)

	return &council.Session{
		UserID:    userID,
		SessionID: sessionID,
		Title:     title,
		Messages:  messages,
		CreatedAt: created,
		UpdatedAt: updated,
	}, true, nil
}

// AppendAssistant implements council.SessionStore: it reads the current
// message list, appends the new turn, and writes the document back in one
// transaction, giving single-document atomicity.
func (s *Store) AppendAssistant(ctx context.Context, userID, sessionID string, user council.UserMessage, assistant council.AssistantMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer tx.Rollback()

	var messagesJSON string
	err = tx.QueryRowContext(ctx, `SELECT messages FROM sessions WHERE user_id = ? AND session_id = ?`, userID, sessionID).Scan(&messagesJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlitestore: session not found: %s/%s", userID, sessionID)
		}
		return fmt.Errorf("sqlitestore: read messages: %w", err)
	}

	var messages []council.SessionMessage
	if err := json.Unmarshal([]byte(messagesJSON), &messages); err != nil {
		return fmt.Errorf("sqlitestore: decode messages: %w", err)
	}
	messages = append(messages, council.SessionMessage{User: user, Assistant: &assistant})

	encoded, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode messages: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET messages = ?, updated_at = ? WHERE user_id = ? AND session_id = ?`,
		string(encoded), time.Now().Format(time.RFC3339Nano), userID, sessionID)
	if err != nil {
		return fmt.Errorf("sqlitestore: update messages: %w", err)
	}
	return tx.Commit()
}

// SetTitle implements council.SessionStore.
func (s *Store) SetTitle(ctx context.Context, userID, sessionID, title string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE user_id = ? AND session_id = ?`,
		title, time.Now().Format(time.RFC3339Nano), userID, sessionID)
	if err != nil {
		return fmt.Errorf("sqlitestore: set title: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sqlitestore: session not found: %s/%s", userID, sessionID)
	}
	return nil
}

// ErrSessionLimitReached is returned by Create when the user is already at
// their configured session limit, per spec.md §6.
type ErrSessionLimitReached = council.ErrSessionLimitReached
