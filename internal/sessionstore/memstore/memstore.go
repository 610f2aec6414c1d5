// Package memstore is an in-memory SessionStore, modeled on the teacher's
// per-key RWMutex-guarded map store. Intended for tests and for running the
// demo without a database.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/councilml/council/internal/council"
)

// Store keeps one Session per (userID, sessionID) in memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*council.Session

	maxPerUser int
}

// New returns an empty Store. maxPerUser <= 0 means unbounded.
func New(maxPerUser int) *Store {
	return &Store{sessions: map[string]*council.Session{}, maxPerUser: maxPerUser}
}

func key(userID, sessionID string) string { return userID + "/" + sessionID }

// ErrSessionLimitReached is returned by Create when the user already owns
// the configured maximum number of sessions.
type ErrSessionLimitReached = council.ErrSessionLimitReached

// Create allocates a new session for userID, returning a distinguishable
// *ErrSessionLimitReached when the user is already at capacity, per
// spec.md §6.
func (s *Store) Create(ctx context.Context, userID string) (*council.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxPerUser > 0 {
		count := 0
		for k := range s.sessions {
			if len(k) > len(userID) && k[:len(userID)] == userID && k[len(userID)] == '/' {
				count++
			}
		}
		if count >= s.maxPerUser {
			return nil, &ErrSessionLimitReached{UserID: userID}
		}
	}

	now := time.Now()
	sess := &council.Session{
		UserID:    userID,
		SessionID: uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[key(userID, sess.SessionID)] = sess
	return sess, nil
}

// Get implements council.SessionStore.
func (s *Store) Get(ctx context.Context, userID, sessionID string) (*council.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[key(userID, sessionID)]
	if !ok {
		return nil, false, nil
	}
	clone := *sess
	clone.Messages = append([]council.SessionMessage{}, sess.Messages...)
	return &clone, true, nil
}

// AppendAssistant implements council.SessionStore.
func (s *Store) AppendAssistant(ctx context.Context, userID, sessionID string, user council.UserMessage, assistant council.AssistantMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key(userID, sessionID)]
	if !ok {
		return &errSessionNotFound{userID, sessionID}
	}
	a := assistant
	sess.Messages = append(sess.Messages, council.SessionMessage{User: user, Assistant: &a})
	sess.UpdatedAt = time.Now()
	return nil
}

// SetTitle implements council.SessionStore.
func (s *Store) SetTitle(ctx context.Context, userID, sessionID, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key(userID, sessionID)]
	if !ok {
		return &errSessionNotFound{userID, sessionID}
	}
	sess.Title = title
	return nil
}

type errSessionNotFound struct {
	userID, sessionID string
}

func (e *errSessionNotFound) Error() string {
	return "session not found: " + e.userID + "/" + e.sessionID
}
