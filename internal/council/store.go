package council

import "context"

// SessionStore is the persistence collaborator contract from spec.md §6: an
// append + full-document-replace interface, atomic at the single-document
// level. The orchestrator never talks to a concrete storage backend
// directly.
type SessionStore interface {
	Get(ctx context.Context, userID, sessionID string) (*Session, bool, error)
	AppendAssistant(ctx context.Context, userID, sessionID string, user UserMessage, assistant AssistantMessage) error
	SetTitle(ctx context.Context, userID, sessionID, title string) error
}

// TitleGenerator produces a short title from the first user message of a
// session. It is a detached collaborator per spec.md §4.4/§4.8: failures
// are logged and discarded, never surfaced as orchestrator errors.
type TitleGenerator func(ctx context.Context, userMessage string) (string, error)

// ErrSessionLimitReached is the canonical error a SessionStore.Create (or a
// SessionCreator wrapping one) returns when the caller already owns the
// configured maximum number of sessions, per spec.md §6. Callers use
// errors.As against this type rather than matching on error text.
type ErrSessionLimitReached struct{ UserID string }

func (e *ErrSessionLimitReached) Error() string {
	return "session limit reached for user " + e.UserID
}
