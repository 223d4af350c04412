package session

import (
	"context"
	"time"
)

// Session represents an authenticated user session. It intentionally
// stores only identity pointers, not auth state.
type Session struct {
	SessionID string    // unique session identifier
	UserID    int64     // references users.id
	Login     string    // login at session creation time
	Remember  bool      // long-lived session requested at login
	ExpiresAt time.Time // absolute expiry time
}

// Store defines how sessions are stored and retrieved. A session absent
// from the store is revoked regardless of token validity.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
}
