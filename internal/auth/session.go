package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoSession means the request carried no access token.
	ErrNoSession = errors.New("no session")
	// ErrInvalidSession means the provider rejected the access token.
	ErrInvalidSession = errors.New("invalid session")
)

// User is the authenticated principal as reported by the hosted auth service.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email,omitempty"`
	Role  string    `json:"role,omitempty"`
}

// Session is what the gate hands down to protected routes.
type Session struct {
	User        User      `json:"user"`
	AccessToken string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Provider resolves an access token to a session. Implementations make at
// most one remote call and do not retry.
type Provider interface {
	Session(ctx context.Context, accessToken string) (*Session, error)
}

// PasswordAuthenticator is implemented by providers that can sign users in
// directly.
type PasswordAuthenticator interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const sessionKey contextKey = "session"

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session stored by the gate, or nil.
func SessionFromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(sessionKey).(*Session); ok {
		return s
	}
	return nil
}

// UserIDFromContext returns the signed-in user's id, or uuid.Nil.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	if s := SessionFromContext(ctx); s != nil {
		return s.User.ID
	}
	return uuid.Nil
}
