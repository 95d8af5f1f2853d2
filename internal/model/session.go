package model

import (
	"time"

	"github.com/google/uuid"
)

// AuthEvent identifies a push notification from the remote auth provider
// about a change in session state.
type AuthEvent string

const (
	EventInitialSession   AuthEvent = "INITIAL_SESSION"
	EventSignedIn         AuthEvent = "SIGNED_IN"
	EventSignedOut        AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	EventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// Session represents a live authentication grant issued by the remote provider.
// It is replaced wholesale on token refresh and destroyed on sign-out.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	UserID       uuid.UUID
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// Valid reports whether the session expiry is strictly in the future.
// An expired session must be treated as absent everywhere.
func (s *Session) Valid(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.ExpiresAt.After(now)
}

// Identity holds the authenticated principal's stable attributes. The remote
// provider owns identities; this is a read-only local copy.
type Identity struct {
	ID               uuid.UUID
	Email            string
	EmailConfirmedAt *time.Time
	CreatedAt        time.Time
}

// Grant bundles what the provider returns on a successful auth operation.
// Session is nil when the identity exists but is not yet authenticated,
// e.g. sign-up with email confirmation still pending.
type Grant struct {
	Session  *Session
	Identity Identity
}
