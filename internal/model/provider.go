package model

import "context"

// AuthProvider is the remote auth provider boundary. All calls are single
// attempts; retry policy belongs to callers, not to implementations.
type AuthProvider interface {
	// CurrentSession returns the persisted session, refreshing it with the
	// provider when expired. Returns (nil, nil) when no session exists.
	CurrentSession(ctx context.Context) (*Grant, error)

	SignInWithPassword(ctx context.Context, email, password string) (*Grant, error)

	// SignUp creates an identity. The returned grant carries no session when
	// the provider requires email confirmation before authentication.
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Grant, error)

	// SignInWithOTP requests a magic-link email. Success means the request was
	// accepted, not that the user is authenticated; completion arrives later
	// through VerifyOTP or the push path.
	SignInWithOTP(ctx context.Context, email string) error

	VerifyOTP(ctx context.Context, email, code string) (*Grant, error)

	// OAuthURL builds the provider's authorize URL for a redirect-based flow.
	// The flow resolves out-of-band via the push path after redirect back.
	OAuthURL(oauthProvider string) string

	SignOut(ctx context.Context) error

	ResetPasswordForEmail(ctx context.Context, email string) error

	UpdatePassword(ctx context.Context, newPassword string) (*Grant, error)

	// OnAuthStateChange registers the single subscriber for push events.
	// The returned function unsubscribes.
	OnAuthStateChange(fn func(event AuthEvent, grant *Grant)) func()
}
