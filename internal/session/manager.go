// Package session owns the single authoritative in-process record of
// authentication state. It bridges two event sources into one consistent
// state: the provider's asynchronous push callback and the imperative
// operations called by UI consumers.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jurisprep/authd/internal/logger"
	"github.com/jurisprep/authd/internal/model"
)

// Snapshot is the read-only view handed to UI consumers. Authenticated is
// derived from session validity at snapshot time.
type Snapshot struct {
	Session       *model.Session
	Identity      *model.Identity
	Profile       *model.Profile
	Authenticated bool
	Loading       bool
	Err           *model.AuthError
	Derived       model.DerivedState
}

// Recorder records auth operation outcomes for monitoring. A sign-in is
// counted only when a session is actually established; magic-link requests
// are recorded separately because acceptance does not authenticate.
type Recorder interface {
	ObserveSignIn(method string, authErr *model.AuthError)
	ObserveSignUp(authErr *model.AuthError)
	ObserveMagicLinkRequest(authErr *model.AuthError)
	ObserveTokenRefresh()
	ObserveProfileFetch(outcome string)
}

// nopRecorder is used when no collector is wired, e.g. in tests.
type nopRecorder struct{}

func (nopRecorder) ObserveSignIn(string, *model.AuthError)   {}
func (nopRecorder) ObserveSignUp(*model.AuthError)           {}
func (nopRecorder) ObserveMagicLinkRequest(*model.AuthError) {}
func (nopRecorder) ObserveTokenRefresh()                     {}
func (nopRecorder) ObserveProfileFetch(string)               {}

// Manager is the session/authentication state machine. It is the only writer
// of the {session, identity, profile, loading, err} tuple; everything else
// reads through Snapshot or a subscription.
type Manager struct {
	provider model.AuthProvider
	profiles model.ProfileStore
	notifier model.Notifier
	recorder Recorder
	logger   *logger.Logger

	mu       sync.RWMutex
	session  *model.Session
	identity *model.Identity
	profile  *model.Profile
	authErr  *model.AuthError
	loading  bool

	// generation increments whenever the session's user id changes. Profile
	// fetches capture it at dispatch and discard their result on mismatch.
	generation uint64

	// fetchPending is set while a profile fetch dispatched for pendingGen is
	// in flight. It keeps loading true when the same grant arrives through
	// both the push and the imperative path.
	fetchPending bool
	pendingGen   uint64

	subscribers map[int]func(Snapshot)
	nextSubID   int
	unsubscribe func()

	ctx context.Context
}

// NewManager creates a manager. recorder may be nil.
func NewManager(
	provider model.AuthProvider,
	profiles model.ProfileStore,
	notifier model.Notifier,
	recorder Recorder,
	logger *logger.Logger,
) *Manager {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Manager{
		provider:    provider,
		profiles:    profiles,
		notifier:    notifier,
		recorder:    recorder,
		logger:      logger,
		loading:     true,
		subscribers: make(map[int]func(Snapshot)),
	}
}

// Start resolves the initial state. The persisted-session check and the
// provider's push callback race; applyGrant converges them on the same final
// state without fetching the profile twice.
func (m *Manager) Start(ctx context.Context) error {
	m.ctx = ctx
	m.unsubscribe = m.provider.OnAuthStateChange(m.handleAuthEvent)

	grant, err := m.provider.CurrentSession(ctx)
	if err != nil {
		m.logger.Warn("session: initial session check failed", "error", err.Error())
	}
	if grant != nil && grant.Session.Valid(time.Now()) {
		m.applyGrant(grant)
		return nil
	}

	m.mu.Lock()
	alreadyResolved := m.identity != nil
	if !alreadyResolved {
		m.loading = false
	}
	m.mu.Unlock()
	if !alreadyResolved {
		m.notify()
	}
	return nil
}

// Close detaches from the provider push stream.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Subscribe registers an observer called after every state change with a
// fresh snapshot. The returned function unsubscribes.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Snapshot returns the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	now := time.Now()
	return Snapshot{
		Session:       m.session,
		Identity:      m.identity,
		Profile:       m.profile,
		Authenticated: m.session.Valid(now) && m.identity != nil,
		Loading:       m.loading,
		Err:           m.authErr,
		Derived:       model.Derive(m.identity, m.profile, now),
	}
}

// SignInWithPassword authenticates with email and password. On failure the
// session state is left untouched and only the transient error is set.
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return m.fail("password", model.NewAuthError(model.CodeInvalidCredentials, 0))
	}

	grant, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return m.fail("password", model.AsAuthError(err))
	}

	m.recorder.ObserveSignIn("password", nil)
	m.applyGrant(grant)
	m.notifier.Success("Signed in")
	return nil
}

// SignInWithMagicLink requests a magic-link email. Success means the request
// was accepted; authentication completes later through VerifyOTP or the
// provider push path.
func (m *Manager) SignInWithMagicLink(ctx context.Context, email string) error {
	if email == "" {
		authErr := model.NewAuthError(model.CodeInvalidCredentials, 0)
		m.recorder.ObserveMagicLinkRequest(authErr)
		return m.setError(authErr)
	}

	if err := m.provider.SignInWithOTP(ctx, email); err != nil {
		authErr := model.AsAuthError(err)
		m.recorder.ObserveMagicLinkRequest(authErr)
		return m.setError(authErr)
	}

	m.recorder.ObserveMagicLinkRequest(nil)
	m.notifier.Success("Check your email for the sign-in link")
	return nil
}

// VerifyOTP completes a magic-link flow with the emailed code.
func (m *Manager) VerifyOTP(ctx context.Context, email, code string) error {
	grant, err := m.provider.VerifyOTP(ctx, email, code)
	if err != nil {
		return m.fail("magic_link", model.AsAuthError(err))
	}

	m.recorder.ObserveSignIn("magic_link", nil)
	m.applyGrant(grant)
	m.notifier.Success("Signed in")
	return nil
}

// SignInWithOAuth starts a redirect-based flow and returns the authorize URL.
// It does not resolve to an authenticated state: the session materializes
// through the push path after the redirect round-trip completes.
func (m *Manager) SignInWithOAuth(oauthProvider string) (string, error) {
	if oauthProvider == "" {
		return "", m.fail("oauth", model.NewAuthError(model.CodeProvider, 0))
	}
	return m.provider.OAuthURL(oauthProvider), nil
}

// SignUp registers a new identity. Depending on provider configuration the
// user may stay unauthenticated until email confirmation; the manager never
// assumes immediate authentication.
func (m *Manager) SignUp(ctx context.Context, email, password string, metadata map[string]any) error {
	if email == "" || password == "" {
		authErr := model.NewAuthError(model.CodeInvalidCredentials, 0)
		m.recorder.ObserveSignUp(authErr)
		return m.setError(authErr)
	}

	grant, err := m.provider.SignUp(ctx, email, password, metadata)
	if err != nil {
		authErr := model.AsAuthError(err)
		m.recorder.ObserveSignUp(authErr)
		return m.setError(authErr)
	}

	m.recorder.ObserveSignUp(nil)
	if grant.Session == nil {
		m.notifier.Success("Account created, check your email to confirm")
		return nil
	}

	m.applyGrant(grant)
	m.notifier.Success("Account created")
	return nil
}

// SignOut clears the local session, identity and profile before the provider
// call returns, so consumers never observe a stale authenticated view. The
// generation bump discards any profile fetch still in flight.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.session = nil
	m.identity = nil
	m.profile = nil
	m.authErr = nil
	m.loading = false
	m.generation++
	m.mu.Unlock()
	m.notify()

	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Warn("session: provider sign-out failed after local clear", "error", err.Error())
		return model.AsAuthError(err)
	}
	m.notifier.Success("Signed out")
	return nil
}

// ResetPassword requests a password recovery email.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	if email == "" {
		return m.setError(model.NewAuthError(model.CodeInvalidCredentials, 0))
	}
	if err := m.provider.ResetPasswordForEmail(ctx, email); err != nil {
		return m.setError(model.AsAuthError(err))
	}
	m.notifier.Success("Check your email for the reset link")
	return nil
}

// UpdatePassword sets a new password for the signed-in user. A rejected
// password leaves session, identity and profile unchanged.
func (m *Manager) UpdatePassword(ctx context.Context, newPassword string) error {
	m.mu.RLock()
	authenticated := m.session.Valid(time.Now())
	m.mu.RUnlock()
	if !authenticated {
		return m.setError(model.AsAuthError(model.ErrUnauthenticated))
	}

	if _, err := m.provider.UpdatePassword(ctx, newPassword); err != nil {
		return m.setError(model.AsAuthError(err))
	}
	m.notifier.Success("Password updated")
	return nil
}

// RefreshProfile re-fetches the profile for the current user. No-op when
// unauthenticated.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	m.mu.Lock()
	if m.identity == nil {
		m.mu.Unlock()
		return nil
	}
	userID := m.identity.ID
	gen := m.generation
	m.mu.Unlock()

	m.fetchProfile(ctx, userID, gen)
	return nil
}

// handleAuthEvent is the provider push callback. Push events are
// authoritative for session identity: whatever arrives last wins.
func (m *Manager) handleAuthEvent(event model.AuthEvent, grant *model.Grant) {
	m.logger.Debug("session: auth event", "event", string(event))

	if event == model.EventSignedOut || grant == nil || !grant.Session.Valid(time.Now()) {
		m.mu.Lock()
		changed := m.session != nil || m.identity != nil || m.loading
		m.session = nil
		m.identity = nil
		m.profile = nil
		m.loading = false
		m.generation++
		m.mu.Unlock()
		if changed {
			m.notify()
		}
		return
	}

	if event == model.EventTokenRefreshed {
		m.recorder.ObserveTokenRefresh()
	}
	m.applyGrant(grant)
}

// applyGrant installs a session and identity. The profile is fetched only
// when the user id changed; a token refresh for the same user keeps the
// cached profile and does not dispatch a new fetch.
func (m *Manager) applyGrant(grant *model.Grant) {
	m.mu.Lock()
	sameUser := m.identity != nil && m.identity.ID == grant.Identity.ID

	m.session = grant.Session
	identity := grant.Identity
	m.identity = &identity
	m.authErr = nil

	var (
		fetchID  uuid.UUID
		fetchGen uint64
		fetch    bool
	)
	if sameUser {
		// The fetch dispatched for this generation may still be in flight;
		// loading clears when it resolves.
		if !m.fetchPending || m.pendingGen != m.generation {
			m.loading = false
		}
	} else {
		m.generation++
		m.profile = nil
		m.loading = true
		m.fetchPending = true
		m.pendingGen = m.generation
		fetchID = identity.ID
		fetchGen = m.generation
		fetch = true
	}
	m.mu.Unlock()
	m.notify()

	if fetch {
		ctx := m.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		go m.fetchProfile(ctx, fetchID, fetchGen)
	}
}

// fetchProfile loads the profile row for userID and applies it only if the
// generation captured at dispatch still matches. A failed fetch is non-fatal:
// the session stands, the profile stays nil.
func (m *Manager) fetchProfile(ctx context.Context, userID uuid.UUID, gen uint64) {
	profile, err := m.profiles.GetByUserID(ctx, userID)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.recorder.ObserveProfileFetch("stale")
		m.logger.Debug("session: discarding stale profile fetch", "user_id", userID.String())
		return
	}

	switch {
	case err == nil:
		m.profile = &profile
		m.recorder.ObserveProfileFetch("ok")
	default:
		m.profile = nil
		m.recorder.ObserveProfileFetch("error")
		m.logger.Error("session: profile fetch failed",
			"user_id", userID.String(),
			"error", err.Error())
	}
	m.fetchPending = false
	m.loading = false
	m.mu.Unlock()
	m.notify()
}

// fail records a failed sign-in attempt and surfaces the error.
func (m *Manager) fail(method string, authErr *model.AuthError) error {
	m.recorder.ObserveSignIn(method, authErr)
	return m.setError(authErr)
}

// setError sets the transient error and notifies without touching the
// session tuple.
func (m *Manager) setError(authErr *model.AuthError) error {
	m.mu.Lock()
	m.authErr = authErr
	m.mu.Unlock()

	m.notifier.Error(authErr.Message)
	m.notify()
	return fmt.Errorf("auth operation failed: %w", authErr)
}

// notify delivers a fresh snapshot to every subscriber outside the lock.
func (m *Manager) notify() {
	m.mu.RLock()
	snap := m.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(snap)
	}
}
