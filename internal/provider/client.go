// Package provider implements the REST client for the hosted auth provider.
// The client owns the one persisted session for this agent: it refreshes the
// access token before expiry, persists tokens across restarts, and pushes
// auth-state events to its single subscriber.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jurisprep/authd/internal/logger"
	"github.com/jurisprep/authd/internal/model"
	"github.com/jurisprep/authd/internal/token"
)

// refreshMargin is how long before expiry the auto-refresh fires.
const refreshMargin = 30 * time.Second

// Config contains parameters for the provider client.
type Config struct {
	BaseURL     string
	AnonKey     string
	RedirectURL string
	SessionFile string
}

// Client talks to the provider's auth API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	tokens     *token.Parser
	logger     *logger.Logger

	mu           sync.Mutex
	current      *model.Grant
	subscriber   func(model.AuthEvent, *model.Grant)
	refreshTimer *time.Timer
	closed       bool
}

var _ model.AuthProvider = (*Client)(nil)

// NewClient creates a provider client and restores the persisted session, if
// any. No event is emitted until a subscriber registers.
func NewClient(cfg Config, tokens *token.Parser, logger *logger.Logger) *Client {
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		tokens:     tokens,
		logger:     logger,
	}

	if grant, err := c.loadPersisted(); err != nil {
		logger.Warn("provider: could not restore persisted session", "error", err.Error())
	} else if grant != nil {
		c.current = grant
	}

	return c
}

// OnAuthStateChange registers the subscriber for push events. If a still-valid
// session was restored at startup, an INITIAL_SESSION event is delivered
// asynchronously, racing the caller's own CurrentSession check on purpose. An
// expired restore is left to CurrentSession, which refreshes it.
func (c *Client) OnAuthStateChange(fn func(model.AuthEvent, *model.Grant)) func() {
	c.mu.Lock()
	c.subscriber = fn
	hasValid := c.current != nil && c.current.Session != nil && c.current.Session.Valid(time.Now())
	c.mu.Unlock()

	if hasValid {
		go c.emitInitialSession()
	}

	return func() {
		c.mu.Lock()
		c.subscriber = nil
		c.mu.Unlock()
	}
}

// emitInitialSession delivers INITIAL_SESSION for a restored session. The
// grant is re-read at delivery time: the session may have been cleared or
// expired since the subscriber registered, and a snapshot taken back then
// could hand out tokens that are no longer good. An invalid grant is never
// delivered.
func (c *Client) emitInitialSession() {
	c.mu.Lock()
	fn := c.subscriber
	current := cloneGrant(c.current)
	c.mu.Unlock()

	if fn == nil || current == nil || current.Session == nil {
		return
	}
	if !current.Session.Valid(time.Now()) {
		return
	}
	fn(model.EventInitialSession, current)
}

// CurrentSession returns the active session, refreshing it with the provider
// when expired. Returns (nil, nil) when no session exists.
func (c *Client) CurrentSession(ctx context.Context) (*model.Grant, error) {
	c.mu.Lock()
	current := cloneGrant(c.current)
	c.mu.Unlock()

	if current == nil || current.Session == nil {
		return nil, nil
	}
	if current.Session.Valid(time.Now()) {
		return current, nil
	}
	if current.Session.RefreshToken == "" {
		return nil, nil
	}

	grant, err := c.refreshGrant(ctx, current.Session.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh expired session: %w", err)
	}
	return grant, nil
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Grant, error) {
	var resp tokenResponse
	query := url.Values{"grant_type": {"password"}}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/token", query, body, "", &resp); err != nil {
		return nil, err
	}

	grant, err := c.grantFromToken(resp)
	if err != nil {
		return nil, err
	}
	c.setSession(grant, model.EventSignedIn)
	return grant, nil
}

// SignUp creates a new identity. When the provider requires email
// confirmation the response carries no tokens and the returned grant has a
// nil session.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.Grant, error) {
	var resp tokenResponse
	body := map[string]any{"email": email, "password": password}
	if len(metadata) > 0 {
		body["data"] = metadata
	}
	if err := c.do(ctx, http.MethodPost, "/signup", nil, body, "", &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		// Confirmation pending: the signup endpoint returned the bare user
		// object, which decodes into the embedded user fields.
		identity, err := resp.User.identity()
		if err != nil {
			// Some deployments return the user at the top level instead.
			identity, err = resp.topLevelIdentity()
			if err != nil {
				return nil, fmt.Errorf("failed to decode signup response: %w", err)
			}
		}
		return &model.Grant{Identity: identity}, nil
	}

	grant, err := c.grantFromToken(resp)
	if err != nil {
		return nil, err
	}
	c.setSession(grant, model.EventSignedIn)
	return grant, nil
}

// SignInWithOTP requests a magic-link email. The user is not authenticated
// until the link is followed and verified.
func (c *Client) SignInWithOTP(ctx context.Context, email string) error {
	body := map[string]any{"email": email, "create_user": true}
	return c.do(ctx, http.MethodPost, "/otp", nil, body, "", nil)
}

// VerifyOTP completes a magic-link flow with the emailed code.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) (*model.Grant, error) {
	var resp tokenResponse
	body := map[string]string{"type": "magiclink", "email": email, "token": code}
	if err := c.do(ctx, http.MethodPost, "/verify", nil, body, "", &resp); err != nil {
		return nil, err
	}

	grant, err := c.grantFromToken(resp)
	if err != nil {
		return nil, err
	}
	c.setSession(grant, model.EventSignedIn)
	return grant, nil
}

// OAuthURL builds the authorize URL for a redirect-based OAuth flow. The flow
// completes out-of-band; no session exists until the provider reports one.
func (c *Client) OAuthURL(oauthProvider string) string {
	query := url.Values{
		"provider":    {oauthProvider},
		"redirect_to": {c.cfg.RedirectURL},
	}
	return c.cfg.BaseURL + "/authorize?" + query.Encode()
}

// SignOut revokes the session with the provider. Local state is cleared and
// SIGNED_OUT emitted before the network call, so a slow provider can never
// leave a stale authenticated view behind.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	var bearer string
	if c.current != nil && c.current.Session != nil {
		bearer = c.current.Session.AccessToken
	}
	c.mu.Unlock()

	c.clearSession()

	if bearer == "" {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "/logout", nil, nil, bearer, nil); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// ResetPasswordForEmail requests a password recovery email.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.do(ctx, http.MethodPost, "/recover", nil, body, "", nil)
}

// UpdatePassword sets a new password for the authenticated user. The session
// is left untouched; only the identity copy is updated from the response.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) (*model.Grant, error) {
	c.mu.Lock()
	current := cloneGrant(c.current)
	c.mu.Unlock()

	if current == nil || current.Session == nil {
		return nil, model.ErrUnauthenticated
	}

	var user userJSON
	body := map[string]string{"password": newPassword}
	if err := c.do(ctx, http.MethodPut, "/user", nil, body, current.Session.AccessToken, &user); err != nil {
		return nil, err
	}

	identity, err := user.identity()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.current != nil {
		c.current.Identity = identity
	}
	updated := cloneGrant(c.current)
	c.mu.Unlock()

	if updated == nil {
		updated = &model.Grant{Session: current.Session, Identity: identity}
	}
	return updated, nil
}

// Close stops the auto-refresh loop. The persisted session file is kept.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

func (c *Client) refreshGrant(ctx context.Context, refreshToken string) (*model.Grant, error) {
	var resp tokenResponse
	query := url.Values{"grant_type": {"refresh_token"}}
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/token", query, body, "", &resp); err != nil {
		return nil, err
	}

	grant, err := c.grantFromToken(resp)
	if err != nil {
		return nil, err
	}
	c.setSession(grant, model.EventTokenRefreshed)
	return grant, nil
}

// autoRefresh runs when the refresh timer fires. A failed refresh ends the
// session: the provider is the source of truth for session identity.
func (c *Client) autoRefresh() {
	c.mu.Lock()
	if c.closed || c.current == nil || c.current.Session == nil || c.current.Session.RefreshToken == "" {
		c.mu.Unlock()
		return
	}
	refreshToken := c.current.Session.RefreshToken
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := c.refreshGrant(ctx, refreshToken); err != nil {
		c.logger.Error("provider: token refresh failed, ending session", "error", err.Error())
		c.clearSession()
	}
}

// setSession stores the grant, persists tokens, schedules the next refresh
// and emits the event.
func (c *Client) setSession(grant *model.Grant, event model.AuthEvent) {
	c.mu.Lock()
	c.current = cloneGrant(grant)
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	if !c.closed && grant.Session != nil && grant.Session.RefreshToken != "" {
		wait := time.Until(grant.Session.ExpiresAt) - refreshMargin
		if wait < 0 {
			wait = 0
		}
		c.refreshTimer = time.AfterFunc(wait, c.autoRefresh)
	}
	fn := c.subscriber
	c.mu.Unlock()

	if err := c.persist(grant); err != nil {
		c.logger.Warn("provider: failed to persist session", "error", err.Error())
	}

	if fn != nil {
		fn(event, cloneGrant(grant))
	}
}

// clearSession drops local state and emits SIGNED_OUT.
func (c *Client) clearSession() {
	c.mu.Lock()
	hadSession := c.current != nil
	c.current = nil
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	fn := c.subscriber
	c.mu.Unlock()

	if err := c.removePersisted(); err != nil {
		c.logger.Warn("provider: failed to remove persisted session", "error", err.Error())
	}

	if fn != nil && hadSession {
		fn(model.EventSignedOut, nil)
	}
}

// do performs one HTTP round-trip against the provider API. Non-2xx
// responses are normalized into the AuthError taxonomy.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, bearer string, out any) error {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.AnonKey != "" {
		req.Header.Set("apikey", c.cfg.AnonKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("provider: request failed", "method", method, "path", path, "error", err.Error())
		return model.NewAuthError(model.CodeProvider, 0)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		authErr := normalizeError(resp.StatusCode, raw)
		c.logger.Info("provider: request rejected",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"code", authErr.Code)
		return authErr
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// tokenResponse is the provider's token grant payload. The user fields are
// embedded so bare user responses (signup pending confirmation) also decode.
type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	RefreshToken string   `json:"refresh_token"`
	User         userJSON `json:"user"`

	// Top-level user fields for deployments that flatten the signup response.
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

type userJSON struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (u userJSON) identity() (model.Identity, error) {
	id, err := uuid.Parse(u.ID)
	if err != nil {
		return model.Identity{}, fmt.Errorf("user id is not a uuid: %w", err)
	}
	return model.Identity{
		ID:               id,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		CreatedAt:        u.CreatedAt,
	}, nil
}

func (t tokenResponse) topLevelIdentity() (model.Identity, error) {
	return userJSON{
		ID:               t.ID,
		Email:            t.Email,
		EmailConfirmedAt: t.EmailConfirmedAt,
		CreatedAt:        t.CreatedAt,
	}.identity()
}

func (c *Client) grantFromToken(resp tokenResponse) (*model.Grant, error) {
	identity, err := resp.User.identity()
	if err != nil {
		return nil, fmt.Errorf("failed to decode token response user: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		UserID:       identity.ID,
		IssuedAt:     now,
		ExpiresAt:    now.Add(time.Duration(resp.ExpiresIn) * time.Second),
	}

	// Prefer the expiry signed into the token when available.
	if exp, err := c.tokens.ExpiresAt(resp.AccessToken); err == nil {
		session.ExpiresAt = exp
	}

	return &model.Grant{Session: session, Identity: identity}, nil
}

func cloneGrant(g *model.Grant) *model.Grant {
	if g == nil {
		return nil
	}
	out := *g
	if g.Session != nil {
		s := *g.Session
		out.Session = &s
	}
	return &out
}
