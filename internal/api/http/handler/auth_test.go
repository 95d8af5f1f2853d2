package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jurisprep/authd/internal/model"
	"github.com/jurisprep/authd/internal/notify"
	"github.com/jurisprep/authd/internal/session"
	"github.com/jurisprep/authd/internal/testutil"
)

type fakeManager struct {
	snapshot session.Snapshot

	signInErr         error
	signUpErr         error
	magicLinkErr      error
	verifyErr         error
	signOutErr        error
	resetErr          error
	updatePasswordErr error

	signUpMetadata map[string]any
	oauthURL       string
	oauthErr       error
}

func (m *fakeManager) Snapshot() session.Snapshot { return m.snapshot }

func (m *fakeManager) SignInWithPassword(ctx context.Context, email, password string) error {
	return m.signInErr
}

func (m *fakeManager) SignInWithMagicLink(ctx context.Context, email string) error {
	return m.magicLinkErr
}

func (m *fakeManager) VerifyOTP(ctx context.Context, email, code string) error {
	return m.verifyErr
}

func (m *fakeManager) SignInWithOAuth(oauthProvider string) (string, error) {
	return m.oauthURL, m.oauthErr
}

func (m *fakeManager) SignUp(ctx context.Context, email, password string, metadata map[string]any) error {
	m.signUpMetadata = metadata
	return m.signUpErr
}

func (m *fakeManager) SignOut(ctx context.Context) error { return m.signOutErr }

func (m *fakeManager) ResetPassword(ctx context.Context, email string) error { return m.resetErr }

func (m *fakeManager) UpdatePassword(ctx context.Context, newPassword string) error {
	return m.updatePasswordErr
}

func (m *fakeManager) RefreshProfile(ctx context.Context) error { return nil }

func authenticatedSnapshot(userID uuid.UUID) session.Snapshot {
	now := time.Now()
	confirmed := now.Add(-time.Hour)
	identity := model.Identity{ID: userID, Email: "student@example.com", EmailConfirmedAt: &confirmed, CreatedAt: now.Add(-24 * time.Hour)}
	profile := model.Profile{UserID: userID, DisplayName: "Alex", UserType: model.UserTypeStudent, CreatedAt: now.Add(-2 * time.Hour)}
	return session.Snapshot{
		Session:       &model.Session{AccessToken: "access", UserID: userID, ExpiresAt: now.Add(time.Hour)},
		Identity:      &identity,
		Profile:       &profile,
		Authenticated: true,
		Derived:       model.Derive(&identity, &profile, now),
	}
}

func newAuthHandler(manager *fakeManager) *Auth {
	redirector := session.NewRedirector(session.RedirectPolicy{LoginPath: "/auth", LandingPath: "/dashboard"})
	return NewAuth(manager, redirector, notify.NewQueue(), testutil.MakeNoopLogger())
}

func TestAuth_Login(t *testing.T) {
	userID := uuid.New()
	manager := &fakeManager{snapshot: authenticatedSnapshot(userID)}
	h := newAuthHandler(manager)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"student@example.com","password":"secret"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Authenticated)
	require.NotNil(t, resp.User)
	assert.Equal(t, userID.String(), resp.User.ID)
	assert.True(t, resp.User.EmailVerified)
	require.NotNil(t, resp.Profile)
	assert.Equal(t, "Alex", resp.Profile.DisplayName)
}

func TestAuth_Login_BadCredentials(t *testing.T) {
	manager := &fakeManager{
		signInErr: fmt.Errorf("auth operation failed: %w", model.NewAuthError(model.CodeInvalidCredentials, 400)),
	}
	h := newAuthHandler(manager)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"student@example.com","password":"wrong"}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.CodeInvalidCredentials, resp.Code)
	assert.Equal(t, "Invalid email or password", resp.Error)
}

func TestAuth_Login_InvalidBody(t *testing.T) {
	h := newAuthHandler(&fakeManager{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuth_Signup_PassesDisplayNameMetadata(t *testing.T) {
	manager := &fakeManager{}
	h := newAuthHandler(manager)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(`{"email":"new@example.com","password":"secret","display_name":"Alex"}`))
	rec := httptest.NewRecorder()
	h.Signup(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"display_name": "Alex"}, manager.signUpMetadata)
}

func TestAuth_Signup_Duplicate(t *testing.T) {
	manager := &fakeManager{
		signUpErr: fmt.Errorf("auth operation failed: %w", model.NewAuthError(model.CodeUserAlreadyExists, 422)),
	}
	h := newAuthHandler(manager)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(`{"email":"taken@example.com","password":"secret"}`))
	rec := httptest.NewRecorder()
	h.Signup(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuth_MagicLink(t *testing.T) {
	h := newAuthHandler(&fakeManager{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/magic-link", strings.NewReader(`{"email":"student@example.com"}`))
	rec := httptest.NewRecorder()
	h.MagicLink(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAuth_OAuth(t *testing.T) {
	manager := &fakeManager{oauthURL: "https://provider.test/authorize?provider=google"}
	h := newAuthHandler(manager)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/oauth/google", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", "google")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.OAuth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, manager.oauthURL, resp["url"])
}

func TestAuth_Logout_ReturnsSessionEvenOnProviderError(t *testing.T) {
	manager := &fakeManager{signOutErr: model.NewAuthError(model.CodeProvider, 502)}
	h := newAuthHandler(manager)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Authenticated)
}

func TestAuth_UpdatePassword(t *testing.T) {
	h := newAuthHandler(&fakeManager{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/password/update", strings.NewReader(`{"password":"newsecret"}`))
	rec := httptest.NewRecorder()
	h.UpdatePassword(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAuth_UpdatePassword_WeakPassword(t *testing.T) {
	manager := &fakeManager{
		updatePasswordErr: fmt.Errorf("auth operation failed: %w", model.NewAuthError(model.CodeWeakPassword, 422)),
	}
	h := newAuthHandler(manager)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/password/update", strings.NewReader(`{"password":"short"}`))
	rec := httptest.NewRecorder()
	h.UpdatePassword(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAuth_Session_Unauthenticated(t *testing.T) {
	h := newAuthHandler(&fakeManager{snapshot: session.Snapshot{Loading: false}})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	rec := httptest.NewRecorder()
	h.Session(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Authenticated)
	assert.Nil(t, resp.User)
	assert.Nil(t, resp.Profile)
}

func TestAuth_Redirect(t *testing.T) {
	manager := &fakeManager{snapshot: session.Snapshot{}}
	h := newAuthHandler(manager)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/redirect?path=/study/contracts", nil)
	rec := httptest.NewRecorder()
	h.Redirect(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp navigationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Navigate)
	assert.Equal(t, "/auth", resp.Target)
	assert.Equal(t, "/study/contracts", resp.Remember)

	// The identical decision is suppressed on repeat.
	rec = httptest.NewRecorder()
	h.Redirect(rec, httptest.NewRequest(http.MethodGet, "/api/auth/redirect?path=/study/contracts", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Navigate)

	// Unless the shell forces a re-evaluation.
	rec = httptest.NewRecorder()
	h.Redirect(rec, httptest.NewRequest(http.MethodGet, "/api/auth/redirect?path=/study/contracts&force=true", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Navigate)
}

func TestAuth_Notifications(t *testing.T) {
	queue := notify.NewQueue()
	queue.Success("Signed in")
	redirector := session.NewRedirector(session.RedirectPolicy{LoginPath: "/auth", LandingPath: "/dashboard"})
	h := NewAuth(&fakeManager{}, redirector, queue, testutil.MakeNoopLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	rec := httptest.NewRecorder()
	h.Notifications(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var messages []notify.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "Signed in", messages[0].Text)

	// Drained: the next poll returns an empty array, not null.
	rec = httptest.NewRecorder()
	h.Notifications(rec, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	assert.JSONEq(t, "[]", rec.Body.String())
}
