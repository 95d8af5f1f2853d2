package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jurisprep/authd/internal/logger"
	"github.com/jurisprep/authd/internal/notify"
	"github.com/jurisprep/authd/internal/session"
)

// SessionManager defines the auth operations exposed over the local API.
type SessionManager interface {
	Snapshot() session.Snapshot
	SignInWithPassword(ctx context.Context, email, password string) error
	SignInWithMagicLink(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) error
	SignInWithOAuth(oauthProvider string) (string, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) error
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email string) error
	UpdatePassword(ctx context.Context, newPassword string) error
	RefreshProfile(ctx context.Context) error
}

// Auth handles the auth endpoints of the local API.
type Auth struct {
	manager       SessionManager
	notifications *notify.Queue
	logger        *logger.Logger

	// The redirector keeps per-shell navigation state and is not safe for
	// concurrent use on its own.
	redirectMu sync.Mutex
	redirector *session.Redirector
}

// NewAuth creates a new Auth handler.
func NewAuth(manager SessionManager, redirector *session.Redirector, notifications *notify.Queue, logger *logger.Logger) *Auth {
	return &Auth{
		manager:       manager,
		notifications: notifications,
		logger:        logger,
		redirector:    redirector,
	}
}

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *Auth) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.manager.SignInWithPassword(r.Context(), req.Email, req.Password); err != nil {
		writeError(w, err)
		return
	}
	h.Session(w, r)
}

// Signup handles POST /api/auth/signup.
func (h *Auth) Signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var metadata map[string]any
	if req.DisplayName != "" {
		metadata = map[string]any{"display_name": req.DisplayName}
	}

	if err := h.manager.SignUp(r.Context(), req.Email, req.Password, metadata); err != nil {
		writeError(w, err)
		return
	}
	h.Session(w, r)
}

// MagicLink handles POST /api/auth/magic-link.
func (h *Auth) MagicLink(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.manager.SignInWithMagicLink(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Verify handles POST /api/auth/verify, completing a magic-link flow.
func (h *Auth) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.manager.VerifyOTP(r.Context(), req.Email, req.Code); err != nil {
		writeError(w, err)
		return
	}
	h.Session(w, r)
}

// OAuth handles GET /api/auth/oauth/{provider}: it returns the authorize URL
// for the shell to navigate to. No session exists until the provider reports
// one through the push path.
func (h *Auth) OAuth(w http.ResponseWriter, r *http.Request) {
	oauthProvider := chi.URLParam(r, "provider")

	url, err := h.manager.SignInWithOAuth(oauthProvider)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Logout handles POST /api/auth/logout.
func (h *Auth) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.SignOut(r.Context()); err != nil {
		// Local state is already cleared; report the provider failure but
		// include the (signed-out) session so the shell converges.
		h.logger.Warn("Auth handler: sign-out completed with provider error", "error", err.Error())
	}
	h.Session(w, r)
}

// ResetPassword handles POST /api/auth/password/reset.
func (h *Auth) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.manager.ResetPassword(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// UpdatePassword handles POST /api/auth/password/update.
func (h *Auth) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.manager.UpdatePassword(r.Context(), req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /api/auth/session.
func (h *Auth) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotResponse(h.manager.Snapshot()))
}

// Redirect handles GET /api/auth/redirect?path=...&force=...: the shell asks
// where to navigate given its current path.
func (h *Auth) Redirect(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	force := r.URL.Query().Get("force") == "true"

	snap := h.manager.Snapshot()

	h.redirectMu.Lock()
	nav := h.redirector.Evaluate(snap.Authenticated, snap.Loading, path, force)
	h.redirectMu.Unlock()

	writeJSON(w, http.StatusOK, navigationResponse{
		Navigate: nav.Navigate,
		Target:   nav.Target,
		Remember: nav.Remember,
		DelayMS:  nav.Delay.Milliseconds(),
	})
}

// Notifications handles GET /api/notifications, draining pending toasts.
func (h *Auth) Notifications(w http.ResponseWriter, r *http.Request) {
	messages := h.notifications.Drain()
	if messages == nil {
		messages = []notify.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

type navigationResponse struct {
	Navigate bool   `json:"navigate"`
	Target   string `json:"target,omitempty"`
	Remember string `json:"remember,omitempty"`
	DelayMS  int64  `json:"delay_ms,omitempty"`
}

type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	Loading       bool             `json:"loading"`
	User          *userResponse    `json:"user,omitempty"`
	Profile       *profileResponse `json:"profile,omitempty"`
	Derived       derivedResponse  `json:"derived"`
	Error         *errorResponse   `json:"error,omitempty"`
}

type userResponse struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	EmailVerified bool       `json:"email_verified"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

type profileResponse struct {
	DisplayName         string `json:"display_name"`
	AvatarURL           string `json:"avatar_url"`
	UserType            string `json:"user_type"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

type derivedResponse struct {
	IsAdmin   bool `json:"is_admin"`
	IsNewUser bool `json:"is_new_user"`
}

func snapshotResponse(snap session.Snapshot) sessionResponse {
	resp := sessionResponse{
		Authenticated: snap.Authenticated,
		Loading:       snap.Loading,
		Derived: derivedResponse{
			IsAdmin:   snap.Derived.IsAdmin,
			IsNewUser: snap.Derived.IsNewUser,
		},
	}
	if snap.Identity != nil {
		createdAt := snap.Identity.CreatedAt
		resp.User = &userResponse{
			ID:            snap.Identity.ID.String(),
			Email:         snap.Identity.Email,
			EmailVerified: snap.Derived.IsEmailVerified,
		}
		if !createdAt.IsZero() {
			resp.User.CreatedAt = &createdAt
		}
	}
	if snap.Profile != nil {
		resp.Profile = &profileResponse{
			DisplayName:         snap.Profile.DisplayName,
			AvatarURL:           snap.Profile.AvatarURL,
			UserType:            snap.Profile.UserType,
			OnboardingCompleted: snap.Profile.OnboardingCompleted,
		}
	}
	if snap.Err != nil {
		resp.Error = &errorResponse{Error: snap.Err.Message, Code: snap.Err.Code}
	}
	return resp
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body", Code: "bad_request"})
		return false
	}
	return true
}
