package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/jurisprep/authd/internal/logger"
	"github.com/jurisprep/authd/internal/model"
)

// avatarMaxBytes bounds avatar uploads.
const avatarMaxBytes = 5 << 20

// ProfileService defines profile mutation operations.
type ProfileService interface {
	Update(ctx context.Context, userID uuid.UUID, displayName string) (model.Profile, error)
	CompleteOnboarding(ctx context.Context, userID uuid.UUID) (model.Profile, error)
	UploadAvatar(ctx context.Context, userID uuid.UUID, reader io.Reader, size int64, contentType string) (model.Profile, error)
	Avatar(ctx context.Context, userID uuid.UUID) (io.ReadCloser, error)
}

// Profile handles the profile endpoints of the local API. Every operation
// acts on the signed-in user; mutations refresh the manager's cache so UI
// consumers observe the change.
type Profile struct {
	manager SessionManager
	service ProfileService
	logger  *logger.Logger
}

// NewProfile creates a new Profile handler.
func NewProfile(manager SessionManager, service ProfileService, logger *logger.Logger) *Profile {
	return &Profile{
		manager: manager,
		service: service,
		logger:  logger,
	}
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// Get handles GET /api/profile from the manager's cache.
func (h *Profile) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.manager.Snapshot()
	if !snap.Authenticated {
		writeError(w, model.ErrUnauthenticated)
		return
	}
	if snap.Profile == nil {
		writeError(w, model.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{
		DisplayName:         snap.Profile.DisplayName,
		AvatarURL:           snap.Profile.AvatarURL,
		UserType:            snap.Profile.UserType,
		OnboardingCompleted: snap.Profile.OnboardingCompleted,
	})
}

// Update handles PUT /api/profile.
func (h *Profile) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if _, err := h.service.Update(r.Context(), userID, req.DisplayName); err != nil {
		writeError(w, err)
		return
	}
	h.refreshAndRespond(w, r)
}

// CompleteOnboarding handles POST /api/profile/onboarding.
func (h *Profile) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w)
	if !ok {
		return
	}

	if _, err := h.service.CompleteOnboarding(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	h.refreshAndRespond(w, r)
}

// UploadAvatar handles POST /api/profile/avatar with the image as the body.
func (h *Profile) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w)
	if !ok {
		return
	}

	contentType := r.Header.Get("Content-Type")
	body := http.MaxBytesReader(w, r.Body, avatarMaxBytes)
	defer body.Close()

	if _, err := h.service.UploadAvatar(r.Context(), userID, body, r.ContentLength, contentType); err != nil {
		writeError(w, err)
		return
	}
	h.refreshAndRespond(w, r)
}

// Avatar handles GET /api/profile/avatar, streaming the stored object.
func (h *Profile) Avatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.currentUser(w)
	if !ok {
		return
	}

	obj, err := h.service.Avatar(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer obj.Close()

	if _, err := io.Copy(w, obj); err != nil {
		h.logger.Error("Profile handler: failed to stream avatar",
			"user_id", userID.String(),
			"error", err.Error())
	}
}

func (h *Profile) currentUser(w http.ResponseWriter) (uuid.UUID, bool) {
	snap := h.manager.Snapshot()
	if !snap.Authenticated || snap.Identity == nil {
		writeError(w, model.ErrUnauthenticated)
		return uuid.Nil, false
	}
	return snap.Identity.ID, true
}

// refreshAndRespond re-syncs the manager's profile cache and returns the
// fresh profile view.
func (h *Profile) refreshAndRespond(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.RefreshProfile(r.Context()); err != nil {
		h.logger.Warn("Profile handler: cache refresh failed", "error", err.Error())
	}
	h.Get(w, r)
}
