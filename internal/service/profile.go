package service

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/jurisprep/authd/internal/logger"
	"github.com/jurisprep/authd/internal/model"
)

// Profile handles explicit profile mutations: display name changes,
// onboarding completion and avatar uploads. Reads go through the session
// manager's cache, not through this service.
type Profile struct {
	store   model.ProfileStore
	storage model.Storage
	logger  *logger.Logger
}

func NewProfile(store model.ProfileStore, storage model.Storage, logger *logger.Logger) *Profile {
	return &Profile{
		store:   store,
		storage: storage,
		logger:  logger,
	}
}

// Update sets the display name on the user's profile.
func (s *Profile) Update(ctx context.Context, userID uuid.UUID, displayName string) (model.Profile, error) {
	s.logger.Debug("Profile service: updating profile",
		"user_id", userID.String())

	profile, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}

	profile.DisplayName = displayName

	saved, err := s.store.Update(ctx, profile)
	if err != nil {
		s.logger.Error("Profile service: failed to update profile",
			"user_id", userID.String(),
			"error", err.Error())
		return model.Profile{}, fmt.Errorf("failed to update profile: %w", err)
	}

	s.logger.Info("Profile service: profile updated",
		"user_id", userID.String())

	return saved, nil
}

// CompleteOnboarding marks onboarding as done. Idempotent.
func (s *Profile) CompleteOnboarding(ctx context.Context, userID uuid.UUID) (model.Profile, error) {
	profile, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}

	if profile.OnboardingCompleted {
		return profile, nil
	}
	profile.OnboardingCompleted = true

	saved, err := s.store.Update(ctx, profile)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to complete onboarding: %w", err)
	}

	s.logger.Info("Profile service: onboarding completed",
		"user_id", userID.String())

	return saved, nil
}

// UploadAvatar stores the avatar object and records its key on the profile.
func (s *Profile) UploadAvatar(ctx context.Context, userID uuid.UUID, reader io.Reader, size int64, contentType string) (model.Profile, error) {
	key := avatarKey(userID)

	if err := s.storage.Upload(ctx, key, reader, size, contentType); err != nil {
		s.logger.Error("Profile service: failed to upload avatar",
			"user_id", userID.String(),
			"error", err.Error())
		return model.Profile{}, fmt.Errorf("failed to upload avatar: %w", err)
	}

	profile, err := s.store.GetByUserID(ctx, userID)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}

	profile.AvatarURL = "/" + key

	saved, err := s.store.Update(ctx, profile)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to record avatar url: %w", err)
	}

	s.logger.Info("Profile service: avatar uploaded",
		"user_id", userID.String(),
		"key", key)

	return saved, nil
}

// Avatar streams the stored avatar object for the user.
func (s *Profile) Avatar(ctx context.Context, userID uuid.UUID) (io.ReadCloser, error) {
	key := avatarKey(userID)

	exists, err := s.storage.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to check avatar: %w", err)
	}
	if !exists {
		return nil, model.ErrNotFound
	}

	return s.storage.Download(ctx, key)
}

func avatarKey(userID uuid.UUID) string {
	return "avatars/" + userID.String()
}
