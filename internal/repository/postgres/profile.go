package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jurisprep/authd/internal/model"
)

var _ model.ProfileStore = (*ProfileRepository)(nil)

type ProfileRepository struct {
	db *Connection
}

func NewProfileRepository(db *Connection) *ProfileRepository {
	return &ProfileRepository{
		db: db,
	}
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (model.Profile, error) {
	var profile model.Profile
	query := `SELECT user_id, display_name, avatar_url, user_type, onboarding_completed, created_at, updated_at
			  FROM profiles WHERE user_id = $1`

	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.UserID, &profile.DisplayName, &profile.AvatarURL, &profile.UserType,
		&profile.OnboardingCompleted, &profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Profile{}, model.ErrNotFound
		}
		return model.Profile{}, fmt.Errorf("failed to get profile by user id: %w", err)
	}

	return profile, nil
}

// Upsert inserts or updates the profile row. The primary key on user_id
// enforces the one-row-per-user invariant.
func (r *ProfileRepository) Upsert(ctx context.Context, profile model.Profile) (model.Profile, error) {
	query := `INSERT INTO profiles (user_id, display_name, avatar_url, user_type, onboarding_completed)
			  VALUES ($1, $2, $3, $4, $5)
			  ON CONFLICT (user_id) DO UPDATE SET
				  display_name = EXCLUDED.display_name,
				  avatar_url = EXCLUDED.avatar_url,
				  user_type = EXCLUDED.user_type,
				  onboarding_completed = EXCLUDED.onboarding_completed,
				  updated_at = now()
			  RETURNING user_id, display_name, avatar_url, user_type, onboarding_completed, created_at, updated_at`

	var saved model.Profile
	err := r.db.QueryRow(ctx, query,
		profile.UserID, profile.DisplayName, profile.AvatarURL, profile.UserType, profile.OnboardingCompleted,
	).Scan(
		&saved.UserID, &saved.DisplayName, &saved.AvatarURL, &saved.UserType,
		&saved.OnboardingCompleted, &saved.CreatedAt, &saved.UpdatedAt,
	)
	if err != nil {
		return model.Profile{}, fmt.Errorf("failed to upsert profile: %w", err)
	}

	return saved, nil
}

func (r *ProfileRepository) Update(ctx context.Context, profile model.Profile) (model.Profile, error) {
	query := `UPDATE profiles
			  SET display_name = $2, avatar_url = $3, user_type = $4, onboarding_completed = $5, updated_at = now()
			  WHERE user_id = $1
			  RETURNING user_id, display_name, avatar_url, user_type, onboarding_completed, created_at, updated_at`

	var saved model.Profile
	err := r.db.QueryRow(ctx, query,
		profile.UserID, profile.DisplayName, profile.AvatarURL, profile.UserType, profile.OnboardingCompleted,
	).Scan(
		&saved.UserID, &saved.DisplayName, &saved.AvatarURL, &saved.UserType,
		&saved.OnboardingCompleted, &saved.CreatedAt, &saved.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Profile{}, model.ErrNotFound
		}
		return model.Profile{}, fmt.Errorf("failed to update profile: %w", err)
	}

	return saved, nil
}
