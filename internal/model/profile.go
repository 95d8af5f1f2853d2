package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User types stored on the profile row.
const (
	UserTypeStudent = "student"
	UserTypeAdmin   = "admin"
)

// ProfileStore defines persistence operations for profiles.
// At most one profile row exists per user id.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (Profile, error)
	Upsert(ctx context.Context, profile Profile) (Profile, error)
	Update(ctx context.Context, profile Profile) (Profile, error)
}

// Profile is the application-owned record keyed 1:1 by user id. It is created
// externally when an identity is created and never deleted by this service.
type Profile struct {
	UserID              uuid.UUID
	DisplayName         string
	AvatarURL           string
	UserType            string
	OnboardingCompleted bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
