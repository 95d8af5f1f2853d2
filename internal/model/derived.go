package model

import "time"

// NewUserWindow is how long after profile creation a user counts as new.
const NewUserWindow = time.Hour

// DerivedState is a pure function of {Identity, Profile}. It is recomputed on
// demand and never persisted.
type DerivedState struct {
	IsAdmin         bool
	IsEmailVerified bool
	IsNewUser       bool
}

// Derive computes the derived user state at the given instant. Either argument
// may be nil.
func Derive(identity *Identity, profile *Profile, now time.Time) DerivedState {
	var d DerivedState
	if identity != nil {
		d.IsEmailVerified = identity.EmailConfirmedAt != nil
	}
	if profile != nil {
		d.IsAdmin = profile.UserType == UserTypeAdmin
		d.IsNewUser = now.Sub(profile.CreatedAt) < NewUserWindow
	}
	return d
}
