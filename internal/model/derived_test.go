package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	now := time.Now()
	confirmed := now.Add(-time.Hour)

	tests := []struct {
		name     string
		identity *Identity
		profile  *Profile
		want     DerivedState
	}{
		{
			name: "both nil",
			want: DerivedState{},
		},
		{
			name:     "unconfirmed email",
			identity: &Identity{},
			want:     DerivedState{},
		},
		{
			name:     "confirmed email",
			identity: &Identity{EmailConfirmedAt: &confirmed},
			want:     DerivedState{IsEmailVerified: true},
		},
		{
			name:     "admin profile",
			identity: &Identity{EmailConfirmedAt: &confirmed},
			profile:  &Profile{UserType: UserTypeAdmin, CreatedAt: now.Add(-2 * time.Hour)},
			want:     DerivedState{IsAdmin: true, IsEmailVerified: true},
		},
		{
			name:    "profile created inside the new-user window",
			profile: &Profile{UserType: UserTypeStudent, CreatedAt: now.Add(-30 * time.Minute)},
			want:    DerivedState{IsNewUser: true},
		},
		{
			name:    "profile created outside the new-user window",
			profile: &Profile{UserType: UserTypeStudent, CreatedAt: now.Add(-NewUserWindow)},
			want:    DerivedState{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.identity, tt.profile, now))
		})
	}
}
