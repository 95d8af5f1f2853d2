package model

import (
	"errors"
	"fmt"
)

// Error codes in the normalized auth failure taxonomy. Provider-specific
// codes are folded into these; anything unrecognized becomes CodeProvider.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeEmailNotConfirmed  = "email_not_confirmed"
	CodeUserAlreadyExists  = "user_already_exists"
	CodeWeakPassword       = "weak_password"
	CodeProvider           = "provider_error"
)

// AuthError is a normalized failure description surfaced to UI consumers.
// It exists only for the duration of one failed operation and its
// notification; it never invalidates an established session.
type AuthError struct {
	Message string // user-facing message
	Code    string // taxonomy code
	Status  int    // HTTP status reported by the provider, 0 on transport failure
}

func (e *AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// NewAuthError builds an AuthError with the user-facing message for code.
func NewAuthError(code string, status int) *AuthError {
	return &AuthError{Message: userMessage(code), Code: code, Status: status}
}

// AsAuthError unwraps err into an AuthError, normalizing unknown errors into
// a generic provider failure so nothing else leaks to UI consumers.
func AsAuthError(err error) *AuthError {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return NewAuthError(CodeProvider, 0)
}

func userMessage(code string) string {
	switch code {
	case CodeInvalidCredentials:
		return "Invalid email or password"
	case CodeEmailNotConfirmed:
		return "Please confirm your email address before signing in"
	case CodeUserAlreadyExists:
		return "This email is already registered, try signing in instead"
	case CodeWeakPassword:
		return "Password does not meet the minimum requirements"
	default:
		return "Something went wrong, please try again"
	}
}
