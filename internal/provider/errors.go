package provider

import (
	"encoding/json"
	"strings"

	"github.com/jurisprep/authd/internal/model"
)

// errorBody covers the shapes the provider uses for error responses across
// API versions.
type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorDescription string `json:"error_description"`
}

func (b errorBody) text() string {
	for _, s := range []string{b.Msg, b.Message, b.ErrorDescription} {
		if s != "" {
			return s
		}
	}
	return ""
}

// normalizeError folds a provider error response into the AuthError taxonomy.
// Distinct user-facing messages exist for bad credentials, unconfirmed email
// and duplicate registration; everything else gets the generic fallback.
func normalizeError(status int, raw []byte) *model.AuthError {
	var body errorBody
	_ = json.Unmarshal(raw, &body)

	code := body.ErrorCode
	if code == "" {
		code = codeFromText(body.text())
	}

	switch code {
	case "invalid_credentials", "invalid_grant":
		return model.NewAuthError(model.CodeInvalidCredentials, status)
	case "email_not_confirmed":
		return model.NewAuthError(model.CodeEmailNotConfirmed, status)
	case "user_already_exists", "email_exists":
		return model.NewAuthError(model.CodeUserAlreadyExists, status)
	case "weak_password":
		return model.NewAuthError(model.CodeWeakPassword, status)
	default:
		return model.NewAuthError(model.CodeProvider, status)
	}
}

// codeFromText recovers a taxonomy code from older deployments that only
// return a human-readable message.
func codeFromText(msg string) string {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "invalid login credentials"):
		return "invalid_credentials"
	case strings.Contains(lower, "email not confirmed"):
		return "email_not_confirmed"
	case strings.Contains(lower, "already registered"):
		return "user_already_exists"
	case strings.Contains(lower, "password"):
		return "weak_password"
	default:
		return ""
	}
}
