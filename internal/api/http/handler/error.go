package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jurisprep/authd/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// writeError maps domain errors onto HTTP statuses. Auth failures carry
// their taxonomy code so the shell can render the right message variant.
func writeError(w http.ResponseWriter, err error) {
	var authErr *model.AuthError
	if errors.As(err, &authErr) {
		writeJSON(w, statusForCode(authErr.Code), errorResponse{Error: authErr.Message, Code: authErr.Code})
		return
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, model.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func statusForCode(code string) int {
	switch code {
	case model.CodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.CodeEmailNotConfirmed:
		return http.StatusForbidden
	case model.CodeUserAlreadyExists:
		return http.StatusConflict
	case model.CodeWeakPassword:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
