package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/applytrack/internal/accounts"
	"github.com/kalambet/applytrack/internal/jobs"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// jobError maps service errors onto HTTP responses.
func jobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, jobs.ErrInvalid):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	case errors.Is(err, jobs.ErrConflict):
		httpError(w, http.StatusConflict, "conflict_error", "%v", err)
	default:
		slog.Error("job request failed", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "internal error")
	}
}

// envelope is the response shape of the account endpoints.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Fields  any    `json:"fields,omitempty"`
}

func writeSuccess(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, envelope{Error: msg})
}

// accountError maps account errors onto enveloped responses.
func accountError(w http.ResponseWriter, err error) {
	var fe accounts.FieldErrors
	switch {
	case errors.As(err, &fe):
		writeJSON(w, http.StatusBadRequest, envelope{Error: "validation failed", Fields: fe})
	case errors.Is(err, accounts.ErrEmailTaken):
		writeFailure(w, http.StatusConflict, "email already registered")
	case errors.Is(err, accounts.ErrInvalidCredentials):
		writeFailure(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, accounts.ErrUserNotFound):
		writeFailure(w, http.StatusNotFound, "user not found")
	default:
		slog.Error("account request failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, "internal error")
	}
}
