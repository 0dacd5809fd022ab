package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kalambet/applytrack/internal/accounts"
)

func decodeEnveloped(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func handleRegister(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req accounts.Registration
		if !decodeEnveloped(w, r, &req) {
			return
		}
		u, err := deps.Accounts.Register(r.Context(), req)
		if err != nil {
			accountError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, u)
	}
}

func handleLogin(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if !decodeEnveloped(w, r, &req) {
			return
		}
		sess, err := deps.Accounts.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			accountError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, sess)
	}
}

func handleUpdateMe(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, ok := UserFrom(r.Context())
		if !ok {
			writeFailure(w, http.StatusForbidden, "a user session token is required")
			return
		}
		var req accounts.ProfileUpdate
		if !decodeEnveloped(w, r, &req) {
			return
		}
		u, err := deps.Accounts.UpdateProfile(r.Context(), me.ID, req)
		if errors.Is(err, accounts.ErrInvalidCredentials) {
			writeFailure(w, http.StatusBadRequest, "current password is incorrect")
			return
		}
		if err != nil {
			accountError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, u)
	}
}
