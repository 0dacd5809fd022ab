package api

import (
	"net/http"

	"github.com/kalambet/applytrack/internal/reminder"
)

func handleGetSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Settings.Get(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load settings: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handlePutSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Start from current values so partial documents keep the rest.
		s, err := deps.Settings.Get(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load settings: %v", err)
			return
		}
		if !decodeBody(w, r, &s) {
			return
		}
		if err := deps.Settings.Save(r.Context(), s); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save settings: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleListReminders(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeSent := r.URL.Query().Get("all") == "true"
		limit := parseIntParam(r, "limit", 50, 500)

		list, err := deps.Reminders.ListReminders(r.Context(), includeSent, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list reminders: %v", err)
			return
		}
		if list == nil {
			list = []reminder.FollowUpEmail{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func handleProcessReminders(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Dispatcher.ProcessScheduledEmails(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "processing reminders: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}
