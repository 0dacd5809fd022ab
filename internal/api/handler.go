package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/applytrack/internal/accounts"
	"github.com/kalambet/applytrack/internal/jobs"
	"github.com/kalambet/applytrack/internal/ratelimit"
	"github.com/kalambet/applytrack/internal/reminder"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SettingsStore reads and writes the reminder settings.
type SettingsStore interface {
	Get(ctx context.Context) (reminder.EmailSettings, error)
	Save(ctx context.Context, settings reminder.EmailSettings) error
}

// ReminderLister lists queued reminders.
type ReminderLister interface {
	ListReminders(ctx context.Context, includeSent bool, limit int) ([]reminder.FollowUpEmail, error)
}

// ReminderProcessor delivers due reminders on demand.
type ReminderProcessor interface {
	ProcessScheduledEmails(ctx context.Context) (reminder.Result, error)
}

type AppDeps struct {
	Jobs       *jobs.Service
	Accounts   *accounts.Service // optional; nil disables /auth and /users
	Settings   SettingsStore
	Reminders  ReminderLister
	Dispatcher ReminderProcessor
	Limiter    ratelimit.Limiter // optional; nil disables rate limiting
	AuthLimit  int               // requests per minute per client on /auth
	// TrustedProxies are peer addresses whose X-Forwarded-For is honored.
	TrustedProxies []string
	Token          string
	Ping           func(ctx context.Context) error // optional health probe
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	var users Authenticator
	if deps.Accounts != nil {
		users = deps.Accounts
		r.Route("/auth", func(r chi.Router) {
			r.Use(RateLimit(deps.Limiter, "auth", deps.AuthLimit, time.Minute, deps.TrustedProxies))
			r.Post("/register", handleRegister(deps))
			r.Post("/login", handleLogin(deps))
		})
	}

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token, users))

		if deps.Accounts != nil {
			r.Put("/users/me", handleUpdateMe(deps))
		}

		r.Get("/jobs", handleListJobs(deps))
		r.Post("/jobs", handleCreateJob(deps))
		r.Post("/jobs/import", handleImportJob(deps))
		r.Get("/jobs/{id}", handleGetJob(deps))
		r.Post("/jobs/{id}/apply", handleApply(deps))
		r.Post("/jobs/{id}/save", handleToggleSave(deps))
		r.Post("/jobs/{id}/events", handleAddEvents(deps))
		r.Post("/jobs/{id}/notes", handleAddNote(deps))
		r.Post("/jobs/{id}/follow-up", handleFollowUp(deps))
		r.Get("/jobs/{id}/timeline", handleTimeline(deps))
		r.Post("/jobs/{id}/resume", handleResume(deps))

		r.Get("/board", handleBoard(deps))
		r.Post("/board/move", handleMove(deps))

		r.Get("/settings/email", handleGetSettings(deps))
		r.Put("/settings/email", handlePutSettings(deps))
		r.Get("/reminders", handleListReminders(deps))
		r.Post("/reminders/process", handleProcessReminders(deps))
	})

	return r
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Ping != nil {
			if err := deps.Ping(r.Context()); err != nil {
				httpError(w, http.StatusServiceUnavailable, "api_error", "storage unavailable: %v", err)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
