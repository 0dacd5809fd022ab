package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SettingsVersion is the current schema version of persisted EmailSettings.
const SettingsVersion = 1

// EmailSettings controls whether and when follow-up reminders are created.
type EmailSettings struct {
	Version       int           `json:"version"`
	Enabled       bool          `json:"enabled"`
	EmailAddress  string        `json:"email_address"`
	FollowUpDays  FollowUpDays  `json:"follow_up_days"`
	Notifications Notifications `json:"notifications"`
}

// FollowUpDays holds reminder offsets in days.
type FollowUpDays struct {
	AfterApplied   int `json:"after_applied"`
	AfterInterview int `json:"after_interview"`
}

// Notifications holds the per-category opt-ins.
type Notifications struct {
	ApplicationReminders bool `json:"application_reminders"`
	InterviewReminders   bool `json:"interview_reminders"`
	StatusChanges        bool `json:"status_changes"`
}

// DefaultSettings returns the settings used before anything is saved.
func DefaultSettings() EmailSettings {
	return EmailSettings{
		Version: SettingsVersion,
		FollowUpDays: FollowUpDays{
			AfterApplied:   7,
			AfterInterview: 5,
		},
		Notifications: Notifications{
			ApplicationReminders: true,
			InterviewReminders:   true,
			StatusChanges:        true,
		},
	}
}

// legacySettings is the unversioned camelCase document written by the
// browser build.
type legacySettings struct {
	Enabled      bool   `json:"enabled"`
	EmailAddress string `json:"emailAddress"`
	FollowUpDays struct {
		AfterApplied   int `json:"afterApplied"`
		AfterInterview int `json:"afterInterview"`
	} `json:"followUpDays"`
	Notifications struct {
		ApplicationReminders bool `json:"applicationReminders"`
		InterviewReminders   bool `json:"interviewReminders"`
		StatusChanges        bool `json:"statusChanges"`
	} `json:"notifications"`
}

// DecodeSettings parses a stored settings document written under version and
// migrates it to the current schema.
func DecodeSettings(version int, raw []byte) (EmailSettings, error) {
	switch version {
	case 0:
		var l legacySettings
		if err := json.Unmarshal(raw, &l); err != nil {
			return EmailSettings{}, fmt.Errorf("decoding legacy settings: %w", err)
		}
		return EmailSettings{
			Version:      SettingsVersion,
			Enabled:      l.Enabled,
			EmailAddress: l.EmailAddress,
			FollowUpDays: FollowUpDays{
				AfterApplied:   l.FollowUpDays.AfterApplied,
				AfterInterview: l.FollowUpDays.AfterInterview,
			},
			Notifications: Notifications{
				ApplicationReminders: l.Notifications.ApplicationReminders,
				InterviewReminders:   l.Notifications.InterviewReminders,
				StatusChanges:        l.Notifications.StatusChanges,
			},
		}, nil
	case SettingsVersion:
		var s EmailSettings
		if err := json.Unmarshal(raw, &s); err != nil {
			return EmailSettings{}, fmt.Errorf("decoding settings: %w", err)
		}
		s.Version = SettingsVersion
		return s, nil
	default:
		return EmailSettings{}, fmt.Errorf("unsupported settings version %d", version)
	}
}

// RawSettingsStore persists the settings document.
// Implemented by storage.Store.
type RawSettingsStore interface {
	GetSetting(ctx context.Context, key string) (version int, value []byte, err error)
	PutSetting(ctx context.Context, key string, version int, value []byte) error
}

// SettingsKey is the storage key the email settings live under.
const SettingsKey = "email_settings"

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// SettingsStore reads and writes EmailSettings with a short read cache.
type SettingsStore struct {
	store  RawSettingsStore
	isMiss func(error) bool
	clock  Clock
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.RWMutex
	cached   *EmailSettings
	cachedAt time.Time
}

// NewSettingsStore creates a SettingsStore. isMiss reports whether an error
// from store means "nothing saved yet".
func NewSettingsStore(store RawSettingsStore, isMiss func(error) bool) *SettingsStore {
	return &SettingsStore{
		store:  store,
		isMiss: isMiss,
		clock:  realClock{},
		ttl:    5 * time.Second,
		logger: slog.Default(),
	}
}

// Get returns the persisted settings or defaults when none exist. A document
// that cannot be decoded is logged and replaced by defaults.
func (s *SettingsStore) Get(ctx context.Context) (EmailSettings, error) {
	s.mu.RLock()
	if s.cached != nil && s.clock.Now().Before(s.cachedAt.Add(s.ttl)) {
		cp := *s.cached
		s.mu.RUnlock()
		return cp, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	version, raw, err := s.store.GetSetting(ctx, SettingsKey)
	if err != nil {
		if s.isMiss != nil && s.isMiss(err) {
			return DefaultSettings(), nil
		}
		return EmailSettings{}, fmt.Errorf("loading email settings: %w", err)
	}

	settings, err := DecodeSettings(version, raw)
	if err != nil {
		s.logger.Warn("malformed email settings, using defaults", "version", version, "error", err)
		return DefaultSettings(), nil
	}

	s.cached = &settings
	s.cachedAt = s.clock.Now()
	return settings, nil
}

// Save overwrites the persisted settings. Values are not range-checked.
func (s *SettingsStore) Save(ctx context.Context, settings EmailSettings) error {
	settings.Version = SettingsVersion
	b, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding email settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.PutSetting(ctx, SettingsKey, SettingsVersion, b); err != nil {
		return fmt.Errorf("saving email settings: %w", err)
	}
	s.cached = nil
	return nil
}
