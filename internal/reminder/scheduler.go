package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/applytrack/internal/tracker"
)

// EmailType is the category of a reminder.
type EmailType string

const (
	TypeFollowUpApplication EmailType = "follow_up_application"
	TypeFollowUpInterview   EmailType = "follow_up_interview"
	TypeStatusChange        EmailType = "status_change"
)

// FollowUpEmail is a pending or delivered reminder. Display strings are
// captured when the reminder is created and never refreshed.
type FollowUpEmail struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`
	TriggerDate time.Time  `json:"trigger_date"`
	EmailType   EmailType  `json:"email_type"`
	Sent        bool       `json:"sent"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	JobTitle    string     `json:"job_title"`
	CompanyName string     `json:"company_name"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Queue persists reminders one record at a time.
// Implemented by storage.Store.
type Queue interface {
	EnqueueReminder(ctx context.Context, email FollowUpEmail) error
	DueReminders(ctx context.Context, now time.Time) ([]FollowUpEmail, error)
	MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error)
	PruneSentReminders(ctx context.Context, before time.Time) (int64, error)
	ListReminders(ctx context.Context, includeSent bool, limit int) ([]FollowUpEmail, error)
}

// SettingsGetter provides the current settings.
type SettingsGetter interface {
	Get(ctx context.Context) (EmailSettings, error)
}

// Scheduler decides whether a status event deserves a reminder and enqueues it.
type Scheduler struct {
	settings SettingsGetter
	queue    Queue
	clock    Clock
}

// NewScheduler creates a Scheduler.
func NewScheduler(settings SettingsGetter, queue Queue) *Scheduler {
	return &Scheduler{settings: settings, queue: queue, clock: realClock{}}
}

// NewSchedulerWithClock creates a Scheduler with a custom clock (for testing).
func NewSchedulerWithClock(settings SettingsGetter, queue Queue, clock Clock) *Scheduler {
	return &Scheduler{settings: settings, queue: queue, clock: clock}
}

// CreateFollowUpEmail builds the reminder for event under the current
// settings. It returns nil when reminders are off or the event does not
// qualify. Nothing is persisted.
func (s *Scheduler) CreateFollowUpEmail(ctx context.Context, jobID string, event tracker.StatusEvent, jobTitle, companyName string) (*FollowUpEmail, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	return BuildFollowUpEmail(settings, jobID, event, jobTitle, companyName, s.clock.Now()), nil
}

// ScheduleFollowUpEmail appends email to the reminder queue.
func (s *Scheduler) ScheduleFollowUpEmail(ctx context.Context, email FollowUpEmail) error {
	if err := s.queue.EnqueueReminder(ctx, email); err != nil {
		return fmt.Errorf("enqueueing reminder %s: %w", email.ID, err)
	}
	return nil
}

// ScheduleFor creates and enqueues the reminder for event, if any.
func (s *Scheduler) ScheduleFor(ctx context.Context, jobID string, event tracker.StatusEvent, jobTitle, companyName string) (*FollowUpEmail, error) {
	email, err := s.CreateFollowUpEmail(ctx, jobID, event, jobTitle, companyName)
	if err != nil || email == nil {
		return nil, err
	}
	if err := s.ScheduleFollowUpEmail(ctx, *email); err != nil {
		return nil, err
	}
	return email, nil
}

// ScheduleStatusChange enqueues an immediately due status_change reminder
// when status change notifications are on.
func (s *Scheduler) ScheduleStatusChange(ctx context.Context, jobID string, event tracker.StatusEvent, status tracker.Status, jobTitle, companyName string) (*FollowUpEmail, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	email := BuildStatusChange(settings, jobID, event, status, jobTitle, companyName, s.clock.Now())
	if email == nil {
		return nil, nil
	}
	if err := s.ScheduleFollowUpEmail(ctx, *email); err != nil {
		return nil, err
	}
	return email, nil
}

// BuildFollowUpEmail is the pure core of CreateFollowUpEmail.
//
// Applied events qualify when application reminders are on; completed and
// technical interviews qualify when interview reminders are on. Nothing else
// ever qualifies.
func BuildFollowUpEmail(settings EmailSettings, jobID string, event tracker.StatusEvent, jobTitle, companyName string, now time.Time) *FollowUpEmail {
	if !settings.Enabled {
		return nil
	}

	var (
		emailType     EmailType
		days          int
		subject, body string
	)
	switch {
	case event.Type == tracker.EventApplied && settings.Notifications.ApplicationReminders:
		emailType = TypeFollowUpApplication
		days = settings.FollowUpDays.AfterApplied
		subject = fmt.Sprintf("Follow up on your %s application at %s", jobTitle, companyName)
		body = fmt.Sprintf("It's been %d days since you applied for the %s position at %s. Consider following up if you haven't heard back.", days, jobTitle, companyName)
	case (event.Type == tracker.EventInterviewCompleted || event.Type == tracker.EventTechnicalInterview) && settings.Notifications.InterviewReminders:
		emailType = TypeFollowUpInterview
		days = settings.FollowUpDays.AfterInterview
		subject = fmt.Sprintf("Follow up after your %s interview", companyName)
		body = fmt.Sprintf("It's been %d days since your interview for the %s position at %s. Consider sending a follow-up email.", days, jobTitle, companyName)
	default:
		return nil
	}

	return &FollowUpEmail{
		ID:          newID(jobID, now),
		JobID:       jobID,
		TriggerDate: event.Date.UTC().AddDate(0, 0, days),
		EmailType:   emailType,
		Subject:     subject,
		Body:        body,
		JobTitle:    jobTitle,
		CompanyName: companyName,
		CreatedAt:   now,
	}
}

// BuildStatusChange builds a status_change reminder due at event.Date.
func BuildStatusChange(settings EmailSettings, jobID string, event tracker.StatusEvent, status tracker.Status, jobTitle, companyName string, now time.Time) *FollowUpEmail {
	if !settings.Enabled || !settings.Notifications.StatusChanges {
		return nil
	}
	return &FollowUpEmail{
		ID:          newID(jobID, now),
		JobID:       jobID,
		TriggerDate: event.Date.UTC(),
		EmailType:   TypeStatusChange,
		Subject:     fmt.Sprintf("%s at %s moved to %s", jobTitle, companyName, status),
		Body:        fmt.Sprintf("%s: %s", tracker.Label(event.Type), event.Notes),
		JobTitle:    jobTitle,
		CompanyName: companyName,
		CreatedAt:   now,
	}
}

func newID(jobID string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("email_%s_%d_%s", jobID, now.UnixMilli(), suffix)
}
