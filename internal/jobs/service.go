// Package jobs is the application service over job records: it mutates the
// event log through the tracker rules, persists through storage and hands
// qualifying events to the follow-up scheduler.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/applytrack/internal/posting"
	"github.com/kalambet/applytrack/internal/reminder"
	"github.com/kalambet/applytrack/internal/resume"
	"github.com/kalambet/applytrack/internal/storage"
	"github.com/kalambet/applytrack/internal/tracker"
)

var (
	// ErrNotFound is returned when the job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrInvalid is returned for requests that fail validation.
	ErrInvalid = errors.New("invalid request")
	// ErrConflict is returned when concurrent writers kept winning.
	ErrConflict = errors.New("job modified concurrently")
)

const (
	noteApplied  = "Application submitted"
	noteFollowUp = "Follow-up sent to the company"
	maxRetries   = 3
)

// Store is the persistence surface the service needs.
type Store interface {
	CreateJob(ctx context.Context, job tracker.JobApplication) error
	GetJob(ctx context.Context, id string) (tracker.JobApplication, error)
	ListJobs(ctx context.Context, f storage.JobFilter) ([]tracker.JobApplication, error)
	UpdateJob(ctx context.Context, job tracker.JobApplication, newEvents []tracker.StatusEvent) (tracker.JobApplication, error)
}

// Scheduler turns events into reminders.
type Scheduler interface {
	ScheduleFor(ctx context.Context, jobID string, event tracker.StatusEvent, jobTitle, companyName string) (*reminder.FollowUpEmail, error)
	ScheduleStatusChange(ctx context.Context, jobID string, event tracker.StatusEvent, status tracker.Status, jobTitle, companyName string) (*reminder.FollowUpEmail, error)
}

// PostingFetcher loads job metadata from a posting URL.
type PostingFetcher interface {
	Fetch(ctx context.Context, url string) (posting.Posting, error)
}

// Options tunes a Service.
type Options struct {
	// DedupWindow is how close two same-typed events must be to count as
	// one. Defaults to tracker.DefaultDedupWindow.
	DedupWindow time.Duration
	Postings    PostingFetcher
	Clock       reminder.Clock
}

// Service implements job operations.
type Service struct {
	store     Store
	scheduler Scheduler
	postings  PostingFetcher
	clock     reminder.Clock
	window    time.Duration
	logger    *slog.Logger
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// NewService creates a Service. scheduler may be nil, in which case no
// reminders are created.
func NewService(store Store, scheduler Scheduler, opts Options) *Service {
	if opts.DedupWindow <= 0 {
		opts.DedupWindow = tracker.DefaultDedupWindow
	}
	if opts.Clock == nil {
		opts.Clock = utcClock{}
	}
	if opts.Postings == nil {
		opts.Postings = posting.NewFetcher(nil)
	}
	return &Service{
		store:     store,
		scheduler: scheduler,
		postings:  opts.Postings,
		clock:     opts.Clock,
		window:    opts.DedupWindow,
		logger:    slog.Default(),
	}
}

// NewJob holds the fields accepted when creating a job.
type NewJob struct {
	Title       string         `json:"title"`
	Company     string         `json:"company"`
	Location    string         `json:"location"`
	Type        string         `json:"type"`
	Posted      string         `json:"posted"`
	Description string         `json:"description"`
	URL         string         `json:"url"`
	Salary      string         `json:"salary"`
	Status      tracker.Status `json:"status"`
}

// Create stores a new job. Title and company are required.
func (s *Service) Create(ctx context.Context, nj NewJob) (tracker.JobApplication, error) {
	nj.Title = strings.TrimSpace(nj.Title)
	nj.Company = strings.TrimSpace(nj.Company)
	if nj.Title == "" || nj.Company == "" {
		return tracker.JobApplication{}, fmt.Errorf("%w: title and company are required", ErrInvalid)
	}
	status, err := tracker.ParseStatus(string(nj.Status))
	if err != nil {
		return tracker.JobApplication{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	job := tracker.JobApplication{
		ID:           uuid.New().String(),
		Title:        nj.Title,
		Company:      nj.Company,
		Location:     nj.Location,
		Type:         nj.Type,
		Posted:       nj.Posted,
		Description:  nj.Description,
		URL:          nj.URL,
		Salary:       nj.Salary,
		Status:       status,
		StatusEvents: []tracker.StatusEvent{},
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return tracker.JobApplication{}, fmt.Errorf("creating job: %w", err)
	}
	return s.Get(ctx, job.ID)
}

// Get returns one job.
func (s *Service) Get(ctx context.Context, id string) (tracker.JobApplication, error) {
	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return tracker.JobApplication{}, ErrNotFound
	}
	return job, err
}

// List returns jobs matching f, newest first.
func (s *Service) List(ctx context.Context, f storage.JobFilter) ([]tracker.JobApplication, error) {
	return s.store.ListJobs(ctx, f)
}

// Apply marks the job applied now and records the application.
func (s *Service) Apply(ctx context.Context, id string) (tracker.JobApplication, error) {
	job, _, err := s.mutate(ctx, id, func(job *tracker.JobApplication, now time.Time) ([]tracker.StatusEvent, error) {
		job.Status = tracker.StatusApplied
		job.AppliedDate = &now
		return []tracker.StatusEvent{{Type: tracker.EventApplied, Date: now, Notes: noteApplied}}, nil
	})
	return job, err
}

// ToggleSave bookmarks an unengaged job or clears the bookmark. Jobs past
// the saved stage cannot be toggled.
func (s *Service) ToggleSave(ctx context.Context, id string) (tracker.JobApplication, error) {
	job, _, err := s.mutate(ctx, id, func(job *tracker.JobApplication, _ time.Time) ([]tracker.StatusEvent, error) {
		switch job.Status {
		case tracker.StatusSaved:
			job.Status = tracker.StatusNone
		case tracker.StatusNone:
			job.Status = tracker.StatusSaved
		default:
			return nil, fmt.Errorf("%w: job is already %s", ErrInvalid, job.Status)
		}
		return nil, nil
	})
	return job, err
}

// AddEvents appends the events not already in the job's log and returns the
// job plus the events that were actually appended. An appended applied event
// fills in a missing AppliedDate.
func (s *Service) AddEvents(ctx context.Context, id string, in []tracker.StatusEvent) (tracker.JobApplication, []tracker.StatusEvent, error) {
	events := slices.Clone(in)
	for i := range events {
		t, err := tracker.ParseEventType(string(events[i].Type))
		if err != nil {
			return tracker.JobApplication{}, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		events[i].Type = t
		if events[i].Date.IsZero() {
			events[i].Date = s.clock.Now()
		}
	}

	return s.mutate(ctx, id, func(job *tracker.JobApplication, _ time.Time) ([]tracker.StatusEvent, error) {
		fresh := tracker.NewEvents(job.StatusEvents, events, s.window)
		for _, e := range fresh {
			if e.Type == tracker.EventApplied && job.AppliedDate == nil {
				d := e.Date
				job.AppliedDate = &d
			}
		}
		return fresh, nil
	})
}

// AddNote appends a free-text note.
func (s *Service) AddNote(ctx context.Context, id, text string) (tracker.JobApplication, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return tracker.JobApplication{}, fmt.Errorf("%w: note text is required", ErrInvalid)
	}
	job, _, err := s.mutate(ctx, id, func(_ *tracker.JobApplication, now time.Time) ([]tracker.StatusEvent, error) {
		return []tracker.StatusEvent{{Type: tracker.EventNote, Date: now, Notes: text}}, nil
	})
	return job, err
}

// RecordFollowUp notes that the user followed up with the company.
func (s *Service) RecordFollowUp(ctx context.Context, id string) (tracker.JobApplication, error) {
	job, _, err := s.mutate(ctx, id, func(_ *tracker.JobApplication, now time.Time) ([]tracker.StatusEvent, error) {
		return []tracker.StatusEvent{{Type: tracker.EventFollowUp, Date: now, Notes: noteFollowUp}}, nil
	})
	return job, err
}

// MoveResult is the outcome of a board move. Job and Event are nil when the
// move changed nothing.
type MoveResult struct {
	Job   *tracker.JobApplication `json:"job,omitempty"`
	Event *tracker.StatusEvent    `json:"event,omitempty"`
}

// Move applies a finished board drag. Dropping outside a column, onto the
// same slot, onto an unknown column, or moving a job that no longer exists
// are all no-ops.
func (s *Service) Move(ctx context.Context, r tracker.DragResult) (MoveResult, error) {
	if r.IsNoop() {
		return MoveResult{}, nil
	}
	status, ok := tracker.StatusForColumn(r.Destination.Column)
	if !ok {
		s.logger.Warn("move to unknown column ignored", "job_id", r.DraggableID, "column", r.Destination.Column)
		return MoveResult{}, nil
	}

	job, events, err := s.mutate(ctx, r.DraggableID, func(job *tracker.JobApplication, now time.Time) ([]tracker.StatusEvent, error) {
		moved, ev := tracker.HandleDragEnd([]tracker.JobApplication{*job}, r, now)
		if ev == nil {
			return nil, nil
		}
		job.Status = moved[0].Status
		if ev.Type == tracker.EventApplied && job.AppliedDate == nil {
			d := ev.Date
			job.AppliedDate = &d
		}
		return []tracker.StatusEvent{*ev}, nil
	})
	if errors.Is(err, ErrNotFound) {
		s.logger.Warn("move of unknown job ignored", "job_id", r.DraggableID, "status", status)
		return MoveResult{}, nil
	}
	if err != nil {
		return MoveResult{}, err
	}

	res := MoveResult{Job: &job}
	if len(events) == 1 {
		res.Event = &events[0]
		if s.scheduler != nil {
			if _, err := s.scheduler.ScheduleStatusChange(ctx, job.ID, events[0], job.Status, job.Title, job.Company); err != nil {
				s.logger.Warn("scheduling status change failed", "job_id", job.ID, "error", err)
			}
		}
	}
	return res, nil
}

// Timeline returns the display timeline of a job, newest first.
func (s *Service) Timeline(ctx context.Context, id string) ([]tracker.StatusEvent, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return tracker.Synthesize(job, s.clock.Now()), nil
}

// Board returns every engaged job grouped into board columns.
func (s *Service) Board(ctx context.Context) ([]tracker.BoardColumn, error) {
	jobs, err := s.store.ListJobs(ctx, storage.JobFilter{})
	if err != nil {
		return nil, err
	}
	return tracker.Board(jobs), nil
}

// AttachResume extracts the text of a PDF resume and stores it on the job.
func (s *Service) AttachResume(ctx context.Context, id, name string, r io.ReaderAt, size int64) (tracker.JobApplication, error) {
	text, err := resume.ExtractText(r, size)
	if err != nil {
		return tracker.JobApplication{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if name == "" {
		name = "resume.pdf"
	}
	job, _, err := s.mutate(ctx, id, func(job *tracker.JobApplication, _ time.Time) ([]tracker.StatusEvent, error) {
		job.Resume = name
		job.ResumeText = text
		return nil, nil
	})
	return job, err
}

// ImportPosting creates a job from a posting page.
func (s *Service) ImportPosting(ctx context.Context, url string) (tracker.JobApplication, error) {
	p, err := s.postings.Fetch(ctx, url)
	if err != nil {
		return tracker.JobApplication{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if p.Company == "" {
		p.Company = "Unknown"
	}
	return s.Create(ctx, NewJob{
		Title:       p.Title,
		Company:     p.Company,
		Location:    p.Location,
		Type:        p.Type,
		Posted:      p.Posted,
		Description: p.Description,
		URL:         p.URL,
		Salary:      p.Salary,
	})
}

type mutation func(job *tracker.JobApplication, now time.Time) ([]tracker.StatusEvent, error)

// mutate runs fn against the latest stored job and persists the result,
// retrying when another writer got there first. Follow-ups are scheduled
// for every appended event once the write succeeds.
func (s *Service) mutate(ctx context.Context, id string, fn mutation) (tracker.JobApplication, []tracker.StatusEvent, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		job, err := s.Get(ctx, id)
		if err != nil {
			return tracker.JobApplication{}, nil, err
		}

		events, err := fn(&job, s.clock.Now())
		if err != nil {
			return tracker.JobApplication{}, nil, err
		}

		updated, err := s.store.UpdateJob(ctx, job, events)
		if errors.Is(err, storage.ErrConflict) {
			s.logger.Debug("job update conflict, retrying", "job_id", id, "attempt", attempt+1)
			continue
		}
		if errors.Is(err, storage.ErrNotFound) {
			return tracker.JobApplication{}, nil, ErrNotFound
		}
		if err != nil {
			return tracker.JobApplication{}, nil, fmt.Errorf("updating job %s: %w", id, err)
		}

		s.scheduleFollowUps(ctx, updated, events)
		return updated, events, nil
	}
	return tracker.JobApplication{}, nil, ErrConflict
}

func (s *Service) scheduleFollowUps(ctx context.Context, job tracker.JobApplication, events []tracker.StatusEvent) {
	if s.scheduler == nil {
		return
	}
	for _, e := range events {
		email, err := s.scheduler.ScheduleFor(ctx, job.ID, e, job.Title, job.Company)
		if err != nil {
			s.logger.Warn("scheduling follow-up failed", "job_id", job.ID, "event", e.Type, "error", err)
			continue
		}
		if email != nil {
			s.logger.Debug("follow-up scheduled", "job_id", job.ID, "reminder_id", email.ID, "trigger", email.TriggerDate)
		}
	}
}
