package reminder

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// NotificationTitle is the title shown on every delivered reminder.
const NotificationTitle = "Job Application Reminder"

// Notifier delivers a due reminder to the user.
type Notifier interface {
	Notify(ctx context.Context, email FollowUpEmail) error
}

// Preparer is implemented by notifiers that need a one-time setup step
// before the first delivery.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// LogNotifier writes reminders to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, email FollowUpEmail) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(NotificationTitle,
		"reminder_id", email.ID,
		"job_id", email.JobID,
		"type", email.EmailType,
		"subject", email.Subject,
	)
	return nil
}

// MultiNotifier delivers to every notifier concurrently. It fails if any
// of them fails.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, email FollowUpEmail) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, n := range m {
		g.Go(func() error {
			return n.Notify(gctx, email)
		})
	}
	return g.Wait()
}

// Prepare prepares every member that needs it and joins their errors.
func (m MultiNotifier) Prepare(ctx context.Context) error {
	var errs []error
	for _, n := range m {
		if p, ok := n.(Preparer); ok {
			if err := p.Prepare(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
