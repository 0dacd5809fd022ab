package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Result summarizes one dispatcher scan.
type Result struct {
	Skipped bool  `json:"skipped"`
	Due     int   `json:"due"`
	Sent    int   `json:"sent"`
	Failed  int   `json:"failed"`
	Pruned  int64 `json:"pruned"`
}

// Dispatcher periodically delivers due reminders.
type Dispatcher struct {
	settings  SettingsGetter
	queue     Queue
	notifier  Notifier
	clock     Clock
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// DispatcherOptions tunes a Dispatcher.
type DispatcherOptions struct {
	// Interval between scans. Defaults to one minute.
	Interval time.Duration
	// Retention keeps sent reminders this long before pruning. Zero keeps
	// them forever.
	Retention time.Duration
	Clock     Clock
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(settings SettingsGetter, queue Queue, notifier Notifier, opts DispatcherOptions) *Dispatcher {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Dispatcher{
		settings:  settings,
		queue:     queue,
		notifier:  notifier,
		clock:     opts.Clock,
		interval:  opts.Interval,
		retention: opts.Retention,
		logger:    slog.Default(),
	}
}

// Start prepares the notifier, scans once immediately and then scans on
// every interval until Stop is called or ctx is cancelled. Calling Start on
// a running dispatcher is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	if p, ok := d.notifier.(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			d.logger.Warn("notifier not ready", "error", err)
		}
	}

	go d.run(ctx, d.done)
}

// Stop cancels the scan loop and waits for it to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (d *Dispatcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if _, err := d.ProcessScheduledEmails(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("reminder scan failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.interval):
		}
	}
}

// ProcessScheduledEmails delivers every unsent reminder whose trigger date
// has passed. Each reminder is marked sent before its notification attempt,
// whether or not delivery then succeeds, so none is delivered twice.
func (d *Dispatcher) ProcessScheduledEmails(ctx context.Context) (Result, error) {
	var res Result

	settings, err := d.settings.Get(ctx)
	if err != nil {
		return res, err
	}
	if !settings.Enabled || settings.EmailAddress == "" {
		res.Skipped = true
		return res, nil
	}

	now := d.clock.Now()
	due, err := d.queue.DueReminders(ctx, now)
	if err != nil {
		return res, fmt.Errorf("loading due reminders: %w", err)
	}
	res.Due = len(due)

	for _, email := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		// Claim the row before delivering; a concurrent scan that loaded the
		// same row loses the claim and skips it.
		marked, err := d.queue.MarkReminderSent(ctx, email.ID, now)
		if err != nil {
			return res, fmt.Errorf("marking reminder %s sent: %w", email.ID, err)
		}
		if !marked {
			continue
		}
		if err := d.notifier.Notify(ctx, email); err != nil {
			res.Failed++
			d.logger.Warn("reminder delivery failed", "reminder_id", email.ID, "job_id", email.JobID, "error", err)
			continue
		}
		res.Sent++
	}

	if d.retention > 0 {
		n, err := d.queue.PruneSentReminders(ctx, now.Add(-d.retention))
		if err != nil {
			d.logger.Warn("pruning sent reminders failed", "error", err)
		} else {
			res.Pruned = n
		}
	}

	if res.Due > 0 {
		d.logger.Info("processed reminders", "due", res.Due, "sent", res.Sent, "failed", res.Failed)
	}
	return res, nil
}
