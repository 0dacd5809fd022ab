package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kalambet/applytrack/internal/reminder"
)

const reminderColumns = `id, job_id, trigger_date, email_type, sent, sent_at, subject, body, job_title, company_name, created_at`

// EnqueueReminder inserts a single reminder.
func (s *Store) EnqueueReminder(ctx context.Context, e reminder.FollowUpEmail) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var sentAt any
	if e.SentAt != nil {
		sentAt = formatTime(*e.SentAt)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.JobID, formatTime(e.TriggerDate), string(e.EmailType), e.Sent, sentAt,
		e.Subject, e.Body, e.JobTitle, e.CompanyName, formatTime(createdAt),
	)
	return err
}

// DueReminders returns unsent reminders whose trigger date is at or before
// now, oldest trigger first.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]reminder.FollowUpEmail, error) {
	return s.queryReminders(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE sent = 0 AND trigger_date <= ?
		ORDER BY trigger_date ASC, created_at ASC`, formatTime(now))
}

// MarkReminderSent flags one reminder as delivered. It reports false when the
// reminder does not exist or was already sent.
func (s *Store) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET sent = 1, sent_at = ? WHERE id = ? AND sent = 0`,
		formatTime(at), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PruneSentReminders deletes reminders delivered before the cutoff.
func (s *Store) PruneSentReminders(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminders WHERE sent = 1 AND sent_at < ?`, formatTime(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListReminders returns reminders by trigger date. Sent ones are included
// only when includeSent is true. limit <= 0 means no limit.
func (s *Store) ListReminders(ctx context.Context, includeSent bool, limit int) ([]reminder.FollowUpEmail, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders`
	if !includeSent {
		query += ` WHERE sent = 0`
	}
	query += ` ORDER BY trigger_date ASC`
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ?`
	return s.queryReminders(ctx, query, limit)
}

// RemindersForJob returns every reminder created for jobID.
func (s *Store) RemindersForJob(ctx context.Context, jobID string) ([]reminder.FollowUpEmail, error) {
	return s.queryReminders(ctx, `
		SELECT `+reminderColumns+` FROM reminders
		WHERE job_id = ? ORDER BY trigger_date ASC`, jobID)
}

func (s *Store) queryReminders(ctx context.Context, query string, args ...any) ([]reminder.FollowUpEmail, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []reminder.FollowUpEmail{}
	for rows.Next() {
		var (
			e                  reminder.FollowUpEmail
			emailType          string
			trigger, createdAt string
			sentAt             sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.JobID, &trigger, &emailType, &e.Sent, &sentAt,
			&e.Subject, &e.Body, &e.JobTitle, &e.CompanyName, &createdAt); err != nil {
			return nil, err
		}
		e.EmailType = reminder.EmailType(emailType)
		if e.TriggerDate, err = parseTime(trigger); err != nil {
			return nil, fmt.Errorf("parsing trigger_date: %w", err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if sentAt.Valid {
			t, err := parseTime(sentAt.String)
			if err != nil {
				return nil, fmt.Errorf("parsing sent_at: %w", err)
			}
			e.SentAt = &t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
