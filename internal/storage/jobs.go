package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/applytrack/internal/tracker"
)

const jobColumns = `id, title, company, location, type, posted, status, applied_date, description, url, salary, resume, resume_text, version, created_at, updated_at`

// CreateJob inserts a job and its initial events. CreatedAt and UpdatedAt
// default to now and Version starts at 1.
func (s *Store) CreateJob(ctx context.Context, job tracker.JobApplication) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning create transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		job.ID, job.Title, job.Company, job.Location, job.Type, job.Posted,
		string(job.Status), nullTime(job.AppliedDate), job.Description, job.URL,
		job.Salary, job.Resume, job.ResumeText,
		formatTime(job.CreatedAt), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}

	if err := appendEvents(ctx, tx, job.ID, job.StatusEvents); err != nil {
		return err
	}
	return tx.Commit()
}

// GetJob returns the job with id and its full event log in append order.
func (s *Store) GetJob(ctx context.Context, id string) (tracker.JobApplication, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tracker.JobApplication{}, ErrNotFound
	}
	if err != nil {
		return tracker.JobApplication{}, err
	}

	events, err := s.eventsFor(ctx, []string{id})
	if err != nil {
		return tracker.JobApplication{}, err
	}
	job.StatusEvents = nonNil(events[id])
	return job, nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, f JobFilter) ([]tracker.JobApplication, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, "(title LIKE ? OR company LIKE ? OR location LIKE ?)")
		like := "%" + q + "%"
		args = append(args, like, like, like)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		jobs []tracker.JobApplication
		ids  []string
	)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
		ids = append(ids, job.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return []tracker.JobApplication{}, nil
	}

	events, err := s.eventsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i].StatusEvents = nonNil(events[jobs[i].ID])
	}
	return jobs, nil
}

// UpdateJob writes job's mutable fields and appends newEvents to its log,
// provided the stored version still equals job.Version. Events already in
// the log are never rewritten. Returns the stored job after the update.
func (s *Store) UpdateJob(ctx context.Context, job tracker.JobApplication, newEvents []tracker.StatusEvent) (tracker.JobApplication, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tracker.JobApplication{}, fmt.Errorf("beginning update transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET title = ?, company = ?, location = ?, type = ?, posted = ?,
			status = ?, applied_date = ?, description = ?, url = ?, salary = ?,
			resume = ?, resume_text = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		job.Title, job.Company, job.Location, job.Type, job.Posted,
		string(job.Status), nullTime(job.AppliedDate), job.Description, job.URL, job.Salary,
		job.Resume, job.ResumeText, formatTime(time.Now()),
		job.ID, job.Version,
	)
	if err != nil {
		return tracker.JobApplication{}, fmt.Errorf("updating job %s: %w", job.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return tracker.JobApplication{}, err
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE id = ?`, job.ID).Scan(&exists); err != nil {
			return tracker.JobApplication{}, err
		}
		if exists == 0 {
			return tracker.JobApplication{}, ErrNotFound
		}
		return tracker.JobApplication{}, ErrConflict
	}

	if err := appendEvents(ctx, tx, job.ID, newEvents); err != nil {
		return tracker.JobApplication{}, err
	}
	if err := tx.Commit(); err != nil {
		return tracker.JobApplication{}, fmt.Errorf("committing job %s: %w", job.ID, err)
	}
	return s.GetJob(ctx, job.ID)
}

func appendEvents(ctx context.Context, tx *sql.Tx, jobID string, events []tracker.StatusEvent) error {
	if len(events) == 0 {
		return nil
	}
	var seq int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM status_events WHERE job_id = ?`, jobID).Scan(&seq); err != nil {
		return fmt.Errorf("reading event sequence: %w", err)
	}
	for _, e := range events {
		seq++
		_, err := tx.ExecContext(ctx, `
			INSERT INTO status_events (job_id, seq, type, date, notes, contact_person)
			VALUES (?, ?, ?, ?, ?, ?)`,
			jobID, seq, string(e.Type), e.Date.UTC().Format(eventTimeFormat), e.Notes, e.ContactPerson,
		)
		if err != nil {
			return fmt.Errorf("appending %s event to job %s: %w", e.Type, jobID, err)
		}
	}
	return nil
}

func (s *Store) eventsFor(ctx context.Context, ids []string) (map[string][]tracker.StatusEvent, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, type, date, notes, contact_person
		FROM status_events WHERE job_id IN (`+placeholders+`)
		ORDER BY job_id, seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("loading events: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]tracker.StatusEvent, len(ids))
	for rows.Next() {
		var (
			jobID, typ, date string
			e                tracker.StatusEvent
		)
		if err := rows.Scan(&jobID, &typ, &date, &e.Notes, &e.ContactPerson); err != nil {
			return nil, err
		}
		t, err := time.Parse(eventTimeFormat, date)
		if err != nil {
			return nil, fmt.Errorf("parsing event date: %w", err)
		}
		e.Type = tracker.EventType(typ)
		e.Date = t
		out[jobID] = append(out[jobID], e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (tracker.JobApplication, error) {
	var (
		j                    tracker.JobApplication
		status               string
		applied              sql.NullString
		createdAt, updatedAt string
	)
	err := r.Scan(&j.ID, &j.Title, &j.Company, &j.Location, &j.Type, &j.Posted,
		&status, &applied, &j.Description, &j.URL, &j.Salary, &j.Resume, &j.ResumeText,
		&j.Version, &createdAt, &updatedAt)
	if err != nil {
		return tracker.JobApplication{}, err
	}
	j.Status = tracker.Status(status)
	if applied.Valid {
		t, err := time.Parse(eventTimeFormat, applied.String)
		if err != nil {
			return tracker.JobApplication{}, fmt.Errorf("parsing applied_date: %w", err)
		}
		j.AppliedDate = &t
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return tracker.JobApplication{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if j.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return tracker.JobApplication{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return j, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(eventTimeFormat)
}

func nonNil(events []tracker.StatusEvent) []tracker.StatusEvent {
	if events == nil {
		return []tracker.StatusEvent{}
	}
	return events
}
