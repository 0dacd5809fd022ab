package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/applytrack/internal/accounts"
	"github.com/kalambet/applytrack/internal/reminder"
	"github.com/kalambet/applytrack/internal/tracker"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) < 2 {
		t.Fatalf("expected at least two applied migrations, got %v", versions)
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	for _, idx := range []string{"idx_jobs_status", "idx_jobs_created", "idx_reminders_due"} {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func date(day int) time.Time {
	return time.Date(2024, 1, day, 10, 0, 0, 0, time.UTC)
}

func testJob(id string) tracker.JobApplication {
	return tracker.JobApplication{
		ID:       id,
		Title:    "Backend Engineer",
		Company:  "Acme",
		Location: "Remote",
		Type:     "Full-time",
	}
}

func TestCreateAndGetJob(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	applied := date(1)
	job := testJob("j1")
	job.Status = tracker.StatusApplied
	job.AppliedDate = &applied
	job.StatusEvents = []tracker.StatusEvent{
		{Type: tracker.EventApplied, Date: applied, Notes: "Application submitted"},
		{Type: tracker.EventScreening, Date: date(3), ContactPerson: "Dana"},
	}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	got, err := s.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Title != job.Title || got.Company != job.Company || got.Status != tracker.StatusApplied {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.AppliedDate == nil || !got.AppliedDate.Equal(applied) {
		t.Errorf("AppliedDate = %v, want %v", got.AppliedDate, applied)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
	if len(got.StatusEvents) != 2 {
		t.Fatalf("events = %d, want 2", len(got.StatusEvents))
	}
	if got.StatusEvents[0].Type != tracker.EventApplied || got.StatusEvents[1].ContactPerson != "Dana" {
		t.Errorf("events out of order: %+v", got.StatusEvents)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetJob(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateJob_AppendsAndBumpsVersion(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateJob(ctx, testJob("j1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	job, _ := s.GetJob(ctx, "j1")
	job.Status = tracker.StatusInterviewing

	updated, err := s.UpdateJob(ctx, job, []tracker.StatusEvent{{Type: tracker.EventInterviewScheduled, Date: date(4)}})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if updated.Version != 2 || updated.Status != tracker.StatusInterviewing {
		t.Errorf("updated = %+v", updated)
	}
	if len(updated.StatusEvents) != 1 {
		t.Errorf("events = %d, want 1", len(updated.StatusEvents))
	}

	updated, err = s.UpdateJob(ctx, updated, []tracker.StatusEvent{{Type: tracker.EventNote, Date: date(5), Notes: "prep"}})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if len(updated.StatusEvents) != 2 || updated.StatusEvents[1].Notes != "prep" {
		t.Errorf("events = %+v", updated.StatusEvents)
	}
}

func TestUpdateJob_Conflict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateJob(ctx, testJob("j1")); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	stale, _ := s.GetJob(ctx, "j1")
	if _, err := s.UpdateJob(ctx, stale, nil); err != nil {
		t.Fatalf("first UpdateJob: %v", err)
	}

	_, err := s.UpdateJob(ctx, stale, []tracker.StatusEvent{{Type: tracker.EventNote, Date: date(2)}})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := s.GetJob(ctx, "j1")
	if len(got.StatusEvents) != 0 {
		t.Error("conflicting update appended events")
	}

	if _, err := s.UpdateJob(ctx, testJob("ghost"), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing job, got %v", err)
	}
}

func TestListJobs_Filters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testJob("a")
	a.Status = tracker.StatusSaved
	b := testJob("b")
	b.Company = "Globex"
	b.Type = "Contract"
	c := testJob("c")
	c.Title = "Data Scientist"
	for _, j := range []tracker.JobApplication{a, b, c} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	saved := tracker.StatusSaved
	none := tracker.StatusNone
	tests := []struct {
		name string
		f    JobFilter
		want int
	}{
		{"all", JobFilter{}, 3},
		{"saved", JobFilter{Status: &saved}, 1},
		{"unengaged", JobFilter{Status: &none}, 2},
		{"type", JobFilter{Type: "Contract"}, 1},
		{"query company", JobFilter{Query: "globex"}, 1},
		{"query title", JobFilter{Query: "Data"}, 1},
		{"limit", JobFilter{Limit: 2}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.f)
			if err != nil {
				t.Fatalf("ListJobs: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func testReminder(id string, trigger time.Time) reminder.FollowUpEmail {
	return reminder.FollowUpEmail{
		ID:          id,
		JobID:       "j1",
		TriggerDate: trigger,
		EmailType:   reminder.TypeFollowUpApplication,
		Subject:     "Follow up",
		Body:        "body",
		JobTitle:    "Backend Engineer",
		CompanyName: "Acme",
	}
}

func TestReminders_DueAndMarkSent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := date(10)

	for _, r := range []reminder.FollowUpEmail{
		testReminder("past", date(8)),
		testReminder("exact", now),
		testReminder("future", date(12)),
	} {
		if err := s.EnqueueReminder(ctx, r); err != nil {
			t.Fatalf("EnqueueReminder: %v", err)
		}
	}

	due, err := s.DueReminders(ctx, now)
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	if len(due) != 2 || due[0].ID != "past" || due[1].ID != "exact" {
		t.Fatalf("due = %+v", due)
	}

	ok, err := s.MarkReminderSent(ctx, "past", now)
	if err != nil || !ok {
		t.Fatalf("MarkReminderSent = %v, %v", ok, err)
	}
	ok, err = s.MarkReminderSent(ctx, "past", now)
	if err != nil || ok {
		t.Errorf("second MarkReminderSent = %v, %v, want false", ok, err)
	}

	due, _ = s.DueReminders(ctx, now)
	if len(due) != 1 || due[0].ID != "exact" {
		t.Errorf("due after mark = %+v", due)
	}

	all, _ := s.ListReminders(ctx, true, 0)
	if len(all) != 3 {
		t.Errorf("ListReminders(all) = %d, want 3", len(all))
	}
	pending, _ := s.ListReminders(ctx, false, 0)
	if len(pending) != 2 {
		t.Errorf("ListReminders(pending) = %d, want 2", len(pending))
	}
}

func TestReminders_SubSecondTrigger(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	trigger := time.Date(2024, 1, 8, 0, 0, 0, 900_000_000, time.UTC)

	if err := s.EnqueueReminder(ctx, testReminder("r", trigger)); err != nil {
		t.Fatalf("EnqueueReminder: %v", err)
	}

	due, err := s.DueReminders(ctx, trigger.Add(-800*time.Millisecond))
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("reminder due %v before its trigger", 800*time.Millisecond)
	}

	due, _ = s.DueReminders(ctx, trigger)
	if len(due) != 1 {
		t.Fatalf("due at trigger = %d, want 1", len(due))
	}
	if !due[0].TriggerDate.Equal(trigger) {
		t.Errorf("TriggerDate = %v, want %v", due[0].TriggerDate, trigger)
	}
}

func TestMigration_RewritesWholeSecondTimes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.db.Exec(`DELETE FROM schema_version WHERE version = 3`); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.Exec(`
		INSERT INTO reminders (id, job_id, trigger_date, email_type, subject, body, created_at)
		VALUES ('old', 'j1', '2024-01-08T00:00:00Z', 'follow_up_application', 's', 'b', '2024-01-01T00:00:00Z')`); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if err := s.EnqueueReminder(ctx, testReminder("new", time.Date(2024, 1, 8, 0, 0, 0, 500_000_000, time.UTC))); err != nil {
		t.Fatal(err)
	}
	due, err := s.DueReminders(ctx, time.Date(2024, 1, 8, 0, 0, 0, 100_000_000, time.UTC))
	if err != nil {
		t.Fatalf("DueReminders: %v", err)
	}
	if len(due) != 1 || due[0].ID != "old" {
		t.Errorf("due = %+v, want only the rewritten row", due)
	}
}

func TestPruneSentReminders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	s.EnqueueReminder(ctx, testReminder("old", date(1)))
	s.EnqueueReminder(ctx, testReminder("recent", date(1)))
	s.EnqueueReminder(ctx, testReminder("pending", date(1)))
	s.MarkReminderSent(ctx, "old", date(2))
	s.MarkReminderSent(ctx, "recent", date(9))

	n, err := s.PruneSentReminders(ctx, date(5))
	if err != nil {
		t.Fatalf("PruneSentReminders: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	left, _ := s.RemindersForJob(ctx, "j1")
	if len(left) != 2 {
		t.Errorf("remaining = %d, want 2", len(left))
	}
}

func TestSettingRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.GetSetting(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := s.PutSetting(ctx, "k", 1, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("PutSetting: %v", err)
	}
	if err := s.PutSetting(ctx, "k", 1, []byte(`{"a":2}`)); err != nil {
		t.Fatalf("PutSetting overwrite: %v", err)
	}
	v, raw, err := s.GetSetting(ctx, "k")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != 1 || string(raw) != `{"a":2}` {
		t.Errorf("got version=%d value=%s", v, raw)
	}
}

func TestSettingsStoreOverSQLite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	settings := reminder.NewSettingsStore(s, IsNotFound)

	got, err := settings.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != reminder.DefaultSettings() {
		t.Errorf("expected defaults, got %+v", got)
	}

	got.Enabled = true
	got.EmailAddress = "me@example.com"
	if err := settings.Save(ctx, got); err != nil {
		t.Fatalf("Save: %v", err)
	}
	again, _ := settings.Get(ctx)
	if again != got {
		t.Errorf("Get = %+v, want %+v", again, got)
	}
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	u := accounts.User{ID: "u1", Firstname: "Ada", Lastname: "Lovelace", Email: "Ada@Example.com", PasswordHash: "h", ReferralSource: "friend"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	dup := u
	dup.ID = "u2"
	dup.Email = "ada@example.com"
	if err := s.CreateUser(ctx, dup); !errors.Is(err, accounts.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	got, err := s.UserByEmail(ctx, "ADA@example.com")
	if err != nil {
		t.Fatalf("UserByEmail: %v", err)
	}
	if got.ID != "u1" || got.Email != "ada@example.com" {
		t.Errorf("got %+v", got)
	}

	got.Bio = "analyst"
	if err := s.UpdateUser(ctx, got); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	byID, _ := s.UserByID(ctx, "u1")
	if byID.Bio != "analyst" {
		t.Errorf("Bio = %q", byID.Bio)
	}

	if _, err := s.UserByID(ctx, "nobody"); !errors.Is(err, accounts.ErrUserNotFound) {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}
