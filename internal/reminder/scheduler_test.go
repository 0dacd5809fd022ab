package reminder

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/kalambet/applytrack/internal/tracker"
)

var testNow = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func enabledSettings() EmailSettings {
	s := DefaultSettings()
	s.Enabled = true
	s.EmailAddress = "me@example.com"
	return s
}

func TestBuildFollowUpEmail_Applied(t *testing.T) {
	ev := tracker.StatusEvent{Type: tracker.EventApplied, Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	got := BuildFollowUpEmail(enabledSettings(), "42", ev, "Backend Engineer", "Acme", testNow)
	if got == nil {
		t.Fatal("expected a reminder")
	}
	if want := time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC); !got.TriggerDate.Equal(want) {
		t.Errorf("TriggerDate = %v, want %v", got.TriggerDate, want)
	}
	if got.Sent {
		t.Error("new reminder should not be sent")
	}
	if got.EmailType != TypeFollowUpApplication {
		t.Errorf("EmailType = %q", got.EmailType)
	}
	if got.Subject != "Follow up on your Backend Engineer application at Acme" {
		t.Errorf("Subject = %q", got.Subject)
	}
	if got.Body != "It's been 7 days since you applied for the Backend Engineer position at Acme. Consider following up if you haven't heard back." {
		t.Errorf("Body = %q", got.Body)
	}
	if got.JobID != "42" || got.JobTitle != "Backend Engineer" || got.CompanyName != "Acme" {
		t.Errorf("unexpected snapshot fields: %+v", got)
	}
	if !regexp.MustCompile(`^email_42_\d+_[0-9a-f]{8}$`).MatchString(got.ID) {
		t.Errorf("ID = %q", got.ID)
	}
}

func TestBuildFollowUpEmail_Interview(t *testing.T) {
	for _, typ := range []tracker.EventType{tracker.EventInterviewCompleted, tracker.EventTechnicalInterview} {
		t.Run(string(typ), func(t *testing.T) {
			ev := tracker.StatusEvent{Type: typ, Date: time.Date(2024, 2, 27, 15, 0, 0, 0, time.UTC)}
			got := BuildFollowUpEmail(enabledSettings(), "7", ev, "SRE", "Globex", testNow)
			if got == nil {
				t.Fatal("expected a reminder")
			}
			if got.EmailType != TypeFollowUpInterview {
				t.Errorf("EmailType = %q", got.EmailType)
			}
			if want := time.Date(2024, 3, 3, 15, 0, 0, 0, time.UTC); !got.TriggerDate.Equal(want) {
				t.Errorf("TriggerDate = %v, want %v", got.TriggerDate, want)
			}
			if got.Subject != "Follow up after your Globex interview" {
				t.Errorf("Subject = %q", got.Subject)
			}
		})
	}
}

func TestBuildFollowUpEmail_NotQualifying(t *testing.T) {
	ev := func(typ tracker.EventType) tracker.StatusEvent {
		return tracker.StatusEvent{Type: typ, Date: testNow}
	}
	noApp := enabledSettings()
	noApp.Notifications.ApplicationReminders = false
	noInterview := enabledSettings()
	noInterview.Notifications.InterviewReminders = false

	tests := []struct {
		name     string
		settings EmailSettings
		event    tracker.StatusEvent
	}{
		{"disabled", DefaultSettings(), ev(tracker.EventApplied)},
		{"application reminders off", noApp, ev(tracker.EventApplied)},
		{"interview reminders off", noInterview, ev(tracker.EventInterviewCompleted)},
		{"screening", enabledSettings(), ev(tracker.EventScreening)},
		{"interview scheduled", enabledSettings(), ev(tracker.EventInterviewScheduled)},
		{"offer", enabledSettings(), ev(tracker.EventOffer)},
		{"note", enabledSettings(), ev(tracker.EventNote)},
		{"follow up", enabledSettings(), ev(tracker.EventFollowUp)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildFollowUpEmail(tt.settings, "1", tt.event, "T", "C", testNow); got != nil {
				t.Errorf("expected nil, got %+v", got)
			}
		})
	}
}

func TestBuildFollowUpEmail_UniqueIDs(t *testing.T) {
	ev := tracker.StatusEvent{Type: tracker.EventApplied, Date: testNow}
	a := BuildFollowUpEmail(enabledSettings(), "1", ev, "T", "C", testNow)
	b := BuildFollowUpEmail(enabledSettings(), "1", ev, "T", "C", testNow)
	if a.ID == b.ID {
		t.Errorf("IDs collide: %s", a.ID)
	}
}

func TestBuildStatusChange(t *testing.T) {
	ev := tracker.StatusEvent{Type: tracker.EventOffer, Date: testNow, Notes: "Offer received"}

	got := BuildStatusChange(enabledSettings(), "9", ev, tracker.StatusOffered, "PM", "Initech", testNow)
	if got == nil {
		t.Fatal("expected a reminder")
	}
	if got.EmailType != TypeStatusChange || !got.TriggerDate.Equal(testNow) {
		t.Errorf("got %+v", got)
	}

	off := enabledSettings()
	off.Notifications.StatusChanges = false
	if BuildStatusChange(off, "9", ev, tracker.StatusOffered, "PM", "Initech", testNow) != nil {
		t.Error("expected nil when status changes are off")
	}
}

func TestScheduler_ScheduleFor(t *testing.T) {
	q := newMockQueue()
	s := NewSchedulerWithClock(staticSettings(enabledSettings()), q, &mockClock{now: testNow})
	ctx := context.Background()

	email, err := s.ScheduleFor(ctx, "42", tracker.StatusEvent{Type: tracker.EventApplied, Date: testNow}, "T", "C")
	if err != nil {
		t.Fatalf("ScheduleFor: %v", err)
	}
	if email == nil {
		t.Fatal("expected a reminder")
	}
	if _, ok := q.emails[email.ID]; !ok {
		t.Error("reminder not enqueued")
	}

	email, err = s.ScheduleFor(ctx, "42", tracker.StatusEvent{Type: tracker.EventNote, Date: testNow}, "T", "C")
	if err != nil || email != nil {
		t.Errorf("note: email=%v err=%v, want nil nil", email, err)
	}
	if len(q.emails) != 1 {
		t.Errorf("queue len = %d, want 1", len(q.emails))
	}
}
