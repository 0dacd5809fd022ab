package tracker

import (
	"fmt"
	"strings"
	"time"
)

// Status is the coarse lifecycle state of a job application. The zero value
// means the user has not engaged with the job yet.
type Status string

const (
	StatusNone         Status = ""
	StatusSaved        Status = "saved"
	StatusApplied      Status = "applied"
	StatusInterviewing Status = "interviewing"
	StatusRejected     Status = "rejected"
	StatusOffered      Status = "offered"
)

var knownStatuses = []Status{StatusSaved, StatusApplied, StatusInterviewing, StatusRejected, StatusOffered}

// ParseStatus normalizes s and rejects values outside the closed set.
// An empty string parses to StatusNone.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == StatusNone {
		return StatusNone, nil
	}
	for _, k := range knownStatuses {
		if st == k {
			return st, nil
		}
	}
	return StatusNone, fmt.Errorf("unknown status %q", s)
}

// EventType identifies one kind of lifecycle transition.
type EventType string

const (
	EventApplied            EventType = "applied"
	EventScreening          EventType = "screening"
	EventInterviewScheduled EventType = "interview_scheduled"
	EventInterviewCompleted EventType = "interview_completed"
	EventTechnicalInterview EventType = "technical_interview"
	EventFollowUp           EventType = "follow_up"
	EventReferenceCheck     EventType = "reference_check"
	EventOffer              EventType = "offer"
	EventRejected           EventType = "rejected"
	EventAccepted           EventType = "accepted"
	EventDeclined           EventType = "declined"
	EventNote               EventType = "note"
)

var eventLabels = map[EventType]string{
	EventApplied:            "Applied",
	EventScreening:          "Phone Screening",
	EventInterviewScheduled: "Interview Scheduled",
	EventInterviewCompleted: "Interview Completed",
	EventTechnicalInterview: "Technical Interview",
	EventFollowUp:           "Follow-up",
	EventReferenceCheck:     "Reference Check",
	EventOffer:              "Offer Received",
	EventAccepted:           "Offer Accepted",
	EventDeclined:           "Offer Declined",
	EventRejected:           "Application Rejected",
	EventNote:               "Note",
}

// ParseEventType rejects values outside the closed event set.
func ParseEventType(s string) (EventType, error) {
	et := EventType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := eventLabels[et]; !ok {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return et, nil
}

// Label returns the human-readable name of an event type.
func Label(t EventType) string {
	if l, ok := eventLabels[t]; ok {
		return l
	}
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// StatusEvent is one timestamped entry in a job's append-only event log.
type StatusEvent struct {
	Type          EventType `json:"type"`
	Date          time.Time `json:"date"`
	Notes         string    `json:"notes,omitempty"`
	ContactPerson string    `json:"contact_person,omitempty"`
}

// JobApplication is a tracked job together with its event log.
type JobApplication struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Company      string        `json:"company"`
	Location     string        `json:"location"`
	Type         string        `json:"type"`
	Posted       string        `json:"posted"`
	Status       Status        `json:"status,omitempty"`
	AppliedDate  *time.Time    `json:"applied_date,omitempty"`
	Description  string        `json:"description,omitempty"`
	URL          string        `json:"url,omitempty"`
	Salary       string        `json:"salary,omitempty"`
	Resume       string        `json:"resume,omitempty"`
	ResumeText   string        `json:"resume_text,omitempty"`
	StatusEvents []StatusEvent `json:"status_events"`
	Version      int           `json:"version"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// HasEvent reports whether the job's log contains an event of type t.
func (j JobApplication) HasEvent(t EventType) bool {
	for _, e := range j.StatusEvents {
		if e.Type == t {
			return true
		}
	}
	return false
}
