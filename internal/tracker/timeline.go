package tracker

import (
	"sort"
	"time"
)

// DefaultDedupWindow is how close two same-typed events must be to count as
// one transition.
const DefaultDedupWindow = time.Minute

const noteApplicationSubmitted = "Application submitted"

// statusEvents maps a status to the event that implies it. Only statuses
// listed here get a synthetic event when the log lacks one.
var statusEvents = map[Status]struct {
	typ  EventType
	note string
}{
	StatusInterviewing: {EventInterviewScheduled, "Interview process started"},
	StatusOffered:      {EventOffer, "Offer received"},
	StatusRejected:     {EventRejected, "Application rejected"},
}

// Synthesize builds a display timeline for job, newest first.
//
// Jobs created before the event log existed only carry Status and
// AppliedDate; the missing history is backfilled with synthetic events.
// Same-typed events are never merged. The job itself is not modified.
func Synthesize(job JobApplication, now time.Time) []StatusEvent {
	timeline := make([]StatusEvent, len(job.StatusEvents), len(job.StatusEvents)+2)
	copy(timeline, job.StatusEvents)

	if len(timeline) == 0 && job.AppliedDate != nil {
		timeline = append(timeline, StatusEvent{
			Type:  EventApplied,
			Date:  *job.AppliedDate,
			Notes: noteApplicationSubmitted,
		})
	}

	if se, ok := statusEvents[job.Status]; ok && !containsType(timeline, se.typ) {
		timeline = append(timeline, StatusEvent{
			Type:  se.typ,
			Date:  now,
			Notes: se.note,
		})
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Date.After(timeline[j].Date)
	})
	return timeline
}

func containsType(events []StatusEvent, t EventType) bool {
	for _, e := range events {
		if e.Type == t {
			return true
		}
	}
	return false
}

// IsDuplicate reports whether e represents a transition already present in
// existing: same type and dates no more than window apart.
func IsDuplicate(existing []StatusEvent, e StatusEvent, window time.Duration) bool {
	for _, x := range existing {
		if x.Type != e.Type {
			continue
		}
		d := x.Date.Sub(e.Date)
		if d < 0 {
			d = -d
		}
		if d <= window {
			return true
		}
	}
	return false
}

// NewEvents filters incoming down to the events not already in existing,
// also dropping duplicates within incoming itself.
func NewEvents(existing, incoming []StatusEvent, window time.Duration) []StatusEvent {
	seen := make([]StatusEvent, len(existing), len(existing)+len(incoming))
	copy(seen, existing)

	var fresh []StatusEvent
	for _, e := range incoming {
		if IsDuplicate(seen, e, window) {
			continue
		}
		fresh = append(fresh, e)
		seen = append(seen, e)
	}
	return fresh
}
