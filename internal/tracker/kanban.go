package tracker

import "time"

// Column is a presentation-layer board column id. Columns map onto statuses
// through columnStatus; the two sets are free to diverge.
type Column string

const (
	ColumnSaved        Column = "saved"
	ColumnApplied      Column = "applied"
	ColumnInterviewing Column = "interviewing"
	ColumnRejected     Column = "rejected"
	ColumnOffered      Column = "offered"
)

// ColumnInfo describes one board column.
type ColumnInfo struct {
	ID     Column `json:"id"`
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// Columns lists the board columns in display order.
var Columns = []ColumnInfo{
	{ID: ColumnSaved, Name: "Saved", Status: StatusSaved},
	{ID: ColumnApplied, Name: "Applied", Status: StatusApplied},
	{ID: ColumnInterviewing, Name: "Interviewing", Status: StatusInterviewing},
	{ID: ColumnRejected, Name: "Rejected", Status: StatusRejected},
	{ID: ColumnOffered, Name: "Offered", Status: StatusOffered},
}

// StatusForColumn resolves the status a column represents.
func StatusForColumn(c Column) (Status, bool) {
	for _, ci := range Columns {
		if ci.ID == c {
			return ci.Status, true
		}
	}
	return StatusNone, false
}

// ColumnForStatus resolves the column a status is displayed in. Unengaged
// jobs have no column.
func ColumnForStatus(s Status) (Column, bool) {
	for _, ci := range Columns {
		if ci.Status == s {
			return ci.ID, true
		}
	}
	return "", false
}

// Position is a slot on the board.
type Position struct {
	Column Column `json:"column"`
	Index  int    `json:"index"`
}

// DragResult describes a finished drag on the board. Destination is nil when
// the card was dropped outside any column.
type DragResult struct {
	DraggableID string    `json:"draggable_id"`
	Source      Position  `json:"source"`
	Destination *Position `json:"destination"`
}

// IsNoop reports whether the drag leaves the card where it was.
func (r DragResult) IsNoop() bool {
	if r.Destination == nil {
		return true
	}
	return r.Destination.Column == r.Source.Column && r.Destination.Index == r.Source.Index
}

// TransitionFor returns the event synthesized when a card lands on status.
func TransitionFor(status Status) (EventType, string) {
	switch status {
	case StatusInterviewing:
		return EventInterviewScheduled, "Interview process started"
	case StatusOffered:
		return EventOffer, "Offer received"
	case StatusRejected:
		return EventRejected, "Application rejected"
	case StatusSaved:
		return EventNote, "Saved for later consideration"
	default:
		return EventApplied, noteApplicationSubmitted
	}
}

// HandleDragEnd applies a board move to an in-memory collection and returns
// the updated collection plus the event appended, if any.
//
// A job missing from jobs gets no event; the move degrades to a status-only
// update, which has nothing to touch.
func HandleDragEnd(jobs []JobApplication, r DragResult, now time.Time) ([]JobApplication, *StatusEvent) {
	if r.IsNoop() {
		return jobs, nil
	}
	status, ok := StatusForColumn(r.Destination.Column)
	if !ok {
		return jobs, nil
	}

	out := make([]JobApplication, len(jobs))
	copy(out, jobs)

	for i := range out {
		if out[i].ID != r.DraggableID {
			continue
		}
		ev := MoveEvent(status, now)
		events := make([]StatusEvent, len(out[i].StatusEvents), len(out[i].StatusEvents)+1)
		copy(events, out[i].StatusEvents)
		out[i].StatusEvents = append(events, ev)
		out[i].Status = status
		return out, &ev
	}
	return out, nil
}

// MoveEvent builds the synthetic event recorded for a move onto status.
func MoveEvent(status Status, now time.Time) StatusEvent {
	typ, note := TransitionFor(status)
	return StatusEvent{Type: typ, Date: now, Notes: note}
}

// BoardColumn is a column with the jobs currently in it.
type BoardColumn struct {
	ColumnInfo
	Jobs []JobApplication `json:"jobs"`
}

// Board groups jobs into columns in display order. Unengaged jobs are left
// off the board.
func Board(jobs []JobApplication) []BoardColumn {
	board := make([]BoardColumn, len(Columns))
	idx := make(map[Column]int, len(Columns))
	for i, ci := range Columns {
		board[i] = BoardColumn{ColumnInfo: ci, Jobs: []JobApplication{}}
		idx[ci.ID] = i
	}
	for _, j := range jobs {
		col, ok := ColumnForStatus(j.Status)
		if !ok {
			continue
		}
		i := idx[col]
		board[i].Jobs = append(board[i].Jobs, j)
	}
	return board
}
