package storage

import (
	"errors"
	"time"

	"github.com/kalambet/applytrack/internal/tracker"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a job was modified since it was read.
	ErrConflict = errors.New("version conflict")
)

// JobFilter narrows ListJobs. Zero fields match everything.
type JobFilter struct {
	Status *tracker.Status
	Type   string
	Query  string
	Limit  int
}

const (
	// timeFormat is fixed width so columns compare correctly as text.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
	// eventTimeFormat keeps sub-second precision for event dates.
	eventTimeFormat = time.RFC3339Nano
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
