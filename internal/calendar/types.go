package calendar

import (
	"context"
	"time"

	"github.com/noamsh/donna/internal/intent"
)

// Event mirrors the subset of the calendar event resource the assistant
// touches.
type Event struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
	HTMLLink    string    `json:"htmlLink,omitempty"`
}

// EventTime holds either a timed start/end (DateTime) or an all-day date.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Time resolves the event time in loc. All-day events resolve to midnight.
// The zero time means the field was absent or unparseable.
func (t EventTime) Time(loc *time.Location) time.Time {
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed.In(loc)
		}
	}
	if t.Date != "" {
		if parsed, err := time.ParseInLocation("2006-01-02", t.Date, loc); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

// AllDay reports whether the boundary is a date-only value.
func (t EventTime) AllDay() bool {
	return t.DateTime == "" && t.Date != ""
}

// Service is the calendar collaborator contract the dispatcher depends on.
type Service interface {
	// CreateEvent inserts the event and returns a browser link to it, which
	// may be empty.
	CreateEvent(ctx context.Context, draft *intent.EventDraft) (string, error)
	// FindCandidates searches a window of upcoming events and filters them
	// by the update criteria, preserving start-time order.
	FindCandidates(ctx context.Context, criteria intent.UpdateCriteria, windowDays int) ([]Event, error)
	// ApplyUpdate patches the event with the requested changes.
	ApplyUpdate(ctx context.Context, ev Event, changes intent.EventChanges) (Event, error)
	// ListRange returns events ordered by start time inside [start, end).
	ListRange(ctx context.Context, start, end time.Time) ([]Event, error)
}
