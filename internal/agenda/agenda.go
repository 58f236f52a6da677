// Package agenda computes the read-only views the assistant renders for
// listing requests: plain agendas, free-slot analysis, and period summaries.
package agenda

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noamsh/donna/internal/calendar"
	"github.com/noamsh/donna/internal/tasklist"
)

// DefaultFreeSlotMin is the minimum gap length reported as a free slot.
const DefaultFreeSlotMin = 2 * time.Hour

// Slot is a free gap between events inside a window.
type Slot struct {
	Start time.Time
	End   time.Time
}

func (s Slot) Duration() time.Duration { return s.End.Sub(s.Start) }

// FreeSlots finds the gaps between consecutive events (and before the first
// and after the last) inside [start, end) that are at least minDuration
// long. Zero events means the entire window is one candidate slot.
func FreeSlots(events []calendar.Event, start, end time.Time, minDuration time.Duration, loc *time.Location) []Slot {
	if minDuration <= 0 {
		minDuration = DefaultFreeSlotMin
	}
	if !end.After(start) {
		return nil
	}

	sorted := make([]calendar.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Time(loc).Before(sorted[j].Start.Time(loc))
	})

	var slots []Slot
	cursor := start
	for _, ev := range sorted {
		evStart := ev.Start.Time(loc)
		if !evStart.IsZero() && cursor.Before(evStart) {
			if evStart.Sub(cursor) >= minDuration {
				slots = append(slots, Slot{Start: cursor, End: evStart})
			}
		}
		if evEnd := ev.End.Time(loc); !evEnd.IsZero() && evEnd.After(cursor) {
			cursor = evEnd
		}
	}
	if cursor.Before(end) && end.Sub(cursor) >= minDuration {
		slots = append(slots, Slot{Start: cursor, End: end})
	}
	return slots
}

// StatusFilter extracts a task status filter from free text: "open",
// "completed", "all", or "" when nothing matched.
func StatusFilter(text string) string {
	lower := strings.ToLower(text)
	patterns := []struct {
		status string
		words  []string
	}{
		{"open", []string{"open", "pending", "todo", "incomplete", "active"}},
		{"completed", []string{"completed", "done", "finished", "closed"}},
		{"all", []string{"all", "everything", "any"}},
	}
	for _, p := range patterns {
		for _, w := range p.words {
			if strings.Contains(lower, w) {
				return p.status
			}
		}
	}
	return ""
}

// Summary renders a compact overview of events and tasks for a period.
func Summary(events []calendar.Event, tasks []tasklist.Task, periodName string, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary for %s:", periodName)

	if len(events) > 0 {
		fmt.Fprintf(&b, "\n\nEvents (%d):", len(events))
		shown := events
		if len(shown) > 5 {
			shown = shown[:5]
		}
		for _, ev := range shown {
			fmt.Fprintf(&b, "\n  - %s  %s", FormatEventTime(ev.Start, loc), titleOrUntitled(ev.Summary))
		}
		if extra := len(events) - 5; extra > 0 {
			fmt.Fprintf(&b, "\n  ... and %d more events", extra)
		}
	} else {
		fmt.Fprintf(&b, "\n\nNo events scheduled for %s", periodName)
	}

	if len(tasks) > 0 {
		open, completed := 0, 0
		var topOpen []tasklist.Task
		for _, t := range tasks {
			if t.Completed() {
				completed++
				continue
			}
			open++
			if len(topOpen) < 3 {
				topOpen = append(topOpen, t)
			}
		}
		fmt.Fprintf(&b, "\n\nTasks: %d open, %d completed", open, completed)
		for _, t := range topOpen {
			line := titleOrUntitled(t.Title)
			if due := formatDue(t.Due, loc); due != "" {
				line += " (due " + due + ")"
			}
			fmt.Fprintf(&b, "\n  - %s", line)
		}
	} else {
		b.WriteString("\n\nNo tasks found")
	}
	return b.String()
}

// FormatEventTime renders an event boundary for display.
func FormatEventTime(t calendar.EventTime, loc *time.Location) string {
	parsed := t.Time(loc)
	if parsed.IsZero() {
		return "no time"
	}
	if t.AllDay() {
		return parsed.Format("Mon 01/02")
	}
	return parsed.Format("Mon 01/02 15:04")
}

func formatDue(due string, loc *time.Location) string {
	if due == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, due)
	if err != nil {
		return due
	}
	return parsed.In(loc).Format("01/02 15:04")
}

func titleOrUntitled(title string) string {
	if strings.TrimSpace(title) == "" {
		return "Untitled"
	}
	return title
}
