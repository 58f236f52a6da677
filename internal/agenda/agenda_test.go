package agenda

import (
	"strings"
	"testing"
	"time"

	"github.com/noamsh/donna/internal/calendar"
	"github.com/noamsh/donna/internal/tasklist"
)

func timedEvent(summary string, start, end time.Time) calendar.Event {
	return calendar.Event{
		Summary: summary,
		Start:   calendar.EventTime{DateTime: start.Format(time.RFC3339)},
		End:     calendar.EventTime{DateTime: end.Format(time.RFC3339)},
	}
}

func TestFreeSlotsSingleEvent(t *testing.T) {
	loc := time.UTC
	day := time.Date(2025, 9, 10, 0, 0, 0, 0, loc)
	windowStart := day.Add(9 * time.Hour)
	windowEnd := day.Add(17 * time.Hour)
	events := []calendar.Event{
		timedEvent("Standup", day.Add(10*time.Hour), day.Add(11*time.Hour)),
	}

	slots := FreeSlots(events, windowStart, windowEnd, 2*time.Hour, loc)
	// 09:00-10:00 is only one hour, below the 2h threshold; 11:00-17:00 qualifies.
	if len(slots) != 1 {
		t.Fatalf("len(slots) = %d, want 1 (%+v)", len(slots), slots)
	}
	if !slots[0].Start.Equal(day.Add(11 * time.Hour)) || !slots[0].End.Equal(windowEnd) {
		t.Fatalf("slot = %+v", slots[0])
	}
	if slots[0].Duration() != 6*time.Hour {
		t.Fatalf("duration = %v, want 6h", slots[0].Duration())
	}
}

func TestFreeSlotsEmptyWindow(t *testing.T) {
	loc := time.UTC
	start := time.Date(2025, 9, 10, 9, 0, 0, 0, loc)
	end := start.Add(8 * time.Hour)

	slots := FreeSlots(nil, start, end, 2*time.Hour, loc)
	if len(slots) != 1 {
		t.Fatalf("len(slots) = %d, want 1", len(slots))
	}
	if !slots[0].Start.Equal(start) || !slots[0].End.Equal(end) {
		t.Fatalf("slot = %+v, want whole window", slots[0])
	}
}

func TestFreeSlotsExactThreshold(t *testing.T) {
	loc := time.UTC
	day := time.Date(2025, 9, 10, 0, 0, 0, 0, loc)
	events := []calendar.Event{
		timedEvent("A", day.Add(11*time.Hour), day.Add(15*time.Hour)),
	}

	// 09:00-11:00 is exactly two hours; "meets or exceeds" keeps it.
	slots := FreeSlots(events, day.Add(9*time.Hour), day.Add(15*time.Hour), 2*time.Hour, loc)
	if len(slots) != 1 {
		t.Fatalf("len(slots) = %d, want 1 (%+v)", len(slots), slots)
	}
	if slots[0].Duration() != 2*time.Hour {
		t.Fatalf("duration = %v, want exactly 2h", slots[0].Duration())
	}
}

func TestFreeSlotsUnsortedOverlapping(t *testing.T) {
	loc := time.UTC
	day := time.Date(2025, 9, 10, 0, 0, 0, 0, loc)
	events := []calendar.Event{
		timedEvent("B", day.Add(12*time.Hour), day.Add(13*time.Hour)),
		timedEvent("A", day.Add(10*time.Hour), day.Add(12*time.Hour+30*time.Minute)),
	}

	slots := FreeSlots(events, day.Add(8*time.Hour), day.Add(18*time.Hour), 2*time.Hour, loc)
	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2 (%+v)", len(slots), slots)
	}
	if !slots[0].Start.Equal(day.Add(8*time.Hour)) || !slots[0].End.Equal(day.Add(10*time.Hour)) {
		t.Fatalf("first slot = %+v", slots[0])
	}
	if !slots[1].Start.Equal(day.Add(13*time.Hour)) || !slots[1].End.Equal(day.Add(18*time.Hour)) {
		t.Fatalf("second slot = %+v", slots[1])
	}
}

func TestStatusFilter(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"show my open tasks", "open"},
		{"what are my pending items", "open"},
		{"completed tasks please", "completed"},
		{"what's done", "completed"},
		{"all tasks", "all"},
		{"events tomorrow", ""},
	}
	for _, tc := range cases {
		if got := StatusFilter(tc.text); got != tc.want {
			t.Fatalf("StatusFilter(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestSummaryCounts(t *testing.T) {
	loc := time.UTC
	day := time.Date(2025, 9, 10, 0, 0, 0, 0, loc)
	events := []calendar.Event{
		timedEvent("Standup", day.Add(10*time.Hour), day.Add(11*time.Hour)),
	}
	tasks := []tasklist.Task{
		{Title: "Buy milk", Status: "needsAction"},
		{Title: "Old chore", Status: "completed"},
	}

	out := Summary(events, tasks, "today", loc)
	for _, want := range []string{"Events (1):", "Standup", "1 open, 1 completed", "Buy milk"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
}
