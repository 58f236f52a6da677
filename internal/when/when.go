// Package when resolves the small fixed vocabulary of date and time phrases
// the assistant understands into concrete times. It is deliberately not a
// general natural-language date parser.
package when

import (
	"strings"
	"time"

	"github.com/noamsh/donna/internal/intent"
)

const isoDate = "2006-01-02"

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
	"sunday": time.Sunday, "sun": time.Sunday,
}

// ResolveDate turns a date hint (ISO date, "today", "tomorrow", a weekday
// name, "next <weekday>", "next week", "this week") into midnight of the
// target day in now's location. The second return is false when the hint is
// not recognized.
func ResolveDate(hint string, now time.Time) (time.Time, bool) {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return time.Time{}, false
	}
	loc := now.Location()

	if d, err := time.ParseInLocation(isoDate, h, loc); err == nil {
		return d, true
	}

	today := StartOfDay(now)
	switch h {
	case "today", "tonight":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "yesterday":
		return today.AddDate(0, 0, -1), true
	case "next week":
		return nextMonday(today), true
	case "this week":
		return thisMonday(today), true
	}

	name := h
	next := false
	if strings.HasPrefix(name, "next ") {
		name = strings.TrimPrefix(name, "next ")
		next = true
	}
	if wd, ok := weekdays[name]; ok {
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if ahead == 0 && next {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), true
	}

	return time.Time{}, false
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (hour, minute int, ok bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, false
	}
	return t.Hour(), t.Minute(), true
}

// EventWindow computes the concrete start and end for an event draft. An
// unparseable or missing date falls back to one hour from now; a date without
// a time gets 09:00. A start that already passed is pushed a year ahead so
// year-less phrases stay in the future.
func EventWindow(draft *intent.EventDraft, now time.Time) (start, end time.Time) {
	loc := now.Location()

	day, ok := ResolveDate(draft.StartDate, now)
	if !ok {
		start = now.Add(time.Hour).Truncate(time.Minute)
	} else {
		hour, minute := 9, 0
		if h, m, ok := ParseClock(draft.StartTime); ok {
			hour, minute = h, m
		}
		start = time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	}

	for !start.After(now) {
		start = start.AddDate(1, 0, 0)
	}
	end = start.Add(time.Duration(draft.EffectiveDuration()) * time.Minute)
	return start, end
}

// DueTime converts a task's local date/time into its due timestamp. A date
// without a time means end of that day (23:59 local); a time without a date
// assumes today. Both empty yields ok=false.
func DueTime(dateStr, timeStr string, now time.Time) (time.Time, bool) {
	if strings.TrimSpace(dateStr) == "" && strings.TrimSpace(timeStr) == "" {
		return time.Time{}, false
	}
	loc := now.Location()

	day, ok := ResolveDate(dateStr, now)
	if !ok {
		day = StartOfDay(now)
	}
	if h, m, ok := ParseClock(timeStr); ok {
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, loc), true
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 0, 0, loc), true
}

// RangeFromText resolves the date range a listing request refers to, driven
// by phrases in the raw message with the query's scope and hint as fallback.
func RangeFromText(text string, q *intent.ListQuery, now time.Time) (start, end time.Time) {
	lower := strings.ToLower(text)
	today := StartOfDay(now)

	switch {
	case strings.Contains(lower, "next week"):
		start = nextMonday(today)
		return start, start.AddDate(0, 0, 7)
	case strings.Contains(lower, "this week"):
		start = thisMonday(today)
		return start, start.AddDate(0, 0, 7)
	case containsNextWeekday(lower):
		if d, ok := ResolveDate(extractNextWeekday(lower), now); ok {
			return d, d.AddDate(0, 0, 1)
		}
	case strings.Contains(lower, "tomorrow"):
		start = today.AddDate(0, 0, 1)
		return start, start.AddDate(0, 0, 1)
	case strings.Contains(lower, "today"):
		return today, today.AddDate(0, 0, 1)
	}

	if q != nil {
		anchor := today
		if d, ok := ResolveDate(q.DateHint, now); ok {
			anchor = d
		}
		if q.Scope == "week" {
			return anchor, anchor.AddDate(0, 0, 7)
		}
		return anchor, anchor.AddDate(0, 0, 1)
	}
	return today, today.AddDate(0, 0, 1)
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func thisMonday(today time.Time) time.Time {
	offset := (int(today.Weekday()) - int(time.Monday) + 7) % 7
	return today.AddDate(0, 0, -offset)
}

func nextMonday(today time.Time) time.Time {
	return thisMonday(today).AddDate(0, 0, 7)
}

func containsNextWeekday(lower string) bool {
	return extractNextWeekday(lower) != ""
}

func extractNextWeekday(lower string) string {
	for name := range weekdays {
		if strings.Contains(lower, "next "+name) {
			return "next " + name
		}
	}
	return ""
}
