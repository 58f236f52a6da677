package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/noamsh/donna/internal/intent"
)

func fixedNow() time.Time {
	return time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)
}

func newTestClient(t *testing.T, handler http.Handler) (*GoogleClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g := NewGoogleClient(GoogleConfig{
		BaseURL:    srv.URL,
		CalendarID: "primary",
		Token:      StaticToken("tok-123"),
		Timezone:   time.UTC,
	})
	g.client = srv.Client()
	g.now = fixedNow
	return g, srv
}

func TestCreateEventSendsAuthAndBody(t *testing.T) {
	var got Event
	var auth, path string
	g, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(Event{ID: "ev1", HTMLLink: "https://cal/ev1"})
	}))

	link, err := g.CreateEvent(context.Background(), &intent.EventDraft{
		Title:           "Dentist",
		StartDate:       "2025-09-03",
		StartTime:       "14:00",
		DurationMinutes: 30,
		Location:        "Main St",
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if link != "https://cal/ev1" {
		t.Fatalf("link = %q", link)
	}
	if auth != "Bearer tok-123" {
		t.Fatalf("auth = %q", auth)
	}
	if path != "/calendars/primary/events" {
		t.Fatalf("path = %q", path)
	}
	if got.Summary != "Dentist" || got.Location != "Main St" {
		t.Fatalf("posted event = %+v", got)
	}
	if !strings.HasPrefix(got.Start.DateTime, "2025-09-03T14:00") {
		t.Fatalf("start = %q", got.Start.DateTime)
	}
	if !strings.HasPrefix(got.End.DateTime, "2025-09-03T14:30") {
		t.Fatalf("end = %q", got.End.DateTime)
	}
}

func TestCreateEventDefaultsTitle(t *testing.T) {
	var got Event
	g, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(Event{ID: "ev1"})
	}))

	if _, err := g.CreateEvent(context.Background(), &intent.EventDraft{StartDate: "2025-09-03"}); err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if got.Summary != "Untitled" {
		t.Fatalf("summary = %q", got.Summary)
	}
}

func TestListRangeQuery(t *testing.T) {
	var query map[string][]string
	g, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{"items": []Event{{ID: "a"}, {ID: "b"}}})
	}))

	start := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	items, err := g.ListRange(context.Background(), start, start.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	if got := query["singleEvents"]; len(got) != 1 || got[0] != "true" {
		t.Fatalf("singleEvents = %v", got)
	}
	if got := query["orderBy"]; len(got) != 1 || got[0] != "startTime" {
		t.Fatalf("orderBy = %v", got)
	}
	if got := query["timeMin"]; len(got) != 1 || got[0] != "2025-09-01T00:00:00Z" {
		t.Fatalf("timeMin = %v", got)
	}
}

func TestFindCandidatesAppliesFilters(t *testing.T) {
	g, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"items": []Event{
			{ID: "a", Summary: "Dentist checkup", Start: EventTime{DateTime: "2025-09-02T09:00:00Z"}},
			{ID: "b", Summary: "Lunch with Dana", Start: EventTime{DateTime: "2025-09-02T12:30:00Z"}},
			{ID: "c", Summary: "Dentist followup", Start: EventTime{DateTime: "2025-09-04T18:30:00Z"}},
		}})
	}))

	got, err := g.FindCandidates(context.Background(), intent.UpdateCriteria{TitleHint: "dentist"}, 14)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("candidates = %+v", got)
	}

	got, err = g.FindCandidates(context.Background(), intent.UpdateCriteria{TitleHint: "dentist", TimeHint: "evening"}, 14)
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("evening candidates = %+v", got)
	}
}

func TestApplyUpdatePreservesExistingWindow(t *testing.T) {
	var patch map[string]any
	g, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&patch)
		json.NewEncoder(w).Encode(Event{ID: "ev1", Summary: "Dentist"})
	}))

	ev := Event{
		ID:      "ev1",
		Summary: "Dentist",
		Start:   EventTime{DateTime: "2025-09-03T14:00:00Z"},
		End:     EventTime{DateTime: "2025-09-03T14:45:00Z"},
	}
	// Only the time moves; date and duration carry over from the event.
	if _, err := g.ApplyUpdate(context.Background(), ev, intent.EventChanges{NewTime: "16:00"}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	start, ok := patch["start"].(map[string]any)
	if !ok {
		t.Fatalf("patch start = %v", patch["start"])
	}
	if dt, _ := start["dateTime"].(string); !strings.HasPrefix(dt, "2025-09-03T16:00") {
		t.Fatalf("start = %v", start)
	}
	end, _ := patch["end"].(map[string]any)
	if dt, _ := end["dateTime"].(string); !strings.HasPrefix(dt, "2025-09-03T16:45") {
		t.Fatalf("end = %v", end)
	}
	if _, present := patch["summary"]; present {
		t.Fatalf("unexpected summary in patch: %v", patch)
	}
}

func TestDoJSONRetriesOnServerError(t *testing.T) {
	calls := 0
	g, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"items": []Event{}})
	}))

	if _, err := g.ListRange(context.Background(), fixedNow(), fixedNow().Add(time.Hour)); err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestDoJSONDoesNotRetryClientError(t *testing.T) {
	calls := 0
	g, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("bad window"))
	}))

	_, err := g.ListRange(context.Background(), fixedNow(), fixedNow().Add(time.Hour))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 400") || !strings.Contains(err.Error(), "bad window") {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestEventTimeResolution(t *testing.T) {
	loc := time.UTC
	timed := EventTime{DateTime: "2025-09-03T14:00:00Z"}
	if got := timed.Time(loc); got.Hour() != 14 {
		t.Fatalf("timed = %v", got)
	}
	if timed.AllDay() {
		t.Fatal("timed reported all-day")
	}
	allDay := EventTime{Date: "2025-09-03"}
	if got := allDay.Time(loc); got.Hour() != 0 || got.Day() != 3 {
		t.Fatalf("all-day = %v", got)
	}
	if !allDay.AllDay() {
		t.Fatal("all-day not reported")
	}
	if got := (EventTime{}).Time(loc); !got.IsZero() {
		t.Fatalf("empty = %v", got)
	}
}
