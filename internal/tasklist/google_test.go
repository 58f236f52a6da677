package tasklist

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

func newTestClient(t *testing.T, handler http.Handler) *GoogleClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g := NewGoogleClient(GoogleConfig{
		BaseURL:  srv.URL,
		Token:    StaticToken("tok-456"),
		Timezone: time.UTC,
	})
	g.client = srv.Client()
	g.now = fixedNow
	return g
}

func TestCreateSetsDueAndNotes(t *testing.T) {
	var got map[string]any
	var auth, path string
	g := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(Task{ID: "t1", Title: "Buy milk"})
	}))

	task, err := g.Create(context.Background(), &intent.TaskDraft{
		Title:    "Buy milk",
		Date:     "2025-09-02",
		Notes:    "two cartons",
		Location: "corner store",
	}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if task.ID != "t1" {
		t.Fatalf("task = %+v", task)
	}
	if auth != "Bearer tok-456" {
		t.Fatalf("auth = %q", auth)
	}
	if path != "/lists/@default/tasks" {
		t.Fatalf("path = %q", path)
	}
	if got["status"] != "needsAction" {
		t.Fatalf("status = %v", got["status"])
	}
	notes, _ := got["notes"].(string)
	if !strings.Contains(notes, "two cartons") || !strings.Contains(notes, "Location: corner store") {
		t.Fatalf("notes = %q", notes)
	}
	due, _ := got["due"].(string)
	if !strings.HasPrefix(due, "2025-09-02") {
		t.Fatalf("due = %q", due)
	}
}

func TestCreateHonorsExplicitList(t *testing.T) {
	var path string
	g := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewEncoder(w).Encode(Task{ID: "t1"})
	}))

	if _, err := g.Create(context.Background(), &intent.TaskDraft{Title: "Pack"}, "trip-list"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if path != "/lists/trip-list/tasks" {
		t.Fatalf("path = %q", path)
	}
}

func TestListPaginatesAndFilters(t *testing.T) {
	calls := 0
	g := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Query().Get("pageToken") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"items":         []Task{{ID: "a", Title: "Buy milk"}, {ID: "b", Title: "Call plumber"}},
				"nextPageToken": "page2",
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"items": []Task{{ID: "c", Title: "Buy stamps"}},
		})
	}))

	got, err := g.List(context.Background(), intent.Criteria{TitleHint: "buy"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("tasks = %+v", got)
	}
}

func TestCompleteSkipsAlreadyDone(t *testing.T) {
	var patched []string
	g := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"items": []Task{
				{ID: "a", Title: "Buy milk"},
				{ID: "b", Title: "Buy bread"},
			}})
		case http.MethodPatch:
			patched = append(patched, r.URL.Path)
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["status"] != "completed" {
				t.Errorf("status = %v", body["status"])
			}
			w.Write([]byte("{}"))
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))

	count, err := g.Complete(context.Background(), intent.Criteria{TitleHint: "buy"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if count != 2 || len(patched) != 2 {
		t.Fatalf("count = %d patched = %v", count, patched)
	}
}

func TestDeleteRemovesMatches(t *testing.T) {
	var deleted []string
	g := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"items": []Task{
				{ID: "a", Title: "Old errand"},
			}})
		case http.MethodDelete:
			deleted = append(deleted, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	count, err := g.Delete(context.Background(), intent.Criteria{TitleHint: "errand"})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if count != 1 || len(deleted) != 1 || !strings.HasSuffix(deleted[0], "/tasks/a") {
		t.Fatalf("count = %d deleted = %v", count, deleted)
	}
}

func TestFindMatchingListsFiltersByHint(t *testing.T) {
	g := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/@me/lists" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"items": []ListRef{
			{ID: "l1", Title: "Groceries"},
			{ID: "l2", Title: "Work"},
			{ID: "l3", Title: "Grocery backup"},
		}})
	}))

	got, err := g.FindMatchingLists(context.Background(), "grocer")
	if err != nil {
		t.Fatalf("FindMatchingLists: %v", err)
	}
	if len(got) != 2 || got[0].ID != "l1" || got[1].ID != "l3" {
		t.Fatalf("lists = %+v", got)
	}

	got, err = g.FindMatchingLists(context.Background(), "   ")
	if err != nil {
		t.Fatalf("FindMatchingLists: %v", err)
	}
	if got != nil {
		t.Fatalf("blank hint lists = %+v", got)
	}
}

func TestNotesWithLocation(t *testing.T) {
	cases := []struct {
		notes, location, want string
	}{
		{"call first", "clinic", "call first\nLocation: clinic"},
		{"", "clinic", "Location: clinic"},
		{"call first", "", "call first"},
		{"", "", ""},
	}
	for _, tc := range cases {
		if got := NotesWithLocation(tc.notes, tc.location); got != tc.want {
			t.Fatalf("NotesWithLocation(%q, %q) = %q, want %q", tc.notes, tc.location, got, tc.want)
		}
	}
}

func TestMatchesCriteria(t *testing.T) {
	due := Task{ID: "a", Title: "Buy milk", Due: "2025-09-02T00:00:00Z"}
	done := Task{ID: "b", Title: "Buy bread", Status: "completed"}

	if !MatchesCriteria(due, intent.Criteria{TitleHint: "MILK"}, time.UTC) {
		t.Fatal("title hint should match case-insensitively")
	}
	if MatchesCriteria(due, intent.Criteria{TitleHint: "bread"}, time.UTC) {
		t.Fatal("title hint should reject non-matching task")
	}
	if MatchesCriteria(done, intent.Criteria{}, time.UTC) {
		t.Fatal("completed task should be excluded by default")
	}
	if !MatchesCriteria(done, intent.Criteria{IncludeCompleted: true}, time.UTC) {
		t.Fatal("IncludeCompleted should admit completed tasks")
	}
	if !MatchesCriteria(due, intent.Criteria{DateHint: "2025-09-02"}, time.UTC) {
		t.Fatal("matching due date should pass")
	}
	if MatchesCriteria(due, intent.Criteria{DateHint: "2025-09-03"}, time.UTC) {
		t.Fatal("mismatched due date should fail")
	}
	if MatchesCriteria(Task{Title: "No due"}, intent.Criteria{DateHint: "2025-09-02"}, time.UTC) {
		t.Fatal("date hint with no due date should fail")
	}
}
