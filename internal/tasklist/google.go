package tasklist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noamsh/donna/internal/intent"
	"github.com/noamsh/donna/internal/reliability"
	"github.com/noamsh/donna/internal/when"
)

const defaultBaseURL = "https://tasks.googleapis.com/tasks/v1"

// TokenSource supplies a bearer token for each request.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken wraps a fixed access token as a TokenSource.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// GoogleConfig configures the Google Tasks REST client.
type GoogleConfig struct {
	BaseURL  string
	Token    TokenSource
	ListID   string // default "@default"
	Timezone *time.Location
}

// GoogleClient talks to the Google Tasks v1 REST API. Criteria matching is
// done locally; the API has no server-side title search.
type GoogleClient struct {
	baseURL string
	listID  string
	token   TokenSource
	tz      *time.Location
	client  *http.Client
	now     func() time.Time
}

func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	listID := cfg.ListID
	if listID == "" {
		listID = "@default"
	}
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}
	return &GoogleClient{
		baseURL: base,
		listID:  listID,
		token:   cfg.Token,
		tz:      tz,
		client:  &http.Client{Timeout: 30 * time.Second},
		now:     time.Now,
	}
}

func (g *GoogleClient) Create(ctx context.Context, draft *intent.TaskDraft, listID string) (Task, error) {
	if listID == "" {
		listID = g.listID
	}
	body := map[string]any{
		"title":  draft.Title,
		"status": "needsAction",
	}
	if notes := NotesWithLocation(draft.Notes, draft.Location); notes != "" {
		body["notes"] = notes
	}
	if due, ok := when.DueTime(draft.Date, draft.Time, g.now().In(g.tz)); ok {
		body["due"] = due.UTC().Format(time.RFC3339)
	}

	var created Task
	path := fmt.Sprintf("/lists/%s/tasks", url.PathEscape(listID))
	if err := g.doJSON(ctx, http.MethodPost, path, nil, body, &created); err != nil {
		return Task{}, fmt.Errorf("create task: %w", err)
	}
	return created, nil
}

func (g *GoogleClient) List(ctx context.Context, criteria intent.Criteria) ([]Task, error) {
	query := url.Values{}
	query.Set("maxResults", "100")
	query.Set("showHidden", "false")
	if criteria.IncludeCompleted {
		query.Set("showCompleted", "true")
	} else {
		query.Set("showCompleted", "false")
	}

	var matched []Task
	pageToken := ""
	for {
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var res struct {
			Items         []Task `json:"items"`
			NextPageToken string `json:"nextPageToken"`
		}
		path := fmt.Sprintf("/lists/%s/tasks", url.PathEscape(g.listID))
		if err := g.doJSON(ctx, http.MethodGet, path, query, nil, &res); err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		for _, t := range res.Items {
			if MatchesCriteria(t, criteria, g.tz) {
				matched = append(matched, t)
			}
		}
		if res.NextPageToken == "" {
			return matched, nil
		}
		pageToken = res.NextPageToken
	}
}

func (g *GoogleClient) Update(ctx context.Context, criteria intent.Criteria, changes intent.TaskChanges) ([]Task, error) {
	items, err := g.List(ctx, criteria)
	if err != nil {
		return nil, err
	}
	var updated []Task
	for _, t := range items {
		body := map[string]any{
			"title":  t.Title,
			"notes":  t.Notes,
			"status": t.Status,
		}
		if changes.NewTitle != "" {
			body["title"] = changes.NewTitle
		}
		if changes.NewNotes != nil {
			body["notes"] = *changes.NewNotes
		}
		if changes.NewDate != "" || changes.NewTime != "" {
			if due, ok := when.DueTime(changes.NewDate, changes.NewTime, g.now().In(g.tz)); ok {
				body["due"] = due.UTC().Format(time.RFC3339)
			}
		}
		var res Task
		path := fmt.Sprintf("/lists/%s/tasks/%s", url.PathEscape(g.listID), url.PathEscape(t.ID))
		if err := g.doJSON(ctx, http.MethodPatch, path, nil, body, &res); err != nil {
			return updated, fmt.Errorf("update task %s: %w", t.ID, err)
		}
		updated = append(updated, res)
	}
	return updated, nil
}

func (g *GoogleClient) Complete(ctx context.Context, criteria intent.Criteria) (int, error) {
	items, err := g.List(ctx, criteria)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, t := range items {
		if t.Completed() {
			continue
		}
		body := map[string]any{
			"status":    "completed",
			"completed": g.now().UTC().Format(time.RFC3339),
		}
		path := fmt.Sprintf("/lists/%s/tasks/%s", url.PathEscape(g.listID), url.PathEscape(t.ID))
		if err := g.doJSON(ctx, http.MethodPatch, path, nil, body, nil); err != nil {
			return count, fmt.Errorf("complete task %s: %w", t.ID, err)
		}
		count++
	}
	return count, nil
}

func (g *GoogleClient) Delete(ctx context.Context, criteria intent.Criteria) (int, error) {
	items, err := g.List(ctx, criteria)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, t := range items {
		path := fmt.Sprintf("/lists/%s/tasks/%s", url.PathEscape(g.listID), url.PathEscape(t.ID))
		if err := g.doJSON(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
			return count, fmt.Errorf("delete task %s: %w", t.ID, err)
		}
		count++
	}
	return count, nil
}

func (g *GoogleClient) FindMatchingLists(ctx context.Context, nameHint string) ([]ListRef, error) {
	hint := strings.ToLower(strings.TrimSpace(nameHint))
	if hint == "" {
		return nil, nil
	}

	var matched []ListRef
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("maxResults", "100")
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}
		var res struct {
			Items         []ListRef `json:"items"`
			NextPageToken string    `json:"nextPageToken"`
		}
		if err := g.doJSON(ctx, http.MethodGet, "/users/@me/lists", query, nil, &res); err != nil {
			return nil, fmt.Errorf("list task lists: %w", err)
		}
		for _, l := range res.Items {
			if strings.Contains(strings.ToLower(l.Title), hint) {
				matched = append(matched, l)
			}
		}
		if res.NextPageToken == "" {
			return matched, nil
		}
		pageToken = res.NextPageToken
	}
}

// NotesWithLocation folds the location into the notes text since the task
// backend has no native location field.
func NotesWithLocation(notes, location string) string {
	switch {
	case location != "" && notes != "":
		return notes + "\nLocation: " + location
	case location != "":
		return "Location: " + location
	default:
		return notes
	}
}

// MatchesCriteria applies local criteria matching: title substring
// (case-insensitive), due-date equality in local time, and completed-task
// filtering.
func MatchesCriteria(t Task, criteria intent.Criteria, loc *time.Location) bool {
	if t.Completed() && !criteria.IncludeCompleted {
		return false
	}
	if criteria.TitleHint != "" &&
		!strings.Contains(strings.ToLower(t.Title), strings.ToLower(criteria.TitleHint)) {
		return false
	}
	if criteria.DateHint != "" {
		if t.Due == "" {
			return false
		}
		due, err := time.Parse(time.RFC3339, t.Due)
		if err != nil {
			return false
		}
		if due.In(loc).Format("2006-01-02") != criteria.DateHint {
			return false
		}
	}
	return true
}

func (g *GoogleClient) doJSON(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	endpoint := g.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if g.token != nil {
			tok, err := g.token(ctx)
			if err != nil {
				return fmt.Errorf("token: %w", err)
			}
			req.Header.Set("Authorization", "Bearer "+tok)
		}

		res, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("send request: %w", err)
		}

		if res.StatusCode >= 200 && res.StatusCode < 300 {
			defer res.Body.Close()
			if out == nil {
				io.Copy(io.Discard, res.Body)
				return nil
			}
			if err := json.NewDecoder(res.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}

		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		res.Body.Close()
		if attempt == 0 && reliability.IsRetryableHTTPStatus(res.StatusCode) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt, 250*time.Millisecond, 2*time.Second)):
			}
			continue
		}
		return fmt.Errorf("tasks api status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}
}
