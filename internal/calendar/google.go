package calendar

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

const defaultBaseURL = "https://www.googleapis.com/calendar/v3"

// TokenSource supplies a bearer token for each request.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken wraps a fixed access token as a TokenSource.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

// GoogleConfig configures the Google Calendar REST client.
type GoogleConfig struct {
	BaseURL    string
	CalendarID string
	Token      TokenSource
	Timezone   *time.Location
}

// GoogleClient talks to the Google Calendar v3 REST API.
type GoogleClient struct {
	baseURL    string
	calendarID string
	token      TokenSource
	tz         *time.Location
	client     *http.Client
	now        func() time.Time
}

func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	calID := cfg.CalendarID
	if calID == "" {
		calID = "primary"
	}
	tz := cfg.Timezone
	if tz == nil {
		tz = time.UTC
	}
	return &GoogleClient{
		baseURL:    base,
		calendarID: calID,
		token:      cfg.Token,
		tz:         tz,
		client:     &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

func (g *GoogleClient) CreateEvent(ctx context.Context, draft *intent.EventDraft) (string, error) {
	start, end := when.EventWindow(draft, g.now().In(g.tz))
	title := draft.Title
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}
	body := Event{
		Summary:     title,
		Location:    draft.Location,
		Description: draft.Notes,
		Start:       EventTime{DateTime: start.Format(time.RFC3339), TimeZone: g.tz.String()},
		End:         EventTime{DateTime: end.Format(time.RFC3339), TimeZone: g.tz.String()},
	}

	var created Event
	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(g.calendarID))
	if err := g.doJSON(ctx, http.MethodPost, path, nil, body, &created); err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	return created.HTMLLink, nil
}

func (g *GoogleClient) FindCandidates(ctx context.Context, criteria intent.UpdateCriteria, windowDays int) ([]Event, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	now := g.now().In(g.tz)
	base := when.StartOfDay(now)
	if d, ok := when.ResolveDate(criteria.DateHint, now); ok {
		base = d
	}
	items, err := g.ListRange(ctx, base, base.AddDate(0, 0, windowDays))
	if err != nil {
		return nil, err
	}
	return FilterCandidates(items, criteria, g.tz), nil
}

func (g *GoogleClient) ApplyUpdate(ctx context.Context, ev Event, changes intent.EventChanges) (Event, error) {
	patch := map[string]any{}
	if changes.NewTitle != "" {
		patch["summary"] = changes.NewTitle
	}
	if changes.NewNotes != nil {
		patch["description"] = *changes.NewNotes
	}
	if changes.NewLocation != nil {
		patch["location"] = *changes.NewLocation
	}

	existing := ev.Start.Time(g.tz)
	if existing.IsZero() {
		existing = g.now().In(g.tz)
	}

	datePhrase := changes.NewDate
	if datePhrase == "" {
		datePhrase = existing.Format("2006-01-02")
	}
	timePhrase := changes.NewTime
	if timePhrase == "" && !ev.Start.AllDay() {
		timePhrase = existing.Format("15:04")
	}
	duration := changes.NewDurationMinutes
	if duration <= 0 {
		if existingEnd := ev.End.Time(g.tz); !existingEnd.IsZero() && existingEnd.After(existing) {
			duration = int(existingEnd.Sub(existing) / time.Minute)
		}
	}

	start, end := when.EventWindow(&intent.EventDraft{
		Title:           ev.Summary,
		StartDate:       datePhrase,
		StartTime:       timePhrase,
		DurationMinutes: duration,
	}, g.now().In(g.tz))

	patch["start"] = EventTime{DateTime: start.Format(time.RFC3339), TimeZone: g.tz.String()}
	patch["end"] = EventTime{DateTime: end.Format(time.RFC3339), TimeZone: g.tz.String()}

	var updated Event
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(g.calendarID), url.PathEscape(ev.ID))
	if err := g.doJSON(ctx, http.MethodPatch, path, nil, patch, &updated); err != nil {
		return Event{}, fmt.Errorf("apply update: %w", err)
	}
	return updated, nil
}

func (g *GoogleClient) ListRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	query := url.Values{}
	query.Set("timeMin", start.Format(time.RFC3339))
	query.Set("timeMax", end.Format(time.RFC3339))
	query.Set("singleEvents", "true")
	query.Set("orderBy", "startTime")

	var res struct {
		Items []Event `json:"items"`
	}
	path := fmt.Sprintf("/calendars/%s/events", url.PathEscape(g.calendarID))
	if err := g.doJSON(ctx, http.MethodGet, path, query, nil, &res); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return res.Items, nil
}

// FilterCandidates applies the who/title/time-of-day hints to a window of
// events, keeping the incoming start-time order.
func FilterCandidates(items []Event, criteria intent.UpdateCriteria, loc *time.Location) []Event {
	who := strings.ToLower(criteria.Who)
	titleHint := strings.ToLower(criteria.TitleHint)
	timeHint := strings.ToLower(criteria.TimeHint)

	var filtered []Event
	for _, ev := range items {
		summary := strings.ToLower(ev.Summary)
		if who != "" && !strings.Contains(summary, who) {
			continue
		}
		if titleHint != "" && !strings.Contains(summary, titleHint) {
			continue
		}
		if !matchesTimeOfDay(ev, timeHint, loc) {
			continue
		}
		filtered = append(filtered, ev)
	}
	return filtered
}

func matchesTimeOfDay(ev Event, timeHint string, loc *time.Location) bool {
	switch timeHint {
	case "morning", "afternoon", "evening":
	default:
		return true
	}
	start := ev.Start.Time(loc)
	if start.IsZero() {
		return true
	}
	hour := start.Hour()
	switch timeHint {
	case "morning":
		return hour >= 6 && hour <= 11
	case "afternoon":
		return hour >= 12 && hour <= 17
	default:
		return hour >= 18 && hour <= 22
	}
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
		return fmt.Errorf("calendar api status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}
}
