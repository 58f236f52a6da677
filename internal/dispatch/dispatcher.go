// Package dispatch maps inbound messages onto conversation state: it resumes
// the user's pending multi-step flow if one exists, otherwise classifies the
// message and routes it to the calendar, task, or answer path. Every branch
// returns a reply; errors from collaborators become user-visible replies and
// never propagate to the transport layer.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/noamsh/donna/internal/agenda"
	"github.com/noamsh/donna/internal/calendar"
	"github.com/noamsh/donna/internal/intent"
	"github.com/noamsh/donna/internal/observability"
	"github.com/noamsh/donna/internal/pending"
	"github.com/noamsh/donna/internal/tasklist"
	"github.com/noamsh/donna/internal/when"
)

// Classifier turns raw user text into a normalized intent envelope and
// produces free-text answers for conversational intents.
type Classifier interface {
	Parse(ctx context.Context, text string) intent.Envelope
	GenerateAnswer(ctx context.Context, text, domain string, recencyRequired bool) (string, error)
}

const (
	defaultCandidateWindowDays = 14

	replyApology     = "Sorry, I had trouble understanding that. Could you rephrase?"
	replyConfirmHint = "Reply 1 to confirm or 0 to cancel."
)

// Config carries the tunables the dispatcher needs beyond its collaborators.
type Config struct {
	// CandidateWindowDays bounds how far ahead update searches look.
	CandidateWindowDays int
	// FreeSlotMin is the minimum gap reported as free time.
	FreeSlotMin time.Duration
	// Location is the user-facing timezone for rendering and date math.
	Location *time.Location
}

// Dispatcher is the per-message decision engine. It owns no state of its own;
// all conversation state lives in the pending store.
type Dispatcher struct {
	store   pending.Store
	cal     calendar.Service
	tasks   tasklist.Service
	clf     Classifier
	metrics *observability.Metrics

	windowDays  int
	freeSlotMin time.Duration
	loc         *time.Location
	now         func() time.Time
}

func New(store pending.Store, cal calendar.Service, tasks tasklist.Service, clf Classifier, metrics *observability.Metrics, cfg Config) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		cal:         cal,
		tasks:       tasks,
		clf:         clf,
		metrics:     metrics,
		windowDays:  cfg.CandidateWindowDays,
		freeSlotMin: cfg.FreeSlotMin,
		loc:         cfg.Location,
		now:         time.Now,
	}
	if d.windowDays <= 0 {
		d.windowDays = defaultCandidateWindowDays
	}
	if d.freeSlotMin <= 0 {
		d.freeSlotMin = agenda.DefaultFreeSlotMin
	}
	if d.loc == nil {
		d.loc = time.Local
	}
	return d
}

// HandleMessage processes one inbound message and returns the reply text.
// A pending interaction, if present, always takes precedence over classifying
// the message as a new intent.
func (d *Dispatcher) HandleMessage(ctx context.Context, userKey, body string) string {
	in, err := d.store.Get(ctx, userKey)
	if err != nil {
		log.Printf("dispatch: pending lookup for %s failed: %v", userKey, err)
	}
	if in != nil {
		defer d.refreshPendingGauge(ctx)
		switch in.Kind {
		case pending.KindCreate:
			return d.resumeCreate(ctx, userKey, in, body)
		case pending.KindUpdateSelect:
			return d.resumeUpdateSelect(ctx, userKey, in, body)
		case pending.KindUpdateConfirm:
			return d.resumeUpdateConfirm(ctx, userKey, in, body)
		case pending.KindTaskListSelect:
			return d.resumeTaskListSelect(ctx, userKey, in, body)
		}
	}

	started := d.now()
	env := d.clf.Parse(ctx, body)
	d.metrics.ObserveClassifierLatency(d.now().Sub(started))
	d.metrics.CountMessage(string(env.Intent))
	reply := d.dispatchIntent(ctx, userKey, body, env)
	d.metrics.ObserveStage(observability.StageTotal, d.now().Sub(started))
	return reply
}

// --- resuming pending flows ---

func (d *Dispatcher) resumeCreate(ctx context.Context, userKey string, in *pending.Interaction, body string) string {
	switch {
	case IsCancel(body):
		d.resolve(ctx, userKey, "cancelled")
		return "Okay, I've discarded that event."
	case IsConfirm(body):
		d.resolve(ctx, userKey, "confirmed")
		link, err := d.cal.CreateEvent(ctx, &in.Create.Event)
		if err != nil {
			d.metrics.CountCollaboratorError("calendar")
			log.Printf("dispatch: create event for %s failed: %v", userKey, err)
			return "I couldn't save the event, sorry. Please try again in a moment."
		}
		if link != "" {
			return fmt.Sprintf("Done! Your event is on the calendar: %s", link)
		}
		return "Done! Your event is on the calendar."
	default:
		return in.Create.Preview + "\n\n" + replyConfirmHint
	}
}

func (d *Dispatcher) resumeUpdateSelect(ctx context.Context, userKey string, in *pending.Interaction, body string) string {
	p := in.UpdateSelect
	if IsCancel(body) {
		d.resolve(ctx, userKey, "cancelled")
		return "Update cancelled."
	}
	if n, ok := parseIndex(body); ok {
		if n < 1 || n > len(p.Candidates) {
			return fmt.Sprintf("Please pick a number between 1 and %d, or 0 to cancel.\n\n%s",
				len(p.Candidates), renderCandidates(p.Candidates, d.loc))
		}
		chosen := p.Candidates[n-1]
		err := d.store.Add(ctx, pending.Interaction{
			UserKey: userKey,
			Kind:    pending.KindUpdateConfirm,
			UpdateConfirm: &pending.UpdateConfirmPayload{
				Event:   chosen,
				Changes: p.Changes,
			},
		})
		if err != nil {
			log.Printf("dispatch: store pending update for %s failed: %v", userKey, err)
			return replyApology
		}
		return fmt.Sprintf("Update %q (%s)?\n%s",
			chosen.Summary, agenda.FormatEventTime(chosen.Start, d.loc), replyConfirmHint)
	}
	return "I didn't catch that.\n\n" + renderCandidates(p.Candidates, d.loc)
}

func (d *Dispatcher) resumeUpdateConfirm(ctx context.Context, userKey string, in *pending.Interaction, body string) string {
	p := in.UpdateConfirm
	switch {
	case IsCancel(body):
		d.resolve(ctx, userKey, "cancelled")
		return "Update cancelled."
	case IsConfirm(body):
		d.resolve(ctx, userKey, "confirmed")
		updated, err := d.cal.ApplyUpdate(ctx, p.Event, p.Changes)
		if err != nil {
			d.metrics.CountCollaboratorError("calendar")
			log.Printf("dispatch: apply update for %s failed: %v", userKey, err)
			return "I couldn't update the event, sorry. Please try again in a moment."
		}
		return fmt.Sprintf("Updated %q (%s).", updated.Summary, agenda.FormatEventTime(updated.Start, d.loc))
	default:
		return "Please reply 1 to confirm or 0 to cancel."
	}
}

func (d *Dispatcher) resumeTaskListSelect(ctx context.Context, userKey string, in *pending.Interaction, body string) string {
	p := in.TaskListSelect
	if IsCancel(body) {
		d.resolve(ctx, userKey, "cancelled")
		return "Okay, I won't add that task."
	}
	if n, ok := parseIndex(body); ok {
		if n < 1 || n > len(p.MatchingLists) {
			return fmt.Sprintf("Please pick a number between 1 and %d, or 0 to cancel.\n\n%s",
				len(p.MatchingLists), renderLists(p.MatchingLists))
		}
		chosen := p.MatchingLists[n-1]
		d.resolve(ctx, userKey, "confirmed")
		task, err := d.tasks.Create(ctx, &p.Task, chosen.ID)
		if err != nil {
			d.metrics.CountCollaboratorError("tasks")
			log.Printf("dispatch: create task for %s failed: %v", userKey, err)
			return "I couldn't add the task, sorry. Please try again in a moment."
		}
		return fmt.Sprintf("Added %q to %s.", task.Title, chosen.Title)
	}
	return "I didn't catch that.\n\n" + renderLists(p.MatchingLists)
}

// --- fresh intents ---

func (d *Dispatcher) dispatchIntent(ctx context.Context, userKey, body string, env intent.Envelope) string {
	switch env.Intent {
	case intent.EventCreate:
		return d.startCreate(ctx, userKey, env.Event)
	case intent.EventUpdate:
		return d.startUpdate(ctx, userKey, env.Update)
	case intent.EventList:
		return d.handleList(ctx, body, env.ListQuery)
	case intent.TaskOp:
		return d.handleTask(ctx, userKey, env.Task)
	default:
		return d.answer(ctx, body, env)
	}
}

func (d *Dispatcher) startCreate(ctx context.Context, userKey string, draft *intent.EventDraft) string {
	if err := draft.Validate(); err != nil {
		return "I think you want to schedule something, but I'm missing the details. What's the event, and when?"
	}
	preview := d.eventPreview(draft)
	err := d.store.Add(ctx, pending.Interaction{
		UserKey: userKey,
		Kind:    pending.KindCreate,
		Create:  &pending.CreatePayload{Event: *draft, Preview: preview},
	})
	if err != nil {
		log.Printf("dispatch: store pending create for %s failed: %v", userKey, err)
		return replyApology
	}
	d.refreshPendingGauge(ctx)
	return preview + "\n\n" + replyConfirmHint
}

func (d *Dispatcher) startUpdate(ctx context.Context, userKey string, req *intent.UpdateRequest) string {
	if req == nil || req.Criteria.Empty() {
		return "Which event would you like to change? Give me its name or time."
	}
	candidates, err := d.cal.FindCandidates(ctx, req.Criteria, d.windowDays)
	if err != nil {
		d.metrics.CountCollaboratorError("calendar")
		log.Printf("dispatch: candidate search for %s failed: %v", userKey, err)
		return "I couldn't search your calendar right now, sorry. Please try again in a moment."
	}
	switch len(candidates) {
	case 0:
		return "I couldn't find a matching event. Want me to create it instead?"
	case 1:
		err := d.store.Add(ctx, pending.Interaction{
			UserKey: userKey,
			Kind:    pending.KindUpdateConfirm,
			UpdateConfirm: &pending.UpdateConfirmPayload{
				Event:   candidates[0],
				Changes: req.Changes,
			},
		})
		if err != nil {
			log.Printf("dispatch: store pending update for %s failed: %v", userKey, err)
			return replyApology
		}
		d.refreshPendingGauge(ctx)
		return fmt.Sprintf("Found %q (%s). Apply the changes?\n%s",
			candidates[0].Summary, agenda.FormatEventTime(candidates[0].Start, d.loc), replyConfirmHint)
	default:
		err := d.store.Add(ctx, pending.Interaction{
			UserKey: userKey,
			Kind:    pending.KindUpdateSelect,
			UpdateSelect: &pending.UpdateSelectPayload{
				Candidates: candidates,
				Changes:    req.Changes,
			},
		})
		if err != nil {
			log.Printf("dispatch: store pending select for %s failed: %v", userKey, err)
			return replyApology
		}
		d.refreshPendingGauge(ctx)
		return renderCandidates(candidates, d.loc)
	}
}

func (d *Dispatcher) handleList(ctx context.Context, body string, q *intent.ListQuery) string {
	now := d.now().In(d.loc)
	start, end := when.RangeFromText(body, q, now)
	events, err := d.cal.ListRange(ctx, start, end)
	if err != nil {
		d.metrics.CountCollaboratorError("calendar")
		log.Printf("dispatch: list events failed: %v", err)
		return "I couldn't read your calendar right now, sorry. Please try again in a moment."
	}

	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "free") || strings.Contains(lower, "available") || strings.Contains(lower, "slot"):
		return d.renderFreeSlots(events, start, end)
	case strings.Contains(lower, "summary") || strings.Contains(lower, "overview"):
		tasks, err := d.tasks.List(ctx, intent.Criteria{IncludeCompleted: true})
		if err != nil {
			d.metrics.CountCollaboratorError("tasks")
			log.Printf("dispatch: list tasks for summary failed: %v", err)
			tasks = nil
		}
		return agenda.Summary(events, tasks, periodName(start, end, now), d.loc)
	default:
		return d.renderEvents(events, start, end)
	}
}

func (d *Dispatcher) handleTask(ctx context.Context, userKey string, req *intent.TaskRequest) string {
	if req == nil || !req.ValidOp() {
		return "I can create, list, update, complete, or delete tasks. What would you like?"
	}
	switch req.Op {
	case intent.TaskOpCreate:
		return d.createTask(ctx, userKey, req.Task)
	case intent.TaskOpList:
		tasks, err := d.tasks.List(ctx, req.Criteria)
		if err != nil {
			return d.taskFailure("list", err)
		}
		return renderTasks(tasks, d.loc)
	case intent.TaskOpUpdate:
		updated, err := d.tasks.Update(ctx, req.Criteria, req.Changes)
		if err != nil {
			return d.taskFailure("update", err)
		}
		if len(updated) == 0 {
			return "I couldn't find a matching task to update."
		}
		names := make([]string, len(updated))
		for i, t := range updated {
			names[i] = fmt.Sprintf("%q", t.Title)
		}
		return fmt.Sprintf("Updated %d task(s): %s.", len(updated), strings.Join(names, ", "))
	case intent.TaskOpComplete:
		n, err := d.tasks.Complete(ctx, req.Criteria)
		if err != nil {
			return d.taskFailure("complete", err)
		}
		if n == 0 {
			return "I couldn't find a matching open task."
		}
		return fmt.Sprintf("Marked %d task(s) as done.", n)
	case intent.TaskOpDelete:
		n, err := d.tasks.Delete(ctx, req.Criteria)
		if err != nil {
			return d.taskFailure("delete", err)
		}
		if n == 0 {
			return "I couldn't find a matching task to delete."
		}
		return fmt.Sprintf("Deleted %d task(s).", n)
	}
	return "I can create, list, update, complete, or delete tasks. What would you like?"
}

func (d *Dispatcher) createTask(ctx context.Context, userKey string, draft *intent.TaskDraft) string {
	if err := draft.Validate(); err != nil {
		return "What should the task say?"
	}
	if draft.ListHint == "" {
		return d.createTaskIn(ctx, draft, "", "")
	}
	lists, err := d.tasks.FindMatchingLists(ctx, draft.ListHint)
	if err != nil {
		return d.taskFailure("create", err)
	}
	switch len(lists) {
	case 0:
		reply := d.createTaskIn(ctx, draft, "", "")
		return fmt.Sprintf("I couldn't find a list called %q, so I used your default list. %s", draft.ListHint, reply)
	case 1:
		return d.createTaskIn(ctx, draft, lists[0].ID, lists[0].Title)
	default:
		err := d.store.Add(ctx, pending.Interaction{
			UserKey: userKey,
			Kind:    pending.KindTaskListSelect,
			TaskListSelect: &pending.TaskListSelectPayload{
				Task:          *draft,
				MatchingLists: lists,
			},
		})
		if err != nil {
			log.Printf("dispatch: store pending list select for %s failed: %v", userKey, err)
			return replyApology
		}
		d.refreshPendingGauge(ctx)
		return renderLists(lists)
	}
}

func (d *Dispatcher) createTaskIn(ctx context.Context, draft *intent.TaskDraft, listID, listTitle string) string {
	task, err := d.tasks.Create(ctx, draft, listID)
	if err != nil {
		return d.taskFailure("create", err)
	}
	if listTitle != "" {
		return fmt.Sprintf("Added %q to %s.", task.Title, listTitle)
	}
	return fmt.Sprintf("Added %q to your tasks.", task.Title)
}

func (d *Dispatcher) answer(ctx context.Context, body string, env intent.Envelope) string {
	if env.Answer != "" {
		return env.Answer
	}
	reply, err := d.clf.GenerateAnswer(ctx, body, env.Domain, env.RecencyRequired)
	if err != nil {
		d.metrics.CountCollaboratorError("classifier")
		log.Printf("dispatch: answer generation failed: %v", err)
		return replyApology
	}
	return reply
}

// --- helpers ---

// resolve removes the user's pending interaction. Removal happens before any
// collaborator call so a failing call can never leave stale state behind.
func (d *Dispatcher) resolve(ctx context.Context, userKey, outcome string) {
	if _, err := d.store.Pop(ctx, userKey); err != nil {
		log.Printf("dispatch: pop pending for %s failed: %v", userKey, err)
	}
	d.metrics.CountResolution(outcome)
}

func (d *Dispatcher) refreshPendingGauge(ctx context.Context) {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		return
	}
	d.metrics.SetPendingOpen(stats.Total)
}

func (d *Dispatcher) taskFailure(op string, err error) string {
	d.metrics.CountCollaboratorError("tasks")
	log.Printf("dispatch: task %s failed: %v", op, err)
	return "I couldn't reach your task list right now, sorry. Please try again in a moment."
}

func (d *Dispatcher) eventPreview(draft *intent.EventDraft) string {
	start, end := when.EventWindow(draft, d.now().In(d.loc))
	var b strings.Builder
	fmt.Fprintf(&b, "New event: %s\n", draft.Title)
	fmt.Fprintf(&b, "When: %s - %s", start.Format("Mon Jan 2, 15:04"), end.Format("15:04"))
	if draft.Location != "" {
		fmt.Fprintf(&b, "\nWhere: %s", draft.Location)
	}
	if draft.Notes != "" {
		fmt.Fprintf(&b, "\nNotes: %s", draft.Notes)
	}
	return b.String()
}

func (d *Dispatcher) renderEvents(events []calendar.Event, start, end time.Time) string {
	if len(events) == 0 {
		return fmt.Sprintf("Nothing on your calendar between %s and %s.",
			start.Format("Mon Jan 2"), end.AddDate(0, 0, -1).Format("Mon Jan 2"))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d event(s):", len(events))
	for _, ev := range events {
		fmt.Fprintf(&b, "\n- %s (%s)", ev.Summary, agenda.FormatEventTime(ev.Start, d.loc))
	}
	return b.String()
}

func (d *Dispatcher) renderFreeSlots(events []calendar.Event, start, end time.Time) string {
	slots := agenda.FreeSlots(events, start, end, d.freeSlotMin, d.loc)
	if len(slots) == 0 {
		return "No free slots long enough in that window, sorry."
	}
	var b strings.Builder
	b.WriteString("Free slots:")
	for _, s := range slots {
		fmt.Fprintf(&b, "\n- %s to %s (%s)",
			s.Start.Format("Mon 15:04"), s.End.Format("15:04"), formatDuration(s.Duration()))
	}
	return b.String()
}

func renderCandidates(events []calendar.Event, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("I found more than one match. Which one?")
	for i, ev := range events {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, ev.Summary, agenda.FormatEventTime(ev.Start, loc))
	}
	b.WriteString("\nReply with a number, or 0 to cancel.")
	return b.String()
}

func renderLists(lists []tasklist.ListRef) string {
	var b strings.Builder
	b.WriteString("Which list should this go in?")
	for i, l := range lists {
		fmt.Fprintf(&b, "\n%d. %s", i+1, l.Title)
	}
	b.WriteString("\nReply with a number, or 0 to cancel.")
	return b.String()
}

func renderTasks(tasks []tasklist.Task, loc *time.Location) string {
	if len(tasks) == 0 {
		return "No matching tasks."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d task(s):", len(tasks))
	for _, t := range tasks {
		line := t.Title
		if t.Completed() {
			line += " (done)"
		}
		fmt.Fprintf(&b, "\n- %s", line)
	}
	return b.String()
}

func periodName(start, end, now time.Time) string {
	days := int(end.Sub(start).Hours() / 24)
	if days >= 7 {
		return "this week"
	}
	if when.StartOfDay(now).Equal(start) {
		return "today"
	}
	return start.Format("Mon Jan 2")
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
