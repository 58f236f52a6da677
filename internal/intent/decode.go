package intent

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Decode normalizes the classifier's loose JSON into an Envelope. The wire
// format is model-generated and drifts across classifier versions: sub-payload
// keys carry aliases, task_op arrives as either a bare string or an object,
// and the intent tag does not always match the populated field. Decode is
// total: malformed input produces an Unrecognized envelope, never an error.
func Decode(raw string) Envelope {
	env := Envelope{Intent: Unrecognized, Confidence: 0.8}
	if strings.TrimSpace(raw) == "" || !gjson.Valid(raw) {
		return env
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return env
	}

	if v := root.Get("confidence"); v.Exists() {
		env.Confidence = v.Float()
	}
	env.Answer = strings.TrimSpace(root.Get("answer").String())
	env.Domain = strings.TrimSpace(root.Get("domain").String())
	env.RecencyRequired = root.Get("recency_required").Bool()

	switch normalizeTag(root.Get("intent").String()) {
	case EventCreate:
		draft := decodeEventDraft(root.Get("event"))
		if draft.Validate() != nil {
			return env
		}
		env.Intent = EventCreate
		env.Event = draft
	case EventUpdate:
		req := decodeUpdateRequest(root.Get("update"))
		if req == nil || req.Criteria.Empty() {
			return env
		}
		env.Intent = EventUpdate
		env.Update = req
	case EventList:
		env.Intent = EventList
		env.ListQuery = decodeListQuery(root.Get("list_query"))
	case TaskOp:
		req := decodeTaskRequest(root)
		if req == nil {
			return env
		}
		env.Intent = TaskOp
		env.Task = req
	case GeneralQA:
		env.Intent = GeneralQA
	case Chitchat:
		env.Intent = Chitchat
	default:
		return env
	}
	return env
}

func normalizeTag(tag string) Intent {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case "EVENT_TASK", "EVENT_CREATE":
		return EventCreate
	case "EVENT_UPDATE":
		return EventUpdate
	case "EVENT_LIST":
		return EventList
	case "TASK_OP":
		return TaskOp
	case "GENERAL_QA":
		return GeneralQA
	case "CHITCHAT":
		return Chitchat
	default:
		return Unrecognized
	}
}

// decodeEventDraft accepts both canonical keys and the aliases older
// classifier versions emit: date->start_date, time->start_time,
// description->notes.
func decodeEventDraft(res gjson.Result) *EventDraft {
	if !res.IsObject() {
		return nil
	}
	d := &EventDraft{
		Title:           strings.TrimSpace(res.Get("title").String()),
		StartDate:       firstString(res, "start_date", "date"),
		StartTime:       firstString(res, "start_time", "time"),
		DurationMinutes: int(res.Get("duration_minutes").Int()),
		Location:        strings.TrimSpace(res.Get("location").String()),
		Notes:           firstString(res, "notes", "description"),
	}
	return d
}

func decodeUpdateRequest(res gjson.Result) *UpdateRequest {
	if !res.IsObject() {
		return nil
	}
	crit := res.Get("criteria")
	changes := res.Get("changes")
	// Some classifier versions flatten criteria/changes onto the update
	// object itself.
	if !crit.IsObject() && !changes.IsObject() {
		crit = res
		changes = res
	}
	req := &UpdateRequest{
		Criteria: UpdateCriteria{
			Who:       strings.TrimSpace(crit.Get("who").String()),
			DateHint:  strings.TrimSpace(crit.Get("date_hint").String()),
			TimeHint:  strings.TrimSpace(crit.Get("time_hint").String()),
			TitleHint: strings.TrimSpace(crit.Get("title_hint").String()),
		},
		Changes: decodeEventChanges(changes),
	}
	return req
}

func decodeEventChanges(res gjson.Result) EventChanges {
	c := EventChanges{
		NewTitle:           strings.TrimSpace(res.Get("new_title").String()),
		NewDate:            strings.TrimSpace(res.Get("new_date").String()),
		NewTime:            strings.TrimSpace(res.Get("new_time").String()),
		NewDurationMinutes: int(res.Get("new_duration_minutes").Int()),
	}
	if v := res.Get("new_location"); v.Exists() && v.Type == gjson.String {
		s := v.String()
		c.NewLocation = &s
	}
	if v := res.Get("new_notes"); v.Exists() && v.Type == gjson.String {
		s := v.String()
		c.NewNotes = &s
	}
	return c
}

func decodeListQuery(res gjson.Result) *ListQuery {
	q := &ListQuery{Scope: "day"}
	if !res.IsObject() {
		return q
	}
	switch strings.ToLower(strings.TrimSpace(res.Get("scope").String())) {
	case "week":
		q.Scope = "week"
	}
	q.DateHint = strings.TrimSpace(res.Get("date_hint").String())
	return q
}

// decodeTaskRequest copes with the duck-typed task payloads observed across
// classifier versions: "task_op" as a bare verb string, "task_op" as an
// object with op/criteria, the draft under "task", and update changes under
// either "task_update" or "task_op.changes".
func decodeTaskRequest(root gjson.Result) *TaskRequest {
	opRes := root.Get("task_op")
	var (
		op      string
		critRes gjson.Result
	)
	switch {
	case opRes.Type == gjson.String:
		op = opRes.String()
	case opRes.IsObject():
		op = opRes.Get("op").String()
		critRes = opRes.Get("criteria")
	}

	req := &TaskRequest{Op: TaskOpKind(strings.ToLower(strings.TrimSpace(op)))}

	if task := root.Get("task"); task.IsObject() {
		req.Task = &TaskDraft{
			Title:    strings.TrimSpace(task.Get("title").String()),
			Date:     firstString(task, "date", "start_date"),
			Time:     firstString(task, "time", "start_time"),
			Notes:    firstString(task, "notes", "description"),
			Location: strings.TrimSpace(task.Get("location").String()),
			ListHint: strings.TrimSpace(task.Get("list_hint").String()),
		}
	}

	upd := root.Get("task_update")
	if upd.IsObject() {
		if c := upd.Get("criteria"); c.IsObject() {
			critRes = c
		}
	}
	req.Criteria = Criteria{
		TitleHint:        strings.TrimSpace(critRes.Get("title_hint").String()),
		DateHint:         strings.TrimSpace(critRes.Get("date_hint").String()),
		IncludeCompleted: critRes.Get("include_completed").Bool(),
	}

	changesRes := upd.Get("changes")
	if !changesRes.IsObject() && opRes.IsObject() {
		changesRes = opRes.Get("changes")
	}
	if changesRes.IsObject() {
		req.Changes = TaskChanges{
			NewTitle: strings.TrimSpace(changesRes.Get("new_title").String()),
			NewDate:  strings.TrimSpace(changesRes.Get("new_date").String()),
			NewTime:  strings.TrimSpace(changesRes.Get("new_time").String()),
		}
		if v := changesRes.Get("new_notes"); v.Exists() && v.Type == gjson.String {
			s := v.String()
			req.Changes.NewNotes = &s
		}
	}

	// A request with neither a usable verb nor a draft is noise.
	if req.Op == "" && req.Task == nil {
		return nil
	}
	return req
}

func firstString(res gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := res.Get(k); v.Exists() {
			s := strings.TrimSpace(v.String())
			if s != "" {
				return s
			}
		}
	}
	return ""
}
