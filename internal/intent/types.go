package intent

import (
	"errors"
	"strings"
)

// Intent tags mirror the classifier's wire names.
type Intent string

const (
	EventCreate  Intent = "EVENT_TASK"
	EventUpdate  Intent = "EVENT_UPDATE"
	EventList    Intent = "EVENT_LIST"
	TaskOp       Intent = "TASK_OP"
	GeneralQA    Intent = "GENERAL_QA"
	Chitchat     Intent = "CHITCHAT"
	Unrecognized Intent = "UNRECOGNIZED"
)

// TaskOpKind is the normalized task operation verb.
type TaskOpKind string

const (
	TaskOpCreate   TaskOpKind = "create"
	TaskOpList     TaskOpKind = "list"
	TaskOpUpdate   TaskOpKind = "update"
	TaskOpComplete TaskOpKind = "complete"
	TaskOpDelete   TaskOpKind = "delete"
)

var ErrInvalidDraft = errors.New("invalid draft")

// Envelope is the normalized classifier output. Exactly one sub-payload is
// populated for the intents that carry one; the rest stay nil. A tag whose
// required sub-payload is absent is downgraded to Unrecognized by Decode.
type Envelope struct {
	Intent          Intent
	Confidence      float64
	Answer          string
	Domain          string
	RecencyRequired bool

	Event     *EventDraft
	Update    *UpdateRequest
	ListQuery *ListQuery
	Task      *TaskRequest
}

// EventDraft describes a calendar event to create. StartDate is "YYYY-MM-DD",
// StartTime "HH:MM"; both may carry natural-language hints from the classifier.
type EventDraft struct {
	Title           string
	StartDate       string
	StartTime       string
	DurationMinutes int
	Location        string
	Notes           string
}

// Validate checks the fields required before a create flow may begin.
func (d *EventDraft) Validate() error {
	if d == nil || strings.TrimSpace(d.Title) == "" {
		return ErrInvalidDraft
	}
	if strings.TrimSpace(d.StartDate) == "" {
		return ErrInvalidDraft
	}
	return nil
}

// EffectiveDuration returns the event length in minutes, defaulting to 60.
func (d *EventDraft) EffectiveDuration() int {
	if d == nil || d.DurationMinutes <= 0 {
		return 60
	}
	return d.DurationMinutes
}

// UpdateRequest pairs the search criteria with the changes to apply.
type UpdateRequest struct {
	Criteria UpdateCriteria
	Changes  EventChanges
}

// UpdateCriteria narrows the candidate search for an event update.
type UpdateCriteria struct {
	Who       string
	DateHint  string
	TimeHint  string
	TitleHint string
}

// Empty reports whether no criteria were provided at all.
func (c UpdateCriteria) Empty() bool {
	return c.Who == "" && c.DateHint == "" && c.TimeHint == "" && c.TitleHint == ""
}

// EventChanges is the subset of event fields to patch. NewLocation and
// NewNotes are pointers so "clear the field" stays distinguishable from
// "leave it alone".
type EventChanges struct {
	NewTitle           string
	NewDate            string
	NewTime            string
	NewDurationMinutes int
	NewLocation        *string
	NewNotes           *string
}

// Empty reports a no-op change set, which is still a valid patch.
func (c EventChanges) Empty() bool {
	return c.NewTitle == "" && c.NewDate == "" && c.NewTime == "" &&
		c.NewDurationMinutes == 0 && c.NewLocation == nil && c.NewNotes == nil
}

// ListQuery describes a read-only listing request.
type ListQuery struct {
	Scope    string // "day" or "week"
	DateHint string
}

// TaskDraft describes a task to create. Location has no native field in the
// task backend and is folded into notes by the adapter.
type TaskDraft struct {
	Title    string
	Date     string
	Time     string
	Notes    string
	Location string
	ListHint string
}

// Validate requires a non-empty title after trimming.
func (d *TaskDraft) Validate() error {
	if d == nil || strings.TrimSpace(d.Title) == "" {
		return ErrInvalidDraft
	}
	return nil
}

// Criteria selects existing tasks for list/update/complete/delete.
type Criteria struct {
	TitleHint        string
	DateHint         string
	IncludeCompleted bool
}

// TaskChanges is the subset of task fields to patch.
type TaskChanges struct {
	NewTitle string
	NewDate  string
	NewTime  string
	NewNotes *string
}

// TaskRequest is the normalized task operation descriptor.
type TaskRequest struct {
	Op       TaskOpKind
	Task     *TaskDraft
	Criteria Criteria
	Changes  TaskChanges
}

// ValidOp reports whether the op verb is one the dispatcher understands.
func (r *TaskRequest) ValidOp() bool {
	if r == nil {
		return false
	}
	switch r.Op {
	case TaskOpCreate, TaskOpList, TaskOpUpdate, TaskOpComplete, TaskOpDelete:
		return true
	default:
		return false
	}
}
