// Package pending tracks the multi-step flow each user is in the middle of.
// A user key holds at most one interaction; storing a new one replaces the
// old, and every access lazily expires entries past their TTL.
package pending

import (
	"context"
	"errors"
	"time"

	"github.com/noamsh/donna/internal/calendar"
	"github.com/noamsh/donna/internal/intent"
	"github.com/noamsh/donna/internal/tasklist"
)

// Kind tags the payload variant of an interaction.
type Kind string

const (
	KindCreate         Kind = "create"
	KindUpdateSelect   Kind = "update_select"
	KindUpdateConfirm  Kind = "update_confirm"
	KindTaskListSelect Kind = "task_list_select"
)

var ErrPayloadMismatch = errors.New("pending payload does not match kind")

// CreatePayload waits for the user to confirm a drafted event.
type CreatePayload struct {
	Event   intent.EventDraft `json:"event"`
	Preview string            `json:"preview"`
}

// UpdateSelectPayload waits for the user to pick one of several candidate
// events. Candidates are immutable once stored; selection is a 1-based index
// into this exact order.
type UpdateSelectPayload struct {
	Candidates []calendar.Event    `json:"candidates"`
	Changes    intent.EventChanges `json:"changes"`
}

// UpdateConfirmPayload waits for the user to confirm an update to one event.
type UpdateConfirmPayload struct {
	Event   calendar.Event      `json:"event"`
	Changes intent.EventChanges `json:"changes"`
}

// TaskListSelectPayload waits for the user to pick the task list a new task
// should land in.
type TaskListSelectPayload struct {
	Task          intent.TaskDraft   `json:"task"`
	MatchingLists []tasklist.ListRef `json:"matching_lists"`
}

// Interaction is one in-flight multi-step flow. Exactly one payload field
// matching Kind is set.
type Interaction struct {
	UserKey string `json:"user_key"`
	Kind    Kind   `json:"kind"`

	Create         *CreatePayload         `json:"create,omitempty"`
	UpdateSelect   *UpdateSelectPayload   `json:"update_select,omitempty"`
	UpdateConfirm  *UpdateConfirmPayload  `json:"update_confirm,omitempty"`
	TaskListSelect *TaskListSelectPayload `json:"task_list_select,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Validate checks that the populated payload variant matches the kind.
func (in *Interaction) Validate() error {
	var ok bool
	switch in.Kind {
	case KindCreate:
		ok = in.Create != nil && in.UpdateSelect == nil && in.UpdateConfirm == nil && in.TaskListSelect == nil
	case KindUpdateSelect:
		ok = in.UpdateSelect != nil && in.Create == nil && in.UpdateConfirm == nil && in.TaskListSelect == nil
	case KindUpdateConfirm:
		ok = in.UpdateConfirm != nil && in.Create == nil && in.UpdateSelect == nil && in.TaskListSelect == nil
	case KindTaskListSelect:
		ok = in.TaskListSelect != nil && in.Create == nil && in.UpdateSelect == nil && in.UpdateConfirm == nil
	}
	if !ok {
		return ErrPayloadMismatch
	}
	return nil
}

// Stats summarizes the live entries for diagnostics.
type Stats struct {
	Total           int          `json:"total"`
	ByKind          map[Kind]int `json:"by_kind"`
	OldestCreatedAt time.Time    `json:"oldest_created_at"`
	NewestCreatedAt time.Time    `json:"newest_created_at"`
}

// Store is the pending-interaction contract. Implementations must sweep
// expired entries on every operation and must replace wholesale on Add.
// Operations on a single user key are atomic.
type Store interface {
	// Add replaces any existing interaction for the user key and stamps
	// CreatedAt/ExpiresAt from the store's TTL.
	Add(ctx context.Context, in Interaction) error
	// Has reports whether a live interaction exists for the user key.
	Has(ctx context.Context, userKey string) (bool, error)
	// Get returns the live interaction, or nil. It does not remove it.
	Get(ctx context.Context, userKey string) (*Interaction, error)
	// Pop removes and returns the live interaction, or nil.
	Pop(ctx context.Context, userKey string) (*Interaction, error)
	// Stats aggregates the live entries across all user keys.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
