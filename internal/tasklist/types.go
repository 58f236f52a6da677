package tasklist

import (
	"context"

	"github.com/noamsh/donna/internal/intent"
)

// Task mirrors the subset of the task resource the assistant touches.
type Task struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Notes  string `json:"notes,omitempty"`
	Status string `json:"status,omitempty"`
	Due    string `json:"due,omitempty"`
}

// Completed reports whether the task is done.
func (t Task) Completed() bool {
	return t.Status == "completed"
}

// ListRef identifies a task list a user may pick from.
type ListRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Service is the task collaborator contract the dispatcher depends on.
type Service interface {
	// Create inserts a task. listID empty means the default list.
	Create(ctx context.Context, draft *intent.TaskDraft, listID string) (Task, error)
	// List returns tasks matching the criteria.
	List(ctx context.Context, criteria intent.Criteria) ([]Task, error)
	// Update patches all matching tasks and returns them.
	Update(ctx context.Context, criteria intent.Criteria, changes intent.TaskChanges) ([]Task, error)
	// Complete marks matching tasks done and returns how many changed.
	Complete(ctx context.Context, criteria intent.Criteria) (int, error)
	// Delete removes matching tasks and returns how many were removed.
	Delete(ctx context.Context, criteria intent.Criteria) (int, error)
	// FindMatchingLists resolves a list-name hint to candidate lists,
	// preserving the backend's ordering.
	FindMatchingLists(ctx context.Context, nameHint string) ([]ListRef, error)
}
