package pending

import (
	"context"
	"testing"
	"time"

	"github.com/noamsh/donna/internal/intent"
)

func createInteraction(userKey, title string) Interaction {
	return Interaction{
		UserKey: userKey,
		Kind:    KindCreate,
		Create: &CreatePayload{
			Event:   intent.EventDraft{Title: title, StartDate: "2025-09-10"},
			Preview: "preview of " + title,
		},
	}
}

func TestAddHasPopLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10 * time.Minute)

	if err := s.Add(ctx, createInteraction("u1", "Dentist")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	ok, err := s.Has(ctx, "u1")
	if err != nil || !ok {
		t.Fatalf("Has() = %v, %v, want true", ok, err)
	}

	got, err := s.Get(ctx, "u1")
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if got.Kind != KindCreate || got.Create.Event.Title != "Dentist" {
		t.Fatalf("unexpected interaction: %+v", got)
	}
	if !got.ExpiresAt.After(got.CreatedAt) {
		t.Fatalf("ExpiresAt %v must be after CreatedAt %v", got.ExpiresAt, got.CreatedAt)
	}

	// Get must not remove.
	if ok, _ := s.Has(ctx, "u1"); !ok {
		t.Fatalf("Has() after Get() = false, want true")
	}

	popped, err := s.Pop(ctx, "u1")
	if err != nil || popped == nil {
		t.Fatalf("Pop() = %v, %v", popped, err)
	}
	if ok, _ := s.Has(ctx, "u1"); ok {
		t.Fatalf("Has() after Pop() = true, want false")
	}
	if again, _ := s.Pop(ctx, "u1"); again != nil {
		t.Fatalf("second Pop() = %+v, want nil", again)
	}
}

func TestAddOverwritesExisting(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10 * time.Minute)

	if err := s.Add(ctx, createInteraction("u1", "First")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	second := Interaction{
		UserKey: "u1",
		Kind:    KindUpdateConfirm,
		UpdateConfirm: &UpdateConfirmPayload{
			Changes: intent.EventChanges{NewTime: "14:00"},
		},
	}
	if err := s.Add(ctx, second); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	got, _ := s.Get(ctx, "u1")
	if got == nil || got.Kind != KindUpdateConfirm {
		t.Fatalf("interaction = %+v, want update_confirm", got)
	}
	if got.Create != nil {
		t.Fatalf("old payload must be unrecoverable after overwrite")
	}

	stats, _ := s.Stats(ctx)
	if stats.Total != 1 {
		t.Fatalf("Total = %d, want 1", stats.Total)
	}
}

func TestExpiryWithControllableClock(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10 * time.Minute)
	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	if err := s.Add(ctx, createInteraction("u1", "Dentist")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	now = base.Add(9 * time.Minute)
	if ok, _ := s.Has(ctx, "u1"); !ok {
		t.Fatalf("entry expired too early")
	}

	now = base.Add(10*time.Minute + time.Second)
	if ok, _ := s.Has(ctx, "u1"); ok {
		t.Fatalf("entry should have expired")
	}
	if got, _ := s.Get(ctx, "u1"); got != nil {
		t.Fatalf("Get() after expiry = %+v, want nil", got)
	}
}

func TestSweepIsGlobal(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10 * time.Minute)
	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	if err := s.Add(ctx, createInteraction("u1", "Old")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	now = base.Add(8 * time.Minute)
	if err := s.Add(ctx, createInteraction("u2", "New")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// A read for u2 must also sweep u1's expired entry.
	now = base.Add(11 * time.Minute)
	if ok, _ := s.Has(ctx, "u2"); !ok {
		t.Fatalf("u2 should still be live")
	}

	s.mu.Lock()
	_, u1Alive := s.items["u1"]
	s.mu.Unlock()
	if u1Alive {
		t.Fatalf("u1 should have been swept by u2's access")
	}
}

func TestTTLNotRenewedOnRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10 * time.Minute)
	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	if err := s.Add(ctx, createInteraction("u1", "Dentist")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	now = base.Add(9 * time.Minute)
	if _, err := s.Get(ctx, "u1"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	now = base.Add(10*time.Minute + time.Second)
	if ok, _ := s.Has(ctx, "u1"); ok {
		t.Fatalf("read must not extend the TTL")
	}
}

func TestStatsAggregation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10 * time.Minute)
	base := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s.now = func() time.Time { return now }

	if err := s.Add(ctx, createInteraction("u1", "A")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	now = base.Add(time.Minute)
	if err := s.Add(ctx, createInteraction("u2", "B")); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	now = base.Add(2 * time.Minute)
	sel := Interaction{
		UserKey: "u3",
		Kind:    KindTaskListSelect,
		TaskListSelect: &TaskListSelectPayload{
			Task: intent.TaskDraft{Title: "Buy milk"},
		},
	}
	if err := s.Add(ctx, sel); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("Total = %d, want 3", stats.Total)
	}
	if stats.ByKind[KindCreate] != 2 || stats.ByKind[KindTaskListSelect] != 1 {
		t.Fatalf("ByKind = %+v", stats.ByKind)
	}
	if !stats.OldestCreatedAt.Equal(base) {
		t.Fatalf("OldestCreatedAt = %v, want %v", stats.OldestCreatedAt, base)
	}
	if !stats.NewestCreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("NewestCreatedAt = %v", stats.NewestCreatedAt)
	}
}

func TestAddRejectsMismatchedPayload(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(10 * time.Minute)

	bad := Interaction{
		UserKey: "u1",
		Kind:    KindCreate,
		UpdateConfirm: &UpdateConfirmPayload{
			Changes: intent.EventChanges{NewTime: "14:00"},
		},
	}
	if err := s.Add(ctx, bad); err == nil {
		t.Fatalf("Add() with mismatched payload should fail")
	}
	if ok, _ := s.Has(ctx, "u1"); ok {
		t.Fatalf("mismatched payload must not be stored")
	}
}
