package pending

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used when no database is configured.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]Interaction
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemoryStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]Interaction),
	}
}

func (s *MemoryStore) Add(_ context.Context, in Interaction) error {
	if err := in.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	in.CreatedAt = now
	in.ExpiresAt = now.Add(s.ttl)
	s.items[in.UserKey] = in
	return nil
}

func (s *MemoryStore) Has(_ context.Context, userKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())
	_, ok := s.items[userKey]
	return ok, nil
}

func (s *MemoryStore) Get(_ context.Context, userKey string) (*Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())
	in, ok := s.items[userKey]
	if !ok {
		return nil, nil
	}
	return &in, nil
}

func (s *MemoryStore) Pop(_ context.Context, userKey string) (*Interaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())
	in, ok := s.items[userKey]
	if !ok {
		return nil, nil
	}
	delete(s.items, userKey)
	return &in, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())

	stats := Stats{
		Total:  len(s.items),
		ByKind: make(map[Kind]int),
	}
	for _, in := range s.items {
		stats.ByKind[in.Kind]++
		if stats.OldestCreatedAt.IsZero() || in.CreatedAt.Before(stats.OldestCreatedAt) {
			stats.OldestCreatedAt = in.CreatedAt
		}
		if in.CreatedAt.After(stats.NewestCreatedAt) {
			stats.NewestCreatedAt = in.CreatedAt
		}
	}
	return stats, nil
}

func (s *MemoryStore) Close() error { return nil }

// sweepLocked removes every expired entry across all user keys. Callers hold
// the mutex.
func (s *MemoryStore) sweepLocked(now time.Time) {
	for key, in := range s.items {
		if in.ExpiresAt.Before(now) {
			delete(s.items, key)
		}
	}
}
