// Package ratelimit provides a small fixed-window request limiter used to
// keep upstream model calls under the configured per-minute budget.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter counts calls per key inside a sliding window.
type Limiter struct {
	mu    sync.Mutex
	now   func() time.Time
	calls map[string][]time.Time
}

func NewLimiter() *Limiter {
	return &Limiter{
		now:   time.Now,
		calls: make(map[string][]time.Time),
	}
}

// Allow records a call for key and reports whether it fits inside the
// window. maxCalls <= 0 disables limiting for the key.
func (l *Limiter) Allow(key string, maxCalls int, window time.Duration) bool {
	if maxCalls <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(key, now, window)
	if len(kept) >= maxCalls {
		l.calls[key] = kept
		return false
	}
	l.calls[key] = append(kept, now)
	return true
}

// WaitTime returns how long the caller must wait before the next call for
// key would be allowed. Zero means a call is allowed right now.
func (l *Limiter) WaitTime(key string, maxCalls int, window time.Duration) time.Duration {
	if maxCalls <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := l.prune(key, now, window)
	l.calls[key] = kept
	if len(kept) < maxCalls {
		return 0
	}
	wait := window - now.Sub(kept[0])
	if wait < 0 {
		return 0
	}
	return wait
}

func (l *Limiter) prune(key string, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	var kept []time.Time
	for _, t := range l.calls[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
