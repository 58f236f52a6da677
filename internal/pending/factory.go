package pending

import (
	"context"
	"strings"
	"time"
)

// NewStore creates a postgres-backed store when configured, otherwise
// in-memory.
func NewStore(ctx context.Context, databaseURL string, ttl time.Duration) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewMemoryStore(ttl), nil
	}
	return NewPostgresStore(ctx, databaseURL, ttl)
}
