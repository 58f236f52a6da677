package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps pending interactions in Postgres so that multi-step
// flows survive process restarts. It preserves the MemoryStore contract:
// sweep-on-access and wholesale replace on Add.
type PostgresStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

func NewPostgresStore(ctx context.Context, databaseURL string, ttl time.Duration) (*PostgresStore, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initPendingSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool, ttl: ttl, now: time.Now}, nil
}

func initPendingSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pending_interactions (
			user_key TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_expires ON pending_interactions (expires_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init pending schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, in Interaction) error {
	if err := in.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()
	in.CreatedAt = now
	in.ExpiresAt = now.Add(s.ttl)

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM pending_interactions WHERE expires_at < $1`, now); err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO pending_interactions (user_key, kind, payload, created_at, expires_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (user_key) DO UPDATE SET
			kind=EXCLUDED.kind,
			payload=EXCLUDED.payload,
			created_at=EXCLUDED.created_at,
			expires_at=EXCLUDED.expires_at`,
		in.UserKey, string(in.Kind), payload, in.CreatedAt, in.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert pending: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Has(ctx context.Context, userKey string) (bool, error) {
	in, err := s.Get(ctx, userKey)
	if err != nil {
		return false, err
	}
	return in != nil, nil
}

func (s *PostgresStore) Get(ctx context.Context, userKey string) (*Interaction, error) {
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM pending_interactions WHERE user_key = $1`, userKey,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pending: %w", err)
	}
	return decodePayload(payload)
}

func (s *PostgresStore) Pop(ctx context.Context, userKey string) (*Interaction, error) {
	if err := s.sweep(ctx); err != nil {
		return nil, err
	}
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`DELETE FROM pending_interactions WHERE user_key = $1 RETURNING payload`, userKey,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop pending: %w", err)
	}
	return decodePayload(payload)
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	if err := s.sweep(ctx); err != nil {
		return Stats{}, err
	}
	stats := Stats{ByKind: make(map[Kind]int)}

	rows, err := s.pool.Query(ctx,
		`SELECT kind, COUNT(*), MIN(created_at), MAX(created_at)
		 FROM pending_interactions GROUP BY kind`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind   string
			count  int
			oldest time.Time
			newest time.Time
		)
		if err := rows.Scan(&kind, &count, &oldest, &newest); err != nil {
			return Stats{}, fmt.Errorf("stats scan: %w", err)
		}
		stats.ByKind[Kind(kind)] = count
		stats.Total += count
		if stats.OldestCreatedAt.IsZero() || oldest.Before(stats.OldestCreatedAt) {
			stats.OldestCreatedAt = oldest
		}
		if newest.After(stats.NewestCreatedAt) {
			stats.NewestCreatedAt = newest
		}
	}
	return stats, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) sweep(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM pending_interactions WHERE expires_at < $1`, s.now().UTC())
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	return nil
}

func decodePayload(payload []byte) (*Interaction, error) {
	var in Interaction
	if err := json.Unmarshal(payload, &in); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &in, nil
}
