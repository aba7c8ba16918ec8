package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore shares the relay between instances. The table is UNLOGGED and every call
// purges rows past the TTL, so it stays an ephemeral relay rather than image storage.
type PostgresStore struct {
	pool     *pgxpool.Pool
	ttl      time.Duration
	now      func() time.Time
	onExpire func(id string)
}

func NewPostgresStore(ctx context.Context, databaseURL string, opts ...Option) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initRelaySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	o := buildOptions(opts)
	return &PostgresStore{
		pool:     pool,
		ttl:      o.ttl,
		now:      o.now,
		onExpire: o.onExpire,
	}, nil
}

func initRelaySchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE UNLOGGED TABLE IF NOT EXISTS relay_entries (
			session_id TEXT PRIMARY KEY,
			payload BYTEA NOT NULL,
			content_type TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_relay_entries_updated ON relay_entries (updated_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init relay schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Put(ctx context.Context, id string, payload []byte, contentType string) error {
	now := s.now().UTC()
	if err := s.sweep(ctx, now); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO relay_entries (session_id, payload, content_type, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			content_type = EXCLUDED.content_type,
			updated_at = EXCLUDED.updated_at`,
		id,
		payload,
		contentType,
		now,
	)
	if err != nil {
		return fmt.Errorf("put relay entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Entry, error) {
	now := s.now().UTC()
	if err := s.sweep(ctx, now); err != nil {
		return Entry{}, err
	}

	var entry Entry
	err := s.pool.QueryRow(ctx,
		`SELECT payload, content_type, updated_at FROM relay_entries
		 WHERE session_id=$1 AND updated_at >= $2`,
		id,
		now.Add(-s.ttl),
	).Scan(&entry.Payload, &entry.ContentType, &entry.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get relay entry: %w", err)
	}
	return entry, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	now := s.now().UTC()
	if err := s.sweep(ctx, now); err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM relay_entries WHERE session_id=$1`, id); err != nil {
		return fmt.Errorf("delete relay entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Len(ctx context.Context) (int, error) {
	now := s.now().UTC()
	if err := s.sweep(ctx, now); err != nil {
		return 0, err
	}

	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM relay_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count relay entries: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) sweep(ctx context.Context, now time.Time) error {
	rows, err := s.pool.Query(ctx,
		`DELETE FROM relay_entries WHERE updated_at < $1 RETURNING session_id`,
		now.Add(-s.ttl),
	)
	if err != nil {
		return fmt.Errorf("sweep relay entries: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("sweep relay entries: %w", err)
	}
	if s.onExpire != nil {
		for _, id := range ids {
			s.onExpire(id)
		}
	}
	return nil
}
