// Package pgstore implements cache.Store on Postgres through a pgx pool.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/advanced-computing/sleepy-narwhal/internal/cache"
)

var _ Querier = (*pgxpool.Pool)(nil)

func init() {
	cache.Register("postgres", func(ctx context.Context, cfg cache.Config) (cache.Store, error) {
		return Open(ctx, cfg)
	})
}

// Querier is the subset of *pgxpool.Pool the store uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a cache.Store backed by one Postgres table.
type Store struct {
	q     Querier
	close func()
	table string
	ttl   time.Duration
	now   func() time.Time
}

// Open connects to cfg.DSN and creates the cache table when missing.
func Open(ctx context.Context, cfg cache.Config) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres cache: DSN must not be empty")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	s, err := New(ctx, pool, cfg)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres cache: %w", err)
	}
	s.close = pool.Close
	return s, nil
}

// New wraps q and creates the cache table when missing.
func New(ctx context.Context, q Querier, cfg cache.Config) (*Store, error) {
	table := cfg.Table
	if table == "" {
		table = cache.DefaultTable
	}
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  cache_key TEXT PRIMARY KEY,
  data BYTEA NOT NULL,
  stored_at BIGINT NOT NULL
)`, table)
	if _, err := q.Exec(ctx, create); err != nil {
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return &Store{q: q, close: func() {}, table: table, ttl: cfg.TTL, now: time.Now}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		data     []byte
		storedAt int64
	)
	err := s.q.QueryRow(ctx, "SELECT data, stored_at FROM "+s.table+" WHERE cache_key = $1", key).Scan(&data, &storedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	if cache.Expired(time.Unix(0, storedAt), s.ttl, s.now()) {
		return nil, false, nil
	}
	return data, true, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	q := "INSERT INTO " + s.table + ` (cache_key, data, stored_at) VALUES ($1, $2, $3)
ON CONFLICT (cache_key) DO UPDATE SET data = EXCLUDED.data, stored_at = EXCLUDED.stored_at`
	if _, err := s.q.Exec(ctx, q, key, data, s.now().UnixNano()); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (s *Store) Invalidate(ctx context.Context, key string) error {
	if _, err := s.q.Exec(ctx, "DELETE FROM "+s.table+" WHERE cache_key = $1", key); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

func (s *Store) Purge(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, "DELETE FROM "+s.table); err != nil {
		return fmt.Errorf("cache purge: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.close()
	return nil
}
