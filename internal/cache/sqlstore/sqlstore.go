// Package sqlstore implements cache.Store on database/sql for SQLite, MySQL
// and SQL Server. Each entry is one row: key, payload and the time it was
// stored in Unix nanoseconds.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/advanced-computing/sleepy-narwhal/internal/cache"
)

// Dialect holds the SQL that differs between backends.
type Dialect struct {
	// Driver is the database/sql driver name.
	Driver string
	// Create is a CREATE TABLE statement with one %s for the table name.
	Create string
	// Upsert stores (key, data, stored_at) and replaces an existing row.
	// Empty means delete-then-insert in a transaction.
	Upsert string
	// Placeholder returns the bind marker for the 1-based argument i.
	Placeholder func(i int) string
}

func question(int) string { return "?" }

func atP(i int) string { return fmt.Sprintf("@p%d", i) }

// Dialects by cache kind.
var Dialects = map[string]Dialect{
	"sqlite": {
		Driver: "sqlite",
		Create: `CREATE TABLE IF NOT EXISTS %s (
  cache_key TEXT PRIMARY KEY,
  data BLOB NOT NULL,
  stored_at INTEGER NOT NULL
)`,
		Upsert: `INSERT INTO %s (cache_key, data, stored_at) VALUES (?, ?, ?)
ON CONFLICT(cache_key) DO UPDATE SET data = excluded.data, stored_at = excluded.stored_at`,
		Placeholder: question,
	},
	"mysql": {
		Driver: "mysql",
		Create: `CREATE TABLE IF NOT EXISTS %s (
  cache_key VARCHAR(64) NOT NULL PRIMARY KEY,
  data LONGBLOB NOT NULL,
  stored_at BIGINT NOT NULL
)`,
		Upsert: `INSERT INTO %s (cache_key, data, stored_at) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE data = VALUES(data), stored_at = VALUES(stored_at)`,
		Placeholder: question,
	},
	"sqlserver": {
		Driver: "sqlserver",
		Create: `IF OBJECT_ID(N'%[1]s', N'U') IS NULL
CREATE TABLE %[1]s (
  cache_key NVARCHAR(64) NOT NULL PRIMARY KEY,
  data VARBINARY(MAX) NOT NULL,
  stored_at BIGINT NOT NULL
)`,
		Placeholder: atP,
	},
}

func init() {
	for kind := range Dialects {
		kind := kind
		cache.Register(kind, func(ctx context.Context, cfg cache.Config) (cache.Store, error) {
			return Open(ctx, kind, cfg)
		})
	}
}

// Store is a cache.Store backed by one SQL table.
type Store struct {
	db    *sql.DB
	d     Dialect
	table string
	ttl   time.Duration
	now   func() time.Time
}

// Open connects with the dialect registered for kind and creates the cache
// table when it does not exist.
func Open(ctx context.Context, kind string, cfg cache.Config) (*Store, error) {
	d, ok := Dialects[kind]
	if !ok {
		return nil, fmt.Errorf("%w %q", cache.ErrUnknownKind, kind)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%s cache: DSN must not be empty", kind)
	}
	db, err := sql.Open(d.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s cache: open: %w", kind, err)
	}
	if kind == "sqlite" {
		// A :memory: database exists per connection.
		db.SetMaxOpenConns(1)
	}
	s, err := New(ctx, db, d, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s cache: %w", kind, err)
	}
	return s, nil
}

// New wraps an open database. The Store owns db and closes it on Close.
func New(ctx context.Context, db *sql.DB, d Dialect, cfg cache.Config) (*Store, error) {
	table := cfg.Table
	if table == "" {
		table = cache.DefaultTable
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(d.Create, table)); err != nil {
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return &Store{db: db, d: d, table: table, ttl: cfg.TTL, now: time.Now}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	q := fmt.Sprintf("SELECT data, stored_at FROM %s WHERE cache_key = %s", s.table, s.d.Placeholder(1))
	var (
		data     []byte
		storedAt int64
	)
	err := s.db.QueryRowContext(ctx, q, key).Scan(&data, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
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
	storedAt := s.now().UnixNano()
	if s.d.Upsert != "" {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(s.d.Upsert, s.table), key, data, storedAt); err != nil {
			return fmt.Errorf("cache put: %w", err)
		}
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache put: begin tx: %w", err)
	}
	del := fmt.Sprintf("DELETE FROM %s WHERE cache_key = %s", s.table, s.d.Placeholder(1))
	ins := fmt.Sprintf("INSERT INTO %s (cache_key, data, stored_at) VALUES (%s, %s, %s)",
		s.table, s.d.Placeholder(1), s.d.Placeholder(2), s.d.Placeholder(3))
	if _, err := tx.ExecContext(ctx, del, key); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("cache put: delete: %w", err)
	}
	if _, err := tx.ExecContext(ctx, ins, key, data, storedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("cache put: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache put: commit: %w", err)
	}
	return nil
}

func (s *Store) Invalidate(ctx context.Context, key string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE cache_key = %s", s.table, s.d.Placeholder(1))
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

func (s *Store) Purge(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table); err != nil {
		return fmt.Errorf("cache purge: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }
