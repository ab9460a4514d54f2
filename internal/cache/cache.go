// Package cache keeps raw source bytes between runs so repeated runs do not
// refetch large downloads. Entries are keyed by a hash of the source identity;
// cleaned tables are never cached.
//
// Backends register themselves by kind, as database/sql drivers do:
// "memory" is built in, SQL backends live in sqlstore and pgstore and are
// enabled by importing cache/all.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

// ErrUnknownKind is returned by Open for an unregistered backend kind.
var ErrUnknownKind = errors.New("cache: unknown kind")

// Store is a byte store with explicit invalidation. Implementations must be
// safe for concurrent use.
type Store interface {
	// Get returns the entry for key. ok is false on a miss or an expired entry.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Put(ctx context.Context, key string, data []byte) error
	// Invalidate removes one entry. Removing a missing key is not an error.
	Invalidate(ctx context.Context, key string) error
	// Purge removes every entry.
	Purge(ctx context.Context) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Kind  string
	DSN   string
	Table string
	// TTL expires entries; zero keeps them until invalidated.
	TTL time.Duration
}

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "civic_source_cache"

// Factory opens a Store for cfg.
type Factory func(ctx context.Context, cfg Config) (Store, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics on a duplicate
// kind, as database/sql does for drivers.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[kind]; dup {
		panic("cache: Register called twice for kind " + kind)
	}
	factories[kind] = f
}

// Kinds lists the registered backend kinds.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Open returns the Store for cfg.Kind. An empty kind or "none" yields a nil
// Store and no error: caching is off.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Kind == "" || cfg.Kind == "none" {
		return nil, nil
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("cache: invalid table name %q", cfg.Table)
	}
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownKind, cfg.Kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, cfg)
}

// tableName restricts table names to plain (optionally schema-qualified)
// identifiers so they can be spliced into SQL unquoted.
var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Key derives a stable key from the parts identifying a source, e.g. kind,
// URL and query parameters. Parts are separated so ("ab","c") and ("a","bc")
// differ.
func Key(parts ...string) string {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
		b = append(b, 0)
	}
	sum := xxh3.Hash128(b).Bytes()
	return hex.EncodeToString(sum[:])
}

// Expired reports whether an entry stored at storedAt has outlived ttl.
func Expired(storedAt time.Time, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && now.Sub(storedAt) > ttl
}

func init() {
	Register("memory", func(_ context.Context, cfg Config) (Store, error) {
		return NewMemory(cfg.TTL), nil
	})
}

type entry struct {
	data     []byte
	storedAt time.Time
}

// Memory is an in-process Store. It is useful for tests and for a single
// process that runs the same source several times.
type Memory struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, entries: make(map[string]entry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || Expired(e.storedAt, m.ttl, m.now()) {
		return nil, false, nil
	}
	return append([]byte(nil), e.data...), true, nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	m.entries[key] = entry{data: append([]byte(nil), data...), storedAt: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Purge(context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]entry)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// Len returns the number of entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
