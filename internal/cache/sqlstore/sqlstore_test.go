package sqlstore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/internal/cache"
)

func openSQLite(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", cache.Config{DSN: "file::memory:", Table: "src_cache", TTL: ttl})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

/*
TestSQLiteStore_Lifecycle exercises put, overwrite, get, invalidate and purge
against an in-memory SQLite database.
*/
func TestSQLiteStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, 0)

	if _, ok, err := s.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("empty get: ok=%v err=%v", ok, err)
	}
	if err := s.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := s.Put(ctx, "other", []byte("x")); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(got, []byte("v2")) {
		t.Fatalf("get: %q ok=%v err=%v", got, ok, err)
	}

	if err := s.Invalidate(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("invalidated key still present")
	}
	if err := s.Invalidate(ctx, "missing"); err != nil {
		t.Fatalf("invalidate missing: %v", err)
	}
	if err := s.Purge(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "other"); ok {
		t.Fatal("purge left entries")
	}
}

func TestSQLiteStore_TTL(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, time.Hour)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	now = now.Add(59 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Fatal("entry expired early")
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestRegisteredKinds(t *testing.T) {
	kinds := strings.Join(cache.Kinds(), ",")
	for _, k := range []string{"memory", "mysql", "sqlite", "sqlserver"} {
		if !strings.Contains(kinds, k) {
			t.Fatalf("kind %q not registered: %s", k, kinds)
		}
	}
	s, err := cache.Open(context.Background(), cache.Config{Kind: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*Store); !ok {
		t.Fatalf("cache.Open returned %T", s)
	}
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, "oracle", cache.Config{DSN: "x"}); !errors.Is(err, cache.ErrUnknownKind) {
		t.Fatalf("err=%v", err)
	}
	if _, err := Open(ctx, "sqlite", cache.Config{}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestSQLServerDialect(t *testing.T) {
	d := Dialects["sqlserver"]
	if d.Upsert != "" || d.Placeholder(2) != "@p2" {
		t.Fatalf("unexpected sqlserver dialect: %+v", d)
	}
	if !strings.Contains(d.Create, "IF OBJECT_ID") {
		t.Fatalf("create: %s", d.Create)
	}
}
