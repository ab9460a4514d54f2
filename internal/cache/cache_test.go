package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	a := Key("url", "https://data.example.org/a.csv")
	if a != Key("url", "https://data.example.org/a.csv") {
		t.Fatal("key not stable")
	}
	if len(a) != 32 {
		t.Fatalf("len=%d want 32 hex chars", len(a))
	}
	if Key("ab", "c") == Key("a", "bc") {
		t.Fatal("part boundaries must matter")
	}
}

/*
TestMemory_Lifecycle covers miss, hit, copy isolation, TTL expiry,
invalidation and purge.
*/
func TestMemory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("unexpected hit")
	}
	in := []byte("payload")
	if err := m.Put(ctx, "k", in); err != nil {
		t.Fatal(err)
	}
	in[0] = 'X'
	got, ok, _ := m.Get(ctx, "k")
	if !ok || string(got) != "payload" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
	got[0] = 'Y'
	if again, _, _ := m.Get(ctx, "k"); string(again) != "payload" {
		t.Fatal("stored bytes aliased by caller")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("entry should have expired")
	}

	_ = m.Put(ctx, "a", nil)
	_ = m.Put(ctx, "b", nil)
	_ = m.Invalidate(ctx, "a")
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Fatal("invalidated entry returned")
	}
	_ = m.Purge(ctx)
	if m.Len() != 0 {
		t.Fatalf("len=%d after purge", m.Len())
	}
}

func TestMemory_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			k := Key("k", string(rune('a'+i)))
			_ = m.Put(ctx, k, []byte{byte(i)})
			if _, ok, _ := m.Get(ctx, k); !ok {
				t.Errorf("miss for %d", i)
			}
		}(i)
	}
	wg.Wait()
	if m.Len() != 16 {
		t.Fatalf("len=%d", m.Len())
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Config{})
	if s != nil || err != nil {
		t.Fatalf("disabled cache: %v %v", s, err)
	}
	s, err = Open(ctx, Config{Kind: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("got %T", s)
	}
	if _, err := Open(ctx, Config{Kind: "redis"}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("err=%v", err)
	}
	if _, err := Open(ctx, Config{Kind: "memory", Table: "x; DROP TABLE y"}); err == nil {
		t.Fatal("expected invalid table name error")
	}
}

func TestExpired(t *testing.T) {
	at := time.Unix(0, 0)
	if Expired(at, 0, at.Add(1000*time.Hour)) {
		t.Fatal("zero ttl never expires")
	}
	if !Expired(at, time.Second, at.Add(2*time.Second)) {
		t.Fatal("should expire")
	}
}
