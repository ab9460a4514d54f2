package datasource

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/advanced-computing/sleepy-narwhal/internal/cache"
	"github.com/advanced-computing/sleepy-narwhal/internal/config"
	"github.com/advanced-computing/sleepy-narwhal/internal/datasource/file"
	"github.com/advanced-computing/sleepy-narwhal/internal/datasource/httpds"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Source
		want    any
		wantErr bool
	}{
		{name: "file", cfg: config.Source{Kind: "file", File: config.SourceFile{Path: "x.csv"}}, want: &file.Local{}},
		{name: "url", cfg: config.Source{Kind: "url", URL: "https://example.org/rows.csv"}, want: &httpds.URLSource{}},
		{name: "socrata", cfg: config.Source{Kind: "socrata", URL: "https://example.org/resource/a.json"}, want: &httpds.PagedSource{}},
		{name: "bad timeout", cfg: config.Source{Kind: "url", HTTP: config.HTTPConfig{Timeout: "x"}}, wantErr: true},
		{name: "unknown", cfg: config.Source{Kind: "ftp"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %T", src)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			switch tt.want.(type) {
			case *file.Local:
				if _, ok := src.(*file.Local); !ok {
					t.Fatalf("got %T", src)
				}
			case *httpds.URLSource:
				if _, ok := src.(*httpds.URLSource); !ok {
					t.Fatalf("got %T", src)
				}
			case *httpds.PagedSource:
				if _, ok := src.(*httpds.PagedSource); !ok {
					t.Fatalf("got %T", src)
				}
			}
		})
	}
}

/*
TestCached_ReplaysUntilInvalidated fetches once, replays from the memory
store, then fetches again after Invalidate.
*/
func TestCached_ReplaysUntilInvalidated(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = io.WriteString(w, "RACE,AGE\nW,30\n")
	}))
	defer srv.Close()

	src, err := New(config.Source{Kind: "url", URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	store := cache.NewMemory(0)
	cached := WithCache(src, store)
	c, ok := cached.(*Cached)
	if !ok {
		t.Fatalf("url source should be cached, got %T", cached)
	}

	ctx := context.Background()
	read := func() string {
		t.Helper()
		rc, err := cached.Open(ctx)
		if err != nil {
			t.Fatal(err)
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		return string(b)
	}

	for i := 0; i < 3; i++ {
		if got := read(); got != "RACE,AGE\nW,30\n" {
			t.Fatalf("read %d = %q", i, got)
		}
	}
	if h := atomic.LoadInt32(&hits); h != 1 {
		t.Fatalf("hits=%d want 1", h)
	}

	if err := c.Invalidate(ctx); err != nil {
		t.Fatal(err)
	}
	read()
	if h := atomic.LoadInt32(&hits); h != 2 {
		t.Fatalf("hits=%d want 2 after invalidate", h)
	}
}

func TestCached_ErrorsAreNotStored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	src, _ := New(config.Source{Kind: "url", URL: srv.URL})
	store := cache.NewMemory(0)
	cached := WithCache(src, store)

	var se *httpds.StatusError
	if _, err := cached.Open(context.Background()); !errors.As(err, &se) {
		t.Fatalf("err=%v", err)
	}
	if store.Len() != 0 {
		t.Fatal("failed fetch must not be cached")
	}
}

func TestWithCache_PassThrough(t *testing.T) {
	p := filepath.Join(t.TempDir(), "inmates.csv")
	if err := os.WriteFile(p, []byte("RACE\nW\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	local := file.NewLocal(p)
	if got := WithCache(local, cache.NewMemory(0)); got != Source(local) {
		t.Fatalf("local files are not keyed, got %T", got)
	}
	url := &httpds.URLSource{URL: "https://example.org/a.csv"}
	if got := WithCache(url, nil); got != Source(url) {
		t.Fatalf("nil store must pass through, got %T", got)
	}
}
