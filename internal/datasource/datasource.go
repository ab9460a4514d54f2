// Package datasource opens raw dataset bytes from files or HTTP endpoints.
package datasource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/advanced-computing/sleepy-narwhal/internal/cache"
	"github.com/advanced-computing/sleepy-narwhal/internal/config"
	"github.com/advanced-computing/sleepy-narwhal/internal/datasource/file"
	"github.com/advanced-computing/sleepy-narwhal/internal/datasource/httpds"
)

// Source yields a fresh reader over the raw dataset on every Open.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Keyed is implemented by sources whose bytes are worth caching. Key must
// change whenever the request would return different records.
type Keyed interface {
	Key() string
}

// New builds the Source described by cfg.
func New(cfg config.Source) (Source, error) {
	switch cfg.Kind {
	case "file":
		return file.NewLocal(cfg.File.Path), nil
	case "url", "socrata":
		hc, err := httpds.FromConfig(cfg.HTTP)
		if err != nil {
			return nil, err
		}
		client := httpds.NewClient(hc)
		if cfg.Kind == "url" {
			return &httpds.URLSource{Client: client, URL: cfg.URL}, nil
		}
		return &httpds.PagedSource{
			Client:   client,
			URL:      cfg.URL,
			PageSize: cfg.HTTP.PageSize,
			MaxPages: cfg.HTTP.MaxPages,
			Query:    cfg.HTTP.Query,
		}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// Cached replays the bytes of a Keyed source from a cache.Store. The first
// Open fetches and stores the full payload; later Opens read it back until
// the entry is invalidated or expires.
type Cached struct {
	Source Source
	Store  cache.Store
	key    string
}

// WithCache wraps src when it is Keyed and store is non-nil; otherwise src is
// returned unchanged.
func WithCache(src Source, store cache.Store) Source {
	k, ok := src.(Keyed)
	if !ok || store == nil {
		return src
	}
	return &Cached{Source: src, Store: store, key: cache.Key(k.Key())}
}

// Key is the cache key of the wrapped source.
func (c *Cached) Key() string { return c.key }

func (c *Cached) Open(ctx context.Context) (io.ReadCloser, error) {
	data, ok, err := c.Store.Get(ctx, c.key)
	if err != nil {
		log.Printf("datasource: cache get %s: %v", c.key, err)
	}
	if ok {
		log.Printf("datasource: cache hit %s (%d bytes)", c.key, len(data))
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	rc, err := c.Source.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if err := c.Store.Put(ctx, c.key, data); err != nil {
		log.Printf("datasource: cache put %s: %v", c.key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Invalidate drops the cached payload so the next Open fetches again.
func (c *Cached) Invalidate(ctx context.Context) error {
	return c.Store.Invalidate(ctx, c.key)
}
