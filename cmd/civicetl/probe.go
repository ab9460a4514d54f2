package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/advanced-computing/sleepy-narwhal/internal/config"
	"github.com/advanced-computing/sleepy-narwhal/internal/datasource"
	"github.com/advanced-computing/sleepy-narwhal/internal/datasource/httpds"
	"github.com/advanced-computing/sleepy-narwhal/internal/parser"
	"github.com/advanced-computing/sleepy-narwhal/internal/resolver"
)

// probe reads the head of every dataset source, parses it and reports which
// roles resolve, so a pipeline file can be checked against a new release of
// the data without downloading it in full.
func probe(ctx context.Context, w io.Writer, datasets []config.Dataset, n int) error {
	for _, ds := range datasets {
		head, err := fetchHead(ctx, ds.Source, n)
		if err != nil {
			return fmt.Errorf("probe %s: %w", ds.Name, err)
		}
		if err := probeOne(w, ds, head, n); err != nil {
			return fmt.Errorf("probe %s: %w", ds.Name, err)
		}
	}
	return nil
}

// fetchHead returns up to n bytes of the source. Paged sources fetch a single
// small page instead, which is always a complete JSON array.
func fetchHead(ctx context.Context, s config.Source, n int) ([]byte, error) {
	switch s.Kind {
	case "url":
		hc, err := httpds.FromConfig(s.HTTP)
		if err != nil {
			return nil, err
		}
		return httpds.NewClient(hc).FetchFirstBytes(ctx, s.URL, n)
	case "socrata":
		s.HTTP.PageSize, s.HTTP.MaxPages = 5, 1
	}
	src, err := datasource.New(s)
	if err != nil {
		return nil, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if s.Kind == "socrata" {
		return io.ReadAll(rc)
	}
	return io.ReadAll(io.LimitReader(rc, int64(n)))
}

func probeOne(w io.Writer, ds config.Dataset, head []byte, n int) error {
	if len(head) >= n && ds.Parser.Kind == "csv" {
		// Drop the partial last record.
		if i := bytes.LastIndexByte(head, '\n'); i >= 0 {
			head = head[:i+1]
		}
	}
	p, err := parser.New(ds.Parser)
	if err != nil {
		return err
	}
	t, _, err := p.Parse(bytes.NewReader(head))
	if err != nil {
		return fmt.Errorf("parse first %d bytes: %w", len(head), err)
	}
	if !ds.RawHeaders {
		if t, err = resolver.NormalizeNames(t); err != nil {
			return err
		}
	}
	roles := resolver.Resolve(t, ds.Columns)

	fmt.Fprintf(w, "%s: %d bytes, %d rows sampled\n", ds.Name, len(head), t.Len())
	fmt.Fprintf(w, "  columns: %s\n", strings.Join(t.Columns(), ", "))
	found := make([]string, 0, len(roles.Found))
	for r := range roles.Found {
		found = append(found, r)
	}
	sort.Strings(found)
	for _, r := range found {
		fmt.Fprintf(w, "  role %-14s -> %s\n", r, roles.Found[r])
	}
	for _, r := range roles.Missing {
		fmt.Fprintf(w, "  role %-14s -> (missing, keyword %q)\n", r, ds.Columns[r])
	}
	return nil
}
