// Package csv parses delimited text into a table. It can scrub known bad byte
// sequences on the fly before they reach encoding/csv, without buffering the
// whole input.
package csv

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/advanced-computing/sleepy-narwhal/internal/config"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// Options configures the CSV parser behavior. All fields are optional; sensible
// defaults are applied when a field is zero.
type Options struct {
	// HasHeader indicates whether the first row contains column headers.
	HasHeader bool

	// Comma specifies the field delimiter. When zero, ',' is used.
	Comma rune

	// TrimSpace trims leading/trailing whitespace from each field value.
	TrimSpace bool

	// ExpectedFields, when > 0, names the columns of a headerless input
	// col_0..col_N-1 and, with a header, requires the header to have that width.
	// Rows whose width differs from the header are always skipped and counted.
	ExpectedFields int

	// HeaderMap maps source header names to column names. Only applies when
	// HasHeader is true.
	HeaderMap map[string]string

	// Columns names the columns of a headerless input.
	Columns []string

	// Scrub lists byte sequences rewritten before parsing, e.g. a stray quote
	// that breaks a field. Enabling it also turns on LazyQuotes.
	Scrub []Replacement
}

// Replacement rewrites every Old in the input with New.
type Replacement struct {
	Old, New string
}

// FromConfigOptions maps a parser options block onto Options. has_header
// defaults to true.
func FromConfigOptions(o config.Options) Options {
	opt := Options{
		HasHeader:      o.Bool("has_header", true),
		Comma:          o.Rune("comma", ','),
		TrimSpace:      o.Bool("trim_space", false),
		ExpectedFields: o.Int("expected_fields", 0),
		Columns:        o.StringSlice("columns"),
	}
	if hm := o.StringMap("header_map"); len(hm) > 0 {
		opt.HeaderMap = hm
	}
	scrub := o.StringMap("scrub")
	olds := make([]string, 0, len(scrub))
	for old := range scrub {
		olds = append(olds, old)
	}
	sort.Strings(olds)
	for _, old := range olds {
		opt.Scrub = append(opt.Scrub, Replacement{Old: old, New: scrub[old]})
	}
	return opt
}

// Parser parses CSV input according to Options. It is safe to reuse across
// inputs, but Parser itself is not concurrency-safe.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// utf8BOM is stripped from the first header cell if present.
const utf8BOM = "\uFEFF"

// skipLogLimit caps the per-input "Skipping row" log lines.
const skipLogLimit = 400

// streamingRewriter is an io.Reader that performs a streaming, rolling
// find/replace: it replaces all occurrences of pat with repl without buffering
// the entire stream. To correctly match sequences that may span chunk
// boundaries, it retains the last len(pat)-1 bytes (carry) from each processed
// block and prepends them to the next block before replacement.
type streamingRewriter struct {
	br    *bufio.Reader
	pat   []byte
	repl  []byte
	carry []byte       // last len(pat)-1 bytes retained between reads
	buf   bytes.Buffer // pending output to satisfy Read
	chunk []byte
	eof   bool
}

func newStreamingRewriter(r io.Reader, pat, repl []byte) *streamingRewriter {
	return &streamingRewriter{
		br:    bufio.NewReaderSize(r, 64*1024),
		pat:   pat,
		repl:  repl,
		chunk: make([]byte, 64*1024),
	}
}

// Read fills p from the pending output; when empty it reads the next chunk,
// replaces matches and withholds the trailing len(pat)-1 bytes for the next
// call. On EOF the carry is flushed.
func (sr *streamingRewriter) Read(p []byte) (int, error) {
	for sr.buf.Len() == 0 {
		if sr.eof {
			return 0, io.EOF
		}
		n, rerr := sr.br.Read(sr.chunk)
		if n > 0 {
			block := append(append([]byte(nil), sr.carry...), sr.chunk[:n]...)
			if len(sr.pat) > 0 && !bytes.Equal(sr.pat, sr.repl) {
				block = bytes.ReplaceAll(block, sr.pat, sr.repl)
			}
			k := len(sr.pat) - 1
			if k < 0 {
				k = 0
			}
			if len(block) > k {
				sr.buf.Write(block[:len(block)-k])
				sr.carry = append(sr.carry[:0], block[len(block)-k:]...)
			} else {
				sr.carry = append(sr.carry[:0], block...)
			}
		}
		if rerr == io.EOF {
			sr.buf.Write(sr.carry)
			sr.carry = sr.carry[:0]
			sr.eof = true
		} else if rerr != nil {
			return 0, rerr
		}
	}
	return sr.buf.Read(p)
}

// Parse consumes CSV records from r and returns them as a table of raw cells
// along with the number of rows that were skipped due to parse errors or
// field-count mismatches. Empty fields become nulls; every other cell is a
// string in a KindAny column.
func (p *Parser) Parse(r io.Reader) (table.Table, int, error) {
	for _, s := range p.opt.Scrub {
		r = newStreamingRewriter(r, []byte(s.Old), []byte(s.New))
	}

	cr := csv.NewReader(r)
	if p.opt.Comma != 0 {
		cr.Comma = p.opt.Comma
	}
	cr.ReuseRecord = true
	if len(p.opt.Scrub) > 0 {
		cr.LazyQuotes = true
	}
	// Width is enforced below so a bad row is skipped instead of aborting.
	cr.FieldsPerRecord = -1

	var headers []string
	switch {
	case p.opt.HasHeader:
		h, err := cr.Read()
		if err == io.EOF {
			return table.Table{}, 0, nil
		}
		if err != nil {
			return table.Table{}, 0, fmt.Errorf("read csv header: %w", err)
		}
		headers = normalizeHeaders(h, p.opt)
	case len(p.opt.Columns) > 0:
		headers = uniqueNames(append([]string(nil), p.opt.Columns...))
	case p.opt.ExpectedFields > 0:
		headers = synthesize(p.opt.ExpectedFields)
	}
	if n := p.opt.ExpectedFields; n > 0 && headers != nil && len(headers) != n {
		return table.Table{}, 0, fmt.Errorf("csv header has %d fields, expected %d", len(headers), n)
	}

	var cols [][]any
	var skipped int
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if skipped < skipLogLimit {
				log.Printf("csv: skipping row %d: %v", line, err)
			}
			skipped++
			continue
		}
		if headers == nil {
			headers = synthesize(len(row))
		}
		if len(row) != len(headers) {
			if skipped < skipLogLimit {
				log.Printf("csv: skipping row %d: incorrect number of fields (expected %d, got %d)", line, len(headers), len(row))
			}
			skipped++
			continue
		}
		if cols == nil {
			cols = make([][]any, len(headers))
		}
		for i, val := range row {
			if p.opt.TrimSpace {
				val = strings.TrimSpace(val)
			}
			cols[i] = append(cols[i], emptyToNil(val))
		}
	}
	if skipped > skipLogLimit {
		log.Printf("csv: %d rows skipped in total", skipped)
	}

	out := make([]table.Column, len(headers))
	for i, h := range headers {
		var vals []any
		if cols != nil {
			vals = cols[i]
		}
		if vals == nil {
			vals = []any{}
		}
		out[i] = table.Column{Name: h, Kind: table.KindAny, Values: vals}
	}
	t, err := table.New(out...)
	if err != nil {
		return table.Table{}, skipped, fmt.Errorf("csv: %w", err)
	}
	return t, skipped, nil
}

func synthesize(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("col_%d", i)
	}
	return names
}

// emptyToNil converts an empty string to nil; all other values are returned as-is.
func emptyToNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// normalizeHeaders trims header cells, strips a UTF-8 BOM from the first one
// and applies HeaderMap. Blank headers get a col_N name and repeated ones a
// numeric suffix, so the result is always a valid set of column names.
func normalizeHeaders(h []string, opt Options) []string {
	res := make([]string, len(h))
	for i, col := range h {
		c := strings.TrimSpace(col)
		if i == 0 {
			c = strings.TrimSpace(strings.TrimPrefix(c, utf8BOM))
		}
		if m, ok := opt.HeaderMap[c]; ok {
			c = m
		}
		if c == "" {
			c = fmt.Sprintf("col_%d", i)
		}
		res[i] = c
	}
	return uniqueNames(res)
}

func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	used := make(map[string]struct{}, len(names))
	for i, n := range names {
		if _, dup := used[n]; !dup {
			used[n] = struct{}{}
			continue
		}
		for k := 2; ; k++ {
			cand := fmt.Sprintf("%s_%d", n, k)
			_, taken := seen[cand]
			_, done := used[cand]
			if !taken && !done {
				names[i] = cand
				used[cand] = struct{}{}
				break
			}
		}
	}
	return names
}
