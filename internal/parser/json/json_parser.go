// Package json turns JSON objects into a table.
//
// Supported inputs:
//
//   - newline-delimited objects (NDJSON):
//     {"id":1,"name":"a"}
//     {"id":2,"name":"b"}
//   - a top-level array of objects, as returned by open-data APIs, when
//     AllowArrays is set.
//
// Non-object values in an NDJSON stream are skipped.
package json

import (
	"errors"
	"fmt"
	"io"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/advanced-computing/sleepy-narwhal/internal/config"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// Options mirrors the Options of the csv parser.
type Options struct {
	// AllowArrays accepts a top-level JSON array of objects.
	AllowArrays bool
	// Columns fixes the output columns and their order. Keys outside it are
	// dropped. When empty the union of all keys is used, sorted by name.
	Columns []string
}

// FromConfigOptions constructs JSON Options from a parser options block.
func FromConfigOptions(o config.Options) Options {
	return Options{
		AllowArrays: o.Bool("allow_arrays", false),
		Columns:     o.StringSlice("columns"),
	}
}

// Decoder reads one JSON object at a time.
type Decoder struct {
	dec *json.Decoder
	opt Options
}

// NewDecoder constructs a Decoder from an io.Reader and JSON Options.
func NewDecoder(r io.Reader, opt Options) *Decoder {
	d := json.NewDecoder(r)
	// UseNumber so callers can decide how to map numeric values.
	d.UseNumber()
	return &Decoder{dec: d, opt: opt}
}

// Next reads the next JSON object. EOF is returned when the stream is
// exhausted.
func (d *Decoder) Next() (map[string]any, error) {
	for {
		var raw any
		if err := d.dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("json parser: decode: %w", err)
		}
		if m, ok := raw.(map[string]any); ok {
			return m, nil
		}
	}
}

// DecodeAll reads all objects from r.
//
// If opt.AllowArrays is true and r starts with a top-level JSON array of
// objects, it is expanded into records. Objects following the root value are
// appended.
func DecodeAll(r io.Reader, opt Options) ([]map[string]any, error) {
	d := json.NewDecoder(r)
	d.UseNumber()

	var root any
	if err := d.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("json parser: decode root: %w", err)
	}

	var out []map[string]any
	switch v := root.(type) {
	case map[string]any:
		out = append(out, v)
	case []any:
		if !opt.AllowArrays {
			return nil, errors.New("json parser: top-level array encountered but allow_arrays=false")
		}
		out = make([]map[string]any, 0, len(v))
		for i, elem := range v {
			obj, ok := elem.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("json parser: element %d in array is not an object", i)
			}
			out = append(out, obj)
		}
	default:
		return nil, fmt.Errorf("json parser: unsupported top-level JSON type %T", v)
	}

	// The decoder may have read past the root value; continue from its
	// buffer, then the rest of r.
	dec := NewDecoder(io.MultiReader(d.Buffered(), r), opt)
	for {
		rec, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Parser adapts DecodeAll to the table-producing parser interface.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser { return &Parser{opt: opt} }

// Parse decodes every object in r into one row. Numbers stay json.Number,
// nested objects and arrays are kept as compact JSON text, and missing keys
// become nulls. Nothing is skipped, so the count is always zero.
func (p *Parser) Parse(r io.Reader) (table.Table, int, error) {
	recs, err := DecodeAll(r, p.opt)
	if err != nil {
		return table.Table{}, 0, err
	}
	cols := p.opt.Columns
	if len(cols) == 0 {
		cols = keyUnion(recs)
	}
	for _, rec := range recs {
		for k, v := range rec {
			switch v.(type) {
			case map[string]any, []any:
				b, err := json.Marshal(v)
				if err != nil {
					return table.Table{}, 0, fmt.Errorf("json parser: re-encode %q: %w", k, err)
				}
				rec[k] = string(b)
			}
		}
	}
	return table.FromRecords(cols, recs), 0, nil
}

func keyUnion(recs []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, rec := range recs {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
