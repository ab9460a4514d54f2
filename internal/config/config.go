// Package config defines the configuration model for dataset pipelines. A
// pipeline file lists the datasets to fetch, how to parse them, which
// cleaning steps to run and which count views to derive.
//
// Files are JSON or YAML (chosen by extension) with the same field names:
//
//	{
//	  "job": "nyc_inmates",
//	  "datasets": [{
//	    "name": "inmates",
//	    "source": { "kind": "url", "url": "https://data.cityofnewyork.us/api/views/7479-ugqb/rows.csv?accessType=DOWNLOAD" },
//	    "parser": { "kind": "csv", "options": { "has_header": true } },
//	    "columns": { "date": "admitted_dt", "custody": "custody" },
//	    "transform": [
//	      { "kind": "normalize_dates", "options": { "role": "date", "required": true } },
//	      { "kind": "validate", "options": { "schema": "inmates" } }
//	    ],
//	    "aggregate": [{ "kind": "count_over_time", "role": "date", "bucket": "24h" }]
//	  }],
//	  "cache": { "kind": "sqlite", "dsn": "file:cache.db" }
//	}
package config

import (
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// Pipeline is the top-level object decoded from a pipeline file.
type Pipeline struct {
	// Job labels metrics and log lines for every run of this pipeline.
	Job      string        `json:"job" yaml:"job"`
	Datasets []Dataset     `json:"datasets" yaml:"datasets"`
	Cache    Cache         `json:"cache" yaml:"cache"`
	Metrics  Metrics       `json:"metrics" yaml:"metrics"`
	Runtime  RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// RuntimeConfig controls concurrency and time limits.
type RuntimeConfig struct {
	// Workers bounds how many datasets are processed at once. Zero means one
	// worker per CPU.
	Workers int `json:"workers" yaml:"workers"`
	// Timeout bounds each dataset run, e.g. "5m". Empty means no limit.
	Timeout string `json:"timeout" yaml:"timeout"`
}

// Dataset describes one table: where it comes from and what happens to it.
type Dataset struct {
	Name   string `json:"name" yaml:"name"`
	Source Source `json:"source" yaml:"source"`
	Parser Parser `json:"parser" yaml:"parser"`

	// RawHeaders keeps header names exactly as parsed instead of normalizing
	// them to lowercase identifiers.
	RawHeaders bool `json:"raw_headers,omitempty" yaml:"raw_headers,omitempty"`

	// Columns maps semantic roles (date, custody, gender, ...) to the keyword
	// searched for in header names. Steps may reference a role instead of a
	// literal column.
	Columns map[string]string `json:"columns,omitempty" yaml:"columns,omitempty"`

	Transform []Transform `json:"transform" yaml:"transform"`
	Aggregate []Aggregate `json:"aggregate" yaml:"aggregate"`

	// Preview is the number of cleaned rows kept in the result. Zero keeps none.
	Preview int `json:"preview,omitempty" yaml:"preview,omitempty"`
}

// Source identifies the data source.
type Source struct {
	// Kind selects the implementation: "file", "url" or "socrata".
	Kind string     `json:"kind" yaml:"kind"`
	File SourceFile `json:"file" yaml:"file"`
	// URL is the download URL ("url") or the resource endpoint ("socrata").
	URL  string     `json:"url" yaml:"url"`
	HTTP HTTPConfig `json:"http" yaml:"http"`
	// NoCache bypasses the pipeline cache for this source.
	NoCache bool `json:"no_cache,omitempty" yaml:"no_cache,omitempty"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	Path string `json:"path" yaml:"path"`
}

// HTTPConfig tunes the HTTP client behind "url" and "socrata" sources.
type HTTPConfig struct {
	Timeout            string            `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries         int               `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	Headers            map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	InsecureSkipVerify bool              `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
	// PageSize and MaxPages apply to "socrata" paging. Query adds SoQL
	// parameters such as $where or $order.
	PageSize int               `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	MaxPages int               `json:"max_pages,omitempty" yaml:"max_pages,omitempty"`
	Query    map[string]string `json:"query,omitempty" yaml:"query,omitempty"`
}

// Parser selects how raw bytes become a table.
type Parser struct {
	// Kind is "csv" or "json".
	Kind string `json:"kind" yaml:"kind"`
	// Options is interpreted by the parser. For CSV: has_header, comma,
	// trim_space, expected_fields, header_map. For JSON: allow_arrays, columns.
	Options Options `json:"options" yaml:"options"`
}

// Transform is one step of the cleaning chain.
type Transform struct {
	// Kind selects the step: normalize, coerce, require, dedup,
	// normalize_dates, normalize_categories, validate, filter_range,
	// filter_category.
	Kind string `json:"kind" yaml:"kind"`
	// Options is interpreted by the step. Most steps accept "column" or "role"
	// and "required".
	Options Options `json:"options" yaml:"options"`
}

// Aggregate declares one derived count view.
type Aggregate struct {
	// Kind is count_by_category, count_over_time or histogram.
	Kind   string `json:"kind" yaml:"kind"`
	Column string `json:"column,omitempty" yaml:"column,omitempty"`
	Role   string `json:"role,omitempty" yaml:"role,omitempty"`
	// Name labels the view in reports; defaults to kind and column.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Bucket is the count_over_time width: a Go duration or day/week.
	Bucket   string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	FillGaps bool   `json:"fill_gaps,omitempty" yaml:"fill_gaps,omitempty"`
	// Order is first_seen (default), value or count_desc.
	Order string `json:"order,omitempty" yaml:"order,omitempty"`
	Bins  int    `json:"bins,omitempty" yaml:"bins,omitempty"`
	// Required turns an unresolvable column into an error instead of a skip.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`
}

// Cache selects the store used to keep raw source bytes between runs.
type Cache struct {
	// Kind is "", "none", "memory", "sqlite", "mysql", "sqlserver" or
	// "postgres".
	Kind  string `json:"kind" yaml:"kind"`
	DSN   string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
	// TTL expires entries, e.g. "24h". Empty keeps entries until invalidated.
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "", "none", "pushgateway" or "datadog".
	Backend        string `json:"backend,omitempty" yaml:"backend,omitempty"`
	PushgatewayURL string `json:"pushgateway_url,omitempty" yaml:"pushgateway_url,omitempty"`
	DatadogAddr    string `json:"datadog_addr,omitempty" yaml:"datadog_addr,omitempty"`
}

// BucketDuration parses Bucket. "day" and "week" are accepted besides Go
// durations; empty means one day.
func (a Aggregate) BucketDuration() (time.Duration, error) {
	switch a.Bucket {
	case "", "day", "daily", "D":
		return 24 * time.Hour, nil
	case "week", "weekly", "W":
		return 7 * 24 * time.Hour, nil
	}
	return time.ParseDuration(a.Bucket)
}

// Options is a small helper to fetch typed values from arbitrary JSON or YAML
// maps. It performs only minimal type coercion and returns the provided
// default when a key is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. encoding/json decodes numbers as
// float64 and yaml.v3 as int; both are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. Used for single-character settings such as a CSV
// delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// Duration parses a duration string for key, returning def when the key is
// missing or unparsable.
func (o Options) Duration(key string, def time.Duration) time.Duration {
	if s := o.String(key, ""); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty map
// when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		switch m := v.(type) {
		case map[string]any:
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		case Options:
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		case map[string]string:
			for k, s := range m {
				res[k] = s
			}
		}
	}
	return res
}

// StringSlice returns a []string for key when the value is an array of
// strings. Returns nil when the key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// Any returns the raw value for key, for nested blocks that the caller
// decodes into a typed struct (an inline schema, for example).
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// Decode re-encodes the value at key as JSON and decodes it into dst.
func (o Options) Decode(key string, dst any) error {
	b, err := json.Marshal(o.Any(key))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// UnmarshalJSON makes a missing or null "options" object decode to a non-nil,
// empty Options map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}

// UnmarshalYAML decodes an options mapping so that nested mappings come out as
// map[string]any, the same shape JSON decoding produces. A null node gives an
// empty Options.
func (o *Options) UnmarshalYAML(n *yaml.Node) error {
	var tmp map[string]any
	if err := n.Decode(&tmp); err != nil {
		return err
	}
	if tmp == nil {
		tmp = map[string]any{}
	}
	*o = Options(tmp)
	return nil
}
