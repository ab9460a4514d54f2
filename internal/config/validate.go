package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/internal/schema"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "datasets[0].source.url",
// "datasets[1].transform[2].options.schema"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Callers may decide whether to treat
// warnings as fatal or not.
//
//	p, err := config.Load("pipeline.yaml")
//	if err != nil { ... }
//	for _, iss := range config.ValidatePipeline(p) {
//	    fmt.Println(iss)
//	}
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}
	if len(p.Datasets) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "datasets",
			Message:  "at least one dataset is required",
		})
	}
	seen := make(map[string]int)
	for i, ds := range p.Datasets {
		prefix := fmt.Sprintf("datasets[%d]", i)
		if strings.TrimSpace(ds.Name) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: prefix + ".name", Message: "dataset name must not be empty"})
		} else if j, dup := seen[ds.Name]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     prefix + ".name",
				Message:  fmt.Sprintf("duplicate dataset name %q (also datasets[%d])", ds.Name, j),
			})
		} else {
			seen[ds.Name] = i
		}
		issues = append(issues, validateSource(prefix+".source", ds.Source)...)
		issues = append(issues, validateParser(prefix+".parser", ds.Parser)...)
		if ds.Source.Kind == "socrata" && (ds.Parser.Kind != "json" || !ds.Parser.Options.Bool("allow_arrays", false)) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     prefix + ".parser",
				Message:  "socrata sources yield a JSON array; use parser kind json with allow_arrays: true",
			})
		}
		issues = append(issues, validateTransforms(prefix+".transform", ds.Transform, ds.Columns)...)
		issues = append(issues, validateAggregates(prefix+".aggregate", ds.Aggregate, ds.Columns)...)
	}
	issues = append(issues, validateCache(p.Cache)...)
	issues = append(issues, validateMetrics(p.Metrics)...)
	issues = append(issues, validateRuntime(p.Runtime)...)

	return issues
}

func validateSource(path string, s Source) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  "source.kind must not be empty",
		})
	}

	switch s.Kind {
	case "file":
		if strings.TrimSpace(s.File.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".file.path",
				Message:  "file source requires a non-empty path",
			})
		}
	case "url", "socrata":
		u := strings.TrimSpace(s.URL)
		if u == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".url",
				Message:  s.Kind + " source requires a url",
			})
		} else if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".url",
				Message:  fmt.Sprintf("url %q must start with http:// or https://", u),
			})
		}
		if s.HTTP.Timeout != "" {
			if _, err := time.ParseDuration(s.HTTP.Timeout); err != nil {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".http.timeout",
					Message:  fmt.Sprintf("invalid duration %q", s.HTTP.Timeout),
				})
			}
		}
		if s.HTTP.MaxRetries < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".http.max_retries",
				Message:  "max_retries must not be negative",
			})
		}
		if s.Kind == "socrata" && s.HTTP.PageSize < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".http.page_size",
				Message:  "page_size must not be negative",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  fmt.Sprintf("unknown source kind %q (want file, url or socrata)", s.Kind),
		})
	}

	return issues
}

func validateParser(path string, p Parser) []Issue {
	var issues []Issue

	switch p.Kind {
	case "":
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  "parser.kind must not be empty",
		})
	case "csv":
		if c := p.Options.String("comma", ","); len([]rune(c)) != 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".options.comma",
				Message:  fmt.Sprintf("comma must be a single character, got %q", c),
			})
		}
		if !p.Options.Bool("has_header", true) && len(p.Options.StringSlice("columns")) == 0 {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path + ".options",
				Message:  "csv without header and without columns; columns will be named col_0, col_1, ...",
			})
		}
	case "json":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  fmt.Sprintf("unknown parser kind %q (want csv or json)", p.Kind),
		})
	}

	return issues
}

var transformKinds = map[string]struct{}{
	"normalize":            {},
	"coerce":               {},
	"require":              {},
	"dedup":                {},
	"normalize_dates":      {},
	"normalize_categories": {},
	"validate":             {},
	"filter_range":         {},
	"filter_category":      {},
}

// columnTransforms name a single column via "column" or "role".
var columnTransforms = map[string]struct{}{
	"normalize_dates":      {},
	"normalize_categories": {},
	"filter_range":         {},
	"filter_category":      {},
}

func validateTransforms(path string, ts []Transform, roles map[string]string) []Issue {
	var issues []Issue

	for i, t := range ts {
		base := fmt.Sprintf("%s[%d]", path, i)
		if strings.TrimSpace(t.Kind) == "" {
			issues = append(issues, Issue{Severity: SeverityError, Path: base + ".kind", Message: "transform kind must not be empty"})
			continue
		}
		if _, ok := transformKinds[t.Kind]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".kind",
				Message:  fmt.Sprintf("unknown transform kind %q", t.Kind),
			})
			continue
		}
		if _, ok := columnTransforms[t.Kind]; ok {
			issues = append(issues, checkColumnRef(base+".options", t.Options.String("column", ""), t.Options.String("role", ""), roles)...)
		}

		switch t.Kind {
		case "normalize_categories":
			name := t.Options.String("mapping", "")
			if name == "" && len(t.Options.StringMap("mapping")) == 0 {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     base + ".options.mapping",
					Message:  "mapping must name a built-in mapping (race, custody) or be an object",
				})
			} else if name != "" && name != "race" && name != "custody" {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     base + ".options.mapping",
					Message:  fmt.Sprintf("unknown mapping %q", name),
				})
			}
		case "validate":
			issues = append(issues, validateSchemaRef(base+".options", t.Options)...)
		case "filter_range":
			start, end := t.Options.String("start", ""), t.Options.String("end", "")
			if (start == "") != (end == "") {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     base + ".options",
					Message:  "only one of start/end set; the other defaults to the data's min/max date",
				})
			}
		case "filter_category":
			if _, ok := t.Options["value"]; !ok {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     base + ".options.value",
					Message:  "filter_category requires a value",
				})
			}
		case "require", "dedup":
			key := "columns"
			if t.Kind == "dedup" {
				key = "keys"
			}
			if len(t.Options.StringSlice(key)) == 0 {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     base + ".options." + key,
					Message:  t.Kind + " has no " + key + "; it will not change the table",
				})
			}
		}
	}

	return issues
}

func validateSchemaRef(path string, o Options) []Issue {
	name := o.String("schema", "")
	file := o.String("schema_file", "")
	inline := o.Any("inline")
	n := 0
	for _, set := range []bool{name != "", file != "", inline != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return []Issue{{
			Severity: SeverityError,
			Path:     path,
			Message:  "validate needs exactly one of schema, schema_file or inline",
		}}
	}
	var issues []Issue
	if name != "" {
		if _, err := schema.Builtin(name); err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".schema", Message: err.Error()})
		}
	}
	if inline != nil {
		var s schema.Schema
		if err := o.Decode("inline", &s); err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".inline", Message: fmt.Sprintf("not a valid schema: %v", err)})
		} else if err := s.Check(); err != nil {
			issues = append(issues, Issue{Severity: SeverityError, Path: path + ".inline", Message: err.Error()})
		}
	}
	switch p := o.String("policy", "strict"); p {
	case "strict", "lenient":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".policy",
			Message:  fmt.Sprintf("policy %q must be strict or lenient", p),
		})
	}
	return issues
}

func checkColumnRef(path, column, role string, roles map[string]string) []Issue {
	switch {
	case column == "" && role == "":
		return []Issue{{Severity: SeverityError, Path: path, Message: "one of column or role is required"}}
	case column != "" && role != "":
		return []Issue{{Severity: SeverityError, Path: path, Message: "column and role are mutually exclusive"}}
	case role != "":
		if _, ok := roles[role]; !ok {
			return []Issue{{
				Severity: SeverityError,
				Path:     path + ".role",
				Message:  fmt.Sprintf("role %q is not declared in columns", role),
			}}
		}
	}
	return nil
}

func validateAggregates(path string, as []Aggregate, roles map[string]string) []Issue {
	var issues []Issue
	for i, a := range as {
		base := fmt.Sprintf("%s[%d]", path, i)
		switch a.Kind {
		case "count_by_category":
			switch a.Order {
			case "", "first_seen", "value", "count_desc":
			default:
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     base + ".order",
					Message:  fmt.Sprintf("unknown order %q", a.Order),
				})
			}
		case "count_over_time":
			if d, err := a.BucketDuration(); err != nil || d <= 0 {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     base + ".bucket",
					Message:  fmt.Sprintf("bucket %q must be a positive duration, day or week", a.Bucket),
				})
			}
		case "histogram":
			if a.Bins < 0 {
				issues = append(issues, Issue{Severity: SeverityError, Path: base + ".bins", Message: "bins must not be negative"})
			}
		default:
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     base + ".kind",
				Message:  fmt.Sprintf("unknown aggregate kind %q", a.Kind),
			})
			continue
		}
		issues = append(issues, checkColumnRef(base, a.Column, a.Role, roles)...)
	}
	return issues
}

func validateCache(c Cache) []Issue {
	var issues []Issue
	switch c.Kind {
	case "", "none", "memory":
	case "sqlite", "mysql", "sqlserver", "postgres":
		if strings.TrimSpace(c.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "cache.dsn",
				Message:  c.Kind + " cache requires a dsn",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "cache.kind",
			Message:  fmt.Sprintf("unknown cache kind %q", c.Kind),
		})
	}
	if c.TTL != "" {
		if d, err := time.ParseDuration(c.TTL); err != nil || d < 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "cache.ttl",
				Message:  fmt.Sprintf("invalid ttl %q", c.TTL),
			})
		}
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			return []Issue{{
				Severity: SeverityWarning,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend without url; PUSHGATEWAY_URL or -pushgateway-url must be set",
			}}
		}
	case "datadog":
	default:
		return []Issue{{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q", m.Backend),
		}}
	}
	return nil
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.Timeout != "" {
		if d, err := time.ParseDuration(r.Timeout); err != nil || d <= 0 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "runtime.timeout",
				Message:  fmt.Sprintf("invalid timeout %q", r.Timeout),
			})
		}
	}
	return issues
}
