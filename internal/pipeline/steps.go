package pipeline

import (
	"fmt"
	"log"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/internal/config"
	"github.com/advanced-computing/sleepy-narwhal/internal/resolver"
	"github.com/advanced-computing/sleepy-narwhal/internal/schema"
	"github.com/advanced-computing/sleepy-narwhal/internal/transformer"
	"github.com/advanced-computing/sleepy-narwhal/internal/transformer/builtin"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// logLimit caps per-step rejection logs.
const logLimit = 3

// target is the column a step or aggregate works on.
type target struct {
	column string
	// skip explains why an optional step has no column.
	skip string
}

// resolveTarget maps a "column" or "role" reference onto a column of t. A
// literal column is passed through unchecked so the step reports its own
// missing-column error. An unresolved role is a skip, or a MissingColumnError
// when required is set.
func resolveTarget(column, role string, required bool, roles resolver.Roles, t table.Table) (target, error) {
	if column != "" {
		return target{column: column}, nil
	}
	if c, ok := roles.Column(role); ok {
		return target{column: c}, nil
	}
	if required {
		return target{}, &table.MissingColumnError{Column: role, Available: t.Columns()}
	}
	return target{skip: fmt.Sprintf("role %q not resolved", role)}, nil
}

// counters receives the side results of steps while the chain runs.
type counters struct {
	droppedDates int
	bounds       *Span
	failures     []schema.Failure
}

// buildStep turns one configured transform into a Transformer bound to its
// column. A skipped step returns a nil Transformer and a non-empty reason.
func buildStep(tc config.Transform, roles resolver.Roles, t table.Table, c *counters) (transformer.Transformer, target, error) {
	o := tc.Options
	var tg target
	switch tc.Kind {
	case "normalize_dates", "normalize_categories", "filter_range", "filter_category":
		var err error
		tg, err = resolveTarget(o.String("column", ""), o.String("role", ""), o.Bool("required", false), roles, t)
		if err != nil || tg.skip != "" {
			return nil, tg, err
		}
	}

	switch tc.Kind {
	case "normalize":
		return builtin.Normalize{BlankAsNull: o.Bool("blank_as_null", false)}, tg, nil

	case "coerce":
		types := make(map[string]table.Kind)
		for col, name := range o.StringMap("types") {
			k, err := table.ParseKind(name)
			if err != nil {
				return nil, tg, fmt.Errorf("coerce %s: %w", col, err)
			}
			types[col] = k
		}
		return builtin.Coerce{
			Types:  types,
			Layout: o.String("layout", ""),
			OnInvalid: func(column string, n int) {
				log.Printf("pipeline: coerce %s: %d cells could not be converted", column, n)
			},
		}, tg, nil

	case "require":
		return builtin.Require{Columns: o.StringSlice("columns")}, tg, nil

	case "dedup":
		return builtin.DeDup{Keys: o.StringSlice("keys"), Policy: o.String("policy", "keep-last")}, tg, nil

	case "normalize_dates":
		return builtin.NormalizeDatesStep{
			Column: tg.column,
			Layout: o.String("layout", ""),
			OnDrop: func(n int) { c.droppedDates += n },
		}, tg, nil

	case "normalize_categories":
		m, err := mappingFrom(o)
		if err != nil {
			return nil, tg, err
		}
		return builtin.NormalizeCategoriesStep{
			Column:   tg.column,
			Mapping:  m,
			Required: o.Bool("required", false),
		}, tg, nil

	case "validate":
		s, err := schemaFrom(o)
		if err != nil {
			return nil, tg, err
		}
		rejected := 0
		return builtin.Validate{
			Schema: s,
			Policy: o.String("policy", "strict"),
			Reject: func(f schema.Failure) {
				c.failures = append(c.failures, f)
				rejected++
				if rejected <= logLimit {
					log.Printf("pipeline: validate %s: %s", s.Name, f)
				}
				if rejected == logLimit+1 {
					log.Printf("pipeline: validate %s: additional failures suppressed", s.Name)
				}
			},
		}, tg, nil

	case "filter_range":
		return builtin.FilterRangeStep{
			Column: tg.column,
			Start:  o.String("start", ""),
			End:    o.String("end", ""),
			OnBounds: func(start, end time.Time) {
				c.bounds = &Span{Start: start, End: end}
			},
		}, tg, nil

	case "filter_category":
		return builtin.FilterCategoryStep{
			Column: tg.column,
			Value:  table.FormatValue(o.Any("value")),
		}, tg, nil
	}
	return nil, tg, fmt.Errorf("unsupported transform kind %q", tc.Kind)
}

// mappingFrom reads "mapping" as a built-in name or an inline object.
func mappingFrom(o config.Options) (builtin.Mapping, error) {
	if m := o.StringMap("mapping"); len(m) > 0 {
		return builtin.Mapping(m), nil
	}
	return builtin.MappingByName(o.String("mapping", ""))
}

// schemaFrom reads exactly one of "schema", "schema_file" or "inline".
func schemaFrom(o config.Options) (schema.Schema, error) {
	var (
		s   schema.Schema
		err error
	)
	switch {
	case o.String("schema", "") != "":
		s, err = schema.Builtin(o.String("schema", ""))
	case o.String("schema_file", "") != "":
		s, err = schema.Load(o.String("schema_file", ""))
	case o.Any("inline") != nil:
		err = o.Decode("inline", &s)
		if err == nil && s.Name == "" {
			s.Name = "inline"
		}
	default:
		return schema.Schema{}, fmt.Errorf("validate needs one of schema, schema_file or inline")
	}
	if err != nil {
		return schema.Schema{}, err
	}
	if err := s.Check(); err != nil {
		return schema.Schema{}, fmt.Errorf("schema %s: %w", s.Name, err)
	}
	return s, nil
}
