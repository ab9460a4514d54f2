package builtin

import (
	"fmt"
	"strings"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/internal/parser/dates"
	"github.com/advanced-computing/sleepy-narwhal/internal/schema"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// ValidateTable checks t against s and returns the coerced table. Every
// declared column and every row is checked; all failures come back together
// in a *schema.ValidationError, ordered by declared column and then by row,
// with unknown-column failures last. t is never modified.
func ValidateTable(t table.Table, s schema.Schema) (table.Table, error) {
	out, fails := validate(t, s)
	if len(fails) > 0 {
		return table.Table{}, &schema.ValidationError{Schema: s.Name, Failures: fails}
	}
	return out, nil
}

// validate returns the coerced table alongside all failures. Cells that fail
// coercion are null in the returned table.
func validate(t table.Table, s schema.Schema) (table.Table, []schema.Failure) {
	var fails []schema.Failure
	out := t

	for _, spec := range s.Columns {
		col, ok := t.Column(spec.Name)
		if !ok {
			if spec.Required || !spec.Nullable {
				fails = append(fails, schema.Failure{
					Row:     -1,
					Column:  spec.Name,
					Kind:    schema.MissingColumn,
					Message: fmt.Sprintf("column %q not in table", spec.Name),
				})
				continue
			}
			out = replaceColumn(out, table.Column{Name: spec.Name, Kind: spec.Type, Values: make([]any, t.Len())})
			continue
		}
		cm := compileSpec(spec)
		for r, v := range col.Values {
			cv, fs := cm.check(r, v, s.Coerce)
			col.Values[r] = cv
			fails = append(fails, fs...)
		}
		col.Kind = spec.Type
		out = replaceColumn(out, col)
	}

	var undeclared []string
	for _, name := range t.Columns() {
		if !s.Declares(name) {
			undeclared = append(undeclared, name)
		}
	}
	switch s.Policy() {
	case schema.UnknownDrop:
		out = out.Without(undeclared...)
	case schema.UnknownReject:
		for _, name := range undeclared {
			fails = append(fails, schema.Failure{
				Row:     -1,
				Column:  name,
				Kind:    schema.UnknownColumn,
				Message: fmt.Sprintf("column %q is not declared by schema %q", name, s.Name),
			})
		}
	}
	return out, fails
}

// columnMeta holds per-column data precomputed once per validation pass.
type columnMeta struct {
	spec    schema.ColumnSpec
	parser  dates.Parser
	allowed map[string]struct{}
	from    time.Time
	to      time.Time
	hasFrom bool
	hasTo   bool
}

func compileSpec(spec schema.ColumnSpec) columnMeta {
	m := columnMeta{spec: spec, parser: dates.Default.WithPreferred(spec.Layout)}
	if len(spec.Allowed) > 0 {
		m.allowed = make(map[string]struct{}, len(spec.Allowed))
		for _, a := range spec.Allowed {
			m.allowed[a] = struct{}{}
		}
	}
	m.from, m.hasFrom = spec.FromTime()
	m.to, m.hasTo = spec.ToTime()
	return m
}

// check validates one cell and returns its coerced value.
func (m columnMeta) check(row int, v any, coerce bool) (any, []schema.Failure) {
	spec := m.spec
	fail := func(kind schema.FailureKind, rule string, msg string, args ...any) schema.Failure {
		return schema.Failure{Row: row, Column: spec.Name, Kind: kind, Rule: rule, Value: v, Message: fmt.Sprintf(msg, args...)}
	}

	var cv any
	if coerce {
		var ok bool
		cv, ok = coerceValue(v, spec.Type, m.parser)
		if !ok {
			return nil, []schema.Failure{fail(schema.TypeCoercion, "", "cannot convert %q to %s", asString(v), spec.Type)}
		}
	} else {
		if !table.IsNull(v) && !hasKind(v, spec.Type) {
			return nil, []schema.Failure{fail(schema.TypeCoercion, "", "value of type %T is not %s", v, spec.Type)}
		}
		cv = v
		if table.IsNull(cv) {
			cv = nil
		}
	}

	if cv == nil {
		if !spec.Nullable {
			return nil, []schema.Failure{fail(schema.NotNullable, "", "null value in non-nullable column")}
		}
		return nil, nil
	}

	var fails []schema.Failure
	if m.allowed != nil {
		s := asString(cv)
		if _, ok := m.allowed[s]; !ok {
			fails = append(fails, fail(schema.ConstraintViolation, schema.RuleIsIn, "%q not in [%s]", s, strings.Join(spec.Allowed, ", ")))
		}
	}
	if f, ok := numeric(cv); ok {
		if spec.Min != nil && f < *spec.Min {
			fails = append(fails, fail(schema.ConstraintViolation, schema.RuleGE, "%v < %v", cv, *spec.Min))
		}
		if spec.Max != nil && f > *spec.Max {
			fails = append(fails, fail(schema.ConstraintViolation, schema.RuleLE, "%v > %v", cv, *spec.Max))
		}
	}
	if ts, ok := cv.(time.Time); ok {
		if m.hasFrom && ts.Before(m.from) {
			fails = append(fails, fail(schema.ConstraintViolation, schema.RuleGE, "%s before %s", table.FormatValue(ts), spec.From))
		}
		if m.hasTo && ts.After(m.to) {
			fails = append(fails, fail(schema.ConstraintViolation, schema.RuleLE, "%s after %s", table.FormatValue(ts), spec.To))
		}
	}
	return cv, fails
}

// Validate adapts ValidateTable to the transformer chain.
//
// Policy "strict" (the default) fails the whole table on any failure.
// "lenient" drops rows with row-level failures and keeps going; column-level
// failures (missing or rejected columns) still fail. Reject, when set, sees
// every failure in both modes.
type Validate struct {
	Schema schema.Schema
	Policy string
	Reject func(schema.Failure)
}

func (v Validate) Apply(in table.Table) (table.Table, error) {
	out, fails := validate(in, v.Schema)
	if v.Reject != nil {
		for _, f := range fails {
			v.Reject(f)
		}
	}
	if len(fails) == 0 {
		return out, nil
	}
	if !strings.EqualFold(v.Policy, "lenient") {
		return table.Table{}, &schema.ValidationError{Schema: v.Schema.Name, Failures: fails}
	}

	bad := make(map[int]struct{}, len(fails))
	var columnLevel []schema.Failure
	for _, f := range fails {
		if f.Row < 0 {
			columnLevel = append(columnLevel, f)
			continue
		}
		bad[f.Row] = struct{}{}
	}
	if len(columnLevel) > 0 {
		return table.Table{}, &schema.ValidationError{Schema: v.Schema.Name, Failures: columnLevel}
	}
	return out.Filter(func(r int) bool {
		_, drop := bad[r]
		return !drop
	}), nil
}
