// Package schema declares the shape a cleaned dataset must have and the
// failure report produced when a table does not conform.
package schema

import (
	"errors"
	"fmt"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/internal/parser/dates"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// UnknownPolicy says what validation does with columns the schema does not
// declare.
type UnknownPolicy string

const (
	UnknownIgnore UnknownPolicy = "ignore"
	UnknownReject UnknownPolicy = "reject"
	UnknownDrop   UnknownPolicy = "drop"
)

// ColumnSpec is the declared contract for one column.
type ColumnSpec struct {
	Name string     `json:"name" yaml:"name"`
	Type table.Kind `json:"type" yaml:"type"`

	// Nullable allows null cells. A non-nullable column must also be present.
	Nullable bool `json:"nullable,omitempty" yaml:"nullable,omitempty"`
	// Required demands the column be present even when it is nullable.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Allowed is compared against the string form of each non-null value.
	Allowed []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`
	Min     *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	// From and To bound date columns inclusively; any spelling accepted by
	// the dates package.
	From string `json:"from,omitempty" yaml:"from,omitempty"`
	To   string `json:"to,omitempty" yaml:"to,omitempty"`
	// Layout is tried first when coercing strings to dates.
	Layout string `json:"layout,omitempty" yaml:"layout,omitempty"`
}

// Schema is an ordered list of column contracts plus table-level policies.
type Schema struct {
	Name    string        `json:"name" yaml:"name"`
	Columns []ColumnSpec  `json:"columns" yaml:"columns"`
	Unknown UnknownPolicy `json:"unknown,omitempty" yaml:"unknown,omitempty"`
	// Coerce enables best-effort conversion of raw values to the declared
	// kind. Without it a value must already carry the kind's Go type.
	Coerce bool `json:"coerce,omitempty" yaml:"coerce,omitempty"`
}

// Column returns the spec for name.
func (s Schema) Column(name string) (ColumnSpec, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// Declares reports whether the schema has a spec for name.
func (s Schema) Declares(name string) bool {
	_, ok := s.Column(name)
	return ok
}

// Policy returns the effective unknown-column policy, defaulting to ignore.
func (s Schema) Policy() UnknownPolicy {
	if s.Unknown == "" {
		return UnknownIgnore
	}
	return s.Unknown
}

// Check reports problems with the schema declaration itself: duplicate or
// empty column names, an unknown policy, inverted bounds and unparsable dates.
func (s Schema) Check() error {
	var errs []error
	switch s.Policy() {
	case UnknownIgnore, UnknownReject, UnknownDrop:
	default:
		errs = append(errs, fmt.Errorf("unknown column policy %q", s.Unknown))
	}
	seen := make(map[string]struct{}, len(s.Columns))
	for i, c := range s.Columns {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("columns[%d]: empty name", i))
			continue
		}
		if _, dup := seen[c.Name]; dup {
			errs = append(errs, fmt.Errorf("columns[%d]: duplicate column %q", i, c.Name))
		}
		seen[c.Name] = struct{}{}
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			errs = append(errs, fmt.Errorf("column %q: min %v > max %v", c.Name, *c.Min, *c.Max))
		}
		from, okFrom := c.FromTime()
		to, okTo := c.ToTime()
		if c.From != "" && !okFrom {
			errs = append(errs, fmt.Errorf("column %q: unparsable from %q", c.Name, c.From))
		}
		if c.To != "" && !okTo {
			errs = append(errs, fmt.Errorf("column %q: unparsable to %q", c.Name, c.To))
		}
		if okFrom && okTo && from.After(to) {
			errs = append(errs, fmt.Errorf("column %q: from %s after to %s", c.Name, c.From, c.To))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("schema %q: %w", s.Name, errors.Join(errs...))
	}
	return nil
}

// FromTime parses From. ok is false when From is empty or unparsable.
func (c ColumnSpec) FromTime() (time.Time, bool) { return dates.Parse(c.From) }

// ToTime parses To. ok is false when To is empty or unparsable.
func (c ColumnSpec) ToTime() (time.Time, bool) { return dates.Parse(c.To) }

// Float returns a pointer to v, for building Min/Max in code.
func Float(v float64) *float64 { return &v }
