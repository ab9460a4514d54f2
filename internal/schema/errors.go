package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// ErrSchemaValidation is matched (errors.Is) by *ValidationError.
var ErrSchemaValidation = errors.New("schema validation failed")

// FailureKind classifies a validation failure.
type FailureKind string

const (
	MissingColumn       FailureKind = "missing_column"
	TypeCoercion        FailureKind = "type_coercion"
	NotNullable         FailureKind = "not_nullable"
	ConstraintViolation FailureKind = "constraint_violation"
	UnknownColumn       FailureKind = "unknown_column"
)

// Constraint rule names carried by ConstraintViolation failures.
const (
	RuleIsIn = "isin"
	RuleGE   = "ge"
	RuleLE   = "le"
)

// Failure is one violation of a schema. Row is -1 for column-level failures
// (missing_column, unknown_column).
type Failure struct {
	Row     int         `json:"row"`
	Column  string      `json:"column"`
	Kind    FailureKind `json:"kind"`
	Rule    string      `json:"rule,omitempty"`
	Value   any         `json:"value,omitempty"`
	Message string      `json:"message"`
}

func (f Failure) String() string {
	var b strings.Builder
	if f.Row >= 0 {
		fmt.Fprintf(&b, "row %d ", f.Row)
	}
	fmt.Fprintf(&b, "column %q: %s", f.Column, f.Kind)
	if f.Rule != "" {
		b.WriteString(" " + f.Rule)
	}
	if f.Message != "" {
		b.WriteString(": " + f.Message)
	}
	return b.String()
}

// ValidationError carries every failure found in one validation pass.
type ValidationError struct {
	Schema   string
	Failures []Failure
}

// Error summarizes the first few failures.
func (e *ValidationError) Error() string {
	const maxShown = 3
	b := &strings.Builder{}
	n := len(e.Failures)
	fmt.Fprintf(b, "schema %q: %d failure(s)", e.Schema, n)
	lim := n
	if lim > maxShown {
		lim = maxShown
	}
	for i := 0; i < lim; i++ {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(e.Failures[i].String())
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrSchemaValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrSchemaValidation }

// CountByKind tallies failures per kind.
func (e *ValidationError) CountByKind() map[FailureKind]int {
	out := make(map[FailureKind]int)
	for _, f := range e.Failures {
		out[f.Kind]++
	}
	return out
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// FailureTable renders failures as a table with columns row, column, kind,
// rule, value and message, so they can be reported like any other dataset.
func FailureTable(fs []Failure) table.Table {
	recs := make([]map[string]any, len(fs))
	for i, f := range fs {
		recs[i] = map[string]any{
			"row":     int64(f.Row),
			"column":  f.Column,
			"kind":    string(f.Kind),
			"rule":    f.Rule,
			"value":   table.FormatValue(f.Value),
			"message": f.Message,
		}
	}
	return table.FromRecords([]string{"row", "column", "kind", "rule", "value", "message"}, recs)
}
