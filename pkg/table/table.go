// Package table defines the in-memory columnar dataset passed between the
// cleaning stages.
//
// A Table is an ordered list of named, equal-length columns. Rows are
// positional: row i of every column belongs to the same record. Tables are
// values. Methods that change shape or content return a new Table and never
// write into the receiver's value slices, so a Table handed to a stage is
// never partially modified when that stage fails.
package table

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRaggedColumns is returned when columns of different lengths are
	// combined into one Table.
	ErrRaggedColumns = errors.New("table: columns have different lengths")

	// ErrDuplicateColumn is returned when two columns share a name.
	ErrDuplicateColumn = errors.New("table: duplicate column name")

	// ErrMissingColumn is matched (errors.Is) by *MissingColumnError.
	ErrMissingColumn = errors.New("table: missing column")
)

// MissingColumnError reports an operation on a column that the table does not
// have, in a context where absence cannot be treated as a no-op.
type MissingColumnError struct {
	Column    string
	Available []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("column %q not found (available: %s)", e.Column, strings.Join(e.Available, ", "))
}

// Is makes errors.Is(err, ErrMissingColumn) true for any *MissingColumnError.
func (e *MissingColumnError) Is(target error) bool { return target == ErrMissingColumn }

// Column is a named sequence of cell values. A nil cell is null.
type Column struct {
	Name   string
	Kind   Kind
	Values []any
}

// Len returns the number of cells in the column.
func (c Column) Len() int { return len(c.Values) }

// Clone returns a copy of c that shares no backing array with it.
func (c Column) Clone() Column {
	vals := make([]any, len(c.Values))
	copy(vals, c.Values)
	return Column{Name: c.Name, Kind: c.Kind, Values: vals}
}

// Table is an ordered set of equal-length columns. The zero value is an empty
// table with no columns and no rows.
type Table struct {
	cols []Column
	rows int
}

// New builds a Table from cols, cloning each column. It fails with
// ErrRaggedColumns or ErrDuplicateColumn.
func New(cols ...Column) (Table, error) {
	t := Table{cols: make([]Column, 0, len(cols))}
	seen := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		if _, dup := seen[c.Name]; dup {
			return Table{}, fmt.Errorf("%w: %q", ErrDuplicateColumn, c.Name)
		}
		seen[c.Name] = struct{}{}
		if i == 0 {
			t.rows = c.Len()
		} else if c.Len() != t.rows {
			return Table{}, fmt.Errorf("%w: %q has %d rows, want %d", ErrRaggedColumns, c.Name, c.Len(), t.rows)
		}
		t.cols = append(t.cols, c.Clone())
	}
	return t, nil
}

// FromRecords builds a Table whose columns follow the given order. Keys
// missing from a record become null cells; keys not listed in columns are
// ignored. All columns are KindAny.
func FromRecords(columns []string, recs []map[string]any) Table {
	cols := make([]Column, len(columns))
	for i, name := range columns {
		vals := make([]any, len(recs))
		for r, rec := range recs {
			vals[r] = rec[name]
		}
		cols[i] = Column{Name: name, Kind: KindAny, Values: vals}
	}
	return Table{cols: cols, rows: len(recs)}
}

// Len returns the number of rows.
func (t Table) Len() int { return t.rows }

// Width returns the number of columns.
func (t Table) Width() int { return len(t.cols) }

// Columns returns the column names in table order.
func (t Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (t Table) Index(name string) int {
	for i, c := range t.cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table has a column with this exact name.
func (t Table) Has(name string) bool { return t.Index(name) >= 0 }

// Column returns a copy of the named column.
func (t Table) Column(name string) (Column, bool) {
	i := t.Index(name)
	if i < 0 {
		return Column{}, false
	}
	return t.cols[i].Clone(), true
}

// Lookup is Column with a *MissingColumnError instead of a bool.
func (t Table) Lookup(name string) (Column, error) {
	c, ok := t.Column(name)
	if !ok {
		return Column{}, &MissingColumnError{Column: name, Available: t.Columns()}
	}
	return c, nil
}

// ColumnAt returns a copy of the i-th column. It panics when i is out of range.
func (t Table) ColumnAt(i int) Column { return t.cols[i].Clone() }

// Value returns the cell at row in the named column.
func (t Table) Value(row int, column string) (any, bool) {
	i := t.Index(column)
	if i < 0 || row < 0 || row >= t.rows {
		return nil, false
	}
	return t.cols[i].Values[row], true
}

// WithColumn returns a table where c replaces the column of the same name, or
// is appended when no such column exists. On a table without columns any
// length is accepted.
func (t Table) WithColumn(c Column) (Table, error) {
	if len(t.cols) > 0 && c.Len() != t.rows {
		return Table{}, fmt.Errorf("%w: %q has %d rows, want %d", ErrRaggedColumns, c.Name, c.Len(), t.rows)
	}
	out := Table{cols: make([]Column, len(t.cols), len(t.cols)+1), rows: c.Len()}
	copy(out.cols, t.cols)
	if i := t.Index(c.Name); i >= 0 {
		out.cols[i] = c.Clone()
		return out, nil
	}
	out.cols = append(out.cols, c.Clone())
	return out, nil
}

// Without returns a table lacking the named columns. Unknown names are ignored.
func (t Table) Without(names ...string) Table {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := Table{cols: make([]Column, 0, len(t.cols)), rows: t.rows}
	for _, c := range t.cols {
		if _, ok := drop[c.Name]; ok {
			continue
		}
		out.cols = append(out.cols, c)
	}
	return out
}

// Rename returns a table whose columns carry the given names, in order.
func (t Table) Rename(names []string) (Table, error) {
	if len(names) != len(t.cols) {
		return Table{}, fmt.Errorf("table: rename with %d names for %d columns", len(names), len(t.cols))
	}
	seen := make(map[string]struct{}, len(names))
	out := Table{cols: make([]Column, len(t.cols)), rows: t.rows}
	for i, c := range t.cols {
		if _, dup := seen[names[i]]; dup {
			return Table{}, fmt.Errorf("%w: %q", ErrDuplicateColumn, names[i])
		}
		seen[names[i]] = struct{}{}
		c.Name = names[i]
		out.cols[i] = c
	}
	return out, nil
}

// SelectRows returns a table holding the given rows in the given order.
func (t Table) SelectRows(idx []int) Table {
	out := Table{cols: make([]Column, len(t.cols)), rows: len(idx)}
	for i, c := range t.cols {
		vals := make([]any, len(idx))
		for j, r := range idx {
			vals[j] = c.Values[r]
		}
		out.cols[i] = Column{Name: c.Name, Kind: c.Kind, Values: vals}
	}
	return out
}

// Filter returns the rows for which keep reports true, preserving order.
func (t Table) Filter(keep func(row int) bool) Table {
	idx := make([]int, 0, t.rows)
	for r := 0; r < t.rows; r++ {
		if keep(r) {
			idx = append(idx, r)
		}
	}
	return t.SelectRows(idx)
}

// Head returns the first n rows.
func (t Table) Head(n int) Table {
	if n > t.rows {
		n = t.rows
	}
	if n < 0 {
		n = 0
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return t.SelectRows(idx)
}

// Records returns one map per row keyed by column name.
func (t Table) Records() []map[string]any {
	out := make([]map[string]any, t.rows)
	for r := 0; r < t.rows; r++ {
		rec := make(map[string]any, len(t.cols))
		for _, c := range t.cols {
			rec[c.Name] = c.Values[r]
		}
		out[r] = rec
	}
	return out
}
