package builtin

import (
	"testing"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// mkTable builds a table from name/values pairs in order.
func mkTable(t *testing.T, pairs ...any) table.Table {
	t.Helper()
	if len(pairs)%2 != 0 {
		t.Fatalf("mkTable: odd number of arguments")
	}
	cols := make([]table.Column, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		cols = append(cols, table.Column{Name: pairs[i].(string), Values: pairs[i+1].([]any)})
	}
	tb, err := table.New(cols...)
	if err != nil {
		t.Fatalf("table.New: %v", err)
	}
	return tb
}

// values returns the cells of column, failing the test when it is absent.
func values(t *testing.T, tb table.Table, column string) []any {
	t.Helper()
	c, ok := tb.Column(column)
	if !ok {
		t.Fatalf("column %q missing; have %v", column, tb.Columns())
	}
	return c.Values
}
