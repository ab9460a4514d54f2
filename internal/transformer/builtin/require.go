// Package builtin contains the cleaning stages used by dataset pipelines:
// date and category normalization, range and category filters, schema
// validation, and small row-level helpers.
package builtin

import "github.com/advanced-computing/sleepy-narwhal/pkg/table"

// Require removes every row that has a null or empty value in any of Columns.
// A listed column that is absent is an error.
type Require struct {
	Columns []string
}

func (r Require) Apply(in table.Table) (table.Table, error) {
	cols := make([]table.Column, 0, len(r.Columns))
	for _, name := range r.Columns {
		c, err := in.Lookup(name)
		if err != nil {
			return table.Table{}, err
		}
		cols = append(cols, c)
	}
	return in.Filter(func(row int) bool {
		for _, c := range cols {
			v := c.Values[row]
			if table.IsNull(v) || v == "" {
				return false
			}
		}
		return true
	}), nil
}
