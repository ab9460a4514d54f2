// Package transformer composes table-to-table cleaning stages.
package transformer

import (
	"fmt"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// Transformer turns one table into another. Implementations must not modify
// the input table; on error the input is still valid.
type Transformer interface {
	Apply(in table.Table) (table.Table, error)
}

// Func adapts a plain function to Transformer.
type Func func(table.Table) (table.Table, error)

func (f Func) Apply(in table.Table) (table.Table, error) { return f(in) }

// Named attaches a label used in errors and logs.
type Named struct {
	Name string
	Transformer
}

// Chain is an ordered list of transformers.
type Chain []Transformer

// Apply runs each transformer on the previous one's output and stops at the
// first error, which is wrapped with the failing step's position and name.
func (c Chain) Apply(in table.Table) (table.Table, error) {
	out := in
	for i, t := range c {
		next, err := t.Apply(out)
		if err != nil {
			return table.Table{}, fmt.Errorf("step %d (%s): %w", i, nameOf(t), err)
		}
		out = next
	}
	return out, nil
}

func nameOf(t Transformer) string {
	switch x := t.(type) {
	case Named:
		return x.Name
	case *Named:
		return x.Name
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%T", t)
	}
}
