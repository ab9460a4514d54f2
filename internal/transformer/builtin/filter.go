package builtin

import (
	"fmt"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/internal/parser/dates"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// BoundError reports a range bound that is not a recognizable date.
type BoundError struct {
	Bound string // "start" or "end"
	Value string
}

func (e *BoundError) Error() string {
	return fmt.Sprintf("unparsable %s bound %q", e.Bound, e.Value)
}

// FilterRange keeps rows whose date in column lies within [start, end]. Raw
// cells are read the way NormalizeDates reads them, with the layout detected
// over the whole column. Null or unparsable cells never match, and start after
// end yields an empty table.
func FilterRange(t table.Table, column, start, end string) (table.Table, error) {
	from, ok := dates.Parse(start)
	if !ok {
		return table.Table{}, &BoundError{Bound: "start", Value: start}
	}
	to, ok := dates.Parse(end)
	if !ok {
		return table.Table{}, &BoundError{Bound: "end", Value: end}
	}
	return FilterRangeTime(t, column, from, to)
}

// FilterRangeTime is FilterRange for already parsed bounds.
func FilterRangeTime(t table.Table, column string, start, end time.Time) (table.Table, error) {
	col, err := t.Lookup(column)
	if err != nil {
		return table.Table{}, err
	}
	p := columnParser(col)
	instants := make([]time.Time, len(col.Values))
	valid := make([]bool, len(col.Values))
	for i, v := range col.Values {
		instants[i], valid[i] = p.Value(v)
	}
	return t.Filter(func(r int) bool {
		return valid[r] && !instants[r].Before(start) && !instants[r].After(end)
	}), nil
}

// FilterByCategory keeps rows whose cell in column equals value in string
// form. Null cells never match.
func FilterByCategory(t table.Table, column, value string) (table.Table, error) {
	col, err := t.Lookup(column)
	if err != nil {
		return table.Table{}, err
	}
	return t.Filter(func(r int) bool {
		v := col.Values[r]
		return !table.IsNull(v) && asString(v) == value
	}), nil
}

// FilterRangeStep is the transformer form of FilterRange. An empty Start or
// End falls back to the earliest or latest date in the column. OnBounds, when
// set, receives the bounds actually applied.
type FilterRangeStep struct {
	Column   string
	Start    string
	End      string
	OnBounds func(start, end time.Time)
}

func (s FilterRangeStep) Apply(in table.Table) (table.Table, error) {
	var from, to time.Time
	if s.Start == "" || s.End == "" {
		lo, hi, ok, err := DateSpan(in, s.Column)
		if err != nil {
			return table.Table{}, err
		}
		if !ok {
			// nothing parseable: no row can match
			return in.Head(0), nil
		}
		from, to = lo, hi
	}
	if s.Start != "" {
		t, ok := dates.Parse(s.Start)
		if !ok {
			return table.Table{}, &BoundError{Bound: "start", Value: s.Start}
		}
		from = t
	}
	if s.End != "" {
		t, ok := dates.Parse(s.End)
		if !ok {
			return table.Table{}, &BoundError{Bound: "end", Value: s.End}
		}
		to = t
	}
	if s.OnBounds != nil {
		s.OnBounds(from, to)
	}
	return FilterRangeTime(in, s.Column, from, to)
}

// FilterCategoryStep is the transformer form of FilterByCategory.
type FilterCategoryStep struct {
	Column string
	Value  string
}

func (s FilterCategoryStep) Apply(in table.Table) (table.Table, error) {
	return FilterByCategory(in, s.Column, s.Value)
}
