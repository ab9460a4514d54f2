package builtin

import (
	"encoding/json"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/internal/parser/dates"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// NormalizeDates parses column as dates. Values that do not parse become null
// and every row with a null date is dropped; surviving rows keep their order.
// The column's kind becomes KindDate. A missing column yields a
// *table.MissingColumnError.
func NormalizeDates(t table.Table, column string) (table.Table, error) {
	out, _, err := normalizeDates(t, column, "")
	return out, err
}

func normalizeDates(t table.Table, column, layout string) (table.Table, int, error) {
	col, err := t.Lookup(column)
	if err != nil {
		return table.Table{}, 0, err
	}

	p := columnParser(col)
	if layout != "" {
		p = dates.Default.WithPreferred(layout)
	}

	keep := make([]int, 0, len(col.Values))
	for i, v := range col.Values {
		ts, ok := p.Value(v)
		if !ok {
			col.Values[i] = nil
			continue
		}
		col.Values[i] = ts
		keep = append(keep, i)
	}
	col.Kind = table.KindDate

	out := replaceColumn(t, col).SelectRows(keep)
	return out, t.Len() - len(keep), nil
}

// columnParser returns the date parser for a column: the default one for a
// column already holding dates, otherwise one preferring the layout detected
// over the column's text cells.
func columnParser(col table.Column) dates.Parser {
	if col.Kind == table.KindDate {
		return dates.Default
	}
	return dates.Default.WithPreferred(dates.DetectLayout(stringSamples(col.Values)))
}

func stringSamples(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		switch x := v.(type) {
		case string:
			out = append(out, x)
		case json.Number:
			out = append(out, x.String())
		}
	}
	return out
}

// NormalizeDatesStep is the transformer form of NormalizeDates. Layout, when
// set, is tried before the detected one. OnDrop receives the number of rows
// removed because their date was missing or unparsable.
type NormalizeDatesStep struct {
	Column string
	Layout string
	OnDrop func(n int)
}

func (s NormalizeDatesStep) Apply(in table.Table) (table.Table, error) {
	out, dropped, err := normalizeDates(in, s.Column, s.Layout)
	if err != nil {
		return table.Table{}, err
	}
	if s.OnDrop != nil {
		s.OnDrop(dropped)
	}
	return out, nil
}

// DateSpan returns the earliest and latest date in column. ok is false when
// the column has no parseable values.
func DateSpan(t table.Table, column string) (minT, maxT time.Time, ok bool, err error) {
	col, err := t.Lookup(column)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	p := columnParser(col)
	for _, v := range col.Values {
		ts, parsed := p.Value(v)
		if !parsed {
			continue
		}
		if !ok || ts.Before(minT) {
			minT = ts
		}
		if !ok || ts.After(maxT) {
			maxT = ts
		}
		ok = true
	}
	return minT, maxT, ok, nil
}
