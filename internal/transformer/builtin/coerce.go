package builtin

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/internal/parser/dates"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// Coerce converts the listed columns to their target kinds. Cells that cannot
// be converted become null; OnInvalid, when set, receives the column name and
// the number of such cells.
type Coerce struct {
	Types     map[string]table.Kind
	Layout    string // preferred date layout
	OnInvalid func(column string, n int)
}

func (c Coerce) Apply(in table.Table) (table.Table, error) {
	out := in
	p := dates.Default.WithPreferred(c.Layout)
	for _, name := range in.Columns() {
		kind, ok := c.Types[name]
		if !ok {
			continue
		}
		col, _ := in.Column(name)
		bad := 0
		for i, v := range col.Values {
			cv, ok := coerceValue(v, kind, p)
			if !ok {
				bad++
				cv = nil
			}
			col.Values[i] = cv
		}
		col.Kind = kind
		out = replaceColumn(out, col)
		if bad > 0 && c.OnInvalid != nil {
			c.OnInvalid(name, bad)
		}
	}
	return out, nil
}

// coerceValue converts v to kind on a best-effort basis. Nulls and blank
// strings convert to nil with ok=true.
func coerceValue(v any, kind table.Kind, p dates.Parser) (any, bool) {
	if table.IsNull(v) {
		return nil, true
	}
	if s, isStr := v.(string); isStr {
		if HasEdgeSpace(s) {
			s = strings.TrimSpace(s)
		}
		if s == "" {
			return nil, true
		}
		v = s
	}

	switch kind {
	case table.KindAny:
		return v, true

	case table.KindString:
		return asString(v), true

	case table.KindInt:
		switch x := v.(type) {
		case int64:
			return x, true
		case int:
			return int64(x), true
		case float64:
			return integralFloat(x)
		case json.Number:
			return parseIntString(x.String())
		case string:
			return parseIntString(x)
		}
		return nil, false

	case table.KindFloat:
		switch x := v.(type) {
		case float64:
			return x, true
		case int64:
			return float64(x), true
		case int:
			return float64(x), true
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return nil, false
			}
			return f, true
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return nil, false
			}
			return f, true
		}
		return nil, false

	case table.KindDate:
		if ts, ok := p.Value(v); ok {
			return ts, true
		}
		return nil, false
	}
	return nil, false
}

// hasKind reports whether v already carries the Go type of kind.
func hasKind(v any, kind table.Kind) bool {
	switch kind {
	case table.KindAny:
		return true
	case table.KindString:
		_, ok := v.(string)
		return ok
	case table.KindInt:
		switch v.(type) {
		case int64, int:
			return true
		}
		return false
	case table.KindFloat:
		_, ok := v.(float64)
		return ok
	case table.KindDate:
		_, ok := v.(time.Time)
		return ok
	}
	return false
}

// parseIntString accepts integers and integral floats such as "2019.0", which
// is how integer columns with gaps come out of spreadsheet exports.
func parseIntString(s string) (any, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return integralFloat(f)
}

// integralFloat converts f when it is a whole number inside the int64 range.
// float64(math.MaxInt64) rounds up to 2^63, so the upper bound is exclusive.
func integralFloat(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, false
	}
	return int64(f), true
}

// numeric returns the float value of int and float cells.
func numeric(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// asString converts common cell types to their display string.
func asString(v any) string { return table.FormatValue(v) }

// HasEdgeSpace reports whether s starts or ends with ASCII whitespace, so
// callers can skip TrimSpace on the common clean path.
func HasEdgeSpace(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	switch s[len(s)-1] {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// replaceColumn swaps in a column of the table's own length.
func replaceColumn(t table.Table, c table.Column) table.Table {
	out, err := t.WithColumn(c)
	if err != nil {
		panic(fmt.Sprintf("builtin: replace column %q: %v", c.Name, err))
	}
	return out
}
