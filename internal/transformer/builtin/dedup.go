package builtin

import (
	"sort"
	"strings"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// DeDup collapses rows that share a key and keeps one winner per key:
//
//   - "keep-first"   : the earliest row
//   - "keep-last"    : the latest row (default)
//   - "most-complete": the row with the most non-null, non-empty cells;
//     ties break by keep-last
//
// Daily custody snapshots list the same person on many days, so deduplicating
// on the inmate id turns a snapshot table into one row per person. Winners are
// emitted in the order of their original position.
type DeDup struct {
	Keys   []string
	Policy string
}

func (d DeDup) Apply(in table.Table) (table.Table, error) {
	if in.Len() == 0 || len(d.Keys) == 0 {
		return in, nil
	}
	keyCols := make([]table.Column, 0, len(d.Keys))
	for _, k := range d.Keys {
		c, err := in.Lookup(k)
		if err != nil {
			return table.Table{}, err
		}
		keyCols = append(keyCols, c)
	}

	policy := strings.ToLower(strings.TrimSpace(d.Policy))
	if policy == "" {
		policy = "keep-last"
	}

	keyOf := func(r int) string {
		var b strings.Builder
		for i, c := range keyCols {
			if i > 0 {
				b.WriteByte('\x1f')
			}
			if v := c.Values[r]; table.IsNull(v) {
				b.WriteByte('\x00')
			} else {
				b.WriteString(table.FormatValue(v))
			}
		}
		return b.String()
	}

	var scoreOf func(r int) int
	if policy == "most-complete" {
		all := make([]table.Column, in.Width())
		for i := range all {
			all[i] = in.ColumnAt(i)
		}
		scoreOf = func(r int) int {
			n := 0
			for _, c := range all {
				v := c.Values[r]
				if table.IsNull(v) || v == "" {
					continue
				}
				n++
			}
			return n
		}
	}

	type slot struct{ row, score int }
	winners := make(map[string]slot, in.Len())
	for r := 0; r < in.Len(); r++ {
		key := keyOf(r)
		prev, exists := winners[key]
		switch policy {
		case "keep-first":
			if !exists {
				winners[key] = slot{row: r}
			}
		case "most-complete":
			sc := scoreOf(r)
			if !exists || sc >= prev.score {
				winners[key] = slot{row: r, score: sc}
			}
		default:
			winners[key] = slot{row: r}
		}
	}

	rows := make([]int, 0, len(winners))
	for _, s := range winners {
		rows = append(rows, s.row)
	}
	sort.Ints(rows)
	return in.SelectRows(rows), nil
}
