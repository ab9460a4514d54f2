package builtin

import (
	"strings"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// nbspReplacer repairs non-breaking spaces, including the "Â " mojibake left
// by Latin-1 round trips of UTF-8 exports.
var nbspReplacer = strings.NewReplacer("\u00c2\u00a0", " ", "\u00a0", " ")

// Normalize trims surrounding whitespace from every string cell and replaces
// non-breaking spaces. With BlankAsNull, cells that end up empty become null.
type Normalize struct {
	BlankAsNull bool
}

func (n Normalize) Apply(in table.Table) (table.Table, error) {
	out := in
	for _, name := range in.Columns() {
		col, _ := in.Column(name)
		changed := false
		for i, v := range col.Values {
			s, ok := v.(string)
			if !ok {
				continue
			}
			ns := strings.TrimSpace(nbspReplacer.Replace(s))
			var nv any = ns
			if ns == "" && n.BlankAsNull {
				nv = nil
			}
			if nv != v {
				col.Values[i] = nv
				changed = true
			}
		}
		if changed {
			out = replaceColumn(out, col)
		}
	}
	return out, nil
}
