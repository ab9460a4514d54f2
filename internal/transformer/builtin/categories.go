package builtin

import (
	"fmt"
	"sort"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// UnknownLabel replaces nulls in categorical columns.
const UnknownLabel = "Unknown"

// Mapping translates raw category spellings to canonical labels. Lookups are
// exact and case-sensitive.
type Mapping map[string]string

// RaceMapping covers the full words and single-letter codes used in the
// inmates extract.
func RaceMapping() Mapping {
	return Mapping{
		"BLACK":    "Black",
		"WHITE":    "White",
		"HISPANIC": "Hispanic",
		"ASIAN":    "Asian",
		"OTHER":    "Other",
		"UNKNOWN":  UnknownLabel,
		"B":        "Black",
		"W":        "White",
		"H":        "Hispanic",
		"A":        "Asian",
		"I":        "American Indian",
		"O":        "Other",
	}
}

// CustodyMapping spells out custody level abbreviations.
func CustodyMapping() Mapping {
	return Mapping{
		"MIN": "Minimum",
		"MED": "Medium",
		"MAX": "Maximum",
	}
}

var mappings = map[string]func() Mapping{
	"race":    RaceMapping,
	"custody": CustodyMapping,
}

// MappingByName returns a built-in mapping for use from configuration.
func MappingByName(name string) (Mapping, error) {
	f, ok := mappings[name]
	if !ok {
		names := make([]string, 0, len(mappings))
		for n := range mappings {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown category mapping %q (have %v)", name, names)
	}
	return f(), nil
}

// NormalizeCategories fills nulls in column with UnknownLabel and then
// replaces every string cell found in m. Unmapped values are kept. A table
// without the column is returned unchanged.
func NormalizeCategories(t table.Table, column string, m Mapping) table.Table {
	col, ok := t.Column(column)
	if !ok {
		return t
	}
	for i, v := range col.Values {
		if table.IsNull(v) {
			v = UnknownLabel
		}
		if s, isStr := v.(string); isStr {
			if canon, hit := m[s]; hit {
				v = canon
			}
		}
		col.Values[i] = v
	}
	return replaceColumn(t, col)
}

// NormalizeCategoriesStep is the transformer form of NormalizeCategories.
// When Required is set a missing column is an error instead of a no-op.
type NormalizeCategoriesStep struct {
	Column   string
	Mapping  Mapping
	Required bool
}

func (s NormalizeCategoriesStep) Apply(in table.Table) (table.Table, error) {
	if s.Required && !in.Has(s.Column) {
		return table.Table{}, &table.MissingColumnError{Column: s.Column, Available: in.Columns()}
	}
	return NormalizeCategories(in, s.Column, s.Mapping), nil
}
