package schema

import (
	"fmt"
	"sort"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// Inmates validates the daily inmates-in-custody extract as published, with
// custody levels still abbreviated.
func Inmates() Schema {
	return Schema{
		Name: "inmates",
		Columns: []ColumnSpec{
			{Name: "race", Type: table.KindString, Nullable: true},
			{Name: "custody_level", Type: table.KindString, Nullable: true, Allowed: []string{"MIN", "MED", "MAX"}},
		},
		Unknown: UnknownIgnore,
		Coerce:  true,
	}
}

// InmatesDisplay validates the inmates extract after custody levels have been
// spelled out for display.
func InmatesDisplay() Schema {
	s := Inmates()
	s.Name = "inmates_display"
	s.Columns[1].Allowed = []string{"Minimum", "Medium", "Maximum"}
	return s
}

// HateCrimes validates the hate-crime complaints dataset.
func HateCrimes() Schema {
	return Schema{
		Name: "hate_crimes",
		Columns: []ColumnSpec{
			{Name: "complaint_year_number", Type: table.KindInt, Nullable: true, Min: Float(1900), Max: Float(2100)},
			{Name: "bias_motive_description", Type: table.KindString, Nullable: true},
		},
		Unknown: UnknownIgnore,
		Coerce:  true,
	}
}

var builtins = map[string]func() Schema{
	"inmates":         Inmates,
	"inmates_display": InmatesDisplay,
	"hate_crimes":     HateCrimes,
}

// Builtin returns the named built-in schema.
func Builtin(name string) (Schema, error) {
	f, ok := builtins[name]
	if !ok {
		return Schema{}, fmt.Errorf("unknown builtin schema %q (have %v)", name, BuiltinNames())
	}
	return f(), nil
}

// BuiltinNames lists the built-in schema names in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
