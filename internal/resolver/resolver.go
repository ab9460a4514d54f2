// Package resolver locates semantically important columns in tables whose
// exact header names vary between dataset releases.
package resolver

import (
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// FindColumn returns the first column, in table order, whose name contains
// keyword under Unicode case folding. It reports false when nothing matches.
// An empty keyword matches the first column.
func FindColumn(t table.Table, keyword string) (string, bool) {
	folder := cases.Fold()
	k := folder.String(keyword)
	for _, name := range t.Columns() {
		if strings.Contains(folder.String(name), k) {
			return name, true
		}
	}
	return "", false
}

// Roles is the outcome of resolving several semantic roles against a table.
type Roles struct {
	// Found maps role -> resolved column name.
	Found map[string]string
	// Missing lists unresolved roles in sorted order.
	Missing []string
}

// Column returns the column resolved for role.
func (r Roles) Column(role string) (string, bool) {
	c, ok := r.Found[role]
	return c, ok
}

// InmateRoles are the keywords the custody dashboard searches for.
var InmateRoles = map[string]string{
	"date":          "admitted_dt",
	"custody":       "custody",
	"gender":        "gender",
	"age":           "age",
	"mental_health": "mental",
	"race":          "race",
}

// Resolve runs FindColumn for every role -> keyword pair. Two roles may
// resolve to the same column.
func Resolve(t table.Table, roles map[string]string) Roles {
	out := Roles{Found: make(map[string]string, len(roles))}
	for role, kw := range roles {
		if col, ok := FindColumn(t, kw); ok {
			out.Found[role] = col
			continue
		}
		out.Missing = append(out.Missing, role)
	}
	sort.Strings(out.Missing)
	return out
}

// NormalizeName turns header text into a lowercase identifier:
//  1. trim and lowercase
//  2. strip accents (NFD, drop Mn, NFC)
//  3. keep [a-z0-9_]; runs of space, dash, dot and underscore become one
//     underscore; drop everything else
//  4. fall back to "col" when nothing is left
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "\ufeff")

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, s)
	if err != nil {
		ascii = s
	}

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}

// NormalizeNames renames every column with NormalizeName. When two headers
// normalize to the same identifier the first keeps it and later ones get _2,
// _3 and so on.
func NormalizeNames(t table.Table) (table.Table, error) {
	cols := t.Columns()
	names := make([]string, len(cols))
	used := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		base := NormalizeName(c)
		name := base
		for n := 2; ; n++ {
			if _, taken := used[name]; !taken {
				break
			}
			name = base + "_" + strconv.Itoa(n)
		}
		used[name] = struct{}{}
		names[i] = name
	}
	return t.Rename(names)
}
