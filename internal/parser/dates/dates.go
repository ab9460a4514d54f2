// Package dates parses the date and timestamp spellings found in civic
// open-data exports.
//
// Values without a zone are interpreted in UTC, so a date-only value is the
// instant at UTC midnight. Slash dates are read month-first (MM/DD/YYYY) unless
// a column's samples only fit the day-first reading; see DetectLayout.
package dates

import (
	"encoding/json"
	"strings"
	"time"
)

// DateLayouts are date formats without a time component.
var DateLayouts = []string{
	"2006-01-02",  // ISO
	"01/02/2006",  // MDY slash
	"02/01/2006",  // DMY slash
	"01.02.2006",  // MDY dot
	"02.01.2006",  // DMY dot
	"1/2/2006",    // MDY slash, no padding
	"2 Jan 2006",  // DMY textual day
	"02-Jan-2006", // DMY dash textual month
	"Jan 2, 2006", // textual month first
	"2006/01/02",  // ISO slashy
	"20060102",    // basic ISO
}

// TimestampLayouts are formats carrying a time of day.
var TimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000", // Socrata floating timestamp
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05",
	"01/02/2006 03:04:05 PM", // Socrata CSV export
	"01/02/2006 15:04:05",    // MDY
	"02/01/2006 15:04:05",    // DMY
	"1/2/2006 3:04:05 PM",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05 -0700",
}

// Parser tries Layouts in order. A zero Parser uses TimestampLayouts followed
// by DateLayouts.
type Parser struct {
	Layouts []string
}

// Default is the parser used by the package-level helpers.
var Default = Parser{}

func (p Parser) layouts() []string {
	if len(p.Layouts) > 0 {
		return p.Layouts
	}
	all := make([]string, 0, len(TimestampLayouts)+len(DateLayouts))
	all = append(all, TimestampLayouts...)
	return append(all, DateLayouts...)
}

// Parse returns the first successful interpretation of s.
func (p Parser) Parse(s string) (time.Time, bool) {
	st := strings.TrimSpace(s)
	if st == "" {
		return time.Time{}, false
	}
	for _, layout := range p.layouts() {
		if ts, err := time.Parse(layout, st); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Value converts a cell to an instant. time.Time cells pass through (the zero
// time counts as null), strings and json.Number are parsed, everything else
// fails.
func (p Parser) Value(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case string:
		return p.Parse(x)
	case json.Number:
		return p.Parse(x.String())
	default:
		return time.Time{}, false
	}
}

// WithPreferred returns a parser that tries layout before p's own layouts.
func (p Parser) WithPreferred(layout string) Parser {
	if layout == "" {
		return p
	}
	rest := p.layouts()
	ls := make([]string, 0, len(rest)+1)
	ls = append(ls, layout)
	for _, l := range rest {
		if l != layout {
			ls = append(ls, l)
		}
	}
	return Parser{Layouts: ls}
}

// Parse is Default.Parse.
func Parse(s string) (time.Time, bool) { return Default.Parse(s) }

// Value is Default.Value.
func Value(v any) (time.Time, bool) { return Default.Value(v) }

// DetectLayout picks the layout matching the most samples. Ties go to the
// layout with the higher preference, then to the earlier one. It returns ""
// when no layout matches any sample.
//
// Scoring a whole column first keeps a value such as 03/04/2024 on the same
// reading as its neighbours: a column containing 03/25/2024 is month-first
// throughout.
func DetectLayout(samples []string) string {
	layouts := append(append([]string(nil), TimestampLayouts...), DateLayouts...)
	scores := make([]int, len(layouts))
	for _, s := range samples {
		st := strings.TrimSpace(s)
		if st == "" {
			continue
		}
		for i, lay := range layouts {
			if _, err := time.Parse(lay, st); err == nil {
				scores[i]++
			}
		}
	}

	bestIdx, bestScore, bestPref := -1, 0, -1
	for i, lay := range layouts {
		sc := scores[i]
		if sc == 0 || sc < bestScore {
			continue
		}
		p := preference(lay)
		if sc > bestScore || p > bestPref {
			bestIdx, bestScore, bestPref = i, sc, p
		}
	}
	if bestIdx < 0 {
		return ""
	}
	return layouts[bestIdx]
}

// preference is the tie-break weight of a layout. Higher wins. ISO and RFC 3339
// first, then month-first, then day-first.
func preference(layout string) int {
	switch layout {
	case time.RFC3339Nano:
		return 5
	case time.RFC3339, "2006-01-02", "2006-01-02T15:04:05.000", "2006-01-02T15:04:05":
		return 4
	case "01/02/2006", "01.02.2006", "1/2/2006", "01/02/2006 03:04:05 PM", "01/02/2006 15:04:05", "1/2/2006 3:04:05 PM":
		return 3
	case "02/01/2006", "02.01.2006", "02/01/2006 15:04:05", "2 Jan 2006", "02-Jan-2006":
		return 1
	default:
		return 2
	}
}
