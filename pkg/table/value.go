package table

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind is the semantic type of a column.
type Kind int

const (
	// KindAny marks raw loader output that has not been coerced yet.
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDate:
		return "date"
	default:
		return "any"
	}
}

// ParseKind maps a type name used in config and schema files onto a Kind. It
// accepts the SQL-ish spellings that show up in dataset dictionaries.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return KindAny, nil
	case "string", "str", "text":
		return KindString, nil
	case "int", "integer", "bigint", "int64":
		return KindInt, nil
	case "float", "real", "double", "number", "float64":
		return KindFloat, nil
	case "date", "datetime", "timestamp", "timestamptz":
		return KindDate, nil
	default:
		return KindAny, fmt.Errorf("table: unknown kind %q", s)
	}
}

// MarshalText lets Kind appear as a name in JSON and YAML documents.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText is the inverse of MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// IsNull reports whether v is a null cell. NaN floats count as null, which is
// how numeric gaps arrive from some feeds.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	}
	return false
}

// FormatValue renders a cell as the string used for grouping and display.
// Dates at UTC midnight render as YYYY-MM-DD, other instants as RFC 3339.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	case time.Time:
		u := x.UTC()
		if u.Hour() == 0 && u.Minute() == 0 && u.Second() == 0 && u.Nanosecond() == 0 {
			return u.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
