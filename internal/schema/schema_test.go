package schema

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

/*
TestLoad_YAMLAndJSON verifies both file formats decode to the same schema and
that kinds, bounds and policies survive decoding.
*/
func TestLoad_YAMLAndJSON(t *testing.T) {
	const y = `
name: arrests
unknown: drop
coerce: true
columns:
  - name: arrest_date
    type: date
    from: "2006-01-01"
  - name: age
    type: int
    nullable: true
    min: 0
    max: 120
  - name: borough
    type: string
    allowed: [B, K, M, Q, S]
`
	const j = `{
	  "name": "arrests",
	  "unknown": "drop",
	  "coerce": true,
	  "columns": [
	    {"name": "arrest_date", "type": "date", "from": "2006-01-01"},
	    {"name": "age", "type": "int", "nullable": true, "min": 0, "max": 120},
	    {"name": "borough", "type": "string", "allowed": ["B","K","M","Q","S"]}
	  ]
	}`

	fromYAML, err := Load(writeFile(t, "arrests.yaml", y))
	if err != nil {
		t.Fatalf("Load yaml: %v", err)
	}
	fromJSON, err := Load(writeFile(t, "arrests.json", j))
	if err != nil {
		t.Fatalf("Load json: %v", err)
	}
	if !reflect.DeepEqual(fromYAML, fromJSON) {
		t.Fatalf("yaml and json differ:\n%#v\n%#v", fromYAML, fromJSON)
	}
	if fromYAML.Policy() != UnknownDrop || !fromYAML.Coerce {
		t.Fatalf("policies not decoded: %#v", fromYAML)
	}
	age, ok := fromYAML.Column("age")
	if !ok || age.Type != table.KindInt || *age.Max != 120 {
		t.Fatalf("age spec=%#v", age)
	}
}

func TestLoad_NameFromFile(t *testing.T) {
	s, err := Load(writeFile(t, "complaints.yml", "columns:\n  - name: a\n    type: string\n"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "complaints" {
		t.Fatalf("name=%q", s.Name)
	}
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown field": "name: x\ncolumns: []\nbogus: 1\n",
		"bad kind":      "name: x\ncolumns:\n  - name: a\n    type: blob\n",
		"bad policy":    "name: x\nunknown: maybe\ncolumns: []\n",
		"inverted":      "name: x\ncolumns:\n  - name: a\n    type: int\n    min: 5\n    max: 1\n",
		"duplicate":     "name: x\ncolumns:\n  - name: a\n  - name: a\n",
	}
	for name, body := range tests {
		name, body := name, body
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, "s.yaml", body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuiltin(t *testing.T) {
	for _, name := range BuiltinNames() {
		s, err := Builtin(name)
		if err != nil {
			t.Fatalf("Builtin(%q): %v", name, err)
		}
		if err := s.Check(); err != nil {
			t.Fatalf("builtin %q fails Check: %v", name, err)
		}
	}
	if _, err := Builtin("nope"); err == nil {
		t.Fatal("expected error for unknown builtin")
	}

	hc := HateCrimes()
	year, _ := hc.Column("complaint_year_number")
	if *year.Min != 1900 || *year.Max != 2100 {
		t.Fatalf("year range=[%v,%v]", *year.Min, *year.Max)
	}
	if d := InmatesDisplay(); !reflect.DeepEqual(d.Columns[1].Allowed, []string{"Minimum", "Medium", "Maximum"}) {
		t.Fatalf("display allowed=%v", d.Columns[1].Allowed)
	}
	if i := Inmates(); !reflect.DeepEqual(i.Columns[1].Allowed, []string{"MIN", "MED", "MAX"}) {
		t.Fatalf("InmatesDisplay leaked into Inmates: %v", i.Columns[1].Allowed)
	}
}

func TestValidationError_Summary(t *testing.T) {
	ve := &ValidationError{Schema: "inmates"}
	for i := 0; i < 5; i++ {
		ve.Failures = append(ve.Failures, Failure{Row: i, Column: "custody_level", Kind: ConstraintViolation, Rule: RuleIsIn, Value: "HIGH"})
	}
	var err error = ve
	if !errors.Is(err, ErrSchemaValidation) {
		t.Fatal("errors.Is(ErrSchemaValidation) = false")
	}
	msg := err.Error()
	if !strings.Contains(msg, "5 failure(s)") || !strings.Contains(msg, "(total 5)") {
		t.Fatalf("summary=%q", msg)
	}
	if strings.Count(msg, "constraint_violation") != 3 {
		t.Fatalf("expected 3 shown failures: %q", msg)
	}
	if got := ve.CountByKind()[ConstraintViolation]; got != 5 {
		t.Fatalf("CountByKind=%d", got)
	}
	wrapped := errors.Join(errors.New("ctx"), ve)
	if got, ok := AsValidationError(wrapped); !ok || got != ve {
		t.Fatal("AsValidationError failed through wrapping")
	}
}

func TestFailureTable(t *testing.T) {
	tb := FailureTable([]Failure{{Row: -1, Column: "race", Kind: MissingColumn}})
	if tb.Len() != 1 {
		t.Fatalf("len=%d", tb.Len())
	}
	if v, _ := tb.Value(0, "kind"); v != "missing_column" {
		t.Fatalf("kind=%v", v)
	}
}
