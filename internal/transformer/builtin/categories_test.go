package builtin

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

/*
TestNormalizeCategories_Race maps race codes and full words to display labels
and turns nulls into "Unknown".
*/
func TestNormalizeCategories_Race(t *testing.T) {
	t.Parallel()

	in := mkTable(t, "race", []any{"B", "W", nil, "UNKNOWN", "OTHER"})
	out := NormalizeCategories(in, "race", RaceMapping())

	want := []any{"Black", "White", "Unknown", "Unknown", "Other"}
	if got := values(t, out, "race"); !reflect.DeepEqual(got, want) {
		t.Fatalf("race=%v; want %v", got, want)
	}
	if got := values(t, in, "race"); got[0] != "B" || got[2] != nil {
		t.Fatalf("input modified: %v", got)
	}
}

func TestNormalizeCategories_PassThroughAndCase(t *testing.T) {
	in := mkTable(t, "race", []any{"black", "I", "Martian", math.NaN(), int64(3)})
	out := NormalizeCategories(in, "race", RaceMapping())
	want := []any{"black", "American Indian", "Martian", "Unknown", int64(3)}
	if got := values(t, out, "race"); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v; want %v", got, want)
	}
}

/*
TestNormalizeCategories_Idempotent applies each built-in mapping twice and
expects the second pass to change nothing.
*/
func TestNormalizeCategories_Idempotent(t *testing.T) {
	t.Parallel()

	for name, m := range map[string]Mapping{"race": RaceMapping(), "custody": CustodyMapping()} {
		raw := []any{nil}
		for k := range m {
			raw = append(raw, k)
		}
		in := mkTable(t, "c", raw)
		once := NormalizeCategories(in, "c", m)
		twice := NormalizeCategories(once, "c", m)
		if !reflect.DeepEqual(values(t, once, "c"), values(t, twice, "c")) {
			t.Fatalf("%s mapping not idempotent", name)
		}
	}
}

func TestNormalizeCategories_MissingColumn(t *testing.T) {
	in := mkTable(t, "gender", []any{"M"})
	out := NormalizeCategories(in, "race", RaceMapping())
	if !reflect.DeepEqual(out, in) {
		t.Fatalf("table changed without a race column")
	}

	_, err := NormalizeCategoriesStep{Column: "race", Mapping: RaceMapping(), Required: true}.Apply(in)
	if !errors.Is(err, table.ErrMissingColumn) {
		t.Fatalf("err=%v; want ErrMissingColumn", err)
	}
	if _, err := (NormalizeCategoriesStep{Column: "race", Mapping: RaceMapping()}).Apply(in); err != nil {
		t.Fatalf("optional step errored: %v", err)
	}
}

func TestMappingByName(t *testing.T) {
	m, err := MappingByName("custody")
	if err != nil {
		t.Fatal(err)
	}
	if m["MED"] != "Medium" {
		t.Fatalf("custody mapping=%v", m)
	}
	m["MED"] = "tampered"
	if again, _ := MappingByName("custody"); again["MED"] != "Medium" {
		t.Fatal("built-in mapping shared between callers")
	}
	if _, err := MappingByName("zodiac"); err == nil {
		t.Fatal("expected error")
	}
}
