package builtin

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

/*
TestFilterByCategory keeps the two rows whose category is A and drops the
third.
*/
func TestFilterByCategory(t *testing.T) {
	t.Parallel()

	in := mkTable(t,
		"Name", []any{"Alice", "Bob", "Charlie"},
		"Category", []any{"A", "B", "A"},
	)
	out, err := FilterByCategory(in, "Category", "A")
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 2 {
		t.Fatalf("len=%d; want 2", out.Len())
	}
	for _, v := range values(t, out, "Name") {
		if v == "Bob" {
			t.Fatal("Bob survived the filter")
		}
	}
	if _, err := FilterByCategory(in, "Missing", "A"); !errors.Is(err, table.ErrMissingColumn) {
		t.Fatalf("err=%v", err)
	}
}

func TestFilterByCategory_NumbersAndNulls(t *testing.T) {
	in := mkTable(t, "year", []any{int64(2020), nil, "2020", int64(2021)})
	out, err := FilterByCategory(in, "year", "2020")
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 2 {
		t.Fatalf("len=%d; want 2", out.Len())
	}
}

/*
TestFilterRange covers inclusive bounds, null and unparsable cells, inverted
bounds and bound errors.
*/
func TestFilterRange(t *testing.T) {
	t.Parallel()

	in := mkTable(t,
		"id", []any{1, 2, 3, 4, 5, 6},
		"d", []any{day(2024, 1, 1), day(2024, 1, 15), day(2024, 1, 31), nil, "2024-01-20", "junk"},
	)
	tests := []struct {
		name       string
		start, end string
		wantIDs    []any
		wantErr    bool
	}{
		{"inclusive", "2024-01-01", "2024-01-31", []any{1, 2, 3, 5}, false},
		{"inner", "2024-01-02", "2024-01-20", []any{2, 5}, false},
		{"single day", "01/15/2024", "01/15/2024", []any{2}, false},
		{"inverted", "2024-02-01", "2024-01-01", []any{}, false},
		{"bad start", "someday", "2024-01-01", nil, true},
		{"bad end", "2024-01-01", "", nil, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			out, err := FilterRange(in, "d", tc.start, tc.end)
			if tc.wantErr {
				var be *BoundError
				if !errors.As(err, &be) {
					t.Fatalf("err=%v; want *BoundError", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := values(t, out, "id"); !reflect.DeepEqual(got, tc.wantIDs) {
				t.Fatalf("ids=%v; want %v", got, tc.wantIDs)
			}
		})
	}
}

func TestFilterRangeTime_Timestamps(t *testing.T) {
	in := mkTable(t, "d", []any{time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC), day(2024, 1, 31)})
	out, err := FilterRangeTime(in, "d", day(2024, 1, 1), day(2024, 1, 31))
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 1 {
		t.Fatalf("len=%d; want 1 (instant after midnight bound excluded)", out.Len())
	}
	if _, err := FilterRangeTime(in, "x", day(2024, 1, 1), day(2024, 1, 2)); !errors.Is(err, table.ErrMissingColumn) {
		t.Fatalf("err=%v", err)
	}
}

func TestFilterRangeStep_DefaultsToSpan(t *testing.T) {
	in := mkTable(t, "d", []any{day(2024, 1, 3), nil, day(2024, 1, 1), day(2024, 1, 9)})
	var gotFrom, gotTo time.Time
	step := FilterRangeStep{Column: "d", OnBounds: func(a, b time.Time) { gotFrom, gotTo = a, b }}
	out, err := step.Apply(in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 3 {
		t.Fatalf("len=%d; want 3", out.Len())
	}
	if !gotFrom.Equal(day(2024, 1, 1)) || !gotTo.Equal(day(2024, 1, 9)) {
		t.Fatalf("bounds=%v..%v", gotFrom, gotTo)
	}

	step = FilterRangeStep{Column: "d", Start: "2024-01-02"}
	out, err = step.Apply(in)
	if err != nil {
		t.Fatal(err)
	}
	if out.Len() != 2 {
		t.Fatalf("len=%d; want 2", out.Len())
	}
}

/*
A day-first column is read day-first by the range filter and by DateSpan,
whether or not NormalizeDates ran first.
*/
func TestFilterRange_DayFirstColumn(t *testing.T) {
	t.Parallel()

	raw := mkTable(t, "arrest_date", []any{"25/03/2024", "01/04/2024"})
	normalized, err := NormalizeDates(raw, "arrest_date")
	if err != nil {
		t.Fatal(err)
	}
	want := []any{time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}

	for name, in := range map[string]table.Table{"raw": raw, "normalized": normalized} {
		t.Run(name, func(t *testing.T) {
			out, err := FilterRange(in, "arrest_date", "2024-04-01", "2024-04-01")
			if err != nil {
				t.Fatal(err)
			}
			if out.Len() != 1 {
				t.Fatalf("len=%d; want 1", out.Len())
			}
			if name == "normalized" {
				if got := values(t, out, "arrest_date"); !reflect.DeepEqual(got, want) {
					t.Fatalf("got %v; want %v", got, want)
				}
			}

			lo, hi, ok, err := DateSpan(in, "arrest_date")
			if err != nil || !ok {
				t.Fatalf("DateSpan ok=%v err=%v", ok, err)
			}
			if !lo.Equal(time.Date(2024, 3, 25, 0, 0, 0, 0, time.UTC)) || !hi.Equal(want[0].(time.Time)) {
				t.Fatalf("span %v .. %v", lo, hi)
			}
		})
	}
}
