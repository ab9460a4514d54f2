package aggregate

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

func mk(t *testing.T, name string, vals ...any) table.Table {
	t.Helper()
	tb, err := table.New(table.Column{Name: name, Values: vals})
	if err != nil {
		t.Fatal(err)
	}
	return tb
}

func utc(y int, m time.Month, d, h int) time.Time { return time.Date(y, m, d, h, 0, 0, 0, time.UTC) }

/*
TestCountByCategory verifies first-appearance order, null handling and that
the counts add up to the row count.
*/
func TestCountByCategory(t *testing.T) {
	t.Parallel()

	tb := mk(t, "custody_level", "MED", "MIN", nil, "MED", "MAX", "MIN", "MED")
	got, err := CountByCategory(tb, "custody_level")
	if err != nil {
		t.Fatal(err)
	}
	want := []CategoryCount{{"MED", 3}, {"MIN", 2}, {"Unknown", 1}, {"MAX", 1}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v; want %v", got, want)
	}
	if Total(got) != tb.Len() {
		t.Fatalf("total=%d; rows=%d", Total(got), tb.Len())
	}
}

func TestCountByCategory_EmptyAndMissing(t *testing.T) {
	got, err := CountByCategory(mk(t, "c"), "c")
	if err != nil || len(got) != 0 {
		t.Fatalf("empty: %v %v", got, err)
	}
	if _, err := CountByCategory(mk(t, "c"), "gender"); !errors.Is(err, table.ErrMissingColumn) {
		t.Fatalf("err=%v", err)
	}
}

func TestCountByCategory_MixedTypes(t *testing.T) {
	got, err := CountByCategory(mk(t, "year", int64(2020), "2020", 2020.0), "year")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Count != 3 {
		t.Fatalf("string form should merge: %v", got)
	}
}

/*
TestCountOverTime_Daily checks UTC-midnight alignment, ascending order, gap
omission and skipped nulls.
*/
func TestCountOverTime_Daily(t *testing.T) {
	t.Parallel()

	tb := mk(t, "admitted_dt",
		utc(2024, 1, 3, 15),
		utc(2024, 1, 1, 0),
		utc(2024, 1, 1, 23),
		nil,
		"2024-01-03",
		"garbage",
	)
	got, err := CountOverTime(tb, "admitted_dt", 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	want := []BucketCount{{utc(2024, 1, 1, 0), 2}, {utc(2024, 1, 3, 0), 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v; want %v", got, want)
	}

	filled, err := CountOverTime(tb, "admitted_dt", 24*time.Hour, WithFillGaps())
	if err != nil {
		t.Fatal(err)
	}
	want = []BucketCount{{utc(2024, 1, 1, 0), 2}, {utc(2024, 1, 2, 0), 0}, {utc(2024, 1, 3, 0), 2}}
	if !reflect.DeepEqual(filled, want) {
		t.Fatalf("filled %v; want %v", filled, want)
	}
	if TotalBuckets(filled) != 4 {
		t.Fatalf("total=%d", TotalBuckets(filled))
	}
}

func TestCountOverTime_Errors(t *testing.T) {
	tb := mk(t, "d", utc(2024, 1, 1, 0))
	for _, b := range []time.Duration{0, -time.Hour} {
		if _, err := CountOverTime(tb, "d", b); !errors.Is(err, ErrInvalidBucket) {
			t.Fatalf("bucket %v: err=%v", b, err)
		}
	}
	if _, err := CountOverTime(tb, "x", time.Hour); !errors.Is(err, table.ErrMissingColumn) {
		t.Fatalf("err=%v", err)
	}
	got, err := CountOverTime(mk(t, "d", nil), "d", time.Hour, WithFillGaps())
	if err != nil || len(got) != 0 {
		t.Fatalf("all-null: %v %v", got, err)
	}
}

func TestSortCounts(t *testing.T) {
	in := []CategoryCount{{"b", 1}, {"c", 3}, {"a", 1}}
	if got := SortCounts(in, OrderValue); !reflect.DeepEqual(got, []CategoryCount{{"a", 1}, {"b", 1}, {"c", 3}}) {
		t.Fatalf("value order: %v", got)
	}
	if got := SortCounts(in, OrderCountDesc); !reflect.DeepEqual(got, []CategoryCount{{"c", 3}, {"a", 1}, {"b", 1}}) {
		t.Fatalf("count order: %v", got)
	}
	if got := SortCounts(in, OrderFirstSeen); !reflect.DeepEqual(got, in) {
		t.Fatalf("first seen: %v", got)
	}
	if in[0].Value != "b" {
		t.Fatal("input reordered")
	}
}

func TestHistogram(t *testing.T) {
	tb := mk(t, "age", int64(18), "20", 30.0, nil, "n/a", int64(38))
	bins, err := Histogram(tb, "age", 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []Bin{{18, 28, 2}, {28, 38, 2}}
	if !reflect.DeepEqual(bins, want) {
		t.Fatalf("bins=%v; want %v", bins, want)
	}
	if _, err := Histogram(tb, "age", 0); !errors.Is(err, ErrInvalidBins) {
		t.Fatalf("err=%v", err)
	}
	one, _ := Histogram(mk(t, "age", int64(5), int64(5)), "age", 20)
	if len(one) != 1 || one[0].Count != 2 {
		t.Fatalf("degenerate=%v", one)
	}
}
