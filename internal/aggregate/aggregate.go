// Package aggregate derives count views from cleaned tables: counts per
// category, counts per time bucket and numeric histograms.
package aggregate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/advanced-computing/sleepy-narwhal/internal/parser/dates"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// UnknownLabel is the category nulls are counted under.
const UnknownLabel = "Unknown"

var (
	// ErrInvalidBucket is returned for a non-positive bucket width.
	ErrInvalidBucket = errors.New("aggregate: bucket must be positive")
	// ErrInvalidBins is returned for a non-positive histogram bin count.
	ErrInvalidBins = errors.New("aggregate: bins must be positive")
)

// CategoryCount is the number of rows holding one distinct value.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// BucketCount is the number of rows whose date falls in [Start, Start+width).
type BucketCount struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}

// CountByCategory counts rows per distinct value of column, in order of first
// appearance. Values are compared in string form; nulls count as
// UnknownLabel. The counts sum to t.Len().
func CountByCategory(t table.Table, column string) ([]CategoryCount, error) {
	col, err := t.Lookup(column)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]int)
	out := make([]CategoryCount, 0)
	for _, v := range col.Values {
		key := UnknownLabel
		if !table.IsNull(v) {
			key = table.FormatValue(v)
		}
		if i, ok := idx[key]; ok {
			out[i].Count++
			continue
		}
		idx[key] = len(out)
		out = append(out, CategoryCount{Value: key, Count: 1})
	}
	return out, nil
}

type overTimeOptions struct {
	fillGaps bool
}

// Option tunes CountOverTime.
type Option func(*overTimeOptions)

// WithFillGaps emits zero-count buckets between the first and last non-empty
// bucket.
func WithFillGaps() Option {
	return func(o *overTimeOptions) { o.fillGaps = true }
}

// CountOverTime groups rows into buckets of the given width aligned with
// time.Time.Truncate in UTC, so 24h buckets start at UTC midnight. Buckets
// are returned in ascending order. Null and unparsable dates are skipped.
// Empty buckets are omitted unless WithFillGaps is given.
func CountOverTime(t table.Table, column string, bucket time.Duration, opts ...Option) ([]BucketCount, error) {
	if bucket <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBucket, bucket)
	}
	var o overTimeOptions
	for _, opt := range opts {
		opt(&o)
	}
	col, err := t.Lookup(column)
	if err != nil {
		return nil, err
	}

	counts := make(map[time.Time]int)
	for _, v := range col.Values {
		ts, ok := dates.Value(v)
		if !ok {
			continue
		}
		counts[ts.UTC().Truncate(bucket)]++
	}

	starts := make([]time.Time, 0, len(counts))
	for s := range counts {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	out := make([]BucketCount, 0, len(starts))
	if !o.fillGaps || len(starts) == 0 {
		for _, s := range starts {
			out = append(out, BucketCount{Start: s, Count: counts[s]})
		}
		return out, nil
	}
	last := starts[len(starts)-1]
	for s := starts[0]; !s.After(last); s = s.Add(bucket) {
		out = append(out, BucketCount{Start: s, Count: counts[s]})
	}
	return out, nil
}

// Order selects how SortCounts arranges category counts.
type Order string

const (
	OrderFirstSeen Order = "first_seen"
	OrderValue     Order = "value"
	OrderCountDesc Order = "count_desc"
)

// SortCounts returns a sorted copy of counts. OrderCountDesc breaks ties by
// value; OrderFirstSeen keeps the input order.
func SortCounts(counts []CategoryCount, order Order) []CategoryCount {
	out := append([]CategoryCount(nil), counts...)
	switch order {
	case OrderValue:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	case OrderCountDesc:
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Count != out[j].Count {
				return out[i].Count > out[j].Count
			}
			return out[i].Value < out[j].Value
		})
	}
	return out
}

// Total sums category counts.
func Total(counts []CategoryCount) int {
	n := 0
	for _, c := range counts {
		n += c.Count
	}
	return n
}

// TotalBuckets sums bucket counts.
func TotalBuckets(counts []BucketCount) int {
	n := 0
	for _, c := range counts {
		n += c.Count
	}
	return n
}

// Bin is one histogram bar covering [Lower, Upper). The last bin also
// includes Upper.
type Bin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// Histogram splits the numeric range of column into bins equal-width bins.
// Cells that are null or not numeric after best-effort parsing are skipped.
// A column without numeric values yields no bins.
func Histogram(t table.Table, column string, bins int) ([]Bin, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBins, bins)
	}
	col, err := t.Lookup(column)
	if err != nil {
		return nil, err
	}
	nums := make([]float64, 0, len(col.Values))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range col.Values {
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		nums = append(nums, f)
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}
	if len(nums) == 0 {
		return []Bin{}, nil
	}
	width := (hi - lo) / float64(bins)
	if width == 0 {
		return []Bin{{Lower: lo, Upper: hi, Count: len(nums)}}, nil
	}
	out := make([]Bin, bins)
	for i := range out {
		out[i].Lower = lo + float64(i)*width
		out[i].Upper = lo + float64(i+1)*width
	}
	out[bins-1].Upper = hi
	for _, f := range nums {
		i := int((f - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, !math.IsNaN(x)
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}
