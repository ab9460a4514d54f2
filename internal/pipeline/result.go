package pipeline

import (
	"time"

	"github.com/advanced-computing/sleepy-narwhal/internal/aggregate"
	"github.com/advanced-computing/sleepy-narwhal/internal/schema"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// Result is everything one dataset run produced. A failed run still returns
// the Result filled up to the failing step.
type Result struct {
	RunID   string `json:"run_id"`
	Dataset string `json:"dataset"`

	// Roles maps each resolved role to its column; Missing lists the rest.
	Roles   map[string]string `json:"roles"`
	Missing []string          `json:"missing_roles,omitempty"`
	Columns []string          `json:"columns"`

	// TotalRows is the row count after parsing. SkippedRows were malformed
	// source records the parser dropped.
	TotalRows    int `json:"total_rows"`
	SkippedRows  int `json:"skipped_rows"`
	DroppedDates int `json:"dropped_date_rows"`
	FilteredRows int `json:"filtered_rows"`
	OutputRows   int `json:"output_rows"`

	// Span is the date range of the cleaned date-role column, when there is one.
	Span *Span `json:"date_span,omitempty"`
	// Bounds are the limits a filter_range step actually applied.
	Bounds *Span `json:"filter_bounds,omitempty"`

	Steps      []StepReport     `json:"steps"`
	Failures   []schema.Failure `json:"failures,omitempty"`
	Categories []CategoryView   `json:"categories,omitempty"`
	Series     []SeriesView     `json:"series,omitempty"`
	Histograms []HistogramView  `json:"histograms,omitempty"`

	// Preview holds the first rows of the cleaned table.
	Preview []map[string]any `json:"preview,omitempty"`

	Elapsed time.Duration `json:"elapsed_ns"`

	// Output is the cleaned table.
	Output table.Table `json:"-"`
}

// Span is an inclusive date range.
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// StepReport records what one transform did.
type StepReport struct {
	Kind    string `json:"kind"`
	Column  string `json:"column,omitempty"`
	RowsIn  int    `json:"rows_in"`
	RowsOut int    `json:"rows_out"`
	// Skipped is set when the step's role could not be resolved.
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// CategoryView is one count_by_category aggregate.
type CategoryView struct {
	Name   string                    `json:"name"`
	Column string                    `json:"column"`
	Counts []aggregate.CategoryCount `json:"counts"`
	Total  int                       `json:"total"`
}

// SeriesView is one count_over_time aggregate.
type SeriesView struct {
	Name   string                  `json:"name"`
	Column string                  `json:"column"`
	Bucket time.Duration           `json:"bucket_ns"`
	Counts []aggregate.BucketCount `json:"counts"`
}

// HistogramView is one histogram aggregate.
type HistogramView struct {
	Name   string          `json:"name"`
	Column string          `json:"column"`
	Bins   []aggregate.Bin `json:"bins"`
}
