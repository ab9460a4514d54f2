// Package pipeline runs configured datasets end to end:
//
//	source (optionally cached) -> parse -> normalize header names ->
//	resolve roles -> transform chain -> aggregates -> Result
//
// Datasets are independent and run concurrently, bounded by the configured
// worker count. Every stage is timed and reported to the metrics package.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/advanced-computing/sleepy-narwhal/internal/aggregate"
	"github.com/advanced-computing/sleepy-narwhal/internal/cache"
	"github.com/advanced-computing/sleepy-narwhal/internal/config"
	"github.com/advanced-computing/sleepy-narwhal/internal/datasource"
	"github.com/advanced-computing/sleepy-narwhal/internal/metrics"
	"github.com/advanced-computing/sleepy-narwhal/internal/parser"
	"github.com/advanced-computing/sleepy-narwhal/internal/resolver"
	"github.com/advanced-computing/sleepy-narwhal/internal/schema"
	"github.com/advanced-computing/sleepy-narwhal/internal/transformer/builtin"
	"github.com/advanced-computing/sleepy-narwhal/pkg/table"
)

// newSourceFn is a test seam for source construction.
var newSourceFn = datasource.New

// Runner executes dataset pipelines. The zero value runs with one worker per
// CPU, no cache and no timeout.
type Runner struct {
	// Job labels metrics.
	Job string
	// Store caches raw source bytes; nil disables caching.
	Store cache.Store
	// Workers bounds concurrent dataset runs.
	Workers int
	// Timeout bounds each dataset run; zero means none.
	Timeout time.Duration
	// Verbose enables per-step logs.
	Verbose bool
}

// NewRunner configures a Runner from the pipeline's runtime block.
func NewRunner(p config.Pipeline, store cache.Store) (*Runner, error) {
	r := &Runner{Job: p.Job, Store: store, Workers: p.Runtime.Workers}
	if p.Runtime.Timeout != "" {
		d, err := time.ParseDuration(p.Runtime.Timeout)
		if err != nil {
			return nil, fmt.Errorf("runtime.timeout: %w", err)
		}
		r.Timeout = d
	}
	if r.Job == "" {
		r.Job = "civic"
	}
	return r, nil
}

// RunAll runs every dataset and returns the results in input order. A
// failing dataset does not stop the others; all failures are joined into the
// returned error and the matching Result holds what was done before it.
func (r *Runner) RunAll(ctx context.Context, datasets []config.Dataset) ([]*Result, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]*Result, len(datasets))
	errs := make([]error, len(datasets))

	var g errgroup.Group
	g.SetLimit(workers)
	for i, ds := range datasets {
		g.Go(func() error {
			results[i], errs[i] = r.Run(ctx, ds)
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// Run executes one dataset.
func (r *Runner) Run(ctx context.Context, ds config.Dataset) (*Result, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	start := time.Now()
	res := &Result{RunID: uuid.NewString(), Dataset: ds.Name}
	if r.Verbose {
		log.Printf("pipeline: dataset=%s run=%s source=%s parser=%s", ds.Name, res.RunID, ds.Source.Kind, ds.Parser.Kind)
	}

	err := r.run(ctx, ds, res)
	res.Elapsed = time.Since(start)
	metrics.RecordDataset(r.Job, ds.Name, err)
	if err != nil {
		return res, fmt.Errorf("dataset %s: %w", ds.Name, err)
	}
	log.Printf("pipeline: dataset=%s run=%s rows=%d skipped=%d dropped_dates=%d filtered=%d output=%d failures=%d took=%s",
		ds.Name, res.RunID, res.TotalRows, res.SkippedRows, res.DroppedDates, res.FilteredRows,
		res.OutputRows, len(res.Failures), res.Elapsed.Truncate(time.Millisecond))
	return res, nil
}

func (r *Runner) run(ctx context.Context, ds config.Dataset, res *Result) error {
	var t table.Table
	if err := r.timed("load", func() error {
		var err error
		t, res.SkippedRows, err = r.load(ctx, ds)
		return err
	}); err != nil {
		return err
	}
	res.TotalRows = t.Len()
	metrics.RecordRows(r.Job, "loaded", res.TotalRows)
	metrics.RecordRows(r.Job, "skipped", res.SkippedRows)

	if !ds.RawHeaders {
		var err error
		if t, err = resolver.NormalizeNames(t); err != nil {
			return err
		}
	}
	roles := resolver.Resolve(t, ds.Columns)
	res.Roles, res.Missing = roles.Found, roles.Missing
	if len(roles.Missing) > 0 {
		log.Printf("pipeline: dataset=%s unresolved roles %v (columns %v)", ds.Name, roles.Missing, t.Columns())
	}

	var c counters
	for i, tc := range ds.Transform {
		if err := ctx.Err(); err != nil {
			return err
		}
		step, tg, err := buildStep(tc, roles, t, &c)
		if err != nil {
			return fmt.Errorf("transform[%d] %s: %w", i, tc.Kind, err)
		}
		rep := StepReport{Kind: tc.Kind, Column: tg.column, RowsIn: t.Len()}
		if step == nil {
			rep.Skipped, rep.Reason, rep.RowsOut = true, tg.skip, t.Len()
			res.Steps = append(res.Steps, rep)
			log.Printf("pipeline: dataset=%s skipping %s: %s", ds.Name, tc.Kind, tg.skip)
			continue
		}

		var out table.Table
		err = r.timed(tc.Kind, func() error {
			var err error
			out, err = step.Apply(t)
			return err
		})
		res.Failures = c.failures
		if err != nil {
			res.Steps = append(res.Steps, rep)
			return fmt.Errorf("transform[%d] %s: %w", i, tc.Kind, err)
		}
		rep.RowsOut = out.Len()
		res.Steps = append(res.Steps, rep)
		if tc.Kind == "filter_range" || tc.Kind == "filter_category" {
			res.FilteredRows += rep.RowsIn - rep.RowsOut
		}
		if r.Verbose {
			log.Printf("pipeline: dataset=%s %s column=%q rows %d -> %d", ds.Name, tc.Kind, tg.column, rep.RowsIn, rep.RowsOut)
		}
		t = out
	}
	res.DroppedDates = c.droppedDates
	res.Bounds = c.bounds
	res.Failures = c.failures
	recordFailures(r.Job, c.failures)
	metrics.RecordRows(r.Job, "dropped_dates", res.DroppedDates)
	metrics.RecordRows(r.Job, "filtered", res.FilteredRows)

	if col, ok := roles.Column("date"); ok && t.Has(col) {
		if lo, hi, ok, err := builtin.DateSpan(t, col); err == nil && ok {
			res.Span = &Span{Start: lo, End: hi}
		}
	}

	if err := r.timed("aggregate", func() error { return aggregateInto(res, ds, roles, t) }); err != nil {
		return err
	}

	res.Output = t
	res.Columns = t.Columns()
	res.OutputRows = t.Len()
	metrics.RecordRows(r.Job, "output", res.OutputRows)
	if ds.Preview > 0 {
		res.Preview = t.Head(ds.Preview).Records()
	}
	return nil
}

// load opens the source, through the cache unless disabled, and parses it.
func (r *Runner) load(ctx context.Context, ds config.Dataset) (table.Table, int, error) {
	src, err := newSourceFn(ds.Source)
	if err != nil {
		return table.Table{}, 0, err
	}
	if !ds.Source.NoCache {
		src = datasource.WithCache(src, r.Store)
	}
	p, err := parser.New(ds.Parser)
	if err != nil {
		return table.Table{}, 0, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return table.Table{}, 0, err
	}
	defer rc.Close()
	return p.Parse(rc)
}

// Invalidate drops the cached bytes of every dataset source that is cached.
func (r *Runner) Invalidate(ctx context.Context, datasets []config.Dataset) error {
	if r.Store == nil {
		return nil
	}
	for _, ds := range datasets {
		src, err := newSourceFn(ds.Source)
		if err != nil {
			return fmt.Errorf("dataset %s: %w", ds.Name, err)
		}
		if c, ok := datasource.WithCache(src, r.Store).(*datasource.Cached); ok {
			if err := c.Invalidate(ctx); err != nil {
				return fmt.Errorf("dataset %s: %w", ds.Name, err)
			}
			log.Printf("pipeline: dataset=%s cache entry %s invalidated", ds.Name, c.Key())
		}
	}
	return nil
}

func (r *Runner) timed(step string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(r.Job, step, err, time.Since(start))
	return err
}

func recordFailures(job string, fs []schema.Failure) {
	byKind := map[string]int{}
	for _, f := range fs {
		byKind[string(f.Kind)]++
	}
	for k, n := range byKind {
		metrics.RecordFailures(job, k, n)
	}
}

func aggregateInto(res *Result, ds config.Dataset, roles resolver.Roles, t table.Table) error {
	for i, a := range ds.Aggregate {
		tg, err := resolveTarget(a.Column, a.Role, a.Required, roles, t)
		if err != nil {
			return fmt.Errorf("aggregate[%d] %s: %w", i, a.Kind, err)
		}
		if tg.skip != "" {
			log.Printf("pipeline: dataset=%s skipping aggregate %s: %s", ds.Name, a.Kind, tg.skip)
			continue
		}
		name := a.Name
		if name == "" {
			name = a.Kind + ":" + tg.column
		}
		switch a.Kind {
		case "count_by_category":
			counts, err := aggregate.CountByCategory(t, tg.column)
			if err != nil {
				return fmt.Errorf("aggregate %s: %w", name, err)
			}
			order := aggregate.Order(a.Order)
			if order == "" {
				order = aggregate.OrderFirstSeen
			}
			counts = aggregate.SortCounts(counts, order)
			res.Categories = append(res.Categories, CategoryView{
				Name: name, Column: tg.column, Counts: counts, Total: aggregate.Total(counts),
			})
		case "count_over_time":
			bucket, err := a.BucketDuration()
			if err != nil {
				return fmt.Errorf("aggregate %s: %w", name, err)
			}
			var opts []aggregate.Option
			if a.FillGaps {
				opts = append(opts, aggregate.WithFillGaps())
			}
			counts, err := aggregate.CountOverTime(t, tg.column, bucket, opts...)
			if err != nil {
				return fmt.Errorf("aggregate %s: %w", name, err)
			}
			res.Series = append(res.Series, SeriesView{Name: name, Column: tg.column, Bucket: bucket, Counts: counts})
		case "histogram":
			bins := a.Bins
			if bins == 0 {
				bins = 10
			}
			hist, err := aggregate.Histogram(t, tg.column, bins)
			if err != nil {
				return fmt.Errorf("aggregate %s: %w", name, err)
			}
			res.Histograms = append(res.Histograms, HistogramView{Name: name, Column: tg.column, Bins: hist})
		default:
			return fmt.Errorf("aggregate[%d]: unsupported kind %q", i, a.Kind)
		}
	}
	return nil
}
