// Package metrics records operational counters for pipeline runs behind a
// pluggable Backend. The default backend discards everything, so callers can
// always record without checking whether metrics are configured.
//
// Concrete systems live in subpackages: prompush (Prometheus Pushgateway)
// and datadog (DogStatsD).
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal       = "civic_step_total"
	StepDuration    = "civic_step_duration_seconds"
	RowsTotal       = "civic_rows_total"
	FailuresTotal   = "civic_validation_failures_total"
	DatasetRunTotal = "civic_dataset_runs_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of a pipeline step and its latency.
// Steps are the stage names of a dataset run: source, parse, resolve, the
// transform kinds and aggregate.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows adds n to the row counter of the given kind, e.g. "loaded",
// "dropped_dates", "filtered" or "output". Non-positive n is ignored.
func RecordRows(job, kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(n), Labels{"job": job, "kind": kind})
}

// RecordFailures adds n schema validation failures of the given failure kind.
func RecordFailures(job, kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(FailuresTotal, float64(n), Labels{"job": job, "kind": kind})
}

// RecordDataset counts one finished dataset run.
func RecordDataset(job, dataset string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	current().IncCounter(DatasetRunTotal, 1, Labels{"job": job, "dataset": dataset, "status": status})
}
