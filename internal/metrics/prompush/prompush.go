// Package prompush pushes pipeline metrics to a Prometheus Pushgateway.
//
// The job label is the Pushgateway grouping key; the remaining labels become
// Prometheus label dimensions on fixed collectors.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/advanced-computing/sleepy-narwhal/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter    *prometheus.CounterVec // civic_step_total{step,status}
	stepDuration   *prometheus.SummaryVec // civic_step_duration_seconds{step,status}
	rowCounter     *prometheus.CounterVec // civic_rows_total{kind}
	failureCounter *prometheus.CounterVec // civic_validation_failures_total{kind}
	datasetCounter *prometheus.CounterVec // civic_dataset_runs_total{dataset,status}
}

// NewBackend constructs a Pushgateway backend. An empty jobName defaults to
// "civic".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "civic"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline step executions by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Pipeline step duration in seconds by step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		rowCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Row counts by kind (loaded, dropped_dates, filtered, output).",
		}, []string{"kind"}),
		failureCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.FailuresTotal,
			Help: "Schema validation failures by failure kind.",
		}, []string{"kind"}),
		datasetCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.DatasetRunTotal,
			Help: "Finished dataset runs by dataset and status.",
		}, []string{"dataset", "status"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":    b.stepCounter,
		"step summary":    b.stepDuration,
		"row counter":     b.rowCounter,
		"failure counter": b.failureCounter,
		"dataset counter": b.datasetCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
	case metrics.RowsTotal:
		if b.rowCounter != nil {
			b.rowCounter.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.FailuresTotal:
		if b.failureCounter != nil {
			b.failureCounter.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.DatasetRunTotal:
		if b.datasetCounter != nil {
			b.datasetCounter.WithLabelValues(labels["dataset"], labels["status"]).Add(delta)
		}
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDuration || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
