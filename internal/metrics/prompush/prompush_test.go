package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/advanced-computing/sleepy-narwhal/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("civic", ""); err == nil {
		t.Fatal("missing gateway URL should fail")
	}
	b, err := NewBackend("", "http://pushgateway:9091")
	if err != nil {
		t.Fatal(err)
	}
	if b.jobName != "civic" {
		t.Fatalf("jobName=%q want default civic", b.jobName)
	}
	b, err = NewBackend("nightly", "http://pushgateway:9091")
	if err != nil || b.jobName != "nightly" {
		t.Fatalf("jobName=%q err=%v", b.jobName, err)
	}
}

/*
TestIncCounter routes each shared metric name to its collector and ignores
names it does not know.
*/
func TestIncCounter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		metric string
		delta  float64
		labels metrics.Labels
		read   func(b *Backend) prometheus.Counter
	}{
		{
			name:   "step",
			metric: metrics.StepTotal,
			delta:  3,
			labels: metrics.Labels{"step": "parse", "status": "success"},
			read:   func(b *Backend) prometheus.Counter { return b.stepCounter.WithLabelValues("parse", "success") },
		},
		{
			name:   "rows",
			metric: metrics.RowsTotal,
			delta:  120,
			labels: metrics.Labels{"kind": "loaded"},
			read:   func(b *Backend) prometheus.Counter { return b.rowCounter.WithLabelValues("loaded") },
		},
		{
			name:   "failures",
			metric: metrics.FailuresTotal,
			delta:  2,
			labels: metrics.Labels{"kind": "constraint_violation"},
			read: func(b *Backend) prometheus.Counter {
				return b.failureCounter.WithLabelValues("constraint_violation")
			},
		},
		{
			name:   "datasets",
			metric: metrics.DatasetRunTotal,
			delta:  1,
			labels: metrics.Labels{"dataset": "inmates", "status": "success"},
			read: func(b *Backend) prometheus.Counter {
				return b.datasetCounter.WithLabelValues("inmates", "success")
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := NewBackend("civic", "http://example.com")
			if err != nil {
				t.Fatal(err)
			}
			b.IncCounter(tt.metric, tt.delta, tt.labels)
			b.IncCounter("unknown_metric", 10, tt.labels)
			if got := readCounterValue(t, tt.read(b)); got != tt.delta {
				t.Fatalf("counter=%v want %v", got, tt.delta)
			}
		})
	}
}

// TestIncCounterNilCollectors checks a zero Backend does not panic.
func TestIncCounterNilCollectors(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "s", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "loaded"})
	b.IncCounter(metrics.FailuresTotal, 1, nil)
	b.IncCounter(metrics.DatasetRunTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDuration, 1, nil)
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("civic", "http://example.com")
	if err != nil {
		t.Fatal(err)
	}
	lbls := metrics.Labels{"step": "validate", "status": "success"}
	b.ObserveHistogram(metrics.StepDuration, 1.5, lbls)
	b.ObserveHistogram("other_metric", 2, lbls)

	count, sum := readSummaryCountSum(t, b.stepDuration, "validate", "success")
	if count != 1 || sum != 1.5 {
		t.Fatalf("count=%d sum=%v want 1/1.5", count, sum)
	}
}

// TestFlush pushes to a fake Pushgateway and checks the grouping path.
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushed struct {
		method  string
		path    string
		bodyLen int
	}
	reqCh := make(chan pushed, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushed{method: r.Method, path: r.URL.Path, bodyLen: len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("civic-nightly", server.URL)
	if err != nil {
		t.Fatal(err)
	}
	b.IncCounter(metrics.RowsTotal, 10, metrics.Labels{"kind": "loaded"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushed
	select {
	case got = <-reqCh:
	default:
		t.Fatal("Flush() did not reach the Pushgateway")
	}
	if got.method != http.MethodPut {
		t.Fatalf("method=%s want PUT", got.method)
	}
	if !strings.Contains(got.path, "/job/civic-nightly") {
		t.Fatalf("path=%s", got.path)
	}
	if got.bodyLen == 0 {
		t.Fatal("empty push body")
	}
}
