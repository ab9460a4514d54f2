package datadog

import (
	"reflect"
	"testing"

	"github.com/advanced-computing/sleepy-narwhal/internal/metrics"
)

type call struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeClient struct {
	calls  []call
	closed bool
}

func (f *fakeClient) Count(name string, value int64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"count", name, float64(value), tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestBackend_ForwardsWithTags(t *testing.T) {
	fc := &fakeClient{}
	b := &Backend{client: fc}

	b.IncCounter(metrics.RowsTotal, 42, metrics.Labels{"kind": "loaded", "job": "civic"})
	b.ObserveHistogram(metrics.StepDuration, 0.25, metrics.Labels{"step": "parse"})
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}

	want := []call{
		{"count", metrics.RowsTotal, 42, []string{"job:civic", "kind:loaded"}},
		{"histogram", metrics.StepDuration, 0.25, []string{"step:parse"}},
	}
	if !reflect.DeepEqual(fc.calls, want) {
		t.Fatalf("calls=%v\nwant %v", fc.calls, want)
	}
	if !fc.closed {
		t.Fatal("Flush should close the client")
	}
}

func TestBackend_NilClient(t *testing.T) {
	b := &Backend{}
	b.IncCounter(metrics.RowsTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDuration, 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatal(err)
	}
}

func TestNewBackend(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("missing Addr should fail")
	}
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "civic.", GlobalTags: []string{"env:test"}})
	if err != nil {
		t.Fatal(err)
	}
	_ = b.Flush()
}

func TestLabelsToTags(t *testing.T) {
	if got := labelsToTags(nil); got != nil {
		t.Fatalf("got %v", got)
	}
	got := labelsToTags(metrics.Labels{"status": "success", "dataset": "hate_crimes"})
	if !reflect.DeepEqual(got, []string{"dataset:hate_crimes", "status:success"}) {
		t.Fatalf("got %v", got)
	}
}
