package datadog

import (
	"reflect"
	"testing"

	"bulkupdate/internal/metrics"
)

type call struct {
	kind  string
	name  string
	value float64
	tags  []string
}

type fakeClient struct {
	calls   []call
	flushed int
	closed  int
}

func (f *fakeClient) Count(name string, value int64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"count", name, float64(value), tags})
	return nil
}

func (f *fakeClient) Histogram(name string, value float64, tags []string, _ float64) error {
	f.calls = append(f.calls, call{"histogram", name, value, tags})
	return nil
}

func (f *fakeClient) Flush() error { f.flushed++; return nil }
func (f *fakeClient) Close() error { f.closed++; return nil }

func TestNewBackend_RequiresAddr(t *testing.T) {
	t.Parallel()
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("NewBackend(Config{}) error = nil; want error")
	}
}

func TestNewBackend_UDP(t *testing.T) {
	t.Parallel()
	// UDP needs no listener to construct a client.
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "bulkupdate.", GlobalTags: []string{"env:test"}})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestBackend_Forwarding(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	b := &Backend{client: fc}
	var _ metrics.Backend = b

	lbls := metrics.Labels{"job": "orders", "step": "update", "status": "success"}
	b.IncCounter(metrics.StepTotal, 1, lbls)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, lbls)
	b.IncCounter(metrics.RowsTotal, 2.9, metrics.Labels{"job": "orders", "kind": "updated"})

	wantTags := []string{"job:orders", "status:success", "step:update"}
	want := []call{
		{"count", metrics.StepTotal, 1, wantTags},
		{"histogram", metrics.StepDurationSeconds, 0.25, wantTags},
		{"count", metrics.RowsTotal, 2, []string{"job:orders", "kind:updated"}},
	}
	if !reflect.DeepEqual(fc.calls, want) {
		t.Fatalf("calls = %+v; want %+v", fc.calls, want)
	}

	if err := b.Flush(); err != nil || fc.flushed != 1 || fc.closed != 0 {
		t.Fatalf("Flush() = %v, flushed=%d closed=%d; want nil, 1, 0", err, fc.flushed, fc.closed)
	}
}

func TestBackend_NilClient(t *testing.T) {
	t.Parallel()
	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 1, nil)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestLabelsToTags(t *testing.T) {
	t.Parallel()
	if got := labelsToTags(nil); got != nil {
		t.Fatalf("labelsToTags(nil) = %v; want nil", got)
	}
	got := labelsToTags(metrics.Labels{"b": "2", "a": "1"})
	if want := []string{"a:1", "b:2"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("labelsToTags() = %v; want %v", got, want)
	}
}
