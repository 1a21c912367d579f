package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveSubmission()
	m.ObserveTransition("idle", "validating")
	m.ObserveProgress(10)
	m.ObserveMalformed()
	m.ObserveStale()
	m.ObserveStreamError()
	m.ObserveAttach("adaptive", "ok")
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSubmission()
	m.ObserveSubmission()
	m.ObserveTransition("idle", "validating")
	m.ObserveProgress(42)
	m.ObserveAttach("native", "ok")

	if got := testutil.ToFloat64(m.Submissions); got != 2 {
		t.Errorf("submissions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("idle", "validating")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Progress); got != 42 {
		t.Errorf("progress = %v, want 42", got)
	}
	if got := testutil.ToFloat64(m.Attachments.WithLabelValues("native", "ok")); got != 1 {
		t.Errorf("attachments = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("no metric families registered")
	}
}
