// Package metrics exposes job lifecycle counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cloudweave"

// Metrics groups the client's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Submissions     prometheus.Counter
	Transitions     *prometheus.CounterVec
	MalformedFrames prometheus.Counter
	StaleEvents     prometheus.Counter
	StreamErrors    prometheus.Counter
	Attachments     *prometheus.CounterVec
	Progress        prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_submissions_total",
			Help:      "Total interpolation jobs submitted.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Job lifecycle transitions by source and target state.",
		}, []string{"from", "to"}),
		MalformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_malformed_frames_total",
			Help:      "Progress frames that could not be decoded.",
		}),
		StaleEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_events_dropped_total",
			Help:      "Events dropped because their job generation was superseded.",
		}),
		StreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Progress streams that ended with a transport error.",
		}),
		Attachments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_attachments_total",
			Help:      "Playback attach attempts by mode and outcome.",
		}, []string{"mode", "outcome"}),
		Progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_progress_percent",
			Help:      "Displayed progress of the current job.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Submissions,
			m.Transitions,
			m.MalformedFrames,
			m.StaleEvents,
			m.StreamErrors,
			m.Attachments,
			m.Progress,
		)
	}
	return m
}

func (m *Metrics) ObserveSubmission() {
	if m == nil {
		return
	}
	m.Submissions.Inc()
	m.Progress.Set(0)
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveProgress(p float64) {
	if m == nil {
		return
	}
	m.Progress.Set(p)
}

func (m *Metrics) ObserveMalformed() {
	if m == nil {
		return
	}
	m.MalformedFrames.Inc()
}

func (m *Metrics) ObserveStale() {
	if m == nil {
		return
	}
	m.StaleEvents.Inc()
}

func (m *Metrics) ObserveStreamError() {
	if m == nil {
		return
	}
	m.StreamErrors.Inc()
}

func (m *Metrics) ObserveAttach(mode, outcome string) {
	if m == nil {
		return
	}
	m.Attachments.WithLabelValues(mode, outcome).Inc()
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	if logger != nil {
		logger.Info("metrics endpoint listening", "addr", addr)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
