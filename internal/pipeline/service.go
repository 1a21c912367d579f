// Package pipeline runs a job without a UI: it hosts the job state machine's
// event loop and forwards its progress to a Reporter.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloudweave/internal/job"
	"cloudweave/internal/logging"
	"cloudweave/internal/metrics"
	"cloudweave/internal/model"
	"cloudweave/internal/playback"
	"cloudweave/internal/progress"
	"cloudweave/internal/request"
	"cloudweave/internal/util/format"
)

var (
	ErrJobFailed           = errors.New("job failed")
	ErrPlaybackUnavailable = errors.New("job succeeded, playback unavailable")
	ErrCancelled           = errors.New("job cancelled")
)

// Service hosts one job at a time on the calling goroutine.
type Service struct {
	streamer job.Streamer
	attacher job.Attacher
	surface  playback.Surface
	reporter progress.Reporter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	opts     model.RunOptions
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithStreamer sets how progress streams are opened.
func WithStreamer(st job.Streamer) Option {
	return func(s *Service) {
		s.streamer = st
	}
}

// WithAttacher sets how finished media is attached.
func WithAttacher(a job.Attacher) Option {
	return func(s *Service) {
		s.attacher = a
	}
}

// WithSurface sets the playback surface. Without one, a finished job
// reports ErrPlaybackUnavailable.
func WithSurface(sf playback.Surface) Option {
	return func(s *Service) {
		s.surface = sf
	}
}

// WithReporter attaches a progress reporter.
func WithReporter(rp progress.Reporter) Option {
	return func(s *Service) {
		s.reporter = rp
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRunOptions sets timeout and wait behavior.
func WithRunOptions(o model.RunOptions) Option {
	return func(s *Service) {
		s.opts = o
	}
}

// NewService constructs a new Service with the provided options.
func NewService(opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.reporter == nil {
		s.reporter = progress.Nop{}
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// Result is the outcome of Watch.
type Result struct {
	State   job.State
	Summary model.JobSummary
}

// Watch submits req and runs the event loop until the job settles: failed,
// cancelled, playback unavailable, or playing (ended, with Wait). Cancelling
// ctx cancels a running job.
func (s *Service) Watch(ctx context.Context, req request.JobRequest) (Result, error) {
	if s.streamer == nil {
		return Result{}, fmt.Errorf("stream client is required")
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	started := s.now()

	// The machine outlives ctx so that a cancellation can still be applied
	// to it; Close tears everything down on return.
	m := job.New(context.WithoutCancel(ctx), s.streamer, s.attacher,
		job.WithLogger(s.logger),
		job.WithMetrics(s.metrics),
		job.WithSurface(s.surface),
	)
	defer m.Close()

	if err := m.Submit(req); err != nil {
		return Result{}, err
	}
	last := progress.Update{Percent: -2}
	s.report(m.State(), &last)

	for {
		st := m.State()
		if done, err := s.settled(st); done {
			return s.finish(st, started, err)
		}
		select {
		case env := <-m.Inbox():
			if m.Dispatch(env) {
				s.report(m.State(), &last)
			}
		case <-ctx.Done():
			if st.Phase.Active() {
				_ = m.Cancel()
				s.report(m.State(), &last)
				return s.finish(m.State(), started, fmt.Errorf("%w: %v", ErrCancelled, context.Cause(ctx)))
			}
			if st.Phase == job.Ready && st.Playback == job.PlaybackLoading {
				return s.finish(st, started, fmt.Errorf("%w: media did not start: %v", ErrPlaybackUnavailable, context.Cause(ctx)))
			}
			// Ready and playing: stopping playback is the normal way out.
			return s.finish(st, started, nil)
		}
	}
}

// settled reports whether the loop should stop at st, and with what error.
func (s *Service) settled(st job.State) (bool, error) {
	switch st.Phase {
	case job.Failed:
		return true, fmt.Errorf("%w: %w", ErrJobFailed, cause(st.Err, st.Reason))
	case job.Cancelled:
		return true, ErrCancelled
	case job.Ready:
		switch st.Playback {
		case job.PlaybackUnavailable:
			return true, fmt.Errorf("%w: %w", ErrPlaybackUnavailable, cause(st.PlaybackErr, "no playback path"))
		case job.PlaybackEnded:
			return true, nil
		case job.PlaybackPlaying:
			return !s.opts.Wait, nil
		}
	}
	return false, nil
}

func cause(err error, fallback string) error {
	if err != nil {
		return err
	}
	return errors.New(fallback)
}

func (s *Service) finish(st job.State, started time.Time, err error) (Result, error) {
	res := Result{State: st, Summary: Summarize(st, s.now().Sub(started))}
	r := progress.Result{JobID: st.RequestID, MediaURL: st.MediaURL, Err: err}
	if st.Playback == job.PlaybackPlaying || st.Playback == job.PlaybackEnded {
		r.Playback = st.PlaybackMode.String()
	}
	s.reporter.Result(r)
	if err != nil {
		s.logger.Info("job finished", "request_id", st.RequestID, "phase", st.Phase.String(), "error", err)
	} else {
		s.logger.Info("job finished", "request_id", st.RequestID, "phase", st.Phase.String(), "media_url", st.MediaURL)
	}
	return res, err
}

// report forwards st to the reporter when it differs from the last update.
// Nothing follows a terminal stage.
func (s *Service) report(st job.State, last *progress.Update) {
	u := UpdateFor(st)
	if u == *last || last.Stage.Terminal() {
		return
	}
	*last = u
	s.reporter.Update(u)
}

// UpdateFor maps a job state to a reporter update.
func UpdateFor(st job.State) progress.Update {
	u := progress.Update{JobID: st.RequestID, Percent: st.Progress, Message: st.Message}
	switch st.Phase {
	case job.Idle, job.Validating:
		u.Stage = progress.StageConnecting
		u.Percent = -1
		u.Message = "Connecting…"
	case job.Streaming:
		u.Stage = progress.StageStreaming
	case job.Ready:
		u.Stage = progress.StageReady
		switch st.Playback {
		case job.PlaybackLoading:
			u.Message = "Loading video…"
		case job.PlaybackPlaying:
			u.Stage = progress.StagePlaying
			u.Message = "Playing " + st.MediaURL
		case job.PlaybackEnded:
			u.Stage = progress.StageCompleted
			u.Message = "Playback ended"
		case job.PlaybackUnavailable:
			u.Stage = progress.StageError
			u.Message = "Playback unavailable"
		}
	case job.Failed:
		u.Stage = progress.StageError
		u.Message = st.Reason
	case job.Cancelled:
		u.Stage = progress.StageCancelled
		u.Message = "Cancelled"
	}
	return u
}

// Summarize flattens a state into a JobSummary.
func Summarize(st job.State, elapsed time.Duration) model.JobSummary {
	return model.JobSummary{
		RequestID: st.RequestID,
		BBox:      st.Request.Box.String(),
		Start:     st.Request.Range.Start,
		End:       st.Request.Range.End,
		Zoom:      st.Request.Zoom,
		Workers:   st.Request.MaxWorkers,
		Phase:     st.Phase.String(),
		Progress:  st.Progress,
		MediaURL:  st.MediaURL,
		Playback:  st.Playback.String(),
		Mode:      st.PlaybackMode.String(),
		Variant:   variantLabel(st.Variant),
		Reason:    st.Reason,
		Elapsed:   elapsed,
	}
}

func variantLabel(v playback.Variant) string {
	var parts []string
	if v.Resolution != "" {
		parts = append(parts, v.Resolution)
	}
	if v.Bandwidth > 0 {
		parts = append(parts, format.HumanizeBitrate(uint64(v.Bandwidth)))
	}
	label := strings.Join(parts, " @ ")
	if v.Live && label != "" {
		label += " (live)"
	}
	return label
}
