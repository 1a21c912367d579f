// Package job owns the lifecycle of a single interpolation job: it opens the
// progress stream, folds stream events into a State, and attaches the
// resulting media once the job is ready.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"cloudweave/internal/metrics"
	"cloudweave/internal/playback"
	"cloudweave/internal/request"
	"cloudweave/internal/stream"
)

var (
	// ErrIllegalTransition is returned by Cancel and Reset when the current
	// phase does not allow them.
	ErrIllegalTransition = errors.New("illegal transition")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("job machine closed")
)

const defaultInboxSize = 64

// Machine is the job state machine. All methods except Inbox are meant to be
// called from one host goroutine (the UI update loop or the pipeline loop);
// producers only ever write to the inbox.
type Machine struct {
	ctx      context.Context
	streamer Streamer
	attacher Attacher
	surface  playback.Surface
	logger   *slog.Logger
	metrics  *metrics.Metrics

	inbox  chan Envelope
	closed chan struct{}

	state     State
	gen       uint64
	genCtx    context.Context
	genCancel context.CancelFunc
	sub       Subscription
	handle    PlaybackHandle
}

// Option configures a Machine.
type Option func(*Machine)

func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithSurface sets where Ready media is attached. Without one every Ready
// job ends with PlaybackUnavailable.
func WithSurface(s playback.Surface) Option {
	return func(m *Machine) { m.surface = s }
}

func WithInboxSize(n int) Option {
	return func(m *Machine) {
		if n > 0 {
			m.inbox = make(chan Envelope, n)
		}
	}
}

// New returns an Idle machine. ctx bounds every subscription and
// attachment the machine creates.
func New(ctx context.Context, streamer Streamer, attacher Attacher, opts ...Option) *Machine {
	m := &Machine{
		ctx:      ctx,
		streamer: streamer,
		attacher: attacher,
		closed:   make(chan struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	if m.inbox == nil {
		m.inbox = make(chan Envelope, defaultInboxSize)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return m
}

// State returns the current snapshot.
func (m *Machine) State() State { return m.state }

// Generation returns the current generation. It changes on every Submit,
// Cancel, Reset and Close.
func (m *Machine) Generation() uint64 { return m.gen }

// Inbox is where stream and playback notifications arrive. The host loop
// reads from it and passes each envelope to Dispatch.
func (m *Machine) Inbox() <-chan Envelope { return m.inbox }

// Done is closed by Close.
func (m *Machine) Done() <-chan struct{} { return m.closed }

// Submit tears down any previous job and starts streaming req. It is legal
// from every phase.
func (m *Machine) Submit(req request.JobRequest) error {
	if m.isClosed() {
		return ErrClosed
	}
	from := m.state.Phase
	m.teardown()

	ctx, cancel := context.WithCancel(m.ctx)
	m.genCtx, m.genCancel = ctx, cancel
	gen := m.gen
	m.set(from, State{Phase: Validating, Generation: gen, Request: req})
	m.metrics.ObserveSubmission()

	m.sub = m.streamer.Start(ctx, req, func(msg stream.Message) {
		m.post(Envelope{Generation: gen, Stream: &msg})
	})
	if ider, ok := m.sub.(interface{ ID() string }); ok {
		m.state.RequestID = ider.ID()
	}
	m.logger.Info("job submitted",
		"generation", gen,
		"request_id", m.state.RequestID,
		"bbox", req.Box.String(),
		"zoom", req.Zoom,
		"max_workers", req.MaxWorkers,
	)
	return nil
}

// Cancel moves any non-terminal phase to Cancelled, aborting a job that is
// still validating or streaming. Cancelling from Idle records the user's
// abort with no job behind it. Events already queued are dropped by Dispatch.
func (m *Machine) Cancel() error {
	if m.state.Phase.Terminal() {
		return fmt.Errorf("%w: cancel from %s", ErrIllegalTransition, m.state.Phase)
	}
	from := m.state.Phase
	prev := m.state
	m.teardown()
	m.set(from, State{
		Phase:     Cancelled,
		RequestID: prev.RequestID,
		Request:   prev.Request,
		Progress:  prev.Progress,
		Message:   prev.Message,
	})
	return nil
}

// Reset returns a finished job to Idle, releasing any playback.
func (m *Machine) Reset() error {
	if !m.state.Phase.Terminal() {
		return fmt.Errorf("%w: reset from %s", ErrIllegalTransition, m.state.Phase)
	}
	from := m.state.Phase
	m.teardown()
	m.set(from, State{Phase: Idle, Generation: m.gen})
	return nil
}

// Close releases everything and stops producers from blocking on the inbox.
// The state is left as it was. Close is idempotent.
func (m *Machine) Close() {
	if m.isClosed() {
		return
	}
	m.teardown()
	close(m.closed)
}

// Dispatch applies one envelope. It reports whether the envelope belonged
// to the current generation; stale envelopes never change state.
func (m *Machine) Dispatch(env Envelope) bool {
	if env.Generation != m.gen {
		m.metrics.ObserveStale()
		m.logger.Debug("dropping stale event", "generation", env.Generation, "current", m.gen)
		return false
	}
	switch {
	case env.Stream != nil:
		m.applyStream(*env.Stream)
	case env.Playback != nil:
		m.applyPlayback(*env.Playback)
	}
	return true
}

func (m *Machine) applyStream(msg stream.Message) {
	s := m.state
	switch msg.Kind {
	case stream.KindOpened:
		if s.Phase != Validating {
			return
		}
		s.Phase = Streaming
		s.Progress = 0
		s.Message = InitialMessage
		m.set(Validating, s)

	case stream.KindProgress:
		if !s.Phase.Active() {
			return
		}
		from := s.Phase
		s.Phase = Streaming
		s.Progress = math.Max(s.Progress, msg.Event.Progress)
		s.Message = msg.Event.Message
		m.set(from, s)

	case stream.KindTerminal:
		if !s.Phase.Active() {
			return
		}
		from := s.Phase
		m.sub = nil
		s.Phase = Ready
		s.Progress = math.Max(s.Progress, msg.Event.Progress)
		s.Message = msg.Event.Message
		s.MediaURL = msg.Event.MediaURL
		m.set(from, s)
		m.attach()

	case stream.KindMalformed:
		m.metrics.ObserveMalformed()
		m.logger.Warn("ignoring malformed progress event", "generation", s.Generation, "error", msg.Err)

	case stream.KindError:
		if !s.Phase.Active() {
			return
		}
		from := s.Phase
		m.sub = nil
		m.metrics.ObserveStreamError()
		s.Phase = Failed
		s.Err = msg.Err
		s.Reason = "stream error"
		if msg.Err != nil {
			s.Reason = msg.Err.Error()
		}
		m.set(from, s)
	}
}

func (m *Machine) attach() {
	gen := m.gen
	s := m.state
	if m.attacher == nil || m.genCtx == nil {
		s.Playback = PlaybackUnavailable
		s.PlaybackErr = playback.ErrUnsupportedPlayback
		m.state = s
		return
	}
	h, err := m.attacher.Attach(m.genCtx, s.MediaURL, m.surface, func(ev playback.Event) {
		m.post(Envelope{Generation: gen, Playback: &ev})
	})
	if err != nil {
		m.metrics.ObserveAttach(playback.ModeNone.String(), "unsupported")
		m.logger.Warn("playback unavailable", "url", s.MediaURL, "error", err)
		s.Playback = PlaybackUnavailable
		s.PlaybackErr = err
		m.state = s
		return
	}
	m.handle = h
	m.metrics.ObserveAttach(h.Mode().String(), "attached")
	s.Playback = PlaybackLoading
	s.PlaybackMode = h.Mode()
	m.state = s
}

func (m *Machine) applyPlayback(ev playback.Event) {
	s := m.state
	if s.Phase != Ready || m.handle == nil {
		return
	}
	mode := s.PlaybackMode.String()
	switch ev.Kind {
	case playback.EventManifestParsed:
		if s.Playback != PlaybackLoading {
			return
		}
		m.metrics.ObserveAttach(mode, "playing")
		s.Playback = PlaybackPlaying
		s.Variant = ev.Variant
	case playback.EventWarning:
		m.logger.Warn("playback warning", "error", ev.Err)
		s.PlaybackErr = ev.Err
	case playback.EventError:
		m.fail(&s, ev.Err)
	case playback.EventEnded:
		switch {
		case ev.Err != nil:
			m.fail(&s, ev.Err)
		case s.Playback == PlaybackPlaying:
			s.Playback = PlaybackEnded
		}
	}
	m.state = s
}

// fail makes playback unavailable and releases the handle. The job itself
// stays Ready.
func (m *Machine) fail(s *State, err error) {
	if s.Playback != PlaybackLoading && s.Playback != PlaybackPlaying {
		return
	}
	m.metrics.ObserveAttach(s.PlaybackMode.String(), "failed")
	m.logger.Warn("playback failed", "url", s.MediaURL, "error", err)
	s.Playback = PlaybackUnavailable
	s.PlaybackErr = err
	m.handle.Release()
	m.handle = nil
}

// teardown invalidates the current generation and releases its
// subscription and playback handle.
func (m *Machine) teardown() {
	m.gen++
	if m.sub != nil {
		m.sub.Cancel()
		m.sub = nil
	}
	if m.handle != nil {
		m.handle.Release()
		m.handle = nil
	}
	if m.genCancel != nil {
		m.genCancel()
		m.genCtx, m.genCancel = nil, nil
	}
}

func (m *Machine) set(from Phase, s State) {
	s.Generation = m.gen
	m.state = s
	if from != s.Phase {
		m.metrics.ObserveTransition(from.String(), s.Phase.String())
		m.logger.Debug("transition",
			"from", from.String(),
			"to", s.Phase.String(),
			"generation", s.Generation,
			"request_id", s.RequestID,
		)
	}
	if s.Phase == Streaming || s.Phase == Ready {
		m.metrics.ObserveProgress(s.Progress)
	}
}

// post hands an envelope to the host loop, giving up once the machine or
// its context is done.
func (m *Machine) post(env Envelope) {
	select {
	case m.inbox <- env:
	case <-m.closed:
	case <-m.ctx.Done():
	}
}

func (m *Machine) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}
