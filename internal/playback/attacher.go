package playback

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Attacher decides how a finished job's media reaches a Surface.
type Attacher struct {
	http             *http.Client
	logger           *slog.Logger
	maxBandwidth     uint32
	softwareAdaptive bool
}

// Option configures an Attacher.
type Option func(*Attacher)

func WithHTTPClient(c *http.Client) Option {
	return func(a *Attacher) { a.http = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Attacher) { a.logger = l }
}

// WithMaxBandwidth caps the variant chosen from a master playlist, in bits
// per second. Zero means no cap.
func WithMaxBandwidth(bps uint32) Option {
	return func(a *Attacher) { a.maxBandwidth = bps }
}

// WithSoftwareAdaptive toggles the in-process HLS loader. When off, HLS is
// only played on surfaces that report native support.
func WithSoftwareAdaptive(on bool) Option {
	return func(a *Attacher) { a.softwareAdaptive = on }
}

// NewAttacher returns an Attacher with the software loader enabled.
func NewAttacher(opts ...Option) *Attacher {
	a := &Attacher{softwareAdaptive: true}
	for _, o := range opts {
		o(a)
	}
	if a.http == nil {
		a.http = &http.Client{Timeout: 30 * time.Second}
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a
}

// Attach binds mediaURL to surface. The probe order is: software adaptive
// loader for HLS, then the surface's native support, then failure with
// ErrUnsupportedPlayback. Loading continues in the background; notify
// receives EventManifestParsed once playback starts, or EventError wrapping
// ErrAttach.
func (a *Attacher) Attach(ctx context.Context, mediaURL string, surface Surface, notify NotifyFunc) (*Handle, error) {
	if surface == nil {
		return nil, fmt.Errorf("%w: no playback surface", ErrUnsupportedPlayback)
	}
	if notify == nil {
		notify = func(Event) {}
	}
	mimeType := MediaType(mediaURL)
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, surface: surface}

	switch {
	case mimeType == MimeHLS && a.softwareAdaptive:
		h.mode = ModeAdaptive
		go a.loadAdaptive(ctx, mediaURL, surface, notify)
	case surface.CanPlayType(mimeType):
		h.mode = ModeDirect
		if IsAdaptive(mimeType) {
			h.mode = ModeNative
		}
		go a.load(ctx, surface, notify, Variant{URL: mediaURL})
	default:
		cancel()
		a.logger.Warn("no playback path", "url", mediaURL, "type", mimeType)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlayback, describeType(mimeType))
	}
	a.logger.Info("attaching media", "url", mediaURL, "mode", h.mode.String())
	return h, nil
}

func (a *Attacher) loadAdaptive(ctx context.Context, manifestURL string, surface Surface, notify NotifyFunc) {
	v, err := resolveVariant(ctx, a.http, manifestURL, a.maxBandwidth)
	if err != nil {
		if ctx.Err() == nil {
			notify(Event{Kind: EventError, Err: fmt.Errorf("%w: %v", ErrAttach, err)})
		}
		return
	}
	a.logger.Debug("variant selected",
		"url", v.URL, "bandwidth", v.Bandwidth, "resolution", v.Resolution, "segments", v.Segments)
	a.load(ctx, surface, notify, v)
}

// load points surface at v and starts it. Failures arrive as EventError.
func (a *Attacher) load(ctx context.Context, surface Surface, notify NotifyFunc, v Variant) {
	if ctx.Err() != nil {
		return
	}
	if err := surface.SetSource(v.URL); err != nil {
		notify(Event{Kind: EventError, Err: fmt.Errorf("%w: %v", ErrAttach, err)})
		return
	}
	a.start(ctx, surface, notify, v)
}

func (a *Attacher) start(ctx context.Context, surface Surface, notify NotifyFunc, v Variant) {
	if ctx.Err() != nil {
		return
	}
	if err := surface.Play(ctx, notify); err != nil {
		if ctx.Err() == nil {
			notify(Event{Kind: EventError, Err: fmt.Errorf("%w: %v", ErrAttach, err)})
		}
		return
	}
	notify(Event{Kind: EventManifestParsed, Variant: v})
}

func describeType(mimeType string) string {
	if mimeType == "" {
		return "unknown media type"
	}
	return mimeType
}

// Handle owns one attachment. Release stops loading and detaches the
// surface; it is safe to call more than once and from any goroutine.
type Handle struct {
	mode    Mode
	cancel  context.CancelFunc
	surface Surface
	once    sync.Once
}

func (h *Handle) Mode() Mode {
	if h == nil {
		return ModeNone
	}
	return h.mode
}

func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.cancel()
		h.surface.Detach()
	})
}
