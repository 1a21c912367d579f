// Package stream consumes the backend's server-sent progress stream for one job.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"cloudweave/internal/request"
)

// DefaultPath is the backend's stream endpoint.
const DefaultPath = "/interpolate/stream"

// Client opens progress streams against one backend.
type Client struct {
	baseURL string
	path    string
	http    *http.Client
	logger  *slog.Logger
	newID   func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient injects the HTTP client (useful for testing).
// It must not set a response timeout: streams are long-lived.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithPath overrides the stream endpoint path.
func WithPath(p string) Option {
	return func(c *Client) {
		c.path = p
	}
}

// WithRequestIDs overrides the request id generator.
func WithRequestIDs(fn func() string) Option {
	return func(c *Client) {
		c.newID = fn
	}
}

// NewClient constructs a Client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{baseURL: baseURL, path: DefaultPath}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	return c
}

// Start opens one stream for req and returns immediately. The handler is
// invoked from a single goroutine, in wire order: KindOpened first, then
// progress/malformed messages, then at most one KindTerminal or KindError.
// No delivery starts after Cancel; one already in progress may complete, so
// consumers tag messages with their own generation.
func (c *Client) Start(ctx context.Context, req request.JobRequest, handle HandlerFunc) *Subscription {
	sctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		id:     c.newID(),
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.run(sub, req, handle)
	return sub
}

func (c *Client) run(sub *Subscription, req request.JobRequest, handle HandlerFunc) {
	defer close(sub.done)
	defer sub.cancel()

	log := c.logger.With("request_id", sub.id)

	deliver := func(m Message) bool {
		if sub.ctx.Err() != nil {
			return false
		}
		handle(m)
		return true
	}
	fail := func(err error) {
		if sub.ctx.Err() != nil {
			sub.setErr(sub.ctx.Err())
			return
		}
		log.Warn("progress stream failed", "error", err)
		sub.setErr(err)
		deliver(Message{Kind: KindError, Err: err})
	}

	streamURL, err := req.StreamURL(c.baseURL, c.path)
	if err != nil {
		fail(fmt.Errorf("%w: %w", ErrStream, err))
		return
	}
	hreq, err := http.NewRequestWithContext(sub.ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		fail(fmt.Errorf("%w: %w", ErrStream, err))
		return
	}
	hreq.Header.Set("Accept", "text/event-stream")
	hreq.Header.Set("Cache-Control", "no-cache")
	hreq.Header.Set("X-Request-ID", sub.id)

	log.Debug("opening progress stream", "url", streamURL)
	resp, err := c.http.Do(hreq)
	if err != nil {
		fail(fmt.Errorf("%w: %w", ErrStream, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		fail(fmt.Errorf("%w: %w: %s %s", ErrStream, ErrUnexpectedStatus, resp.Status, strings.TrimSpace(string(snippet))))
		return
	}
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mt != "text/event-stream" {
		fail(fmt.Errorf("%w: %w: %q", ErrStream, ErrNotEventStream, resp.Header.Get("Content-Type")))
		return
	}
	if !deliver(Message{Kind: KindOpened}) {
		sub.setErr(sub.ctx.Err())
		return
	}

	base := resp.Request.URL
	rd := NewReader(resp.Body)
	defer rd.Close()
	for {
		frame, err := rd.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrUnexpectedClose
			}
			fail(fmt.Errorf("%w: %w", ErrStream, err))
			return
		}
		if frame.Data == "" || frame.Event != "" {
			log.Debug("skipping frame", "event", frame.Event)
			continue
		}
		ev, perr := ParseEvent([]byte(frame.Data))
		if perr != nil {
			log.Warn("malformed progress frame", "error", perr, "data", truncate(frame.Data, 200))
			if !deliver(Message{Kind: KindMalformed, Err: perr}) {
				sub.setErr(sub.ctx.Err())
				return
			}
			continue
		}
		if ev.Terminal() {
			ev.MediaURL = resolve(base, ev.MediaURL)
			if deliver(Message{Kind: KindTerminal, Event: ev}) {
				log.Debug("progress stream complete", "media_url", ev.MediaURL)
			} else {
				sub.setErr(sub.ctx.Err())
			}
			return
		}
		if !deliver(Message{Kind: KindProgress, Event: ev}) {
			sub.setErr(sub.ctx.Err())
			return
		}
	}
}

// resolve turns a root-relative media path into an absolute URL.
func resolve(base *url.URL, ref string) string {
	r, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(r).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// Subscription is the handle to one open stream.
type Subscription struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// ID returns the request id sent as X-Request-ID.
func (s *Subscription) ID() string { return s.id }

// Cancel closes the stream. Safe to call repeatedly and after the stream
// has ended.
func (s *Subscription) Cancel() {
	s.cancel()
}

// Done is closed when the stream goroutine exits.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns why the stream ended: nil after a terminal event,
// context.Canceled after Cancel, or an ErrStream-wrapped error.
// It is only meaningful once Done is closed.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
