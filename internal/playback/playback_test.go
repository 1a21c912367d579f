package playback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/grafov/m3u8"

	"cloudweave/internal/util"
)

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=400000,RESOLUTION=640x360
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=1200000,RESOLUTION=1280x720
mid/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=4000000,RESOLUTION=1920x1080
high/index.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:4.0,
seg0.ts
#EXTINF:4.0,
seg1.ts
#EXTINF:2.5,
seg2.ts
#EXT-X-ENDLIST
`

const emptyMediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:4
#EXT-X-ENDLIST
`

func hlsServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/out/master.m3u8", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", MimeHLS)
		fmt.Fprint(w, masterPlaylist)
	})
	for _, name := range []string{"low", "mid", "high"} {
		mux.HandleFunc("/out/"+name+"/index.m3u8", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, mediaPlaylist)
		})
	}
	mux.HandleFunc("/single.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, mediaPlaylist)
	})
	mux.HandleFunc("/empty.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, emptyMediaPlaylist)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newEventLog() *eventLog { return &eventLog{ch: make(chan Event, 16)} }

func (l *eventLog) notify(ev Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
	l.ch <- ev
}

func (l *eventLog) wait(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-l.ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for playback event")
		return Event{}
	}
}

// fakeSurface is a Surface with a configurable native type set.
type fakeSurface struct {
	native    map[string]bool
	sourceErr error
	playErr   error

	mu       sync.Mutex
	sources  []string
	plays    int
	detaches int
}

func (f *fakeSurface) CanPlayType(m string) bool { return f.native[m] }

func (f *fakeSurface) SetSource(src string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sourceErr != nil {
		return f.sourceErr
	}
	f.sources = append(f.sources, src)
	return nil
}

func (f *fakeSurface) Play(ctx context.Context, notify NotifyFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
	return f.playErr
}

func (f *fakeSurface) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detaches++
}

func (f *fakeSurface) snapshot() ([]string, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sources...), f.plays, f.detaches
}

func TestMediaType(t *testing.T) {
	cases := map[string]string{
		"http://h/out/master.m3u8":     MimeHLS,
		"http://h/out/MASTER.M3U8?x=1": MimeHLS,
		"http://h/output.mp4":          MimeMP4,
		"http://h/a.webm#t=1":          MimeWebM,
		"http://h/manifest.mpd":        MimeDASH,
		"http://h/stream":              "",
		"/output.mp4":                  MimeMP4,
	}
	for in, want := range cases {
		if got := MediaType(in); got != want {
			t.Errorf("MediaType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSelectVariant(t *testing.T) {
	mk := func(bw uint32, iframe bool) *m3u8.Variant {
		return &m3u8.Variant{URI: fmt.Sprintf("v%d.m3u8", bw), VariantParams: m3u8.VariantParams{Bandwidth: bw, Iframe: iframe}}
	}
	variants := []*m3u8.Variant{mk(400, false), mk(1200, false), mk(4000, false), mk(9000, true)}

	cases := []struct {
		limit uint32
		want  uint32
	}{
		{limit: 0, want: 4000},
		{limit: 2000, want: 1200},
		{limit: 1200, want: 1200},
		{limit: 100, want: 400},
	}
	for _, c := range cases {
		got := selectVariant(variants, c.limit)
		if got == nil || got.Bandwidth != c.want {
			t.Errorf("selectVariant(limit=%d) = %+v, want bandwidth %d", c.limit, got, c.want)
		}
	}
	if got := selectVariant([]*m3u8.Variant{mk(500, true)}, 0); got != nil {
		t.Errorf("expected no variant when only i-frame streams exist, got %+v", got)
	}
}

func TestResolveVariant(t *testing.T) {
	srv := hlsServer(t)
	ctx := context.Background()

	v, err := resolveVariant(ctx, srv.Client(), srv.URL+"/out/master.m3u8", 2_000_000)
	if err != nil {
		t.Fatalf("resolveVariant master: %v", err)
	}
	if v.URL != srv.URL+"/out/mid/index.m3u8" {
		t.Errorf("variant URL = %q", v.URL)
	}
	if v.Bandwidth != 1200000 || v.Resolution != "1280x720" {
		t.Errorf("variant params = %d %q", v.Bandwidth, v.Resolution)
	}
	if v.Segments != 3 || v.Live {
		t.Errorf("segments=%d live=%v, want 3 false", v.Segments, v.Live)
	}

	v, err = resolveVariant(ctx, srv.Client(), srv.URL+"/single.m3u8", 0)
	if err != nil {
		t.Fatalf("resolveVariant media: %v", err)
	}
	if v.URL != srv.URL+"/single.m3u8" || v.TargetDuration != 4 {
		t.Errorf("media variant = %+v", v)
	}

	if _, err := resolveVariant(ctx, srv.Client(), srv.URL+"/empty.m3u8", 0); err == nil {
		t.Error("expected error for empty media playlist")
	}
	if _, err := resolveVariant(ctx, srv.Client(), srv.URL+"/missing.m3u8", 0); err == nil {
		t.Error("expected error for 404 playlist")
	}
}

func TestAttachSoftwareAdaptive(t *testing.T) {
	srv := hlsServer(t)
	surface := &fakeSurface{}
	events := newEventLog()
	a := NewAttacher(WithHTTPClient(srv.Client()))

	h, err := a.Attach(context.Background(), srv.URL+"/out/master.m3u8", surface, events.notify)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if h.Mode() != ModeAdaptive {
		t.Fatalf("mode = %v, want adaptive", h.Mode())
	}
	ev := events.wait(t)
	if ev.Kind != EventManifestParsed {
		t.Fatalf("event = %v (%v), want manifest_parsed", ev.Kind, ev.Err)
	}
	if ev.Variant.URL != srv.URL+"/out/high/index.m3u8" {
		t.Errorf("variant = %q, want highest bandwidth", ev.Variant.URL)
	}
	sources, plays, _ := surface.snapshot()
	if len(sources) != 1 || sources[0] != ev.Variant.URL || plays != 1 {
		t.Errorf("surface sources=%v plays=%d", sources, plays)
	}
}

func TestAttachNativeFallback(t *testing.T) {
	surface := &fakeSurface{native: map[string]bool{MimeHLS: true}}
	events := newEventLog()
	a := NewAttacher(WithSoftwareAdaptive(false))

	h, err := a.Attach(context.Background(), "http://h/out/master.m3u8", surface, events.notify)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if h.Mode() != ModeNative {
		t.Fatalf("mode = %v, want native", h.Mode())
	}
	if ev := events.wait(t); ev.Kind != EventManifestParsed {
		t.Fatalf("event = %v, want manifest_parsed", ev.Kind)
	}
	sources, _, _ := surface.snapshot()
	if len(sources) != 1 || sources[0] != "http://h/out/master.m3u8" {
		t.Errorf("native surface should receive the manifest URL, got %v", sources)
	}
}

func TestAttachDirectContainer(t *testing.T) {
	surface := &fakeSurface{native: map[string]bool{MimeMP4: true}}
	events := newEventLog()
	h, err := NewAttacher().Attach(context.Background(), "http://h/output.mp4", surface, events.notify)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if h.Mode() != ModeDirect {
		t.Fatalf("mode = %v, want direct", h.Mode())
	}
	events.wait(t)
}

func TestAttachUnsupported(t *testing.T) {
	cases := []struct {
		name    string
		url     string
		surface Surface
		opts    []Option
	}{
		{name: "no surface", url: "http://h/a.m3u8", surface: nil},
		{name: "hls without loader or native", url: "http://h/a.m3u8", surface: &fakeSurface{}, opts: []Option{WithSoftwareAdaptive(false)}},
		{name: "unknown type", url: "http://h/stream", surface: &fakeSurface{native: map[string]bool{MimeMP4: true}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h, err := NewAttacher(c.opts...).Attach(context.Background(), c.url, c.surface, nil)
			if !errors.Is(err, ErrUnsupportedPlayback) {
				t.Fatalf("err = %v, want ErrUnsupportedPlayback", err)
			}
			if h != nil {
				t.Fatalf("handle should be nil on failure")
			}
		})
	}
}

func TestAttachManifestError(t *testing.T) {
	srv := hlsServer(t)
	events := newEventLog()
	_, err := NewAttacher(WithHTTPClient(srv.Client())).Attach(context.Background(), srv.URL+"/empty.m3u8", &fakeSurface{}, events.notify)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	ev := events.wait(t)
	if ev.Kind != EventError || !errors.Is(ev.Err, ErrAttach) {
		t.Fatalf("event = %v %v, want error wrapping ErrAttach", ev.Kind, ev.Err)
	}
}

func TestAttachPlayError(t *testing.T) {
	surface := &fakeSurface{native: map[string]bool{MimeMP4: true}, playErr: errors.New("no display")}
	events := newEventLog()
	if _, err := NewAttacher().Attach(context.Background(), "http://h/output.mp4", surface, events.notify); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	ev := events.wait(t)
	if ev.Kind != EventError || !strings.Contains(ev.Err.Error(), "no display") {
		t.Fatalf("event = %v %v", ev.Kind, ev.Err)
	}
}

func TestAttachSetSourceErrorIsAsync(t *testing.T) {
	surface := &fakeSurface{native: map[string]bool{MimeMP4: true}, sourceErr: errors.New("player busy")}
	events := newEventLog()
	h, err := NewAttacher().Attach(context.Background(), "http://h/output.mp4", surface, events.notify)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	defer h.Release()
	if h.Mode() != ModeDirect {
		t.Fatalf("mode = %v, want direct", h.Mode())
	}
	ev := events.wait(t)
	if ev.Kind != EventError || !errors.Is(ev.Err, ErrAttach) || !strings.Contains(ev.Err.Error(), "player busy") {
		t.Fatalf("event = %v %v, want error wrapping ErrAttach", ev.Kind, ev.Err)
	}
}

func TestHandleRelease(t *testing.T) {
	surface := &fakeSurface{native: map[string]bool{MimeMP4: true}}
	events := newEventLog()
	h, err := NewAttacher().Attach(context.Background(), "http://h/output.mp4", surface, events.notify)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	events.wait(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Release()
		}()
	}
	wg.Wait()
	if _, _, detaches := surface.snapshot(); detaches != 1 {
		t.Fatalf("detaches = %d, want 1", detaches)
	}

	var nilHandle *Handle
	nilHandle.Release()
	if nilHandle.Mode() != ModeNone {
		t.Fatal("nil handle mode should be none")
	}
}

type blockingRunner struct {
	mu    sync.Mutex
	specs []util.CmdSpec
	exit  chan error
}

func (r *blockingRunner) Run(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
	r.mu.Lock()
	r.specs = append(r.specs, spec)
	r.mu.Unlock()
	select {
	case <-ctx.Done():
		return util.CmdResult{Code: -1}, ctx.Err()
	case err := <-r.exit:
		return util.CmdResult{}, err
	}
}

func TestProcessSurface(t *testing.T) {
	runner := &blockingRunner{exit: make(chan error, 1)}
	s := NewProcessSurface("/usr/bin/mpv", "cloudweave", runner, nil)
	if !s.CanPlayType(MimeHLS) || !s.CanPlayType(MimeMP4) || s.CanPlayType("") {
		t.Fatal("unexpected CanPlayType result")
	}
	if err := s.Play(context.Background(), nil); err == nil {
		t.Fatal("Play without source should fail")
	}
	if err := s.SetSource("http://h/output.mp4"); err != nil {
		t.Fatal(err)
	}
	events := newEventLog()
	if err := s.Play(context.Background(), events.notify); err != nil {
		t.Fatalf("Play: %v", err)
	}
	runner.exit <- nil
	if ev := events.wait(t); ev.Kind != EventEnded || ev.Err != nil {
		t.Fatalf("event = %v %v, want ended", ev.Kind, ev.Err)
	}
	s.Detach()

	runner.mu.Lock()
	spec := runner.specs[0]
	runner.mu.Unlock()
	if spec.Path != "/usr/bin/mpv" || spec.Args[len(spec.Args)-1] != "http://h/output.mp4" {
		t.Fatalf("spec = %+v", spec)
	}
}

func TestProcessSurfaceFailedExitIsError(t *testing.T) {
	runner := &blockingRunner{exit: make(chan error, 1)}
	s := NewProcessSurface("mpv", "t", runner, nil)
	if err := s.SetSource("http://h/missing.mp4"); err != nil {
		t.Fatal(err)
	}
	events := newEventLog()
	if err := s.Play(context.Background(), events.notify); err != nil {
		t.Fatal(err)
	}
	runner.exit <- errors.New("exit status 2: Failed to open http://h/missing.mp4 (404)")
	ev := events.wait(t)
	if ev.Kind != EventError || !errors.Is(ev.Err, ErrAttach) || !strings.Contains(ev.Err.Error(), "404") {
		t.Fatalf("event = %v %v, want error wrapping ErrAttach", ev.Kind, ev.Err)
	}
	s.Detach()
}

func TestProcessSurfaceDetachStopsPlayer(t *testing.T) {
	runner := &blockingRunner{exit: make(chan error)}
	s := NewProcessSurface("ffplay", "t", runner, nil)
	if err := s.SetSource("http://h/output.mp4"); err != nil {
		t.Fatal(err)
	}
	events := newEventLog()
	if err := s.Play(context.Background(), events.notify); err != nil {
		t.Fatal(err)
	}
	s.Detach()
	s.Detach()
	select {
	case ev := <-events.ch:
		t.Fatalf("detached player should not report %v", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPlayerArgs(t *testing.T) {
	for _, p := range []string{"mpv", "ffplay", "vlc"} {
		args, err := playerArgs(p, "title", "src")
		if err != nil || args[len(args)-1] != "src" {
			t.Errorf("playerArgs(%q) = %v, %v", p, args, err)
		}
	}
	if _, err := playerArgs("totem", "t", "s"); err == nil {
		t.Error("expected error for unknown player")
	}
}
