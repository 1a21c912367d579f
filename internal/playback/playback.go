// Package playback attaches the finished job's media to a playback surface,
// preferring a software HLS loader, then the surface's native support.
package playback

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var (
	// ErrUnsupportedPlayback means neither the software loader nor the
	// surface can play the media.
	ErrUnsupportedPlayback = errors.New("playback unsupported")
	// ErrAttach wraps failures while loading or starting playback.
	ErrAttach = errors.New("playback attach failed")
)

const (
	MimeHLS  = "application/vnd.apple.mpegurl"
	MimeDASH = "application/dash+xml"
	MimeMP4  = "video/mp4"
	MimeWebM = "video/webm"
	MimeMOV  = "video/quicktime"
	MimeMKV  = "video/x-matroska"
)

var extMime = map[string]string{
	".m3u8": MimeHLS,
	".m3u":  MimeHLS,
	".mpd":  MimeDASH,
	".mp4":  MimeMP4,
	".m4v":  MimeMP4,
	".webm": MimeWebM,
	".mov":  MimeMOV,
	".mkv":  MimeMKV,
}

// MediaType guesses the mime type of the resource at rawURL from its path.
// It returns "" when the extension is unknown.
func MediaType(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return extMime[strings.ToLower(path.Ext(p))]
}

// IsAdaptive reports whether mimeType names an adaptive manifest.
func IsAdaptive(mimeType string) bool {
	return mimeType == MimeHLS || mimeType == MimeDASH
}

// Mode records which path Attach took.
type Mode int

const (
	ModeNone Mode = iota
	// ModeAdaptive: the software loader parsed the manifest and chose a variant.
	ModeAdaptive
	// ModeNative: the surface received the manifest URL and adapts on its own.
	ModeNative
	// ModeDirect: a plain container file handed straight to the surface.
	ModeDirect
)

var modeNames = [...]string{"none", "adaptive", "native", "direct"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// EventKind tags a playback notification.
type EventKind int

const (
	// EventManifestParsed fires once playback has started; the loading
	// indicator may be hidden.
	EventManifestParsed EventKind = iota
	// EventWarning is non-fatal; whatever is on the surface stays there.
	EventWarning
	// EventError is fatal for this handle.
	EventError
	// EventEnded fires when the surface stops playing on its own.
	EventEnded
)

var eventNames = [...]string{"manifest_parsed", "warning", "error", "ended"}

func (k EventKind) String() string {
	if int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is delivered asynchronously through a NotifyFunc.
type Event struct {
	Kind    EventKind
	Err     error
	Variant Variant
}

// NotifyFunc receives playback events. It may be called from any goroutine.
type NotifyFunc func(Event)

// Surface is where video ends up: an external player window, a browser
// element behind a bridge, or a headless recorder.
type Surface interface {
	// CanPlayType reports whether the surface plays mimeType natively.
	// An empty mimeType means the type could not be determined.
	CanPlayType(mimeType string) bool
	SetSource(src string) error
	// Play starts playback without blocking. Later failures and the end of
	// playback are reported through notify.
	Play(ctx context.Context, notify NotifyFunc) error
	// Detach stops playback and releases the source. It must be safe to
	// call when nothing is playing.
	Detach()
}
