package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Text writes one line per update. Updates within the same stage are
// throttled; stage changes and results always print.
type Text struct {
	mu      sync.Mutex
	w       io.Writer
	limiter *rate.Limiter
	last    Stage
	lastPct float64
}

// NewText returns a Text reporter printing at most perSecond progress lines
// per second (0 means 4).
func NewText(w io.Writer, perSecond float64) *Text {
	if perSecond <= 0 {
		perSecond = 4
	}
	return &Text{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		lastPct: -1,
	}
}

func (t *Text) Update(u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := u.Stage != t.last
	if !changed && u.Percent == t.lastPct {
		return
	}
	// Stage changes still take a token so the next progress line waits.
	allowed := t.limiter.AllowN(time.Now(), 1)
	if !changed && !allowed {
		return
	}
	t.last = u.Stage
	t.lastPct = u.Percent
	if u.Percent >= 0 {
		fmt.Fprintf(t.w, "[%-10s] %5.1f%%  %s\n", u.Stage, u.Percent, u.Message)
		return
	}
	fmt.Fprintf(t.w, "[%-10s]         %s\n", u.Stage, u.Message)
}

func (t *Text) Result(r Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case r.Err != nil:
		fmt.Fprintf(t.w, "✗ %s: %v\n", r.JobID, r.Err)
	case r.Playback != "":
		fmt.Fprintf(t.w, "✓ %s  %s (%s)\n", r.JobID, r.MediaURL, r.Playback)
	default:
		fmt.Fprintf(t.w, "✓ %s  %s\n", r.JobID, r.MediaURL)
	}
}
