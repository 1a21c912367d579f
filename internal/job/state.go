package job

import (
	"fmt"

	"cloudweave/internal/playback"
	"cloudweave/internal/request"
	"cloudweave/internal/stream"
)

// Phase is the tag of a job's lifecycle state.
type Phase int

const (
	Idle Phase = iota
	Validating
	Streaming
	Ready
	Failed
	Cancelled
)

var phaseNames = [...]string{"idle", "validating", "streaming", "ready", "failed", "cancelled"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether no further stream events are expected.
func (p Phase) Terminal() bool {
	return p == Ready || p == Failed || p == Cancelled
}

// Active reports whether a subscription is live in this phase.
func (p Phase) Active() bool {
	return p == Validating || p == Streaming
}

// PlaybackStatus tracks the attached media while the job is Ready.
type PlaybackStatus int

const (
	PlaybackNone PlaybackStatus = iota
	PlaybackLoading
	PlaybackPlaying
	PlaybackEnded
	// PlaybackUnavailable: the job succeeded but the media could not be shown.
	PlaybackUnavailable
)

var playbackNames = [...]string{"none", "loading", "playing", "ended", "unavailable"}

func (s PlaybackStatus) String() string {
	if int(s) < len(playbackNames) {
		return playbackNames[s]
	}
	return fmt.Sprintf("playback(%d)", int(s))
}

// InitialMessage is shown as soon as the stream opens.
const InitialMessage = "Initializing…"

// State is a snapshot of the machine. Fields beyond Phase are meaningful
// only in the phases noted.
type State struct {
	Phase      Phase
	Generation uint64
	RequestID  string
	Request    request.JobRequest // zero in Idle

	Progress float64 // Streaming, Ready
	Message  string  // Streaming, Ready
	MediaURL string  // Ready
	Reason   string  // Failed
	Err      error   // Failed

	Playback     PlaybackStatus // Ready
	PlaybackMode playback.Mode
	PlaybackErr  error
	Variant      playback.Variant
}

func (s State) String() string {
	switch s.Phase {
	case Streaming:
		return fmt.Sprintf("streaming(%.0f%%, %q)", s.Progress, s.Message)
	case Ready:
		return fmt.Sprintf("ready(%s)", s.MediaURL)
	case Failed:
		return fmt.Sprintf("failed(%s)", s.Reason)
	}
	return s.Phase.String()
}

// Envelope carries one asynchronous notification into the machine's inbox,
// tagged with the generation that produced it. Exactly one of Stream and
// Playback is set.
type Envelope struct {
	Generation uint64
	Stream     *stream.Message
	Playback   *playback.Event
}
