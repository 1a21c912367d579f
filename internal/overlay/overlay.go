// Package overlay derives what a renderer should draw from the job state and
// the current selection. It owns no lifecycle logic.
package overlay

import (
	"fmt"

	"cloudweave/internal/geo"
	"cloudweave/internal/job"
)

// View is a pure function of (job.State, selection).
type View struct {
	Phase  job.Phase
	Status string
	// Note separates a failed job from a finished job whose media could not
	// be played. Empty otherwise.
	Note string

	ShowProgress bool
	Percent      float64 // 0-100
	Fraction     float64 // 0-1

	HasSelection   bool
	Selection      geo.Box
	VideoBounds    geo.Box
	VideoVisible   bool
	LoadingBounds  geo.Box
	LoadingVisible bool

	MediaURL     string
	PlaybackMode string
}

// Derive computes the view. selection may be nil when nothing is drawn yet.
func Derive(s job.State, selection *geo.Box) View {
	v := View{
		Phase:    s.Phase,
		Percent:  clamp(s.Progress, 0, 100),
		MediaURL: s.MediaURL,
	}
	v.Fraction = v.Percent / 100

	switch s.Phase {
	case job.Idle:
		v.Status = "Select an area and submit"
	case job.Validating:
		v.Status = "Connecting…"
		v.ShowProgress = true
	case job.Streaming:
		v.Status = s.Message
		v.ShowProgress = true
	case job.Ready:
		v.Status = readyStatus(s)
		v.ShowProgress = true
		v.PlaybackMode = s.PlaybackMode.String()
		if s.Playback == job.PlaybackUnavailable {
			v.Note = "Job succeeded, playback unavailable"
			if s.PlaybackErr != nil {
				v.Note += ": " + s.PlaybackErr.Error()
			}
		}
	case job.Failed:
		v.Status = "Failed"
		v.Note = "Job failed: " + s.Reason
	case job.Cancelled:
		v.Status = "Cancelled"
	}

	if selection != nil {
		v.HasSelection = true
		v.Selection = *selection
		v.VideoBounds = *selection
		v.LoadingBounds = geo.HalfBound(*selection)
		v.VideoVisible = s.Phase == job.Ready &&
			(s.Playback == job.PlaybackPlaying || s.Playback == job.PlaybackEnded)
		v.LoadingVisible = s.Phase.Active() ||
			(s.Phase == job.Ready && s.Playback == job.PlaybackLoading)
	}
	return v
}

func readyStatus(s job.State) string {
	switch s.Playback {
	case job.PlaybackLoading:
		return "Loading video…"
	case job.PlaybackPlaying:
		if s.Variant.Resolution != "" {
			return fmt.Sprintf("Playing (%s)", s.Variant.Resolution)
		}
		return "Playing"
	case job.PlaybackEnded:
		return "Playback ended"
	}
	return "Done"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
