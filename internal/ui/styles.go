package ui

import (
	"github.com/charmbracelet/lipgloss"

	"cloudweave/internal/job"
	"cloudweave/internal/overlay"
)

// Styles groups the lipgloss styles used by the view.
type Styles struct {
	Header    lipgloss.Style
	Endpoint  lipgloss.Style
	Label     lipgloss.Style
	Focused   lipgloss.Style
	Text      lipgloss.Style
	Invalid   lipgloss.Style
	Hint      lipgloss.Style
	Panel     lipgloss.Style
	Spinner   lipgloss.Style
	Geometry  lipgloss.Style
	phaseTint map[string]lipgloss.Style
}

func defaultStyles() Styles {
	base := lipgloss.NewStyle()
	tint := func(c string) lipgloss.Style { return base.Foreground(lipgloss.Color(c)) }
	return Styles{
		Header:   base.Bold(true).Foreground(lipgloss.Color("#38BDF8")),
		Endpoint: base.Faint(true),
		Label:    tint("#A3A3A3").Width(9),
		Focused:  tint("#22D3EE").Bold(true).Width(9),
		Text:     tint("#D1D5DB"),
		Invalid:  tint("#EF4444"),
		Hint:     base.Faint(true),
		Panel:    base.Padding(0, 1),
		Spinner:  tint("#22D3EE"),
		Geometry: base.Faint(true).Italic(true),
		phaseTint: map[string]lipgloss.Style{
			"streaming":   tint("#06B6D4"),
			"ready":       tint("#22C55E"),
			"playing":     tint("#D946EF"),
			"degraded":    tint("#F59E0B"),
			"failed":      tint("#EF4444"),
			"cancelled":   tint("#F59E0B"),
			"unsubmitted": tint("#D1D5DB"),
		},
	}
}

// Status picks the tint for the job status line.
func (s Styles) Status(v overlay.View) lipgloss.Style {
	key := "unsubmitted"
	switch {
	case v.Phase.Active():
		key = "streaming"
	case v.Phase == job.Failed:
		key = "failed"
	case v.Phase == job.Cancelled:
		key = "cancelled"
	case v.Note != "":
		key = "degraded"
	case v.VideoVisible:
		key = "playing"
	case v.Phase == job.Ready:
		key = "ready"
	}
	return s.phaseTint[key]
}

// Note picks the tint for the note under the status line.
func (s Styles) Note(v overlay.View) lipgloss.Style {
	if v.Phase == job.Failed {
		return s.phaseTint["failed"]
	}
	return s.phaseTint["degraded"]
}
