package ui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"cloudweave/internal/job"
)

// Run launches the TUI and blocks until the user quits. It returns the
// last job state.
func Run(ctx context.Context, cfg Config) (job.State, error) {
	m := NewModel(ctx, cfg)
	prog := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	final, err := prog.Run()
	m.machine.Close()
	if fm, ok := final.(Model); ok {
		return fm.State(), err
	}
	return m.State(), err
}
