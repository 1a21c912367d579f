package ui

import (
	"context"
	"errors"
	"log/slog"
	"time"

	bubblesprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"cloudweave/internal/geo"
	"cloudweave/internal/job"
	"cloudweave/internal/logging"
	"cloudweave/internal/metrics"
	"cloudweave/internal/playback"
	"cloudweave/internal/request"
)

// Config wires the TUI to its collaborators.
type Config struct {
	Streamer job.Streamer
	Attacher job.Attacher
	Surface  playback.Surface
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Location resolves timestamps typed without an offset.
	Location *time.Location
	// Initial pre-fills the form.
	Initial request.Raw
	// Endpoint is shown in the header.
	Endpoint string
}

// Model hosts the job machine inside the bubbletea update loop. The machine
// is only ever touched from Update.
type Model struct {
	ctx     context.Context
	cancel  context.CancelFunc
	machine *job.Machine
	logger  *slog.Logger
	loc     *time.Location

	inputs    []textinput.Model
	focus     int
	formErrs  request.ValidationErrors
	notice    string
	selection *geo.Box
	endpoint  string

	spinner spinner.Model
	bar     bubblesprogress.Model

	width, height int
	styles        Styles
}

func NewModel(ctx context.Context, cfg Config) Model {
	c, cancel := context.WithCancel(ctx)
	sty := defaultStyles()
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sty.Spinner

	inputs := newInputs(cfg.Initial, sty)
	inputs[0].Focus()

	return Model{
		ctx:    c,
		cancel: cancel,
		machine: job.New(c, cfg.Streamer, cfg.Attacher,
			job.WithLogger(logger),
			job.WithMetrics(cfg.Metrics),
			job.WithSurface(cfg.Surface),
		),
		logger:   logger,
		loc:      loc,
		inputs:   inputs,
		endpoint: cfg.Endpoint,
		spinner:  sp,
		bar: bubblesprogress.New(
			bubblesprogress.WithDefaultGradient(),
			bubblesprogress.WithWidth(40),
		),
		styles: sty,
	}
}

// State exposes the machine's current state.
func (m Model) State() job.State { return m.machine.State() }

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.listenInboxCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		w := msg.Width - 20
		if w > 60 {
			w = 60
		}
		if w > 10 {
			m.bar.Width = w
		}
		return m, nil

	case envelopeMsg:
		if m.machine.Dispatch(msg.Env) {
			m.notice = ""
		}
		return m, m.listenInboxCmd()

	case inboxClosedMsg:
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.machine.Close()
		m.cancel()
		return m, tea.Quit
	case "tab", "down":
		return m, m.setFocus((m.focus + 1) % fieldCount)
	case "shift+tab", "up":
		return m, m.setFocus((m.focus + fieldCount - 1) % fieldCount)
	case "enter":
		m.submit()
		return m, nil
	case "ctrl+x":
		if err := m.machine.Cancel(); err != nil {
			m.notice = "The job has already finished"
		}
		return m, nil
	case "ctrl+r":
		if err := m.machine.Reset(); err != nil {
			m.notice = "Reset is only possible once the job has finished"
		} else {
			m.selection = nil
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

// submit validates the form locally; only a valid request reaches the
// machine.
func (m *Model) submit() {
	req, err := request.Build(formRaw(m.inputs), m.loc)
	if err != nil {
		var verrs request.ValidationErrors
		if errors.As(err, &verrs) {
			m.formErrs = verrs
		}
		m.notice = ""
		return
	}
	m.formErrs = nil
	if err := m.machine.Submit(req); err != nil {
		m.notice = err.Error()
		return
	}
	box := req.Box
	m.selection = &box
	m.notice = ""
}

func (m *Model) setFocus(i int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = i
	return m.inputs[m.focus].Focus()
}

func (m Model) listenInboxCmd() tea.Cmd {
	inbox, done, ctxDone := m.machine.Inbox(), m.machine.Done(), m.ctx.Done()
	return func() tea.Msg {
		select {
		case env := <-inbox:
			return envelopeMsg{Env: env}
		case <-done:
			return inboxClosedMsg{}
		case <-ctxDone:
			return inboxClosedMsg{}
		}
	}
}
