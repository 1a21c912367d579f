package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"cloudweave/internal/util"
	"cloudweave/internal/util/deps"
)

// ProcessSurface plays media in an external player process (mpv, ffplay
// or vlc). Playback loops muted until the window is closed.
type ProcessSurface struct {
	Path   string
	Title  string
	Runner util.CmdRunner
	Logger *slog.Logger

	mu     sync.Mutex
	src    string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProcessSurface wraps the player binary at path.
func NewProcessSurface(path, title string, runner util.CmdRunner, logger *slog.Logger) *ProcessSurface {
	if runner == nil {
		runner = util.NewDefaultRunner()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ProcessSurface{Path: path, Title: title, Runner: runner, Logger: logger}
}

func (s *ProcessSurface) CanPlayType(mimeType string) bool {
	switch mimeType {
	case MimeHLS, MimeMP4, MimeWebM, MimeMOV, MimeMKV:
		return true
	case MimeDASH:
		return deps.PlayerName(s.Path) != "ffplay"
	}
	return false
}

func (s *ProcessSurface) SetSource(src string) error {
	if src == "" {
		return errors.New("empty source")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return errors.New("player already running")
	}
	s.src = src
	return nil
}

// Play launches the player and returns once the process is started. A clean
// exit is reported as EventEnded, a failed one as EventError wrapping
// ErrAttach.
func (s *ProcessSurface) Play(ctx context.Context, notify NotifyFunc) error {
	s.mu.Lock()
	if s.src == "" {
		s.mu.Unlock()
		return errors.New("no source set")
	}
	if s.cancel != nil {
		s.mu.Unlock()
		return errors.New("player already running")
	}
	args, err := playerArgs(deps.PlayerName(s.Path), s.Title, s.src)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	pctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		_, err := s.Runner.Run(pctx, util.CmdSpec{
			Path:   s.Path,
			Args:   args,
			Logger: s.Logger,
		})
		if pctx.Err() != nil {
			return
		}
		if notify == nil {
			return
		}
		if err != nil {
			notify(Event{Kind: EventError, Err: fmt.Errorf("%w: player exited: %v", ErrAttach, err)})
			return
		}
		notify(Event{Kind: EventEnded})
	}()
	return nil
}

// Detach stops the player and waits for it to exit.
func (s *ProcessSurface) Detach() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done, s.src = nil, nil, ""
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func playerArgs(player, title, src string) ([]string, error) {
	switch player {
	case "mpv":
		return []string{"--loop-file=inf", "--mute=yes", "--force-window=yes", "--title=" + title, src}, nil
	case "ffplay":
		return []string{"-loglevel", "error", "-loop", "0", "-an", "-window_title", title, src}, nil
	case "vlc":
		return []string{"--loop", "--no-audio", "--meta-title", title, src}, nil
	}
	return nil, fmt.Errorf("unsupported player %q", player)
}
