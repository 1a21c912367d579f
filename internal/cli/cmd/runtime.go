package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"cloudweave/internal/config"
	"cloudweave/internal/dirs"
	"cloudweave/internal/job"
	"cloudweave/internal/logging"
	"cloudweave/internal/metrics"
	"cloudweave/internal/playback"
	"cloudweave/internal/stream"
	"cloudweave/internal/util"
	"cloudweave/internal/util/deps"
)

// runtime bundles the collaborators shared by run and tui.
type runtime struct {
	settings config.Settings
	logger   *slog.Logger
	metrics  *metrics.Metrics
	streamer job.Streamer
	attacher job.Attacher
	surface  playback.Surface
	player   string

	closers []io.Closer
}

func (r *runtime) Close() {
	for _, c := range r.closers {
		_ = c.Close()
	}
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// loadSettings resolves configuration, mapping failures to ExitCLIError.
func loadSettings() (config.Settings, error) {
	s, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Settings{}, &ExitError{Code: ExitCLIError, Err: err}
	}
	return s, nil
}

// newLogger writes to stderr in plain mode. The TUI owns the terminal, so
// its logs go to the state-dir log file instead.
func newLogger(s config.Settings, tui bool) (*slog.Logger, io.Closer, error) {
	var w io.Writer = os.Stderr
	var closer io.Closer
	if tui {
		path, err := dirs.LogPath()
		if err != nil {
			return logging.Discard(), nil, nil
		}
		f, err := logging.OpenFile(path)
		if err != nil {
			return nil, nil, err
		}
		w, closer = f, f
	}
	l, err := logging.New(logging.Options{Level: s.LogLevel, Format: s.LogFormat, Writer: w})
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, err
	}
	return l, closer, nil
}

// newSurface picks the playback surface: headless when no player is
// wanted, otherwise the first external player found. With no player on PATH
// the surface is nil and jobs finish as "playback unavailable"; a missing
// --player binary is an error.
func newSurface(s config.Settings, logger *slog.Logger) (playback.Surface, string, error) {
	if s.NoPlayer {
		return playback.NewHeadlessSurface(logger), "", nil
	}
	path, err := deps.FindPlayer(s.Player)
	if err != nil {
		if s.Player != "" {
			return nil, "", &ExitError{Code: ExitMissingDep, Err: fmt.Errorf("%w; pass --no-player to skip playback", err)}
		}
		logger.Warn("no video player found; playback will be unavailable", "error", err)
		return nil, "", nil
	}
	return playback.NewProcessSurface(path, "cloudweave", util.NewDefaultRunner(), logger), path, nil
}

func buildRuntime(ctx context.Context, tui bool) (*runtime, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	logger, closer, err := newLogger(s, tui)
	if err != nil {
		return nil, &ExitError{Code: ExitCLIError, Err: err}
	}
	rt := &runtime{settings: s, logger: logger}
	if closer != nil {
		rt.closers = append(rt.closers, closer)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.metrics = metrics.New(reg)
	if s.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, s.MetricsAddr, reg, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("metrics endpoint stopped", "error", err)
			}
		}()
	}

	client := stream.NewClient(s.BackendURL,
		stream.WithPath(s.StreamPath),
		stream.WithLogger(logger),
	)
	rt.streamer = job.FromClient(client)

	attacher := playback.NewAttacher(
		playback.WithLogger(logger),
		playback.WithSoftwareAdaptive(s.Adaptive),
		playback.WithMaxBandwidth(s.MaxBandwidth),
	)
	rt.attacher = job.FromAttacher(attacher)

	surface, player, err := newSurface(s, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.surface, rt.player = surface, player
	return rt, nil
}
