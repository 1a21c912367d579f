package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"cloudweave/internal/config"
	"cloudweave/internal/pipeline"
	"cloudweave/internal/request"
)

const (
	ExitOK                  = 0
	ExitCLIError            = 1
	ExitMissingDep          = 2
	ExitValidation          = 3
	ExitJobFailed           = 4
	ExitPlaybackUnavailable = 5
	ExitCancelled           = 6
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitFor classifies err into an ExitError.
func exitFor(err error) *ExitError {
	if err == nil {
		return nil
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee
	}
	var verrs request.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return &ExitError{Code: ExitValidation, Err: err}
	case errors.Is(err, pipeline.ErrCancelled):
		return &ExitError{Code: ExitCancelled, Err: err}
	case errors.Is(err, pipeline.ErrPlaybackUnavailable):
		return &ExitError{Code: ExitPlaybackUnavailable, Err: err}
	case errors.Is(err, pipeline.ErrJobFailed):
		return &ExitError{Code: ExitJobFailed, Err: err}
	}
	return &ExitError{Code: ExitCLIError, Err: err}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cloudweave",
		Short: "Interpolate cloud imagery over a map selection and play it back",
		Long: "Cloudweave submits an area and time range to the interpolation backend, follows the job's " +
			"progress stream, and plays the resulting video once it is ready. Without a subcommand it " +
			"opens the interactive form when attached to a terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Init(cmd.Root()); err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !isTerminal() {
				return cmd.Help()
			}
			return runExecute(cmd, runMode{ForceTUI: true})
		},
	}

	pf := root.PersistentFlags()
	pf.String("backend-url", config.DefaultBackendURL, "Interpolation backend base URL")
	pf.String("stream-path", "", "Progress stream path on the backend (default /interpolate/stream)")
	pf.String("timezone", config.DefaultTimezone, "Location for timestamps typed without an offset")
	pf.String("player", "", "Player binary (mpv, ffplay or vlc); found in PATH when empty")
	pf.Bool("no-player", false, "Do not open a player; report the media URL only")
	pf.Bool("adaptive", true, "Load HLS manifests in-process and pick a variant before playback")
	pf.Uint32("max-bandwidth", 0, "Upper bound in bits/s when choosing an HLS variant (0 = unlimited)")
	pf.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-format", "text", "Log format: text, json")
	pf.BoolP("verbose", "v", false, "Debug logging")
	pf.Bool("no-ui", false, "Disable TUI; use plain textual output")

	bindJobFlags(root.Flags())

	root.AddCommand(newRunCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newTuiCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newCompletionCmd())

	return root
}

// bindJobFlags registers the form fields as flags. Empty zoom and workers
// fall back to configuration.
func bindJobFlags(fs *pflag.FlagSet) {
	fs.String("lon-min", "", "Western longitude of the selection")
	fs.String("lat-min", "", "Southern latitude of the selection")
	fs.String("lon-max", "", "Eastern longitude of the selection")
	fs.String("lat-max", "", "Northern latitude of the selection")
	fs.String("bbox", "", "Selection as lon_min,lat_min,lon_max,lat_max (overrides the four flags above)")
	fs.String("start", "", "Start of the time range (RFC 3339, or local time in --timezone)")
	fs.String("end", "", "End of the time range")
	fs.String("zoom", "", "Tile zoom level (default 7)")
	fs.String("workers", "", "Backend worker count (default 8)")
	fs.Bool("wait", true, "Keep running until the player exits")
	fs.Duration("timeout", 0, "Give up after this long (0 = no limit)")
}

// Execute runs the CLI with the provided context. Any returned error is an
// *ExitError.
func Execute(ctx context.Context) error {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return exitFor(err)
	}
	return nil
}
