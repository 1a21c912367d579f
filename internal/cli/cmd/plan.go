package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cloudweave/internal/config"
	"cloudweave/internal/geo"
	"cloudweave/internal/request"
	"cloudweave/internal/util/deps"
	"cloudweave/internal/util/format"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plan",
		Short:         "Validate a job and show the request it would send, without contacting the backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			raw, err := rawFromFlags(cmd, s)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			req, err := request.Build(raw, s.Location)
			if err != nil {
				return exitFor(err)
			}
			fields, err := planFields(req, s)
			if err != nil {
				return &ExitError{Code: ExitCLIError, Err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderFields(fields))
			return nil
		},
	}
	bindJobFlags(cmd.Flags())
	return cmd
}

func planFields(req request.JobRequest, s config.Settings) ([][2]string, error) {
	u, err := req.StreamURL(s.BackendURL, s.StreamPath)
	if err != nil {
		return nil, err
	}
	fields := [][2]string{
		{"Stream", u},
		{"Area", req.Box.String()},
		{"Size", fmt.Sprintf("%.4f° × %.4f°", req.Box.Width(), req.Box.Height())},
		{"Loader", geo.HalfBound(req.Box).String()},
		{"Start", req.Range.Start.In(s.Location).Format(time.RFC3339)},
		{"End", req.Range.End.In(s.Location).Format(time.RFC3339)},
		{"Duration", req.Range.End.Sub(req.Range.Start).String()},
		{"Zoom", fmt.Sprint(req.Zoom)},
		{"Workers", fmt.Sprint(req.MaxWorkers)},
		{"Playback", playbackChain(s)},
	}
	return fields, nil
}

// playbackChain describes which attach paths are tried, in order.
func playbackChain(s config.Settings) string {
	var out string
	if s.Adaptive {
		out = "adaptive"
		if s.MaxBandwidth > 0 {
			out += " (≤ " + format.HumanizeBitrate(uint64(s.MaxBandwidth)) + ")"
		}
		out += " → "
	}
	out += "native → direct"
	switch {
	case s.NoPlayer:
		out += " [headless]"
	case s.Player != "":
		out += " [" + s.Player + "]"
	default:
		if p, err := deps.FindPlayer(""); err == nil {
			out += " [" + deps.PlayerName(p) + "]"
		} else {
			out += " [no player found]"
		}
	}
	return out
}
