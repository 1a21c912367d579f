package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cloudweave/internal/config"
	"cloudweave/internal/model"
	"cloudweave/internal/pipeline"
	"cloudweave/internal/progress"
	"cloudweave/internal/request"
	"cloudweave/internal/ui"
)

type runMode struct {
	ForceTUI bool
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit an interpolation job, follow its progress and play the result",
		Example: "  cloudweave run --bbox 100,-10,110,0 --start 2024-01-01T00:00:00Z --end 2024-01-01T06:00:00Z\n" +
			"  cloudweave run --lon-min 100 --lat-min -10 --lon-max 110 --lat-max 0 \\\n" +
			"      --start '2024-01-01 00:00' --end '2024-01-01 06:00' --timezone Asia/Jakarta --no-player",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExecute(cmd, runMode{})
		},
	}
	bindJobFlags(cmd.Flags())
	return cmd
}

// rawFromFlags collects the form fields from flags, falling back to the
// configured zoom and worker count.
func rawFromFlags(cmd *cobra.Command, s config.Settings) (request.Raw, error) {
	fs := cmd.Flags()
	get := func(name string) string {
		v, _ := fs.GetString(name)
		return strings.TrimSpace(v)
	}
	raw := request.Raw{
		LonMin:  get("lon-min"),
		LatMin:  get("lat-min"),
		LonMax:  get("lon-max"),
		LatMax:  get("lat-max"),
		Start:   get("start"),
		End:     get("end"),
		Zoom:    get("zoom"),
		Workers: get("workers"),
	}
	if bbox := get("bbox"); bbox != "" {
		parts := strings.Split(bbox, ",")
		if len(parts) != 4 {
			return request.Raw{}, fmt.Errorf("--bbox wants lon_min,lat_min,lon_max,lat_max, got %q", bbox)
		}
		raw.LonMin = strings.TrimSpace(parts[0])
		raw.LatMin = strings.TrimSpace(parts[1])
		raw.LonMax = strings.TrimSpace(parts[2])
		raw.LatMax = strings.TrimSpace(parts[3])
	}
	if raw.Zoom == "" {
		raw.Zoom = s.Zoom
	}
	if raw.Workers == "" {
		raw.Workers = s.Workers
	}
	return raw, nil
}

func runExecute(cmd *cobra.Command, mode runMode) error {
	ctx := cmd.Context()
	s, err := loadSettings()
	if err != nil {
		return err
	}
	raw, err := rawFromFlags(cmd, s)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}

	if mode.ForceTUI || (!s.NoUI && isTerminal()) {
		return runTUI(cmd, raw)
	}

	req, err := request.Build(raw, s.Location)
	if err != nil {
		return exitFor(err)
	}

	rt, err := buildRuntime(ctx, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	wait, _ := cmd.Flags().GetBool("wait")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	out := cmd.OutOrStdout()
	svc := pipeline.NewService(
		pipeline.WithStreamer(rt.streamer),
		pipeline.WithAttacher(rt.attacher),
		pipeline.WithSurface(rt.surface),
		pipeline.WithReporter(progress.NewText(out, 0)),
		pipeline.WithLogger(rt.logger),
		pipeline.WithMetrics(rt.metrics),
		pipeline.WithRunOptions(model.RunOptions{
			Timeout: timeout,
			// A headless surface never ends, so there is nothing to wait for.
			Wait:    wait && !s.NoPlayer,
		}),
	)
	res, err := svc.Watch(ctx, req)
	if res.Summary.RequestID != "" {
		fmt.Fprintln(out, renderFields(summaryFields(res.Summary)))
	}
	if err != nil {
		return exitFor(err)
	}
	return nil
}

func runTUI(cmd *cobra.Command, raw request.Raw) error {
	ctx := cmd.Context()
	rt, err := buildRuntime(ctx, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	_, err = ui.Run(ctx, ui.Config{
		Streamer: rt.streamer,
		Attacher: rt.attacher,
		Surface:  rt.surface,
		Logger:   rt.logger,
		Metrics:  rt.metrics,
		Location: rt.settings.Location,
		Initial:  raw,
		Endpoint: rt.settings.BackendURL + rt.settings.StreamPath,
	})
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	return nil
}

func summaryFields(s model.JobSummary) [][2]string {
	fields := [][2]string{
		{"Request", s.RequestID},
		{"Area", s.BBox},
		{"Range", s.Start.Format(time.RFC3339) + " → " + s.End.Format(time.RFC3339)},
		{"Zoom", fmt.Sprint(s.Zoom)},
		{"Workers", fmt.Sprint(s.Workers)},
		{"Phase", s.Phase},
		{"Progress", fmt.Sprintf("%.0f%%", s.Progress)},
	}
	if s.MediaURL != "" {
		fields = append(fields, [2]string{"Media", s.MediaURL})
	}
	if s.Playback != "" {
		pb := s.Playback
		if s.Mode != "" && s.Mode != "none" {
			pb += " (" + s.Mode + ")"
		}
		fields = append(fields, [2]string{"Playback", pb})
	}
	if s.Variant != "" {
		fields = append(fields, [2]string{"Variant", s.Variant})
	}
	if s.Reason != "" {
		fields = append(fields, [2]string{"Reason", s.Reason})
	}
	fields = append(fields, [2]string{"Elapsed", s.Elapsed.Round(time.Millisecond).String()})
	return fields
}
