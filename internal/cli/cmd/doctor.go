package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"cloudweave/internal/util"
	"cloudweave/internal/util/deps"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "doctor",
		Short:         "Check the video player and the interpolation backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings()
			if err != nil {
				return err
			}
			var failed []error
			rows := [][]string{}

			if s.NoPlayer {
				rows = append(rows, []string{"player", "skipped", "--no-player"})
			} else if p, perr := deps.FindPlayer(s.Player); perr != nil {
				rows = append(rows, []string{"player", "missing", perr.Error()})
				failed = append(failed, perr)
			} else {
				rows = append(rows, []string{"player", "ok", p})
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			endpoint := util.JoinURL(s.BackendURL, "/health")
			if status, herr := checkHealth(ctx, http.DefaultClient, endpoint); herr != nil {
				rows = append(rows, []string{"backend", "unreachable", herr.Error()})
				failed = append(failed, herr)
			} else {
				rows = append(rows, []string{"backend", status, endpoint})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
			if len(failed) > 0 {
				return &ExitError{Code: ExitMissingDep, Err: errors.Join(failed...)}
			}
			return nil
		},
	}
}

// checkHealth GETs endpoint and returns the reported status.
func checkHealth(ctx context.Context, hc *http.Client, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("health check: %s", resp.Status)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return "", fmt.Errorf("health check: decode: %w", err)
	}
	if body.Status == "" {
		body.Status = "ok"
	}
	return body.Status, nil
}
