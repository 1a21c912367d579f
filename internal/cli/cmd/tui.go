package cmd

import (
	"github.com/spf13/cobra"
)

func newTuiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "tui",
		Short:         "Open the interactive job form",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Flags only pre-fill the form; nothing is validated until submit.
			return runExecute(cmd, runMode{ForceTUI: true})
		},
	}
	bindJobFlags(cmd.Flags())
	for _, name := range []string{"wait", "timeout"} {
		if f := cmd.Flags().Lookup(name); f != nil {
			f.Hidden = true
		}
	}
	return cmd
}
