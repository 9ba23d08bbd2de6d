package main

import (
	"github.com/spf13/cobra"

	"vidintel/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the vidintel daemon",
	}

	var opts daemonrun.Options
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	runCmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level")
	runCmd.Flags().BoolVar(&opts.Development, "dev", false, "Development logging (source locations)")

	daemonCmd.AddCommand(runCmd)
	return daemonCmd
}
