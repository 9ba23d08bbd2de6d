package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidintel/internal/config"
	"vidintel/internal/daemonrun"
)

type daemonFlags struct {
	configPath string
	opts       daemonrun.Options
}

func newRootCommand() *cobra.Command {
	var flags daemonFlags
	cmd := &cobra.Command{
		Use:           "vidinteld",
		Short:         "vidintel daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, flags.opts)
		},
	}
	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&flags.opts.LogLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&flags.opts.Development, "dev", false, "Development logging (source locations)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, _, _, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
