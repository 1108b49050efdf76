package main

import (
	"fmt"

	"diskfiller/pkg/config"
	"diskfiller/pkg/volume"

	"github.com/spf13/cobra"
)

func spaceCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "space <volume-path>",
		Short: "Show the total, used and available space of a volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			usage, err := volume.OSProber{}.Usage(args[0])
			if err != nil {
				return err
			}

			plain = plain || cfg.OutputFormat == config.FormatPlain
			fmt.Fprintln(cmd.OutOrStdout(), renderUsage(args[0], usage, plain))
			return nil
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "plain text output")

	return cmd
}
