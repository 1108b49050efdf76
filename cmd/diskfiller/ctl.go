package main

import (
	"context"
	"fmt"
	"time"

	"diskfiller/pkg/config"
	"diskfiller/pkg/control"

	"github.com/spf13/cobra"
)

func ctlCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
		plain   bool
	)

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Control a fill running in another terminal",
	}

	cmd.PersistentFlags().StringVar(&addr, "addr", "", "control service address (default from config)")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")

	// withClient dials the control service and runs fn with a bounded context.
	withClient := func(cmd *cobra.Command, fn func(context.Context, *control.Client) error) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr == "" {
			addr = cfg.ControlAddress
		}
		if addr == "" {
			return fmt.Errorf("no control address configured")
		}
		plain = plain || cfg.OutputFormat == config.FormatPlain

		client, err := control.Dial(addr)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return fn(ctx, client)
	}

	action := func(use, short, done string, call func(*control.Client, context.Context) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withClient(cmd, func(ctx context.Context, c *control.Client) error {
					if err := call(c, ctx); err != nil {
						return fmt.Errorf("%s failed: %w", use, err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), done)
					return nil
				})
			},
		}
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state and progress of the running fill",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *control.Client) error {
				st, err := c.Status(ctx)
				if err != nil {
					return fmt.Errorf("status failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st, plain))
				return nil
			})
		},
	}
	statusCmd.Flags().BoolVar(&plain, "plain", false, "plain text output")

	cmd.AddCommand(
		action("pause", "Pause the running fill", "Paused.", (*control.Client).Pause),
		action("resume", "Resume a paused fill", "Resumed.", (*control.Client).Resume),
		action("stop", "Stop the running fill and delete its folder", "Stop requested.", (*control.Client).Stop),
		statusCmd,
	)

	return cmd
}
