package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tbourn/consult-booking/internal/config"
	"github.com/tbourn/consult-booking/internal/services"
)

func sweepCmd(cfg *config.Config) *cobra.Command {
	var failOnErrors bool
	cmd := &cobra.Command{
		Use:   "sweep abandoned|incomplete|reminders",
		Short: "Run one reconciliation sweep and print its counts",
		Long: `Run one reconciliation sweep for use from system cron.

Examples:
  bookingd sweep abandoned
  bookingd sweep reminders --fail-on-errors`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{services.SweepAbandoned, services.SweepIncomplete, services.SweepReminders},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(*cfg)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.services.Sweeps.Run(ctx, args[0])
			if err != nil {
				return err
			}
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(res); err != nil {
				return err
			}
			if failOnErrors && res.Failed > 0 {
				return fmt.Errorf("sweep %s: %d item(s) failed", args[0], res.Failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failOnErrors, "fail-on-errors", false, "exit non-zero when any item failed")
	return cmd
}

