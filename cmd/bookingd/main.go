// Command bookingd runs the consultation booking backend.
//
//	bookingd serve             HTTP API (+ optional in-process sweep scheduler)
//	bookingd migrate           create or update the schema
//	bookingd sweep <name>      run one reconciliation sweep and exit
//
// @title                      Consultation Booking API
// @version                    1.0
// @description                Paid consultation checkout, payment verification, booking links and reconciliation sweeps.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Bearer CRON_SECRET or ADMIN_TOKEN
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/consult-booking/internal/config"
	"github.com/tbourn/consult-booking/internal/sysutil"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	var envFile string
	var cfg config.Config

	rootCmd := &cobra.Command{
		Use:           "bookingd",
		Short:         "Paid consultation booking backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A missing .env is normal outside development.
			if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			c, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			cfg = c
			sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty, "bookingd")
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd(&cfg))
	rootCmd.AddCommand(migrateCmd(&cfg))
	rootCmd.AddCommand(sweepCmd(&cfg))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
