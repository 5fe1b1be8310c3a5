// snowfort is a small sharded analytical warehouse: an orchestrator routes
// SQL to worker nodes that keep table data as parquet shards and execute
// statements on an embedded DuckDB.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/snowfort-db/snowfort/internal/config"
	"github.com/snowfort-db/snowfort/internal/telemetry"
)

// Version is stamped by the release build.
var Version = "0.1.0-dev"

var rootCmd = &cobra.Command{
	Use:           "snowfort",
	Short:         "Sharded analytical query engine",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		if lvl, err := cmd.Flags().GetString("log-level"); err == nil && lvl != "" {
			config.Set(config.KeyLogLevel, lvl)
		}

		level, err := logrus.ParseLevel(config.GetString(config.KeyLogLevel))
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		logrus.SetLevel(level)

		return telemetry.Init(cmd.Context(), "snowfort", Version)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
