// Package cli provides the marketpivot command-line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/datalift-io/marketpivot/internal/cli/commands"
	"github.com/datalift-io/marketpivot/internal/cli/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var cfgFile string

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "marketpivot",
		Short: "marketpivot - incremental wide-to-long market data engine",
		Long: `marketpivot converts newly arrived wide-format market records into a
normalized long-format analytics table, exactly once per logical row,
with a durable watermark and an auditable run history.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			cmd.SetContext(commands.WithRuntime(cmd.Context(), cfg, logger))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "Config file (default marketpivot.yaml)")
	flags.String("state-path", "", "SQLite watermark database path")
	flags.String("database", "", "DuckDB database path")
	flags.Bool("verbose", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewRunCommand(),
		commands.NewStatusCommand(),
		commands.NewHistoryCommand(),
		commands.NewLoadCommand(),
		commands.NewServeCommand(),
	)

	return rootCmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("command failed", "error", err)
		os.Exit(1)
	}
}
