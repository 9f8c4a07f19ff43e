package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/datalift-io/marketpivot/pkg/core"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	JSONOutput bool
}

// NewRunCommand creates the run command: one watermark-gated
// incremental run.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process newly arrived raw rows into long observations",
		Long: `Execute one incremental run: read the watermark, select the raw rows
appended since the last successful run, pivot them into long-format
observations, and advance the watermark.

Safe to trigger repeatedly: with nothing new to process the run is a
no-op, and a run that loses a concurrency race aborts without damage.`,
		Example: `  # Run once (typically from cron or a scheduler)
  marketpivot run

  # Machine-readable result
  marketpivot run --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSONOutput, "json", false, "Output result as JSON")

	return cmd
}

func runRun(cmd *cobra.Command, opts *RunOptions) error {
	cfg, logger, err := fromContext(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	wh, err := openWarehouse(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer wh.Close()

	eng, err := buildEngine(cfg, store, wh, logger)
	if err != nil {
		return err
	}

	res, err := eng.RunOnce(ctx)
	if err != nil {
		return err
	}

	if opts.JSONOutput {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
	}

	switch res.Status {
	case core.RunStatusNoOp:
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing new to process")
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "Run %d: processed %d raw rows, produced %d observations in %s\n",
			res.RunIndex, res.RowsProcessed, res.RowsProduced, res.Duration.Round(time.Millisecond))
	}
	return nil
}
