package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewLoadCommand creates the load command: the ingestion boundary that
// appends wide CSV files to the raw table.
func NewLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load <csv-file>...",
		Short: "Append wide CSV files to the raw table",
		Long: `Load one or more wide-format CSV files into the raw table, stamping
each row with its insertion sequence. The raw table is append-only;
loading the same file twice appends it twice.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := fromContext(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			wh, err := openWarehouse(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer wh.Close()

			before, err := wh.CountRawRows(ctx)
			if err != nil {
				return err
			}

			for _, path := range args {
				if err := wh.LoadCSV(ctx, path); err != nil {
					return fmt.Errorf("failed to load %s: %w", path, err)
				}
			}

			after, err := wh.CountRawRows(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d raw rows (%d total)\n", after-before, after)
			return nil
		},
	}
}
