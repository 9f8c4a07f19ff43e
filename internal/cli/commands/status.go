package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command: current watermark
// against the raw table.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current watermark and pending backlog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			wm, err := store.ReadCurrent()
			if err != nil {
				return err
			}
			total, err := wh.CountRawRows(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if wm.RunIndex == 0 {
				fmt.Fprintln(out, "No run has committed yet")
			} else {
				fmt.Fprintf(out, "Last run:        %d (%s)\n", wm.RunIndex, wm.CommittedAt.Format(time.RFC3339))
			}
			fmt.Fprintf(out, "Raw rows:        %d total, %d consumed\n", total, wm.RawRowsConsumed)
			fmt.Fprintf(out, "Long rows:       %d produced\n", wm.LongRowsProduced)

			switch {
			case total < wm.RawRowsConsumed:
				fmt.Fprintf(out, "WARNING: watermark inconsistency, %d consumed exceeds %d present\n", wm.RawRowsConsumed, total)
			case total > wm.RawRowsConsumed:
				fmt.Fprintf(out, "Pending backlog: %d rows\n", total-wm.RawRowsConsumed)
			default:
				fmt.Fprintln(out, "Pending backlog: none")
			}
			return nil
		},
	}
}
