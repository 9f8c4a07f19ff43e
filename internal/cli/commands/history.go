package commands

import (
	"encoding/json"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command: the audit view of the
// run log.
func NewHistoryCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the run log",
		Long:  `Print every committed watermark in run order: one row per successful run.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := fromContext(cmd.Context())
			if err != nil {
				return err
			}

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			history, err := store.History()
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(history)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"RUN", "DATE", "RAW CONSUMED", "RAW ADDED", "LONG PRODUCED", "RUN ID"})
			for _, e := range history {
				t.AppendRow(table.Row{
					e.RunIndex,
					e.CommittedAt.Format(time.RFC3339),
					e.RawRowsConsumed,
					e.RawRowsAdded,
					e.LongRowsProduced,
					e.RunID,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
