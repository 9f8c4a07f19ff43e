package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datalift-io/marketpivot/internal/server"
)

// NewServeCommand creates the serve command: the HTTP read API.
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve filtered reads of raw data, observations, and the run log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := fromContext(cmd.Context())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

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

			if addr == "" {
				addr = cfg.ListenAddr
			}
			srv := server.New(wh, wh, store, logger)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")

	return cmd
}
