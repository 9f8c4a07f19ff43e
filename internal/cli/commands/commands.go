// Package commands implements the marketpivot subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/datalift-io/marketpivot/internal/cli/config"
	"github.com/datalift-io/marketpivot/internal/engine"
	"github.com/datalift-io/marketpivot/internal/state"
	"github.com/datalift-io/marketpivot/internal/warehouse"
)

// runtimeKey carries the loaded config and logger in the command
// context, set by the root command's PersistentPreRunE.
type runtimeKey struct{}

type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
}

// WithRuntime stores the loaded config and logger in ctx.
func WithRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, runtimeKey{}, &runtime{cfg: cfg, logger: logger})
}

func fromContext(ctx context.Context) (*config.Config, *slog.Logger, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok {
		return nil, nil, fmt.Errorf("configuration not loaded")
	}
	return rt.cfg, rt.logger, nil
}

// openStore opens and migrates the watermark store, creating the
// parent directory if needed.
func openStore(cfg *config.Config, logger *slog.Logger) (*state.SQLiteStore, error) {
	if dir := filepath.Dir(cfg.StatePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// openWarehouse opens the DuckDB warehouse.
func openWarehouse(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*warehouse.Warehouse, error) {
	path := cfg.Database
	if path == ":memory:" {
		path = ""
	}
	return warehouse.Open(ctx, warehouse.Config{
		Path:      path,
		RawTable:  cfg.RawTable,
		LongTable: cfg.LongTable,
	}, logger)
}

// buildEngine wires store and warehouse into an engine.
func buildEngine(cfg *config.Config, store *state.SQLiteStore, wh *warehouse.Warehouse, logger *slog.Logger) (*engine.Engine, error) {
	schema, err := cfg.MetricSchema()
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Config{
		Store:          store,
		Source:         wh,
		Sink:           wh,
		Schema:         schema,
		PageSize:       cfg.PageSize,
		SinkMaxRetries: cfg.SinkMaxRetries,
		Logger:         logger,
	})
}
