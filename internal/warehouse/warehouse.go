// Package warehouse provides the DuckDB-backed storage for the raw
// wide table and the long observation sink. The raw table is
// append-only and ordered by an insertion sequence stamped at ingest;
// the observation table carries a deduplication key so that sink
// writes can be retried safely.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"regexp"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Config holds warehouse configuration.
type Config struct {
	// Path is the DuckDB database file. Empty means in-memory.
	Path string

	// RawTable is the wide input table written by ingestion.
	RawTable string

	// LongTable is the tidy observation table written by the engine.
	LongTable string
}

// identRe validates table names before they are interpolated into SQL.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.RawTable == "" {
		c.RawTable = "market_raw"
	}
	if c.LongTable == "" {
		c.LongTable = "observations"
	}
}

// Validate checks table names.
func (c *Config) Validate() error {
	for _, name := range []string{c.RawTable, c.LongTable} {
		if !identRe.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

// Warehouse wraps a DuckDB connection.
type Warehouse struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
}

// Open connects to DuckDB at cfg.Path (in-memory when empty) and
// ensures the observation table exists.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Warehouse, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	w := NewWithDB(db, cfg, logger)
	if err := w.InitSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// NewWithDB wraps an existing connection. Used by tests; callers are
// responsible for InitSchema.
func NewWithDB(db *sql.DB, cfg Config, logger *slog.Logger) *Warehouse {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Warehouse{db: db, cfg: cfg, logger: logger}
}

// Close closes the DuckDB connection.
func (w *Warehouse) Close() error {
	if w.db != nil {
		return w.db.Close()
	}
	return nil
}

// InitSchema creates the insertion sequence and the observation table.
// The raw table itself is created by ingestion, since its metric
// columns come from the data.
func (w *Warehouse) InitSchema(ctx context.Context) error {
	if w.db == nil {
		return fmt.Errorf("database connection not established")
	}

	stmts := []string{
		`CREATE SEQUENCE IF NOT EXISTS raw_ingest_seq START 1`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			obs_key VARCHAR PRIMARY KEY,
			src_seq BIGINT NOT NULL,
			country VARCHAR NOT NULL,
			mkt_name VARCHAR NOT NULL,
			date VARCHAR NOT NULL,
			item VARCHAR NOT NULL,
			metric_kind VARCHAR NOT NULL,
			value DOUBLE NOT NULL
		)`, w.cfg.LongTable),
	}

	for _, stmt := range stmts {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// tableExists reports whether a table is present in the main schema.
func (w *Warehouse) tableExists(ctx context.Context, name string) (bool, error) {
	var count int
	err := w.db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_name = ?`, name,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	return count > 0, nil
}
