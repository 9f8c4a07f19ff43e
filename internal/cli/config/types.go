// Package config loads marketpivot configuration from file,
// environment, and flags.
package config

import (
	"fmt"

	"github.com/datalift-io/marketpivot/internal/reshape"
	"github.com/datalift-io/marketpivot/pkg/core"
)

// Defaults.
const (
	DefaultStateFile  = ".marketpivot/state.db"
	DefaultDatabase   = "marketpivot.duckdb"
	DefaultRawTable   = "market_raw"
	DefaultLongTable  = "observations"
	DefaultPageSize   = 1000
	DefaultRetries    = 3
	DefaultListenAddr = ":8080"
)

// MetricsConfig is the versioned metric-column schema as configured:
// a mapping from column-name prefix to metric kind.
type MetricsConfig struct {
	Version int               `koanf:"version"`
	Columns map[string]string `koanf:"columns"`
}

// Config holds the full CLI configuration.
type Config struct {
	// StatePath is the SQLite watermark/run-log database.
	StatePath string `koanf:"state_path"`

	// Database is the DuckDB file holding the raw and long tables.
	// ":memory:" or empty means in-memory (useful only for tests).
	Database string `koanf:"database"`

	RawTable  string `koanf:"raw_table"`
	LongTable string `koanf:"long_table"`

	// PageSize bounds the number of raw rows resident during a run.
	PageSize int64 `koanf:"page_size"`

	// SinkMaxRetries bounds retries of transient sink write failures.
	SinkMaxRetries uint64 `koanf:"sink_max_retries"`

	// ListenAddr is the read API bind address.
	ListenAddr string `koanf:"listen_addr"`

	Verbose bool `koanf:"verbose"`

	Metrics MetricsConfig `koanf:"metrics"`
}

// MetricSchema builds the reshaper schema from the configured mapping.
func (c *Config) MetricSchema() (reshape.Schema, error) {
	if len(c.Metrics.Columns) == 0 {
		return reshape.DefaultSchema(), nil
	}

	prefixes := make(map[string]core.MetricKind, len(c.Metrics.Columns))
	for prefix, kind := range c.Metrics.Columns {
		prefixes[prefix] = core.MetricKind(kind)
	}
	schema, err := reshape.NewSchema(c.Metrics.Version, prefixes)
	if err != nil {
		return reshape.Schema{}, fmt.Errorf("invalid metrics config: %w", err)
	}
	return schema, nil
}

// Validate checks the configuration for basic sanity.
func (c *Config) Validate() error {
	if c.StatePath == "" {
		return fmt.Errorf("state_path is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if _, err := c.MetricSchema(); err != nil {
		return err
	}
	return nil
}
