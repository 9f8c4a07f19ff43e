// Package engine implements the commit coordinator: one watermark-gated
// incremental run that selects the raw delta, pivots it to long
// observations, writes the sink, and advances the watermark.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/datalift-io/marketpivot/internal/reshape"
	"github.com/datalift-io/marketpivot/pkg/core"
)

// Source reads the raw wide table.
type Source interface {
	CountRawRows(ctx context.Context) (int64, error)
	SelectRawPage(ctx context.Context, offset, limit int64) (core.RawBatch, error)
}

// Sink appends long observations. Appends must be idempotent per
// record so the coordinator can retry transient failures.
type Sink interface {
	AppendLongRecords(ctx context.Context, recs []core.LongRecord) (int64, error)
}

// Engine orchestrates one run at a time over a source, a sink, and a
// watermark store. It holds no mutable state of its own; the watermark
// store is the only shared mutable state.
type Engine struct {
	store  core.WatermarkStore
	source Source
	sink   Sink
	schema reshape.Schema
	logger *slog.Logger

	pageSize       int64
	sinkMaxRetries uint64
	sinkRetryBase  time.Duration
}

// Config holds engine configuration.
type Config struct {
	Store  core.WatermarkStore
	Source Source
	Sink   Sink

	// Schema is the metric-column schema; DefaultSchema when zero.
	Schema reshape.Schema

	// PageSize bounds how many raw rows are resident at once.
	PageSize int64

	// SinkMaxRetries bounds retries of transient sink failures.
	SinkMaxRetries uint64

	// SinkRetryBase is the initial backoff interval between sink
	// retries. Mostly shortened by tests.
	SinkRetryBase time.Duration

	// Logger is the structured logger (optional, uses discard if nil).
	Logger *slog.Logger
}

// New creates an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("engine requires a watermark store")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("engine requires a raw source")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("engine requires an observation sink")
	}

	schema := cfg.Schema
	if len(schema.Prefixes) == 0 {
		schema = reshape.DefaultSchema()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	retries := cfg.SinkMaxRetries
	if retries == 0 {
		retries = 3
	}
	retryBase := cfg.SinkRetryBase
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}

	return &Engine{
		store:          cfg.Store,
		source:         cfg.Source,
		sink:           cfg.Sink,
		schema:         schema,
		logger:         logger,
		pageSize:       pageSize,
		sinkMaxRetries: retries,
		sinkRetryBase:  retryBase,
	}, nil
}
