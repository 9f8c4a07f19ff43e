package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/datalift-io/marketpivot/internal/reshape"
	"github.com/datalift-io/marketpivot/pkg/core"
)

// RunOnce executes one incremental run: read watermark, select delta,
// reshape, write observations, append the next watermark. An empty
// delta is a successful no-op. Observations are written before the
// watermark advances, deliberately biasing partial failure toward
// duplication (absorbed by the sink's dedup key) rather than loss.
func (e *Engine) RunOnce(ctx context.Context) (*core.RunResult, error) {
	start := time.Now()

	wm, err := e.store.ReadCurrent()
	if err != nil {
		return failed(start), fmt.Errorf("failed to read watermark: %w", err)
	}

	d, err := e.selectDelta(ctx, wm)
	if err != nil {
		var inconsistency *core.WatermarkInconsistencyError
		if errors.As(err, &inconsistency) {
			e.logger.Error("watermark inconsistency, operator intervention required",
				"consumed", inconsistency.Consumed, "actual", inconsistency.Actual)
			return failed(start), err
		}
		return failed(start), fmt.Errorf("failed to select delta: %w", err)
	}

	if d.size == 0 {
		e.logger.Info("nothing new to process", "run_index", wm.RunIndex, "raw_rows_consumed", wm.RawRowsConsumed)
		return &core.RunResult{Status: core.RunStatusNoOp, Duration: time.Since(start)}, nil
	}

	e.logger.Info("processing delta",
		"prior_run_index", wm.RunIndex, "offset", d.offset, "rows", d.size)

	var produced int64
	drifted := make(map[string]bool)
	err = e.pages(ctx, d, func(batch core.RawBatch) error {
		res := reshape.Reshape(e.schema, batch)
		for _, col := range res.Drift {
			if !drifted[col] {
				drifted[col] = true
				e.logger.Warn("schema drift: unrecognized metric column ignored",
					"column", col, "schema_version", e.schema.Version)
			}
		}

		n, err := e.writeWithRetry(ctx, res.Records)
		if err != nil {
			return err
		}
		produced += n
		return nil
	})
	if err != nil {
		return failed(start), err
	}

	next := core.Watermark{
		RunIndex:         wm.RunIndex + 1,
		RawRowsConsumed:  wm.RawRowsConsumed + d.size,
		LongRowsProduced: wm.LongRowsProduced + produced,
		CommittedAt:      time.Now().UTC(),
	}
	if err := e.store.Append(next); err != nil {
		if errors.Is(err, core.ErrConcurrentRunConflict) {
			// Another run committed first. Observations are already
			// written; the dedup key makes a caller re-run safe, so
			// abort without retrying anything here.
			e.logger.Warn("run lost watermark race, aborting",
				"proposed_run_index", next.RunIndex)
		}
		return failed(start), err
	}

	e.logger.Info("run committed",
		"run_index", next.RunIndex,
		"rows_processed", d.size,
		"rows_produced", produced,
		"duration", time.Since(start))

	return &core.RunResult{
		Status:        core.RunStatusCompleted,
		RunIndex:      next.RunIndex,
		RowsProcessed: d.size,
		RowsProduced:  produced,
		Duration:      time.Since(start),
	}, nil
}

// writeWithRetry appends one page of observations, retrying transient
// sink failures with bounded exponential backoff. With the sink's
// dedup key an ambiguous partial write is safe to retry: already
// written rows are skipped on the next attempt.
func (e *Engine) writeWithRetry(ctx context.Context, recs []core.LongRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.sinkRetryBase
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, e.sinkMaxRetries), ctx)

	var inserted int64
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		n, err := e.sink.AppendLongRecords(ctx, recs)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			e.logger.Warn("sink write failed, will retry",
				"attempt", attempt, "records", len(recs), "error", err)
			return err
		}
		inserted = n
		return nil
	}, policy)
	if err != nil {
		return 0, &core.SinkWriteError{Err: err}
	}
	return inserted, nil
}

func failed(start time.Time) *core.RunResult {
	return &core.RunResult{Status: core.RunStatusFailed, Duration: time.Since(start)}
}
