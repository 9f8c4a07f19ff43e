package engine

import (
	"context"

	"github.com/datalift-io/marketpivot/pkg/core"
)

// delta describes the raw rows appended since the current watermark.
type delta struct {
	offset int64 // first unconsumed row index (== watermark consumed count)
	size   int64 // rows to process; 0 means nothing new
}

// selectDelta computes the slice of raw rows not yet processed. The
// raw table has a stable total order, so "the first offset rows were
// already consumed" is well-defined and reproducible. A consumed count
// exceeding the actual row count means the store and the table
// disagree about history — fatal, never silently truncated.
func (e *Engine) selectDelta(ctx context.Context, wm core.Watermark) (delta, error) {
	total, err := e.source.CountRawRows(ctx)
	if err != nil {
		return delta{}, err
	}

	if total < wm.RawRowsConsumed {
		return delta{}, &core.WatermarkInconsistencyError{
			Consumed: wm.RawRowsConsumed,
			Actual:   total,
		}
	}

	return delta{offset: wm.RawRowsConsumed, size: total - wm.RawRowsConsumed}, nil
}

// pages iterates the delta page by page so that memory stays bounded
// by the page size, not by the table's history. fn receives each
// non-empty batch in raw insertion order.
func (e *Engine) pages(ctx context.Context, d delta, fn func(core.RawBatch) error) error {
	for done := int64(0); done < d.size; {
		limit := e.pageSize
		if remaining := d.size - done; remaining < limit {
			limit = remaining
		}

		batch, err := e.source.SelectRawPage(ctx, d.offset+done, limit)
		if err != nil {
			return err
		}
		if len(batch.Rows) == 0 {
			// The source reported more rows than it returns. Treat as
			// the same corruption class as a short table.
			return &core.WatermarkInconsistencyError{
				Consumed: d.offset + d.size,
				Actual:   d.offset + done,
			}
		}

		if err := fn(batch); err != nil {
			return err
		}
		done += int64(len(batch.Rows))
	}
	return nil
}
