package reshape

import "github.com/datalift-io/marketpivot/pkg/core"

// Result is the output of one pivot: the emitted observations plus the
// columns the schema did not recognize. Drift is reported, not fatal;
// the caller decides how loudly to surface it.
type Result struct {
	Records []core.LongRecord
	Drift   []string
}

// Reshape pivots a batch of wide rows into long observations.
//
// A metric column that is NULL for every row of this batch is dropped
// before expansion: it contributes zero observations, not null-valued
// ones. The drop is batch-local — the same column may carry data in a
// later batch. Output preserves input row order; within a row,
// observations follow the batch's column order.
func Reshape(schema Schema, batch core.RawBatch) Result {
	type boundColumn struct {
		idx  int
		item string
		kind core.MetricKind
	}

	var bound []boundColumn
	var drift []string
	for i, name := range batch.Columns {
		item, kind, ok := schema.Resolve(name)
		if !ok {
			drift = append(drift, name)
			continue
		}
		bound = append(bound, boundColumn{idx: i, item: item, kind: kind})
	}

	// Batch-local all-null column drop.
	live := bound[:0]
	for _, bc := range bound {
		for _, row := range batch.Rows {
			if bc.idx < len(row.Cells) && row.Cells[bc.idx].Valid {
				live = append(live, bc)
				break
			}
		}
	}

	var records []core.LongRecord
	for _, row := range batch.Rows {
		for _, bc := range live {
			if bc.idx >= len(row.Cells) {
				continue
			}
			cell := row.Cells[bc.idx]
			if !cell.Valid {
				continue
			}
			records = append(records, core.LongRecord{
				Seq:     row.Seq,
				Country: row.Country,
				Market:  row.Market,
				Date:    row.Date,
				Item:    bc.item,
				Kind:    bc.kind,
				Value:   cell.Value,
			})
		}
	}

	return Result{Records: records, Drift: drift}
}
