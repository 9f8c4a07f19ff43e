package warehouse

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalift-io/marketpivot/pkg/core"
)

// openTestWarehouse opens an in-memory DuckDB warehouse.
func openTestWarehouse(t *testing.T) *Warehouse {
	t.Helper()
	w, err := Open(context.Background(), Config{}, nil)
	require.NoError(t, err, "failed to open in-memory duckdb")
	t.Cleanup(func() { w.Close() })
	return w
}

func TestIntegration_LoadCSVAndCount(t *testing.T) {
	w := openTestWarehouse(t)
	ctx := context.Background()

	require.NoError(t, w.LoadCSV(ctx, filepath.Join("testdata", "market_sample.csv")))

	count, err := w.CountRawRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	// A second load appends rather than replacing.
	require.NoError(t, w.LoadCSV(ctx, filepath.Join("testdata", "market_sample.csv")))
	count, err = w.CountRawRows(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(8), count)
}

func TestIntegration_SelectRawPage(t *testing.T) {
	w := openTestWarehouse(t)
	ctx := context.Background()

	require.NoError(t, w.LoadCSV(ctx, filepath.Join("testdata", "market_sample.csv")))

	batch, err := w.SelectRawPage(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 4)

	// Metric columns exclude the identifying ones.
	assert.NotContains(t, batch.Columns, "country")
	assert.NotContains(t, batch.Columns, "seq")
	assert.Contains(t, batch.Columns, "O_apples")

	first := batch.Rows[0]
	assert.Equal(t, "KE", first.Country)
	assert.Equal(t, "Nairobi", first.Market)
	assert.Equal(t, "2025-01-15", first.Date)
	assert.Equal(t, 2025, first.Year)
	assert.Equal(t, 1, first.Month)
	require.Len(t, first.Cells, len(batch.Columns))

	// Rows come back in insertion order; sequences increase.
	for i := 1; i < len(batch.Rows); i++ {
		assert.Greater(t, batch.Rows[i].Seq, batch.Rows[i-1].Seq)
	}

	// Null CSV cells arrive as invalid cells, never as zero values.
	for i, name := range batch.Columns {
		if name == "O_rice" {
			assert.False(t, first.Cells[i].Valid, "empty O_rice cell should be null")
		}
	}

	// Offset paging.
	page, err := w.SelectRawPage(ctx, 2, 10)
	require.NoError(t, err)
	assert.Len(t, page.Rows, 2)
	assert.Equal(t, batch.Rows[2].Seq, page.Rows[0].Seq)
}

func TestIntegration_AppendLongRecordsDeduplicates(t *testing.T) {
	w := openTestWarehouse(t)
	ctx := context.Background()

	recs := []core.LongRecord{
		{Seq: 1, Country: "KE", Market: "Nairobi", Date: "2025-01-15", Item: "apples", Kind: core.MetricOpen, Value: 1.0},
		{Seq: 1, Country: "KE", Market: "Nairobi", Date: "2025-01-15", Item: "apples", Kind: core.MetricHigh, Value: 2.0},
	}

	inserted, err := w.AppendLongRecords(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), inserted)

	// Re-writing the same records is a no-op: this is what makes sink
	// retries and post-conflict re-runs safe.
	inserted, err = w.AppendLongRecords(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inserted)

	total, err := w.CountLongRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestIntegration_FetchRaw(t *testing.T) {
	w := openTestWarehouse(t)
	ctx := context.Background()

	require.NoError(t, w.LoadCSV(ctx, filepath.Join("testdata", "market_sample.csv")))

	all, err := w.FetchRaw(ctx, RawFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	year := 2025
	kenya, err := w.FetchRaw(ctx, RawFilter{Year: &year, Country: "KE"})
	require.NoError(t, err)
	assert.Len(t, kenya, 3)

	mombasa, err := w.FetchRaw(ctx, RawFilter{Market: "Mombasa"})
	require.NoError(t, err)
	require.Len(t, mombasa, 1)
	assert.Equal(t, "KE", mombasa[0]["country"])

	none, err := w.FetchRaw(ctx, RawFilter{Country: "BR"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIntegration_FetchObservations(t *testing.T) {
	w := openTestWarehouse(t)
	ctx := context.Background()

	recs := []core.LongRecord{
		{Seq: 1, Country: "KE", Market: "Nairobi", Date: "2025-01-15", Item: "apples", Kind: core.MetricOpen, Value: 1.0},
		{Seq: 2, Country: "IN", Market: "Delhi", Date: "2025-03-15", Item: "rice", Kind: core.MetricClose, Value: 39.0},
	}
	_, err := w.AppendLongRecords(ctx, recs)
	require.NoError(t, err)

	rice, err := w.FetchObservations(ctx, ObservationFilter{Item: "rice"})
	require.NoError(t, err)
	require.Len(t, rice, 1)
	assert.Equal(t, core.MetricClose, rice[0].Kind)
	assert.Equal(t, 39.0, rice[0].Value)

	all, err := w.FetchObservations(ctx, ObservationFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
