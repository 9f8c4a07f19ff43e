package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/datalift-io/marketpivot/internal/state"
	"github.com/datalift-io/marketpivot/internal/testutil"
	"github.com/datalift-io/marketpivot/internal/warehouse"
	"github.com/datalift-io/marketpivot/pkg/core"
)

// setupPipeline wires a real SQLite watermark store and an in-memory
// DuckDB warehouse into an engine.
func setupPipeline(t *testing.T) (*Engine, *state.SQLiteStore, *warehouse.Warehouse) {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	store := state.NewSQLiteStore(logger)
	if err := store.Open(filepath.Join(t.TempDir(), "state.db")); err != nil {
		t.Fatalf("failed to open state store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("failed to migrate state store: %v", err)
	}

	wh, err := warehouse.Open(ctx, warehouse.Config{}, logger)
	if err != nil {
		t.Fatalf("failed to open warehouse: %v", err)
	}
	t.Cleanup(func() { wh.Close() })

	eng, err := New(Config{
		Store:         store,
		Source:        wh,
		Sink:          wh,
		PageSize:      2, // force paging even on tiny fixtures
		SinkRetryBase: time.Millisecond,
		Logger:        logger,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return eng, store, wh
}

func TestPipeline_IncrementalRuns(t *testing.T) {
	eng, store, wh := setupPipeline(t)
	ctx := context.Background()

	// First run over the initial load: 3 rows, 7 non-null cells.
	if err := wh.LoadCSV(ctx, filepath.Join("testdata", "initial.csv")); err != nil {
		t.Fatalf("failed to load initial CSV: %v", err)
	}

	res, err := eng.RunOnce(ctx)
	if err != nil {
		t.Fatalf("first RunOnce failed: %v", err)
	}
	if res.Status != core.RunStatusCompleted {
		t.Fatalf("status = %q, want completed", res.Status)
	}
	if res.RowsProcessed != 3 {
		t.Errorf("RowsProcessed = %d, want 3", res.RowsProcessed)
	}
	if res.RowsProduced != 7 {
		t.Errorf("RowsProduced = %d, want 7", res.RowsProduced)
	}

	// Re-triggering with nothing new is a no-op.
	res, err = eng.RunOnce(ctx)
	if err != nil {
		t.Fatalf("no-op RunOnce failed: %v", err)
	}
	if res.Status != core.RunStatusNoOp {
		t.Fatalf("status = %q, want no-op", res.Status)
	}

	// New raw rows arrive; only the delta is processed.
	if err := wh.LoadCSV(ctx, filepath.Join("testdata", "delta.csv")); err != nil {
		t.Fatalf("failed to load delta CSV: %v", err)
	}

	res, err = eng.RunOnce(ctx)
	if err != nil {
		t.Fatalf("delta RunOnce failed: %v", err)
	}
	if res.RowsProcessed != 2 {
		t.Errorf("delta RowsProcessed = %d, want 2", res.RowsProcessed)
	}
	if res.RowsProduced != 5 {
		t.Errorf("delta RowsProduced = %d, want 5", res.RowsProduced)
	}

	total, err := wh.CountLongRecords(ctx)
	if err != nil {
		t.Fatalf("failed to count observations: %v", err)
	}
	if total != 12 {
		t.Errorf("observation count = %d, want 12", total)
	}

	wm, err := store.ReadCurrent()
	if err != nil {
		t.Fatalf("failed to read watermark: %v", err)
	}
	if wm.RunIndex != 2 || wm.RawRowsConsumed != 5 || wm.LongRowsProduced != 12 {
		t.Errorf("final watermark = %+v, want run 2, 5 consumed, 12 produced", wm)
	}

	history, err := store.History()
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("run log has %d entries, want 2 (no-op runs do not log)", len(history))
	}
}

func TestPipeline_ObservationsMatchSource(t *testing.T) {
	eng, _, wh := setupPipeline(t)
	ctx := context.Background()

	if err := wh.LoadCSV(ctx, filepath.Join("testdata", "initial.csv")); err != nil {
		t.Fatalf("failed to load CSV: %v", err)
	}
	if _, err := eng.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	apples, err := wh.FetchObservations(ctx, warehouse.ObservationFilter{Item: "apples"})
	if err != nil {
		t.Fatalf("failed to fetch observations: %v", err)
	}
	// 2 opens + 2 closes + 2 trusts for apples in initial.csv.
	if len(apples) != 6 {
		t.Fatalf("apples observations = %d, want 6", len(apples))
	}
	for _, rec := range apples {
		if rec.Value == 0 {
			t.Errorf("observation with zero value suggests a null leaked through: %+v", rec)
		}
		if !core.ValidMetricKind(rec.Kind) {
			t.Errorf("invalid metric kind %q", rec.Kind)
		}
	}

	rice, err := wh.FetchObservations(ctx, warehouse.ObservationFilter{Item: "rice", Kind: "open"})
	if err != nil {
		t.Fatalf("failed to fetch rice observations: %v", err)
	}
	if len(rice) != 1 || rice[0].Value != 40.0 {
		t.Errorf("rice open observations = %+v, want one with value 40", rice)
	}
}
