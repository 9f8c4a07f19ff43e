package core

import "time"

// MetricKind identifies what a single observation measures.
type MetricKind string

// Metric kinds produced by the reshaper.
const (
	MetricOpen      MetricKind = "open"
	MetricHigh      MetricKind = "high"
	MetricLow       MetricKind = "low"
	MetricClose     MetricKind = "close"
	MetricInflation MetricKind = "inflation"
	MetricTrust     MetricKind = "trust"
)

// ValidMetricKind reports whether k is one of the known metric kinds.
func ValidMetricKind(k MetricKind) bool {
	switch k {
	case MetricOpen, MetricHigh, MetricLow, MetricClose, MetricInflation, MetricTrust:
		return true
	}
	return false
}

// Cell is an explicit-presence numeric cell from the raw wide table.
// A cell that is NULL in the source has Valid == false and is never
// emitted as an observation.
type Cell struct {
	Value float64
	Valid bool
}

// RawRow is one row of the raw wide table. Cells is aligned with the
// Columns slice of the enclosing RawBatch.
type RawRow struct {
	Seq     int64 // insertion sequence assigned at ingest
	Country string
	Market  string
	Date    string
	Year    int
	Month   int
	Cells   []Cell
}

// RawBatch is a page of raw rows sharing one metric-column layout.
// Columns holds the metric column names in table order; identifying
// columns (country, market, date, year, month) are carried on each row.
type RawBatch struct {
	Columns []string
	Rows    []RawRow
}

// LongRecord is a single tidy observation: one (row, item, metric)
// cell from the wide table. Seq is the source raw row's insertion
// sequence and makes the record traceable (and deduplicatable) back to
// the exact raw row that produced it.
type LongRecord struct {
	Seq     int64
	Country string
	Market  string
	Date    string
	Item    string
	Kind    MetricKind
	Value   float64
}

// Watermark is the durable cursor recording how much of the raw table
// has been consumed. The zero value is the well-defined "no run has
// ever committed" state.
type Watermark struct {
	RunIndex         int64
	RawRowsConsumed  int64
	LongRowsProduced int64
	CommittedAt      time.Time
}

// RunLogEntry is one appended watermark as recorded in the run log,
// with the per-run bookkeeping the log retains on top of the cursor.
type RunLogEntry struct {
	RunID            string // assigned by the store on append
	RunIndex         int64
	RawRowsConsumed  int64
	RawRowsAdded     int64 // delta size of this run
	LongRowsProduced int64 // running total
	CommittedAt      time.Time
}

// Watermark returns the cursor portion of the log entry.
func (e RunLogEntry) Watermark() Watermark {
	return Watermark{
		RunIndex:         e.RunIndex,
		RawRowsConsumed:  e.RawRowsConsumed,
		LongRowsProduced: e.LongRowsProduced,
		CommittedAt:      e.CommittedAt,
	}
}

// RunStatus is the terminal status of a single engine run.
type RunStatus string

// Run statuses.
const (
	// RunStatusCompleted means the run wrote observations and advanced
	// the watermark.
	RunStatusCompleted RunStatus = "completed"

	// RunStatusNoOp means the delta was empty; nothing was written.
	// This is a success outcome, not an error.
	RunStatusNoOp RunStatus = "no-op"

	// RunStatusFailed means the run aborted before advancing the
	// watermark.
	RunStatusFailed RunStatus = "failed"
)

// RunResult summarizes one invocation of the engine.
type RunResult struct {
	Status        RunStatus
	RunIndex      int64 // index of the committed run; 0 for no-op
	RowsProcessed int64 // raw delta rows consumed
	RowsProduced  int64 // long observations written
	Duration      time.Duration
}

// WatermarkStore is the durable watermark and run-log storage.
//
// Append must be optimistic: the proposed watermark is derived from the
// watermark the caller read (RunIndex = prior + 1), and the store
// rejects it with ErrConcurrentRunConflict if any other watermark was
// appended in the interim. History is for auditing only; ReadCurrent
// alone is authoritative for delta computation.
type WatermarkStore interface {
	ReadCurrent() (Watermark, error)
	Append(next Watermark) error
	History() ([]RunLogEntry, error)
}
