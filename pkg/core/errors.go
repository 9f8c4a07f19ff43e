package core

import (
	"errors"
	"fmt"
)

// ErrConcurrentRunConflict is returned by WatermarkStore.Append when
// another run committed a watermark after the caller read the current
// one. The losing run must abort without retrying its writes.
var ErrConcurrentRunConflict = errors.New("watermark advanced by a concurrent run")

// WatermarkInconsistencyError means the stored consumed-count exceeds
// the actual raw row count. The raw table is append-only, so this can
// only happen through external tampering or corruption; it is fatal
// and requires operator intervention.
type WatermarkInconsistencyError struct {
	Consumed int64 // raw_rows_consumed from the current watermark
	Actual   int64 // rows actually present in the raw table
}

func (e *WatermarkInconsistencyError) Error() string {
	return fmt.Sprintf("watermark inconsistency: %d raw rows consumed but table has only %d", e.Consumed, e.Actual)
}

// SinkWriteError wraps a transient failure writing long observations.
// The coordinator retries these with bounded backoff before failing
// the run.
type SinkWriteError struct {
	Err error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("sink write failed: %v", e.Err)
}

func (e *SinkWriteError) Unwrap() error {
	return e.Err
}
