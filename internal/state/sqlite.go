// Package state persists the watermark and its run log in SQLite.
// The watermark is the single piece of mutable shared state in the
// engine; everything else is append-only.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/datalift-io/marketpivot/pkg/core"
)

// timeFormat is how committed_at timestamps are stored. RFC 3339 keeps
// the run log readable with plain sqlite3 tooling.
const timeFormat = time.RFC3339Nano

// SQLiteStore implements core.WatermarkStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite watermark store instance.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens a connection to the SQLite database.
// Use ":memory:" for an in-memory database.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReadCurrent returns the latest committed watermark, or the zero
// state (run_index 0, nothing consumed) if no run has ever committed.
func (s *SQLiteStore) ReadCurrent() (core.Watermark, error) {
	if s.db == nil {
		return core.Watermark{}, fmt.Errorf("database not opened")
	}

	var wm core.Watermark
	var committedAt string

	err := s.db.QueryRow(
		`SELECT run_index, raw_rows_consumed, long_rows_produced, committed_at
		 FROM watermarks ORDER BY run_index DESC LIMIT 1`,
	).Scan(&wm.RunIndex, &wm.RawRowsConsumed, &wm.LongRowsProduced, &committedAt)

	if err == sql.ErrNoRows {
		return core.Watermark{}, nil
	}
	if err != nil {
		return core.Watermark{}, fmt.Errorf("failed to read current watermark: %w", err)
	}

	wm.CommittedAt, err = time.Parse(timeFormat, committedAt)
	if err != nil {
		return core.Watermark{}, fmt.Errorf("failed to parse committed_at %q: %w", committedAt, err)
	}

	return wm, nil
}

// Append commits next as the new current watermark. It is optimistic:
// next must carry run_index = current + 1, where "current" is whatever
// the store holds at commit time. If another run appended since the
// caller read its watermark, Append fails with
// core.ErrConcurrentRunConflict and leaves the store unchanged.
func (s *SQLiteStore) Append(next core.Watermark) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cur core.Watermark
	err = tx.QueryRow(
		`SELECT run_index, raw_rows_consumed FROM watermarks ORDER BY run_index DESC LIMIT 1`,
	).Scan(&cur.RunIndex, &cur.RawRowsConsumed)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read current watermark: %w", err)
	}

	if next.RunIndex != cur.RunIndex+1 {
		s.logger.Debug("watermark append rejected",
			"proposed_run_index", next.RunIndex, "current_run_index", cur.RunIndex)
		return core.ErrConcurrentRunConflict
	}
	if next.RawRowsConsumed < cur.RawRowsConsumed {
		return fmt.Errorf("raw_rows_consumed would regress from %d to %d", cur.RawRowsConsumed, next.RawRowsConsumed)
	}

	committedAt := next.CommittedAt
	if committedAt.IsZero() {
		committedAt = time.Now().UTC()
	}

	_, err = tx.Exec(
		`INSERT INTO watermarks (run_index, run_id, raw_rows_consumed, raw_rows_added, long_rows_produced, committed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		next.RunIndex, uuid.New().String(), next.RawRowsConsumed,
		next.RawRowsConsumed-cur.RawRowsConsumed, next.LongRowsProduced,
		committedAt.Format(timeFormat),
	)
	if err != nil {
		// A primary-key violation means another run won the race
		// between our read and our insert.
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return core.ErrConcurrentRunConflict
		}
		return fmt.Errorf("failed to append watermark: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit watermark: %w", err)
	}

	s.logger.Debug("watermark appended",
		"run_index", next.RunIndex,
		"raw_rows_consumed", next.RawRowsConsumed,
		"long_rows_produced", next.LongRowsProduced)
	return nil
}

// History returns all committed watermarks in run order. It is for
// auditing and tests; the engine computes deltas from ReadCurrent only.
func (s *SQLiteStore) History() ([]core.RunLogEntry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	rows, err := s.db.Query(
		`SELECT run_index, run_id, raw_rows_consumed, raw_rows_added, long_rows_produced, committed_at
		 FROM watermarks ORDER BY run_index`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query run log: %w", err)
	}
	defer rows.Close()

	var entries []core.RunLogEntry
	for rows.Next() {
		var e core.RunLogEntry
		var committedAt string
		if err := rows.Scan(&e.RunIndex, &e.RunID, &e.RawRowsConsumed, &e.RawRowsAdded, &e.LongRowsProduced, &committedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run log entry: %w", err)
		}
		if e.CommittedAt, err = time.Parse(timeFormat, committedAt); err != nil {
			return nil, fmt.Errorf("failed to parse committed_at %q: %w", committedAt, err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Ensure SQLiteStore implements the store interface.
var _ core.WatermarkStore = (*SQLiteStore)(nil)
