package warehouse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/datalift-io/marketpivot/pkg/core"
)

// observationKey derives the deduplication key for a long record. The
// source row sequence uniquely identifies the raw row, so reprocessing
// the same delta — after a watermark conflict or an ambiguous partial
// sink write — regenerates identical keys and the conflict target
// swallows the duplicates.
func observationKey(rec core.LongRecord) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%s|%s|%s",
		rec.Seq, rec.Country, rec.Market, rec.Date, rec.Item, rec.Kind)))
	return hex.EncodeToString(h[:])
}

// AppendLongRecords appends observations to the long table inside one
// transaction, ignoring rows whose key is already present. Returns the
// number of rows actually inserted.
func (w *Warehouse) AppendLongRecords(ctx context.Context, recs []core.LongRecord) (int64, error) {
	if w.db == nil {
		return 0, fmt.Errorf("database connection not established")
	}
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(
		`INSERT OR IGNORE INTO %s (obs_key, src_seq, country, mkt_name, date, item, metric_kind, value)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.cfg.LongTable,
	)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, rec := range recs {
		res, err := stmt.ExecContext(ctx,
			observationKey(rec), rec.Seq, rec.Country, rec.Market,
			rec.Date, rec.Item, string(rec.Kind), rec.Value,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert observation: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit observations: %w", err)
	}

	if skipped := int64(len(recs)) - inserted; skipped > 0 {
		w.logger.Info("skipped duplicate observations", "count", skipped)
	}
	return inserted, nil
}

// CountLongRecords returns the total observation count.
func (w *Warehouse) CountLongRecords(ctx context.Context) (int64, error) {
	if w.db == nil {
		return 0, fmt.Errorf("database connection not established")
	}

	var count int64
	query := fmt.Sprintf("SELECT count(*) FROM %s", w.cfg.LongTable)
	if err := w.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", err)
	}
	return count, nil
}

// ObservationFilter restricts FetchObservations output. Empty fields
// match everything.
type ObservationFilter struct {
	Country string
	Market  string
	Item    string
	Kind    string
}

// FetchObservations returns long records matching the filter, in
// source order. Used by the read API.
func (w *Warehouse) FetchObservations(ctx context.Context, f ObservationFilter) ([]core.LongRecord, error) {
	if w.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	var where []string
	var args []any
	if f.Country != "" {
		where = append(where, "country = ?")
		args = append(args, f.Country)
	}
	if f.Market != "" {
		where = append(where, "mkt_name = ?")
		args = append(args, f.Market)
	}
	if f.Item != "" {
		where = append(where, "item = ?")
		args = append(args, f.Item)
	}
	if f.Kind != "" {
		where = append(where, "metric_kind = ?")
		args = append(args, f.Kind)
	}

	query := fmt.Sprintf("SELECT src_seq, country, mkt_name, date, item, metric_kind, value FROM %s", w.cfg.LongTable)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY src_seq, item, metric_kind"

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch observations: %w", err)
	}
	defer rows.Close()

	records := []core.LongRecord{}
	for rows.Next() {
		var rec core.LongRecord
		var kind string
		if err := rows.Scan(&rec.Seq, &rec.Country, &rec.Market, &rec.Date, &rec.Item, &kind, &rec.Value); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		rec.Kind = core.MetricKind(kind)
		records = append(records, rec)
	}

	return records, rows.Err()
}
