package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/datalift-io/marketpivot/pkg/core"
)

// Identifying raw columns, matched case-insensitively. Everything else
// in the raw table is treated as a metric cell.
const (
	colSeq     = "SEQ"
	colCountry = "COUNTRY"
	colMarket  = "MKT_NAME"
	colDates   = "DATES"
	colYear    = "YEAR"
	colMonth   = "MONTH"
)

// LoadCSV appends a wide CSV file to the raw table, stamping each row
// with the next insertion sequence. The table is created on first
// load with the schema DuckDB infers from the file.
func (w *Warehouse) LoadCSV(ctx context.Context, filePath string) error {
	if w.db == nil {
		return fmt.Errorf("database connection not established")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	// read_csv_auto takes the path as a literal, not a bind parameter.
	escaped := strings.ReplaceAll(absPath, "'", "''")

	exists, err := w.tableExists(ctx, w.cfg.RawTable)
	if err != nil {
		return err
	}

	var query string
	if exists {
		query = fmt.Sprintf(
			"INSERT INTO %s SELECT nextval('raw_ingest_seq') AS seq, * FROM read_csv_auto('%s', header=true)",
			w.cfg.RawTable, escaped,
		)
	} else {
		query = fmt.Sprintf(
			"CREATE TABLE %s AS SELECT nextval('raw_ingest_seq') AS seq, * FROM read_csv_auto('%s', header=true)",
			w.cfg.RawTable, escaped,
		)
	}

	if _, err := w.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}

	w.logger.Info("loaded raw CSV", "path", absPath, "table", w.cfg.RawTable)
	return nil
}

// CountRawRows returns the total raw row count. A missing raw table
// counts as zero rows: nothing has been ingested yet.
func (w *Warehouse) CountRawRows(ctx context.Context) (int64, error) {
	if w.db == nil {
		return 0, fmt.Errorf("database connection not established")
	}

	exists, err := w.tableExists(ctx, w.cfg.RawTable)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	var count int64
	query := fmt.Sprintf("SELECT count(*) FROM %s", w.cfg.RawTable)
	if err := w.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count raw rows: %w", err)
	}
	return count, nil
}

// SelectRawPage returns raw rows [offset, offset+limit) in the table's
// stable total order: (year, month, insertion sequence), which is the
// order rows are physically appended in.
func (w *Warehouse) SelectRawPage(ctx context.Context, offset, limit int64) (core.RawBatch, error) {
	if w.db == nil {
		return core.RawBatch{}, fmt.Errorf("database connection not established")
	}

	query := fmt.Sprintf(
		"SELECT * FROM %s ORDER BY year, month, seq LIMIT %d OFFSET %d",
		w.cfg.RawTable, limit, offset,
	)
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return core.RawBatch{}, fmt.Errorf("failed to select raw page: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return core.RawBatch{}, fmt.Errorf("failed to read columns: %w", err)
	}

	// Split the column list into identifying columns and metric cells.
	type colRole struct {
		name   string
		ident  string // one of the col* constants, or "" for metric
		metric int    // index into batch.Columns for metric cells
	}
	roles := make([]colRole, len(columns))
	var metricCols []string
	for i, name := range columns {
		role := colRole{name: name, metric: -1}
		switch strings.ToUpper(name) {
		case colSeq:
			role.ident = colSeq
		case colCountry:
			role.ident = colCountry
		case colMarket:
			role.ident = colMarket
		case colDates:
			role.ident = colDates
		case colYear:
			role.ident = colYear
		case colMonth:
			role.ident = colMonth
		default:
			role.metric = len(metricCols)
			metricCols = append(metricCols, name)
		}
		roles[i] = role
	}

	batch := core.RawBatch{Columns: metricCols}
	for rows.Next() {
		dest := make([]any, len(columns))
		var seq, year, month sql.NullInt64
		var country, mkt sql.NullString
		var dates any
		cells := make([]sql.NullFloat64, len(metricCols))

		for i, role := range roles {
			switch role.ident {
			case colSeq:
				dest[i] = &seq
			case colCountry:
				dest[i] = &country
			case colMarket:
				dest[i] = &mkt
			case colDates:
				dest[i] = &dates
			case colYear:
				dest[i] = &year
			case colMonth:
				dest[i] = &month
			default:
				dest[i] = &cells[role.metric]
			}
		}

		if err := rows.Scan(dest...); err != nil {
			return core.RawBatch{}, fmt.Errorf("failed to scan raw row: %w", err)
		}

		row := core.RawRow{
			Seq:     seq.Int64,
			Country: country.String,
			Market:  mkt.String,
			Date:    formatDate(dates),
			Year:    int(year.Int64),
			Month:   int(month.Int64),
			Cells:   make([]core.Cell, len(metricCols)),
		}
		for i, c := range cells {
			row.Cells[i] = core.Cell{Value: c.Float64, Valid: c.Valid}
		}
		batch.Rows = append(batch.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return core.RawBatch{}, fmt.Errorf("error iterating raw page: %w", err)
	}
	return batch, nil
}

// formatDate normalizes whatever type the driver returns for the
// DATES column into an ISO date string.
func formatDate(v any) string {
	switch d := v.(type) {
	case nil:
		return ""
	case time.Time:
		return d.Format("2006-01-02")
	case string:
		return d
	case []byte:
		return string(d)
	default:
		return fmt.Sprint(d)
	}
}

// RawFilter restricts FetchRaw output. Nil / empty fields match
// everything.
type RawFilter struct {
	Year    *int
	Country string
	Market  string
}

// FetchRaw returns raw rows matching the filter as generic records,
// in stable order. Used by the read API.
func (w *Warehouse) FetchRaw(ctx context.Context, f RawFilter) ([]map[string]any, error) {
	if w.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	exists, err := w.tableExists(ctx, w.cfg.RawTable)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []map[string]any{}, nil
	}

	var where []string
	var args []any
	if f.Year != nil {
		where = append(where, "year = ?")
		args = append(args, *f.Year)
	}
	if f.Country != "" {
		where = append(where, "country = ?")
		args = append(args, f.Country)
	}
	if f.Market != "" {
		where = append(where, "mkt_name = ?")
		args = append(args, f.Market)
	}

	query := fmt.Sprintf("SELECT * FROM %s", w.cfg.RawTable)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY year, month, seq"

	rows, err := w.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch raw rows: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	records := []map[string]any{}
	for rows.Next() {
		dest := make([]any, len(columns))
		for i := range dest {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan raw row: %w", err)
		}

		rec := make(map[string]any, len(columns))
		for i, name := range columns {
			v := *(dest[i].(*any))
			if t, ok := v.(time.Time); ok {
				v = t.Format("2006-01-02")
			}
			rec[strings.ToLower(name)] = v
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}
