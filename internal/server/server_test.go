package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datalift-io/marketpivot/internal/warehouse"
	"github.com/datalift-io/marketpivot/pkg/core"
)

type fakeRawReader struct {
	records []map[string]any
	gotYear *int
	err     error
}

func (f *fakeRawReader) FetchRaw(_ context.Context, filter warehouse.RawFilter) ([]map[string]any, error) {
	f.gotYear = filter.Year
	if f.err != nil {
		return nil, f.err
	}
	out := []map[string]any{}
	for _, rec := range f.records {
		if filter.Country != "" && rec["country"] != filter.Country {
			continue
		}
		if filter.Market != "" && rec["mkt_name"] != filter.Market {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type fakeObsReader struct {
	records []core.LongRecord
}

func (f *fakeObsReader) FetchObservations(_ context.Context, filter warehouse.ObservationFilter) ([]core.LongRecord, error) {
	out := []core.LongRecord{}
	for _, rec := range f.records {
		if filter.Item != "" && rec.Item != filter.Item {
			continue
		}
		if filter.Kind != "" && string(rec.Kind) != filter.Kind {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type fakeHistoryStore struct {
	entries []core.RunLogEntry
}

func (f *fakeHistoryStore) ReadCurrent() (core.Watermark, error) { return core.Watermark{}, nil }
func (f *fakeHistoryStore) Append(core.Watermark) error          { return nil }
func (f *fakeHistoryStore) History() ([]core.RunLogEntry, error) { return f.entries, nil }

func newTestServer(t *testing.T) (*Server, *fakeRawReader, *fakeObsReader, *fakeHistoryStore) {
	t.Helper()
	raw := &fakeRawReader{
		records: []map[string]any{
			{"country": "KE", "mkt_name": "Nairobi", "year": 2025},
			{"country": "IN", "mkt_name": "Delhi", "year": 2025},
		},
	}
	obs := &fakeObsReader{
		records: []core.LongRecord{
			{Country: "KE", Market: "Nairobi", Date: "2025-01-15", Item: "apples", Kind: core.MetricOpen, Value: 1.0},
			{Country: "KE", Market: "Nairobi", Date: "2025-01-15", Item: "apples", Kind: core.MetricHigh, Value: 2.0},
			{Country: "IN", Market: "Delhi", Date: "2025-03-15", Item: "rice", Kind: core.MetricClose, Value: 39.0},
		},
	}
	store := &fakeHistoryStore{
		entries: []core.RunLogEntry{
			{RunID: "a", RunIndex: 1, RawRowsConsumed: 3, RawRowsAdded: 3, LongRowsProduced: 7, CommittedAt: time.Now().UTC()},
		},
	}
	return New(raw, obs, store, nil), raw, obs, store
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestFetchData(t *testing.T) {
	srv, raw, _, _ := newTestServer(t)
	h := srv.Routes()

	rec := get(t, h, "/fetch_data?year=2025&country=KE")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, raw.gotYear)
	assert.Equal(t, 2025, *raw.gotYear)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Nairobi", records[0]["mkt_name"])
}

func TestFetchData_NoMatchIs404(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := get(t, srv.Routes(), "/fetch_data?country=BR")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "no data found")
}

func TestFetchData_BadYear(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := get(t, srv.Routes(), "/fetch_data?year=latest")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchData_ReaderError(t *testing.T) {
	srv, raw, _, _ := newTestServer(t)
	raw.err = assert.AnError

	rec := get(t, srv.Routes(), "/fetch_data")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestObservations(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := get(t, srv.Routes(), "/observations?item=apples")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "apples", views[0]["item"])

	// Empty result is a 200 with an empty list, unlike /fetch_data.
	rec = get(t, srv.Routes(), "/observations?item=maize")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestObservations_UnknownMetricKind(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := get(t, srv.Routes(), "/observations?metric=volume")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRuns(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := get(t, srv.Routes(), "/runs")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, float64(1), views[0]["run_index"])
	assert.Equal(t, float64(3), views[0]["raw_rows_added_this_run"])
	assert.Equal(t, float64(7), views[0]["long_rows_produced_total"])
}
