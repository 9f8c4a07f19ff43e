package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/datalift-io/marketpivot/internal/warehouse"
	"github.com/datalift-io/marketpivot/pkg/core"
)

// handleFetchData serves filtered raw records:
// GET /fetch_data?year=2025&country=KE&market=Nairobi
// An empty result is a 404, matching the contract the upstream
// consumers already rely on.
func (s *Server) handleFetchData(w http.ResponseWriter, r *http.Request) {
	var f warehouse.RawFilter

	if raw := r.URL.Query().Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be an integer")
			return
		}
		f.Year = &year
	}
	f.Country = r.URL.Query().Get("country")
	f.Market = r.URL.Query().Get("market")

	records, err := s.raw.FetchRaw(r.Context(), f)
	if err != nil {
		s.logger.Error("raw fetch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch data")
		return
	}

	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "no data found for the specified filters")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// observationView is the JSON shape of one long record.
type observationView struct {
	Country    string  `json:"country"`
	Market     string  `json:"mkt_name"`
	Date       string  `json:"date"`
	Item       string  `json:"item"`
	MetricKind string  `json:"metric_kind"`
	Value      float64 `json:"value"`
}

// handleObservations serves filtered long records:
// GET /observations?country=KE&market=Nairobi&item=apples&metric=open
func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	f := warehouse.ObservationFilter{
		Country: r.URL.Query().Get("country"),
		Market:  r.URL.Query().Get("market"),
		Item:    r.URL.Query().Get("item"),
		Kind:    r.URL.Query().Get("metric"),
	}
	if f.Kind != "" && !core.ValidMetricKind(core.MetricKind(f.Kind)) {
		writeError(w, http.StatusBadRequest, "unknown metric kind "+strconv.Quote(f.Kind))
		return
	}

	records, err := s.obs.FetchObservations(r.Context(), f)
	if err != nil {
		s.logger.Error("observation fetch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch observations")
		return
	}

	views := make([]observationView, len(records))
	for i, rec := range records {
		views[i] = observationView{
			Country:    rec.Country,
			Market:     rec.Market,
			Date:       rec.Date,
			Item:       rec.Item,
			MetricKind: string(rec.Kind),
			Value:      rec.Value,
		}
	}
	writeJSON(w, http.StatusOK, views)
}

// runView is the JSON shape of one run-log entry.
type runView struct {
	RunIndex         int64  `json:"run_index"`
	RunID            string `json:"run_id"`
	RawRowsConsumed  int64  `json:"raw_rows_consumed"`
	RawRowsAdded     int64  `json:"raw_rows_added_this_run"`
	LongRowsProduced int64  `json:"long_rows_produced_total"`
	CommittedAt      string `json:"date"`
}

// handleRuns serves the run log: GET /runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.History()
	if err != nil {
		s.logger.Error("run log fetch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fetch run log")
		return
	}

	views := make([]runView, len(history))
	for i, e := range history {
		views[i] = runView{
			RunIndex:         e.RunIndex,
			RunID:            e.RunID,
			RawRowsConsumed:  e.RawRowsConsumed,
			RawRowsAdded:     e.RawRowsAdded,
			LongRowsProduced: e.LongRowsProduced,
			CommittedAt:      e.CommittedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, views)
}
