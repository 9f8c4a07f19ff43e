// Package server exposes filtered reads of the raw table, the
// observation table, and the run log over HTTP. It is a read-only
// boundary: nothing here writes data or triggers runs.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/datalift-io/marketpivot/internal/warehouse"
	"github.com/datalift-io/marketpivot/pkg/core"
)

// RawReader serves filtered reads of the raw wide table.
type RawReader interface {
	FetchRaw(ctx context.Context, f warehouse.RawFilter) ([]map[string]any, error)
}

// ObservationReader serves filtered reads of the long table.
type ObservationReader interface {
	FetchObservations(ctx context.Context, f warehouse.ObservationFilter) ([]core.LongRecord, error)
}

// Server is the HTTP read API.
type Server struct {
	raw    RawReader
	obs    ObservationReader
	store  core.WatermarkStore
	logger *slog.Logger
}

// New creates a server over the given readers and watermark store.
func New(raw RawReader, obs ObservationReader, store core.WatermarkStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{raw: raw, obs: obs, store: store, logger: logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/fetch_data", s.handleFetchData)
	r.Get("/observations", s.handleObservations)
	r.Get("/runs", s.handleRuns)

	return r
}

// ListenAndServe runs the API until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	s.logger.Info("serving read API", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		return err
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			"method", r.Method, "path", r.URL.Path,
			"query", r.URL.RawQuery, "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
