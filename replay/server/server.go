// Package server exposes the engine queries over HTTP. Every endpoint
// answers with a JSON envelope: 200 for an ok envelope, 400 for a
// request whose parameters cannot be decoded and 500 for any other error.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wbrown/janus-replay/replay"
	"github.com/wbrown/janus-replay/replay/engine"
	"github.com/wbrown/janus-replay/replay/query"
)

// Routes
const (
	PathMaps          = "/api/v1/details/maps"
	PathPlayers       = "/api/v1/details/players"
	PathMapFrequency  = "/api/v1/details/map_frequency"
	PathUnitBorn      = "/api/v1/tracker_events/unit_born"
	PathSnapshotStats = "/api/v1/snapshot_stats"
	PathSnapshotMeta  = "/api/v1/analyzed_snapshot_meta"
	PathMetrics       = "/metrics"
)

// Server routes requests to the engine
type Server struct {
	env    *engine.Env
	logger log.Logger
	mux    *http.ServeMux
}

// New creates a server over env. Metrics are served from gatherer when
// it is not nil.
func New(env *engine.Env, logger log.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Server{env: env, logger: logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET "+PathMaps, s.handleMaps)
	s.mux.HandleFunc("GET "+PathPlayers, s.handlePlayers)
	s.mux.HandleFunc("GET "+PathMapFrequency, s.handleMapFrequency)
	s.mux.HandleFunc("GET "+PathUnitBorn, s.handleUnitBorn)
	s.mux.HandleFunc("GET "+PathSnapshotStats, s.handleSnapshotStats)
	s.mux.HandleFunc("GET "+PathSnapshotMeta, s.handleSnapshotMeta)
	if gatherer != nil {
		s.mux.Handle("GET "+PathMetrics, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	level.Debug(s.logger).Log("msg", "request", "method", r.Method, "path", r.URL.Path,
		"status", rec.status, "elapsed", time.Since(start))
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errc := make(chan error, 1)
	go func() {
		level.Info(s.logger).Log("msg", "starting server", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	level.Info(s.logger).Log("msg", "server stopped")
	return nil
}

func (s *Server) handleMaps(w http.ResponseWriter, r *http.Request) {
	req, err := query.MapRequestFromValues(r.URL.Query())
	if err != nil {
		s.write(w, engine.Reject[engine.MapStats](r.Context(), s.env, engine.KindMaps, err))
		return
	}
	s.write(w, engine.Maps(r.Context(), s.env, req))
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	req, err := query.PlayerRequestFromValues(r.URL.Query())
	if err != nil {
		s.write(w, engine.Reject[engine.PlayerStats](r.Context(), s.env, engine.KindPlayers, err))
		return
	}
	s.write(w, engine.Players(r.Context(), s.env, req))
}

func (s *Server) handleMapFrequency(w http.ResponseWriter, r *http.Request) {
	req := query.MapFrequencyRequestFromValues(r.URL.Query())
	s.write(w, engine.MapFrequencies(r.Context(), s.env, req))
}

func (s *Server) handleUnitBorn(w http.ResponseWriter, r *http.Request) {
	req, err := query.UnitBornRequestFromValues(r.URL.Query())
	if err != nil {
		s.write(w, engine.Reject[engine.UnitSpawnEvent](r.Context(), s.env, engine.KindUnitBorn, err))
		return
	}
	s.write(w, engine.UnitBorn(r.Context(), s.env, req))
}

func (s *Server) handleSnapshotStats(w http.ResponseWriter, r *http.Request) {
	s.write(w, engine.SnapshotMeta(r.Context(), s.env))
}

func (s *Server) handleSnapshotMeta(w http.ResponseWriter, r *http.Request) {
	s.write(w, engine.Summary(r.Context(), s.env))
}

// envelope is the part of engine.Envelope the writer needs
type envelope interface {
	Err() error
}

func (s *Server) write(w http.ResponseWriter, env envelope) {
	status := http.StatusOK
	if err := env.Err(); err != nil {
		status = http.StatusInternalServerError
		if errors.Is(err, query.ErrInvalidParameter) {
			status = http.StatusBadRequest
		}
	}

	body, err := json.Marshal(env)
	if err != nil {
		err = fmt.Errorf("%w: %v", replay.ErrSerialization, err)
		level.Error(s.logger).Log("msg", "failed to encode response", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
