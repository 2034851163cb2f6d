package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/arancormonk/dsd-neo/internal/metrics"
	"github.com/arancormonk/dsd-neo/internal/trunk"
)

// SnapshotSource provides the follower's published state views.
// Satisfied by trunk.StateMachine via the ingest pipeline.
type SnapshotSource interface {
	Snapshot() *trunk.Snapshot
	Lockouts() []trunk.HistoryRow
}

// ServerOptions configures the status server.
type ServerOptions struct {
	Addr          string
	Source        SnapshotSource
	Version       string
	StartTime     time.Time
	Log           zerolog.Logger
	MQTTConnected func() bool
	DBHealth      func(context.Context) error
}

// Server exposes the read-only status surface: health, the state
// snapshot, candidates, patches, lockout history, and Prometheus
// metrics. It never mutates core state.
type Server struct {
	http *http.Server
	opts ServerOptions
	log  zerolog.Logger
}

// NewServer builds the router and server.
func NewServer(opts ServerOptions) *Server {
	s := &Server{opts: opts, log: opts.Log}

	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/api/v1/candidates", s.handleCandidates)
	r.Get("/api/v1/patches", s.handlePatches)
	r.Get("/api/v1/lockouts", s.handleLockouts)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	s.http = &http.Server{
		Addr:         opts.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start blocks serving until Shutdown or a listener error.
func (s *Server) Start() error {
	s.log.Info().Str("listen", s.opts.Addr).Msg("status server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type healthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Version:       s.opts.Version,
		UptimeSeconds: int64(time.Since(s.opts.StartTime).Seconds()),
		Checks:        map[string]string{},
	}
	if s.opts.MQTTConnected != nil {
		if s.opts.MQTTConnected() {
			resp.Checks["mqtt"] = "ok"
		} else {
			resp.Checks["mqtt"] = "disconnected"
			resp.Status = "degraded"
		}
	}
	if s.opts.DBHealth != nil {
		if err := s.opts.DBHealth(r.Context()); err != nil {
			resp.Checks["database"] = err.Error()
			resp.Status = "degraded"
		} else {
			resp.Checks["database"] = "ok"
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.opts.Source.Snapshot()
	if snap == nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no snapshot yet"})
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCandidates(w http.ResponseWriter, _ *http.Request) {
	snap := s.opts.Source.Snapshot()
	if snap == nil {
		WriteJSON(w, http.StatusOK, []int64{})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"site":       snap.Site,
		"candidates": snap.Candidates,
	})
}

func (s *Server) handlePatches(w http.ResponseWriter, _ *http.Request) {
	snap := s.opts.Source.Snapshot()
	if snap == nil {
		WriteJSON(w, http.StatusOK, []trunk.PatchSnapshot{})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"summary": snap.PatchSummary,
		"patches": snap.Patches,
	})
}

func (s *Server) handleLockouts(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, s.opts.Source.Lockouts())
}
