// Package http exposes the service over HTTP: health, readiness, and metrics
// endpoints plus the JSON API consumed by the map rendering surface.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rookhaven/flightmap/internal/render"
	"github.com/rookhaven/flightmap/internal/store"
)

// FlightSource is the store surface the server needs: current state, manual
// refresh, and readiness.
type FlightSource interface {
	State() store.Snapshot
	RefreshAsync(ctx context.Context) error
	Ready(ctx context.Context) error
}

// Server exposes health, readiness, metrics, and flight API HTTP endpoints.
type Server struct {
	httpServer *http.Server
	source     FlightSource
	aggregator *render.Aggregator
	defaults   render.Viewport
	logger     *slog.Logger
}

// NewServer creates the HTTP server. defaults supplies the viewport used when
// a markers request omits zoom or radius.
func NewServer(addr string, source FlightSource, aggregator *render.Aggregator, defaults render.Viewport, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		source:     source,
		aggregator: aggregator,
		defaults:   defaults,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/flights", s.handleFlights)
	mux.HandleFunc("GET /api/markers", s.handleMarkers)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.source.Ready(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// stateResponse summarizes the fetch state for the rendering surface: enough
// to drive the refresh button and the error banner.
type stateResponse struct {
	Status     string `json:"status"`
	Flights    int    `json:"flights"`
	Generation uint64 `json:"generation"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.State()
	writeJSON(w, http.StatusOK, stateResponse{
		Status:     snap.Status.String(),
		Flights:    len(snap.Flights),
		Generation: snap.Generation,
		Error:      snap.Message,
	})
}

func (s *Server) handleFlights(w http.ResponseWriter, _ *http.Request) {
	snap := s.source.State()
	writeJSON(w, http.StatusOK, snap.Flights)
}

func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	vp := s.defaults

	if q := r.URL.Query().Get("zoom"); q != "" {
		z, err := strconv.ParseFloat(q, 64)
		if err != nil || z < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid zoom"})
			return
		}
		vp.Zoom = z
	}
	if q := r.URL.Query().Get("radius"); q != "" {
		radius, err := strconv.ParseFloat(q, 64)
		if err != nil || radius <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid radius"})
			return
		}
		vp.ClusterRadiusPx = radius
	}

	snap := s.source.State()
	groups := s.aggregator.AggregateCached(snap.Generation, snap.Flights, vp)
	writeJSON(w, http.StatusOK, groups)
}

// handleRefresh is the manual trigger. While a refresh is in flight the
// trigger is disabled: concurrent requests get 409 rather than a second
// upstream call.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.source.RefreshAsync(context.WithoutCancel(r.Context()))
	if errors.Is(err, store.ErrRefreshInFlight) {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "refresh already in flight"})
		return
	}
	if err != nil {
		s.logger.Error("refresh trigger failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "refresh failed to start"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
