package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/nodekit/client"
	"github.com/brojonat/nodekit/service/metrics"
	"github.com/brojonat/nodekit/service/temporal"
)

// Server is the diagnostics HTTP server.
type Server struct {
	addr      string
	services  *services
	scheduler temporal.Scheduler
	events    EventSource
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server over the given chain services.
// scheduler, events and m are optional; their endpoints are disabled when nil.
func New(addr string, svcs []*client.Service, scheduler temporal.Scheduler, events EventSource, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      addr,
		services:  newServices(svcs),
		scheduler: scheduler,
		events:    events,
		metrics:   m,
		logger:    logger,
	}
}

// Handler builds the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	route("GET /api/v1/nodes", "/api/v1/nodes", handleListNodes(s.services, s.logger))
	route("GET /api/v1/nodes/{chain}", "/api/v1/nodes/{chain}", handleChainNodes(s.services))
	route("GET /api/v1/time-delta/{chain}", "/api/v1/time-delta/{chain}", handleTimeDelta(s.services))

	if s.scheduler != nil {
		route("PUT /api/v1/health-schedules/{chain}", "/api/v1/health-schedules/{chain}", handleUpsertHealthSchedule(s.services, s.scheduler, s.logger))
		route("DELETE /api/v1/health-schedules/{chain}", "/api/v1/health-schedules/{chain}", handleDeleteHealthSchedule(s.services, s.scheduler, s.logger))
		s.logger.Info("health schedule endpoints enabled")
	}

	if s.events != nil {
		mux.Handle("GET /api/v1/stream/nodes", handleStreamNodes(s.events, s.metrics, s.logger))
		mux.Handle("GET /api/v1/stream/nodes/{chain}", handleStreamNodes(s.events, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("event source not configured, streaming endpoints disabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE responses stay open.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
