// Package server exposes the ticket authority and batch workflow engine
// over HTTP, with a websocket endpoint for ticket-gated progress streaming.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkolbe/ontograph-go/internal/auth"
	"github.com/pkolbe/ontograph-go/internal/batch"
	"github.com/pkolbe/ontograph-go/internal/metrics"
	"github.com/pkolbe/ontograph-go/internal/ontology"
)

// Server wraps the HTTP server with dependencies and lifecycle management.
type Server struct {
	http      *http.Server
	authority *auth.Authority
	engine    *batch.Engine
	registry  *ontology.Registry
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// New creates a server listening on addr.
func New(addr string, authority *auth.Authority, engine *batch.Engine, registry *ontology.Registry, collector *metrics.Collector, logger *slog.Logger) *Server {
	s := &Server{
		authority: authority,
		engine:    engine,
		registry:  registry,
		metrics:   collector,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /tickets", s.handleIssueTicket)
	mux.HandleFunc("POST /batches", s.handleSubmitBatch)
	mux.HandleFunc("GET /batches/{id}", s.handleBatchStatus)
	mux.HandleFunc("POST /batches/{id}/suspend", s.handleSuspendBatch)
	mux.HandleFunc("POST /batches/{id}/resume", s.handleResumeBatch)
	mux.HandleFunc("GET /stream", s.handleStream)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           LoggingMiddleware(logger)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the server's HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully: in-flight requests finish and running batches are
// suspended so they resume on next boot.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("shutting down, suspending active batches")
	s.engine.SuspendAll(shutdownCtx, "process restart")

	return s.http.Shutdown(shutdownCtx)
}
