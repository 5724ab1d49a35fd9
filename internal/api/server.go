package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"insp/internal/engine"
	"insp/internal/store"
)

// Server is the HTTP API server for insp-sync.
type Server struct {
	config  Config
	http    *http.Server
	store   *store.SQLiteStore
	engine  *engine.Engine
	metrics *Metrics
}

// NewServer creates a new Server over the given store and engine.
func NewServer(cfg Config, st *store.SQLiteStore, eng *engine.Engine) (*Server, error) {
	s := &Server{
		config:  cfg,
		store:   st,
		engine:  eng,
		metrics: NewMetrics(),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Sync
	mux.HandleFunc("POST /v1/sync", s.requireAuth(s.handleSync))
	mux.HandleFunc("POST /v1/sync/force", s.requireAuth(s.handleForceSync))
	mux.HandleFunc("GET /v1/sync/status", s.requireAuth(s.handleSyncStatus))
	mux.HandleFunc("GET /v1/sync/batches", s.requireAuth(s.handleListBatches))

	// Offline queue
	mux.HandleFunc("POST /v1/sync/queue", s.requireAuth(s.handleQueueOperation))
	mux.HandleFunc("GET /v1/sync/queue", s.requireAuth(s.handleGetQueue))

	// Conflicts
	mux.HandleFunc("GET /v1/conflicts", s.requireAuth(s.handleListConflicts))
	mux.HandleFunc("POST /v1/conflicts/{id}/resolve", s.requireAuth(s.handleResolveConflict))

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, metricsMiddleware(s.metrics), loggingMiddleware, maxBytesMiddleware(10<<20))
}

// handleHealth returns a health check response, pinging the DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of daemon metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
