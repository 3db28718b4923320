package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/weftlang/weft/pkg/engine"
	"github.com/weftlang/weft/pkg/stores"
	"github.com/weftlang/weft/pkg/telemetry"
)

// Config holds runner service configuration.
type Config struct {
	// Addr is the listen address.
	Addr string

	// DataDir is the root of the registry package storage.
	DataDir string

	// MaxDocumentBytes caps the size of an executed document body.
	MaxDocumentBytes int64

	// RequestTimeout bounds one run request end to end.
	RequestTimeout time.Duration
}

// Server is the runner service.
type Server struct {
	cfg      Config
	logger   zerolog.Logger
	pipeline *engine.Pipeline
	store    *stores.SQLiteStore
	metrics  *telemetry.Metrics
	httpSrv  *http.Server
}

// NewServer wires the runner service over a driver pipeline, a user/run
// store, and a metrics collector.
func NewServer(cfg Config, logger zerolog.Logger, pipeline *engine.Pipeline, store *stores.SQLiteStore, metrics *telemetry.Metrics) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":4040"
	}
	if cfg.MaxDocumentBytes == 0 {
		cfg.MaxDocumentBytes = 10 << 20
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 5 * time.Minute
	}
	return &Server{
		cfg:      cfg,
		logger:   logger.With().Str("component", "server").Logger(),
		pipeline: pipeline,
		store:    store,
		metrics:  metrics,
	}
}

// Handler builds the service's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	if h := s.metrics.Handler(); h != nil {
		mux.Handle("GET /metrics", h)
	}

	mux.Handle("POST /run", s.requireAuth(stores.PermExec, s.handleRun))

	mux.Handle("GET /registry/{path...}", s.requireAuth(stores.PermRead, s.handleDownload))
	mux.Handle("PUT /registry/{path...}", s.requireAuth(stores.PermWrite, s.handleUpload))
	mux.Handle("DELETE /registry/{path...}", s.requireAuth(stores.PermDelete, s.handleUnpublish))

	mux.Handle("GET /runs", s.requireAuth(stores.PermExec, s.handleListRuns))

	mux.Handle("POST /users", s.requireAuth(stores.PermAdmin, s.handleCreateUser))
	mux.Handle("GET /users", s.requireAuth(stores.PermAdmin, s.handleListUsers))
	mux.Handle("PUT /users/{name}", s.requireAuth(stores.PermAdmin, s.handleUpdateUser))
	mux.Handle("DELETE /users/{name}", s.requireAuth(stores.PermAdmin, s.handleDeleteUser))

	return mux
}

// Start runs the service until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Runner service listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
}
