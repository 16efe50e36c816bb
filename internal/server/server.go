// Package server exposes the pipelines over HTTP.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/mwiater/concilium/internal/appconfig"
	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/metrics"
	"github.com/mwiater/concilium/internal/pipeline"
	"github.com/mwiater/concilium/internal/store"
)

//go:embed web/index.html
var indexHTML []byte

// Deps are the collaborators a Server is built from.
type Deps struct {
	Config       appconfig.Config
	Orchestrator *pipeline.Orchestrator
	Store        store.Store
	// Metrics is nil when metrics collection is disabled.
	Metrics *metrics.Aggregator
	Cancels *pipeline.CancelRegistry
}

// Server serves the front-end and the pipeline endpoints.
type Server struct {
	cfg     appconfig.Config
	orch    *pipeline.Orchestrator
	store   store.Store
	metrics *metrics.Aggregator
	cancels *pipeline.CancelRegistry
}

// New validates deps and returns a Server.
func New(d Deps) (*Server, error) {
	if d.Orchestrator == nil {
		return nil, errors.New("server: orchestrator is required")
	}
	if d.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if d.Cancels == nil {
		d.Cancels = pipeline.NewCancelRegistry()
	}
	if d.Config.UploadDir == "" {
		d.Config.UploadDir = "uploads"
	}
	if err := os.MkdirAll(d.Config.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Server{
		cfg:     d.Config,
		orch:    d.Orchestrator,
		store:   d.Store,
		metrics: d.Metrics,
		cancels: d.Cancels,
	}, nil
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()
	router.Use(withSession, logRequests)

	router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/process", s.handleProcess).Methods(http.MethodPost)
	router.HandleFunc("/merge", s.handleMerge).Methods(http.MethodPost)
	router.HandleFunc("/convert", s.handleConvert).Methods(http.MethodPost)
	router.HandleFunc("/cancel", s.handleCancel).Methods(http.MethodPost)
	router.HandleFunc("/get-full-content", s.handleFullContent).Methods(http.MethodPost, http.MethodGet)
	return router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.LogEvent("[HTTP] listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logging.LogEvent("[HTTP] shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
