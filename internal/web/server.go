package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/geolink/internal/blockstore"
	"github.com/geolink/internal/config"
	"github.com/geolink/internal/metrics"
	"github.com/geolink/internal/web/handlers"
	"github.com/geolink/internal/web/middleware"
)

// Server exposes match results and block artifacts for review
type Server struct {
	config     config.HTTPConfig
	results    handlers.ResultStore
	blocks     blockstore.Store
	httpServer *http.Server
	router     *mux.Router
	handler    http.Handler
}

// NewServer creates a new review API server. blocks may be nil, in which
// case the block endpoints are not mounted.
func NewServer(cfg config.HTTPConfig, results handlers.ResultStore, blocks blockstore.Store) *Server {
	server := &Server{
		config:  cfg,
		results: results,
		blocks:  blocks,
	}

	// Setup routes
	server.setupRoutes()

	// Create HTTP server
	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      server.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// Handler returns the routed handler wrapped in CORS
func (s *Server) Handler() http.Handler {
	return s.handler
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	apiHandler := &handlers.APIHandler{Store: s.results}
	exportHandler := &handlers.ExportHandler{Store: s.results}

	// API routes
	api := s.router.PathPrefix("/api").Subrouter()

	// Runs and results
	api.HandleFunc("/runs", apiHandler.ListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}/summary", apiHandler.GetSummary).Methods("GET")
	api.HandleFunc("/runs/{id}/results", apiHandler.ListResults).Methods("GET")
	api.HandleFunc("/runs/{id}/results/{target}", apiHandler.GetResult).Methods("GET")
	api.HandleFunc("/runs/{id}/export", exportHandler.ExportCSV).Methods("GET")

	// Block artifacts
	if s.blocks != nil {
		blocksHandler := &handlers.BlocksHandler{Blocks: s.blocks}
		api.HandleFunc("/blocks", blocksHandler.GetManifest).Methods("GET")
		api.HandleFunc("/blocks/{key}", blocksHandler.GetBlock).Methods("GET")
	}

	// Health and metrics
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	// Apply middleware
	s.router.Use(middleware.RequestLogging())
	api.Use(middleware.Authentication(s.config.APIKey))

	// CORS wraps the router so preflight requests are answered before
	// route matching, which only knows GET
	s.handler = middleware.CORS()(s.router)
}

// Start serves until ctx is cancelled or SIGINT/SIGTERM arrives, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting review server", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down review server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("review server stopped")
	return nil
}
