package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-catalog/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Services groups the driving ports exposed over HTTP.
type Services struct {
	Index   driving.IndexService
	Search  driving.SearchService
	Lineage driving.LineageService
	Admin   driving.IndexAdminService
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	indexService   driving.IndexService
	searchService  driving.SearchService
	lineageService driving.LineageService
	adminService   driving.IndexAdminService

	// readiness checks by name (database, redis, search)
	checks map[string]Pinger
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	Version     string
	CORSOrigins []string
	Logger      *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server. checks are run by /ready.
func NewServer(cfg Config, svc Services, checks map[string]Pinger) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		router:         http.NewServeMux(),
		version:        cfg.Version,
		logger:         cfg.Logger,
		indexService:   svc.Index,
		searchService:  svc.Search,
		lineageService: svc.Lineage,
		adminService:   svc.Admin,
		checks:         checks,
	}

	s.setupRoutes()

	var handler http.Handler = s.router
	if len(cfg.CORSOrigins) > 0 {
		handler = NewCORSMiddleware(cfg.CORSOrigins).Handler(handler)
	}
	handler = NewLoggingMiddleware(cfg.Logger).Handler(handler)
	handler = NewRecoveryMiddleware(cfg.Logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwagger)

	// Lifecycle events from the authoritative store
	s.router.HandleFunc("POST /api/v1/events", s.handleEvent)

	// Search endpoints
	s.router.HandleFunc("GET /api/v1/search/query", s.handleSearch)
	s.router.HandleFunc("GET /api/v1/search/suggest", s.handleSuggest)

	// Lineage endpoints
	s.router.HandleFunc("GET /api/v1/lineage", s.handleLineage)
	s.router.HandleFunc("GET /api/v1/lineage/data-quality", s.handleDataQualityLineage)

	// Index admin endpoints
	s.router.HandleFunc("GET /api/v1/admin/indexes", s.handleIndexStatus)
	s.router.HandleFunc("POST /api/v1/admin/indexes", s.handleCreateIndexes)
	s.router.HandleFunc("PUT /api/v1/admin/indexes", s.handleUpdateIndexes)
	s.router.HandleFunc("DELETE /api/v1/admin/indexes", s.handleDeleteIndexes)
	s.router.HandleFunc("POST /api/v1/admin/reindex", s.handleTriggerReindex)
	s.router.HandleFunc("POST /api/v1/admin/reindex-referencing", s.handleReindexReferencing)
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
