// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-statement/internal/logging"
	"github.com/wallet-statement/internal/models"
	"github.com/wallet-statement/internal/service"
	"github.com/wallet-statement/internal/storage"
	"github.com/wallet-statement/internal/types"
)

// StatementServiceInterface defines the statement operations the API exposes
type StatementServiceInterface interface {
	GenerateStatement(ctx context.Context, input service.GenerateStatementInput) (*models.Statement, error)
	ResolveAssets(chains []types.Chain, symbols []string) ([]types.Asset, error)
	SaveStatement(ctx context.Context, stmt *models.Statement) error
	GetStatement(ctx context.Context, id string) (*models.Statement, error)
	ListStatements(ctx context.Context, wallet string, limit int) ([]storage.StatementHeader, error)
	StorageEnabled() bool
	StorageHealth(ctx context.Context) map[string]string
	Registry() types.AssetRegistry
	GenerationStats() *service.GenerationStats
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	statements StatementServiceInterface
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host               string
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutdownTimeout    time.Duration
	RateLimitPerMinute int // per client IP, 0 disables
	// EnabledChains are the chains requests may select; empty means the defaults
	EnabledChains []types.Chain
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, statements StatementServiceInterface, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if len(config.EnabledChains) == 0 {
		config.EnabledChains = types.DefaultChains()
	}

	s := &Server{
		router:     mux.NewRouter(),
		statements: statements,
		config:     config,
		logger:     logger,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(CORSMiddleware)
	if s.config.RateLimitPerMinute > 0 {
		s.router.Use(RateLimitMiddleware(NewRateLimiter(s.config.RateLimitPerMinute)))
	}
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	// Preflight requests are answered by CORSMiddleware
	s.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	api := s.router.PathPrefix("/api").Subrouter()

	// Statement endpoints
	api.HandleFunc("/statements", s.handleGenerateStatement).Methods("POST")
	api.HandleFunc("/statements", s.handleListStatements).Methods("GET")
	api.HandleFunc("/statements/{id}", s.handleGetStatement).Methods("GET")

	// Registry endpoints
	api.HandleFunc("/chains", s.handleListChains).Methods("GET")
	api.HandleFunc("/chains/{chain}/assets", s.handleListAssets).Methods("GET")
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "healthy", http.StatusOK
	backends := s.statements.StorageHealth(ctx)
	for name, state := range backends {
		if state != "ok" {
			s.logger.WithField("backend", name).Warnf("Health check failed: %s", state)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	respondJSON(w, code, map[string]interface{}{
		"status":   status,
		"service":  "wallet-statement",
		"storage":  s.statements.StorageEnabled(),
		"backends": backends,
	})
}

// handleMetrics reports statement generation timings.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.statements.GenerationStats())
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
