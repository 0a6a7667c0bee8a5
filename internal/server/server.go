// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/verisource/internal/auth"
	"github.com/pendergraft/verisource/internal/chains"
	"github.com/pendergraft/verisource/internal/config"
	"github.com/pendergraft/verisource/internal/manifest"
	"github.com/pendergraft/verisource/internal/middleware/logging"
	"github.com/pendergraft/verisource/internal/middleware/ratelimit"
	"github.com/pendergraft/verisource/internal/middleware/realip"
	"github.com/pendergraft/verisource/internal/observability/metrics"
	sourcesDomain "github.com/pendergraft/verisource/internal/sources/domain"
	sourcesTransport "github.com/pendergraft/verisource/internal/sources/transport"
	"github.com/pendergraft/verisource/internal/storage"
)

// readyTimeout bounds the storage ping of /readyz.
const readyTimeout = 2 * time.Second

// Server is the HTTP server
type Server struct {
	cfg      *config.Config
	store    storage.Store
	registry *chains.Registry
	logger   *slog.Logger
	router   *chi.Mux

	// Services typed via transport interfaces
	sourcesSvc sourcesTransport.Service

	stopRateLimit func()
}

// New creates a new server resolving sources through the chain modules in
// registry.
func New(cfg *config.Config, store storage.Store, registry *chains.Registry, logger *slog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		logger:   logger,
		router:   chi.NewRouter(),
	}

	fetcher := manifest.NewHTTPFetcher(manifest.WithMaxBytes(cfg.Fetch.MaxBytes))
	sourcesImpl := sourcesDomain.NewService(registry, manifest.NewResolver(fetcher), store, sourcesDomain.Config{
		DefaultNetwork:  cfg.TON.DefaultNetwork,
		DefaultVerifier: cfg.TON.VerifierID,
		Rewriter:        manifest.NewRewriter(cfg.IPFS),
	}, logger)

	// Wrap sources service with logging middleware
	s.sourcesSvc = sourcesDomain.LoggingMiddleware(logger)(sourcesImpl)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops background work started by the middleware.
func (s *Server) Close() {
	if s.stopRateLimit != nil {
		s.stopRateLimit()
	}
}

func (s *Server) setupMiddleware() {
	// 1. Real IP extraction (must be first to set client IP for other middleware)
	s.router.Use(realip.Middleware(s.cfg.Proxy))

	// 2. Rate limiting (bypasses health checks)
	limit, stop := ratelimit.Middleware(s.cfg.RateLimit)
	s.stopRateLimit = stop
	s.router.Use(limit)

	// 3. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// 4. CORS
	s.router.Use(cors)

	// 5. Resolution deadline
	s.router.Use(requestTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second))
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleReady)

	if metrics.Enabled() {
		s.router.Handle("/metrics", metrics.Handler())
	}

	sourcesHandler := sourcesTransport.NewHandler(s.sourcesSvc)

	// Auth middleware for the resolution log
	requireAuth := func(r chi.Router) {
		if s.cfg.Auth.Type == "api-key" {
			r.Use(auth.Middleware(s.store, writeError))
		}
	}

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Sources - read only (no auth)
		r.Route("/sources", sourcesHandler.RegisterRoutes)

		r.Route("/lookups", func(r chi.Router) {
			requireAuth(r)
			sourcesHandler.RegisterLookupRoutes(r)
		})
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports whether storage answers and at least one network is
// registered.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage is not reachable")
		return
	}

	networks := s.registry.List()
	if len(networks) == 0 {
		writeError(w, http.StatusServiceUnavailable, "NO_NETWORKS", "No TON network is connected")
		return
	}
	names := make([]string, len(networks))
	for i, c := range networks {
		names[i] = c.Name()
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "networks": names})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
