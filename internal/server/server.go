package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/aigate/aigate/internal/handler"
	"github.com/aigate/aigate/internal/inference"
	"github.com/aigate/aigate/internal/server/middleware"
	"github.com/aigate/aigate/internal/service"
	"github.com/aigate/aigate/internal/store"
)

// apiPrefix is where the versioned API is mounted. Stored endpoint scopes
// are matched against paths with this prefix already stripped.
const apiPrefix = "/v1"

// Config holds the HTTP server configuration.
type Config struct {
	Host               string
	Port               int
	ShutdownTimeout    time.Duration
	CORSOrigins        []string
	APIKeyHeader       string
	RateLimitPerMinute int
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8000,
		ShutdownTimeout:    30 * time.Second,
		CORSOrigins:        []string{"*"},
		APIKeyHeader:       "X-API-Key",
		RateLimitPerMinute: 60,
	}
}

// Server is the top-level HTTP server for AIGate. It owns the Chi router,
// the model backend registry, the key store, and the authentication service.
type Server struct {
	cfg        Config
	router     chi.Router
	registry   *inference.Registry
	store      *store.Store
	authSvc    *service.AuthService
	keySvc     *service.KeyService
	httpServer *http.Server
	logger     *slog.Logger
	startedAt  time.Time
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, registry *inference.Registry, st *store.Store, authSvc *service.AuthService, keySvc *service.KeyService, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		registry:  registry,
		store:     st,
		authSvc:   authSvc,
		keySvc:    keySvc,
		logger:    logger,
		startedAt: time.Now(),
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", s.cfg.APIKeyHeader, "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(chimw.Compress(5))

	// --- Service info and health (no auth required) ---
	r.Get("/", s.handleInfo)
	r.Get("/health", s.handleHealth)

	// --- API routes ---
	r.Route(apiPrefix, func(r chi.Router) {
		r.Use(middleware.RateLimitByKey(s.cfg.APIKeyHeader, s.cfg.RateLimitPerMinute))

		// Admin key management. Only admin credentials pass this group.
		r.Route("/admin/keys", func(r chi.Router) {
			r.Use(middleware.Authenticate(s.authSvc, s.cfg.APIKeyHeader, apiPrefix, true))

			adminHandler := handler.NewAdminHandler(s.keySvc)
			r.Post("/create", adminHandler.CreateKey)
			r.Get("/list", adminHandler.ListKeys)
			r.Post("/revoke", adminHandler.RevokeKey)
			r.Post("/activate", adminHandler.ActivateKey)
			r.Get("/stats", adminHandler.Stats)
			r.Get("/info/{keyPrefix}", adminHandler.KeyInfo)
		})

		// Inference endpoints. Any active, unexpired key with a matching
		// endpoint scope passes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(s.authSvc, s.cfg.APIKeyHeader, apiPrefix, false))

			infHandler := handler.NewInferenceHandler(s.registry)
			r.Post("/generate/completion", infHandler.Completion)
			r.Post("/generate/chat", infHandler.Chat)
			r.Post("/embeddings", infHandler.Embeddings)
			r.Post("/transcribe", infHandler.Transcribe)
			r.Post("/ocr/recognize", infHandler.Recognize)
		})
	})

	s.router = r
}

// handleInfo describes the service for unauthenticated callers.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"service": "aigate",
		"version": Version,
		"docs":    apiPrefix,
	})
}

// handleHealth is a liveness probe. It reports which model backends are
// loaded; the service is alive even with zero backends, the inference
// endpoints just answer 503 until one is registered.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"models_loaded":  s.registry.Loaded(),
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the key store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Listen for shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start server in background goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "models_loaded", s.registry.Count())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing key store", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
