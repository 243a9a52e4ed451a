// Package server wires the HTTP surface of the sync relay.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/varunkan/ai-pos-system-sub011/internal/apierrors"
	"github.com/varunkan/ai-pos-system-sub011/internal/broadcast"
	"github.com/varunkan/ai-pos-system-sub011/internal/config"
	"github.com/varunkan/ai-pos-system-sub011/internal/handler"
	"github.com/varunkan/ai-pos-system-sub011/internal/health"
	"github.com/varunkan/ai-pos-system-sub011/internal/metrics"
	"github.com/varunkan/ai-pos-system-sub011/internal/middleware"
	"github.com/varunkan/ai-pos-system-sub011/internal/registry"
	"github.com/varunkan/ai-pos-system-sub011/internal/socket"
	"github.com/varunkan/ai-pos-system-sub011/internal/store"
)

// Server is the relay's HTTP server: REST sync gateway, status API and the
// socket endpoint.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	registry     *registry.Registry
	store        *store.Store
	handlers     *handler.Handlers
	socket       *socket.Handler
	healthCheck  *health.Check
	errorHandler *apierrors.Handler
	logger       *zap.Logger
	cfg          *config.Config
}

// New creates the server and all relay components around one registry and
// one store, so isolated instances can exist side by side in tests.
func New(cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Server {
	router := mux.NewRouter()
	errorHandler := apierrors.NewHandler(logger)

	reg := registry.New(logger)
	st := store.New(logger)
	if cfg.Relay.EvictOnDisconnect {
		// Destructive: a restaurant's synced data does not survive its last
		// disconnect. Kept as the default because offline clients are
		// expected to re-sync on reconnect.
		reg.OnEvict(st.Evict)
	}

	engine := broadcast.New(reg, m, logger)
	handlers := handler.NewHandlers(reg, st, engine, errorHandler, m, logger)
	socketHandler := socket.NewHandler(reg, st, engine, cfg.Relay, m, logger)
	healthCheck := health.New(logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:       router,
		httpServer:   httpServer,
		registry:     reg,
		store:        st,
		handlers:     handlers,
		socket:       socketHandler,
		healthCheck:  healthCheck,
		errorHandler: errorHandler,
		logger:       logger,
		cfg:          cfg,
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes(m *metrics.Metrics) {
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS([]string{"*"}),
	}
	if m != nil {
		middlewareChain = append(middlewareChain, metrics.Middleware(m))
	}
	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	// Liveness and readiness
	s.router.HandleFunc("/health", s.healthCheck.LivenessHandler).Methods(http.MethodGet)
	s.router.HandleFunc("/ready", s.healthCheck.ReadinessHandler).Methods(http.MethodGet)

	// Device socket endpoint
	s.router.Handle("/ws", s.socket).Methods(http.MethodGet)

	// REST API
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handlers.Health).Methods(http.MethodGet)
	api.HandleFunc("/sync", s.handlers.Sync).Methods(http.MethodPost)
	api.HandleFunc("/restaurants/{id}/status", s.handlers.RestaurantStatus).Methods(http.MethodGet)
	api.HandleFunc("/restaurants/{id}/data", s.handlers.RestaurantData).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusNotFound, apierrors.ErrorCodeInvalidRequest, "endpoint not found", requestID)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		s.errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed, apierrors.ErrorCodeInvalidRequest, "method not allowed", requestID)
	})

	s.healthCheck.SetReady(true)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.Int("port", s.cfg.Server.Port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown closes every live device connection and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	s.healthCheck.SetReady(false)
	s.registry.CloseAll()
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the router, for tests driving the server in process.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the connection registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// Store returns the tenant state store.
func (s *Server) Store() *store.Store {
	return s.store
}
