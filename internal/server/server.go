package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/medcityai/pubgate/internal/config"
	apperrors "github.com/medcityai/pubgate/internal/errors"
	"github.com/medcityai/pubgate/internal/observability"
	"github.com/medcityai/pubgate/internal/server/handlers"
	servermw "github.com/medcityai/pubgate/internal/server/middleware"
)

// Deps are the services mounted under /api/v1.
type Deps struct {
	API       *handlers.API
	RateLimit config.RateLimitConfig
	// AdminToken enables POST /admin/signal when set.
	AdminToken string
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	cfg     config.ServerConfig
	deps    Deps
	limiter *servermw.ClientLimiter
}

// New creates a new HTTP server instance
func New(cfg config.ServerConfig, deps Deps) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// RequestID → Metrics → Recovery; the rate limiter only wraps /api/v1.
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewNotFoundError("The requested resource was not found")
		HandleError(w, req, err)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource")
		HandleError(w, req, err)
	})

	s := &Server{
		router: r,
		cfg:    cfg,
		deps:   deps,
	}
	if deps.RateLimit.Enabled && deps.RateLimit.RequestsPerSecond > 0 {
		s.limiter = servermw.NewClientLimiter(deps.RateLimit.RequestsPerSecond, deps.RateLimit.Burst)
	}

	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  orDefault(s.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout: orDefault(s.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  orDefault(s.cfg.IdleTimeout, 120*time.Second),
	}

	logger := observability.Logger()
	if logger != nil {
		logger.Info("Starting HTTP server",
			zap.String("host", s.cfg.Host),
			zap.Int("port", s.cfg.Port),
			zap.String("addr", addr))
	}

	return s.server.ListenAndServe()
}

// StartJanitor prunes idle rate limit buckets until ctx is done.
func (s *Server) StartJanitor(ctx context.Context) {
	if s.limiter != nil {
		s.limiter.StartJanitor(ctx, 2*time.Minute)
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if logger := observability.Logger(); logger != nil {
		logger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.cfg.Port
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
