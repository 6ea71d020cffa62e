package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/medcityai/pubgate/internal/observability"
	"github.com/medcityai/pubgate/internal/server/handlers"
	servermw "github.com/medcityai/pubgate/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)

	if api := s.deps.API; api != nil {
		s.router.Route("/api/v1", func(r chi.Router) {
			r.Use(servermw.RateLimit(s.limiter))
			r.Get("/search", api.Search)
			r.Get("/summaries", api.Summaries)
			r.Get("/articles", api.Articles)
			r.Get("/stats", api.Stats)
			r.Get("/trending", api.TrendingList)
			r.Get("/featured", api.Featured)
			r.Get("/gateway", api.GatewayStatus)
		})
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint optionally registers the admin signal endpoint
func (s *Server) registerAdminEndpoint() {
	logger := observability.Logger()

	if s.deps.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no PUBGATE_ADMIN_TOKEN set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.deps.AdminToken,
		RateLimit: 10,  // 10 requests per minute
		RateBurst: 5,   // burst size
		Manager:   nil, // use default global manager
	})

	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("auth", "bearer token"),
			zap.String("rate_limit", "10/min, burst 5"))
		logger.Warn("Admin endpoint enabled - ensure this server is not exposed to public internet")
	}
}
