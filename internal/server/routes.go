package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/voidhaul/voidhaul/internal/observability"
	"github.com/voidhaul/voidhaul/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.deps.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	status := s.deps.Status
	s.router.Get("/fleet", status.FleetHandler)
	s.router.Get("/governor", status.GovernorHandler)
	s.router.Route("/warehouse", func(r chi.Router) {
		r.Get("/stats", status.WarehouseStatsHandler)
	})
	s.router.Route("/market", func(r chi.Router) {
		r.Get("/best", status.BestObservationHandler)
		r.Get("/history", status.PriceHistoryHandler)
	})

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes gofulmen's signal handler behind a bearer token.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.deps.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.deps.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
