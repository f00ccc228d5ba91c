package server

import (
	"net/http"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tasklist/tasklist/internal/observability"
	"github.com/tasklist/tasklist/internal/server/handlers"
	servermw "github.com/tasklist/tasklist/internal/server/middleware"
)

// registerRoutes registers all HTTP routes. The banner and the task API share
// one throttle; health, version and metrics are never throttled.
func (s *Server) registerRoutes() {
	health := s.opts.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)

	// Prometheus text proxied from the exporter
	s.router.Method(http.MethodGet, "/metrics", newMetricsProxy())

	s.router.Group(func(r chi.Router) {
		r.Use(servermw.Throttle(s.opts.Throttle))

		r.Get("/", handlers.RootHandler)
		if s.opts.Tasks != nil {
			r.Route("/api", handlers.NewTaskHandler(s.opts.Tasks).Routes)
		}
	})

	s.registerAdminEndpoint()
}

// adminSignalRate bounds POST /admin/signal per minute, with a small burst.
const (
	adminSignalRate  = 10
	adminSignalBurst = 5
)

// registerAdminEndpoint exposes gofulmen's signal handler (reload, shutdown)
// at POST /admin/signal behind the configured bearer token. Without a token
// the route does not exist.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled; set TASKLIST_ADMIN_TOKEN to enable it")
		}
		return
	}

	s.router.Post("/admin/signal", signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: adminSignalRate,
		RateBurst: adminSignalBurst,
	}).ServeHTTP)

	if logger != nil {
		logger.Warn("Admin signal endpoint enabled; keep it off public networks",
			zap.String("path", "/admin/signal"),
			zap.Int("per_minute", adminSignalRate),
			zap.Int("burst", adminSignalBurst))
	}
}
