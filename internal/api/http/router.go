package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/glpi-sla-sync/internal/api/http/handlers"
	"github.com/spec-kit/glpi-sla-sync/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Sync    *handlers.SyncHandler
	Tickets *handlers.TicketsHandler
	Trigger *auth.TriggerMiddleware
	Metrics nethttp.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))

	app.Get("/tickets", cfg.Tickets.List)

	app.Post("/sync", cfg.Trigger.Handle, cfg.Sync.Run)
}
