package http

import (
	nethttp "net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/guestpass-service/internal/api/http/handlers"
	"github.com/spec-kit/guestpass-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Registrations  *handlers.RegistrationsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        nethttp.Handler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics))
	}

	app.Post("/auth/token", cfg.Auth.IssueToken)

	regs := app.Group("/registrations", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	regs.Post("/", cfg.Registrations.Create)
	regs.Get("/", cfg.Registrations.List)
	regs.Get("/search", cfg.Registrations.Search)
	regs.Get("/:id", cfg.Registrations.Get)
	regs.Post("/:id/submit", cfg.Registrations.Submit)
	regs.Put("/:id/active", cfg.Registrations.SetActive)
	regs.Put("/:id/auto-reregister", cfg.Registrations.SetAutoReregister)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Get("/registrations/search", cfg.Admin.Search)
	admin.Get("/registrations/expiring", cfg.Admin.Expiring)
	admin.Get("/registrations/auto", cfg.Admin.AutoRenewing)
	admin.Get("/stats", cfg.Admin.Stats)
	admin.Get("/jobs", cfg.Admin.Jobs)
	admin.Post("/jobs/:name/run", cfg.Admin.RunJob)
}
