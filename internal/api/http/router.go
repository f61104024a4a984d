package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/auth"
	"github.com/spec-kit/ticket-triage/internal/domain"
	"github.com/spec-kit/ticket-triage/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Audit          *handlers.AuditHandler
	Policy         *handlers.PolicyHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Metrics.Registry, promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireRole())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/reply", auth.RequireStaff(), cfg.Tickets.AddReply)
	tickets.Post("/:id/assign", auth.RequireStaff(), cfg.Tickets.Assign)
	tickets.Post("/:id/triage", auth.RequireStaff(), cfg.Tickets.Retriage)

	audit := app.Group("/audit", cfg.AuthMiddleware.Handle, auth.RequireStaff())
	audit.Get("/tickets/:ticketId", cfg.Audit.ListByTicket)
	audit.Get("/trace/:traceId", cfg.Audit.ListByTrace)

	config := app.Group("/config", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	config.Get("", cfg.Policy.Get)
	config.Put("", cfg.Policy.Update)
}
