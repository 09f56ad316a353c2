package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/nilai-go-api/internal/config"
	"github.com/noah-isme/nilai-go-api/internal/handler"
	"github.com/noah-isme/nilai-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	CriteriaHandler   *handler.CriteriaHandler
	TaskHandler       *handler.TaskHandler
	ProjectHandler    *handler.ProjectHandler
	GradesheetHandler *handler.GradesheetHandler
	ActivityHandler   *handler.ActivityHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	courses := api.Group("/courses", jwtMiddleware)
	criteria := api.Group("/criteria", jwtMiddleware)
	tasks := api.Group("/tasks", jwtMiddleware)
	projects := api.Group("/projects", jwtMiddleware)

	if deps.CriteriaHandler != nil {
		deps.CriteriaHandler.Register(courses, criteria)
	}
	if deps.TaskHandler != nil {
		deps.TaskHandler.Register(tasks, criteria, courses)
	}
	if deps.ProjectHandler != nil {
		deps.ProjectHandler.Register(projects, criteria)
	}
	if deps.GradesheetHandler != nil {
		deps.GradesheetHandler.Register(courses)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(api.Group("/audit", jwtMiddleware))
	}
}
