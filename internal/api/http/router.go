package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/task-manager/internal/api/http/handlers"
	"github.com/spec-kit/task-manager/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Tasks          *handlers.TasksHandler
	AuthMiddleware *auth.AuthMiddleware
	LoginLimiter   *auth.LoginLimiter
}

// RegisterRoutes wires HTTP routes. The authentication interceptor runs for
// every request; protected groups then require a bound identity.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Use(cfg.AuthMiddleware.Handle)

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	api := app.Group("/api")

	authGroup := api.Group("/auth")
	credentials := []fiber.Handler{}
	if cfg.LoginLimiter != nil {
		credentials = append(credentials, cfg.LoginLimiter.Handle)
	}
	authGroup.Post("/register", append(credentials, cfg.Auth.Register)...)
	authGroup.Post("/login", append(credentials, cfg.Auth.Login)...)

	users := api.Group("/users", auth.RequireAuthenticated())
	users.Get("/me", cfg.Users.Me)

	tasks := api.Group("/tasks", auth.RequireAuthority(auth.AuthorityUser))
	tasks.Post("/", cfg.Tasks.CreateTask)
	tasks.Get("/", cfg.Tasks.ListTasks)
	tasks.Get("/status/:status", cfg.Tasks.TasksByStatus)
	tasks.Get("/priority/:priority", cfg.Tasks.TasksByPriority)
	tasks.Get("/overdue", cfg.Tasks.OverdueTasks)
	tasks.Get("/search", cfg.Tasks.SearchTasks)
	tasks.Get("/created-between", cfg.Tasks.TasksCreatedBetween)
	tasks.Get("/ordered", cfg.Tasks.TasksOrdered)
	tasks.Get("/statistics", cfg.Tasks.Statistics)
	tasks.Get("/:id", cfg.Tasks.GetTask)
	tasks.Put("/:id", cfg.Tasks.UpdateTask)
	tasks.Delete("/:id", cfg.Tasks.DeleteTask)
	tasks.Patch("/:id/status", cfg.Tasks.ChangeStatus)
	tasks.Patch("/:id/priority", cfg.Tasks.ChangePriority)
}
