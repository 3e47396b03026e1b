package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/task-manager/internal/observability"
)

// NewServer builds the fiber application with global middleware and routes.
func NewServer(appName string, logger *zap.Logger, metrics *observability.Metrics, requestTimeout time.Duration, routes RouteConfig) *fiber.App {
	// Immutable: params and query values end up in stored tasks and must not
	// alias fasthttp's reused request buffers.
	app := fiber.New(fiber.Config{
		AppName:               appName,
		Immutable:             true,
		ErrorHandler:          ErrorHandler(logger),
		DisableStartupMessage: true,
	})
	RegisterMiddlewares(app, logger, metrics, requestTimeout)
	RegisterRoutes(app, routes)
	return app
}
