package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/deskmate/deskmate/internal/controllers"
	"github.com/deskmate/deskmate/internal/version"
)

type HTTPServerDependencies struct {
	AuthController      *controllers.AuthController
	CacheController     *controllers.CacheController
	ConnectorController *controllers.ConnectorController
	ChatController      *controllers.ChatController
}

func NewHTTPServer(ctx context.Context, deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "deskmate",
	})

	router.Use(cors.New())
	router.Use(logger.New())

	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "deskmate",
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	auth := router.Group("/auth")
	auth.Get("/:type", deps.AuthController.BeginAuthorization)
	auth.Get("/:type/callback", deps.AuthController.CompleteAuthorization)

	cache := router.Group("/cache")
	cache.Get("/", deps.CacheController.GetStats)
	cache.Delete("/", deps.CacheController.Cleanup)
	cache.Get("/preload", deps.CacheController.GetPreloadStatus)
	cache.Post("/preload", deps.CacheController.Preload)

	connectors := router.Group("/connectors")
	connectors.Get("/", deps.ConnectorController.List)
	connectors.Post("/:type/test", deps.ConnectorController.TestConnection)

	router.Post("/chat", deps.ChatController.RunTurn)

	return router
}
