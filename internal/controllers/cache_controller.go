package controllers

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/deskmate/deskmate/internal/cache"
)

// CacheController exposes cache statistics, cleanup and preload.
type CacheController struct {
	engine *cache.Engine
}

type CacheControllerDependencies struct {
	Engine *cache.Engine
}

func NewCacheController(deps CacheControllerDependencies) *CacheController {
	return &CacheController{engine: deps.Engine}
}

func (c *CacheController) GetStats(ctx fiber.Ctx) error {
	return ctx.JSON(c.engine.Stats())
}

func (c *CacheController) Cleanup(ctx fiber.Ctx) error {
	cleaned := c.engine.CleanupExpired()

	return ctx.JSON(fiber.Map{"cleaned": cleaned})
}

func (c *CacheController) GetPreloadStatus(ctx fiber.Ctx) error {
	return ctx.JSON(c.engine.Status())
}

func (c *CacheController) Preload(ctx fiber.Ctx) error {
	summary, err := c.engine.PreloadAll(ctx.RequestCtx())
	if err != nil {
		log.Error().Err(err).Msg("Cache preload failed")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to preload cache")
	}

	return ctx.JSON(summary)
}
