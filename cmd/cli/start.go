package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/deskmate/deskmate/internal/initialization"
	"github.com/deskmate/deskmate/internal/server"
)

func NewStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the deskmate server",
		Long:  `Start the HTTP server, the cache sweeper and, when configured, an initial cache preload.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart()
		},
	}

	return cmd
}

func runStart() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	config, err := initialization.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	container, err := initialization.NewAppContainer(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build application container")
	}

	sweeper, err := container.CacheEngine.StartSweeper(config.CacheSweepSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start cache sweeper")
	}
	defer sweeper.Stop()

	if config.PreloadOnStart {
		go func() {
			summary, err := container.CacheEngine.PreloadAll(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("Initial cache preload failed")
				return
			}

			log.Info().
				Int("total", summary.Total).
				Int("successful", summary.Successful).
				Int("failed", summary.Failed).
				Msg("Initial cache preload finished")
		}()
	}

	app := server.NewHTTPServer(ctx, server.HTTPServerDependencies{
		AuthController:      container.AuthController,
		CacheController:     container.CacheController,
		ConnectorController: container.ConnectorController,
		ChatController:      container.ChatController,
	})

	log.Info().Str("address", config.HTTPAddress).Msg("Starting deskmate server")

	if err := app.Listen(config.HTTPAddress, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	}); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}

	log.Info().Msg("Deskmate server stopped")
	return nil
}
