package controllers

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/deskmate/deskmate/internal/domain"
)

// ConnectorController lists connector state and runs connection tests. It
// never returns stored secrets.
type ConnectorController struct {
	registry    domain.ConnectorRegistry
	configStore domain.ConnectorConfigStore
}

type ConnectorControllerDependencies struct {
	Registry    domain.ConnectorRegistry
	ConfigStore domain.ConnectorConfigStore
}

func NewConnectorController(deps ConnectorControllerDependencies) *ConnectorController {
	return &ConnectorController{
		registry:    deps.Registry,
		configStore: deps.ConfigStore,
	}
}

type ConnectorView struct {
	Type          string     `json:"type"`
	DisplayName   string     `json:"display_name"`
	Configured    bool       `json:"configured"`
	Enabled       bool       `json:"enabled"`
	LastHealthyAt *time.Time `json:"last_healthy_at,omitempty"`
}

// List returns a sanitized view of every known connector type.
func (c *ConnectorController) List(ctx fiber.Ctx) error {
	configs, err := c.configStore.ListConnectorConfigs(ctx.RequestCtx())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list connector configs")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list connectors")
	}

	configsByType := make(map[domain.ConnectorType]domain.ConnectorConfig, len(configs))
	for _, config := range configs {
		configsByType[config.Type] = config
	}

	views := make([]ConnectorView, 0)

	for _, descriptor := range c.registry.Descriptors() {
		view := ConnectorView{
			Type:        string(descriptor.Type),
			DisplayName: descriptor.DisplayName,
		}

		if config, ok := configsByType[descriptor.Type]; ok {
			view.Configured = true
			view.Enabled = config.Enabled
			view.LastHealthyAt = config.LastHealthyAt
		}

		views = append(views, view)
	}

	return ctx.JSON(views)
}

// TestConnection probes the provider with a cheap authenticated call and
// records the result on the stored config.
func (c *ConnectorController) TestConnection(ctx fiber.Ctx) error {
	connectorType := domain.ConnectorType(ctx.Params("type"))

	if _, err := c.registry.Descriptor(connectorType); err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Unknown connector type")
	}

	tester, err := c.registry.SelectConnectionTester(ctx.RequestCtx(), domain.SelectConnectorParams{ConnectorType: connectorType})
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "No connection tester for connector type")
	}

	success, err := tester.TestConnection(ctx.RequestCtx())
	if err != nil || !success {
		message := "connection test failed"
		if err != nil {
			message = err.Error()
		}

		log.Warn().Err(err).Str("connector_type", string(connectorType)).Msg("Connection test failed")

		return ctx.JSON(fiber.Map{"success": false, "error": message})
	}

	if err := c.markHealthy(ctx, connectorType); err != nil {
		log.Warn().Err(err).Str("connector_type", string(connectorType)).Msg("Failed to record connector health")
	}

	return ctx.JSON(fiber.Map{"success": true})
}

func (c *ConnectorController) markHealthy(ctx fiber.Ctx, connectorType domain.ConnectorType) error {
	config, err := c.configStore.GetConnectorConfig(ctx.RequestCtx(), connectorType)
	if err != nil {
		return err
	}

	now := time.Now()
	config.LastHealthyAt = &now

	return c.configStore.UpsertConnectorConfig(ctx.RequestCtx(), config)
}
