package controllers

import (
	"net/url"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/internal/managers"
)

// AuthController handles the OAuth redirect round trip for every connector.
type AuthController struct {
	oauthManager *managers.OAuthManager
	registry     domain.ConnectorRegistry
}

type AuthControllerDependencies struct {
	OAuthManager *managers.OAuthManager
	Registry     domain.ConnectorRegistry
}

func NewAuthController(deps AuthControllerDependencies) *AuthController {
	return &AuthController{
		oauthManager: deps.OAuthManager,
		registry:     deps.Registry,
	}
}

// BeginAuthorization starts the flow and 302s the browser to the provider.
// Descriptor ExtraConfigFields (e.g. tenant_id for Outlook) are read from the
// query string.
func (c *AuthController) BeginAuthorization(ctx fiber.Ctx) error {
	connectorType := domain.ConnectorType(ctx.Params("type"))

	descriptor, err := c.registry.Descriptor(connectorType)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Unknown connector type")
	}

	extra := make(map[string]string)
	for _, field := range descriptor.ExtraConfigFields {
		if value := ctx.Query(field); value != "" {
			extra[field] = value
		}
	}

	redirectURL, err := c.oauthManager.BeginAuthorizationExtended(ctx.RequestCtx(), connectorType, extra)
	if err != nil {
		log.Error().Err(err).Str("connector_type", string(connectorType)).Msg("Failed to begin authorization")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to begin authorization")
	}

	return ctx.Redirect().Status(fiber.StatusFound).To(redirectURL)
}

// CompleteAuthorization handles the provider callback. It always redirects to
// the settings location; the manager encodes success or failure in the query.
func (c *AuthController) CompleteAuthorization(ctx fiber.Ctx) error {
	connectorType := domain.ConnectorType(ctx.Params("type"))

	query := url.Values{}
	for key, values := range ctx.Queries() {
		query.Set(key, values)
	}

	redirectURL := c.oauthManager.CompleteAuthorization(ctx.RequestCtx(), connectorType, query)

	return ctx.Redirect().Status(fiber.StatusFound).To(redirectURL)
}
