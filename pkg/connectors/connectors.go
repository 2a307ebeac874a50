package connectors

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/pkg/connectors/google/gcalendar"
	"github.com/deskmate/deskmate/pkg/connectors/google/gdocs"
	"github.com/deskmate/deskmate/pkg/connectors/google/gdrive"
	"github.com/deskmate/deskmate/pkg/connectors/google/gmail"
	"github.com/deskmate/deskmate/pkg/connectors/google/gsheets"
	"github.com/deskmate/deskmate/pkg/connectors/outlook"
	"github.com/deskmate/deskmate/pkg/connectors/yahoo"
)

// Dependencies are shared by every connector implementation.
type Dependencies struct {
	Registry domain.ConnectorRegistry
	Clients  domain.HTTPClientProvider
	Tokens   domain.AccessTokenProvider
}

// connector bundles the three capabilities one connector type contributes.
type connector interface {
	domain.ConnectorToolProvider
	domain.ConnectorFetcher
	domain.ConnectorConnectionTester
}

type registerParams struct {
	ConnectorType domain.ConnectorType
	New           func(deps Dependencies) connector
}

var connectorRegisterParams = []registerParams{
	{
		ConnectorType: domain.ConnectorTypeGmail,
		New:           func(deps Dependencies) connector { return gmail.NewConnector(deps.Clients) },
	},
	{
		ConnectorType: domain.ConnectorTypeGoogleDrive,
		New:           func(deps Dependencies) connector { return gdrive.NewConnector(deps.Clients) },
	},
	{
		ConnectorType: domain.ConnectorTypeGoogleDocs,
		New:           func(deps Dependencies) connector { return gdocs.NewConnector(deps.Clients) },
	},
	{
		ConnectorType: domain.ConnectorTypeGoogleSheets,
		New:           func(deps Dependencies) connector { return gsheets.NewConnector(deps.Clients) },
	},
	{
		ConnectorType: domain.ConnectorTypeGoogleCalendar,
		New:           func(deps Dependencies) connector { return gcalendar.NewConnector(deps.Clients) },
	},
	{
		ConnectorType: domain.ConnectorTypeOutlook,
		New:           func(deps Dependencies) connector { return outlook.NewConnector(deps.Tokens) },
	},
	{
		ConnectorType: domain.ConnectorTypeYahooMail,
		New:           func(deps Dependencies) connector { return yahoo.NewConnector(deps.Clients) },
	},
}

// RegisterAll builds every connector and registers its tool provider, fetcher
// and connection tester on the registry.
func RegisterAll(ctx context.Context, deps Dependencies) error {
	for _, params := range connectorRegisterParams {
		log.Info().Msgf("Registering connector %s", params.ConnectorType)

		c := params.New(deps)

		deps.Registry.RegisterToolProvider(params.ConnectorType, c)
		deps.Registry.RegisterFetcher(params.ConnectorType, c)
		deps.Registry.RegisterConnectionTester(params.ConnectorType, c)
	}

	return nil
}
