package initialization

import (
	"context"
	"fmt"

	"github.com/deskmate/deskmate/internal/cache"
	"github.com/deskmate/deskmate/internal/controllers"
	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/internal/managers"
	"github.com/deskmate/deskmate/internal/storage"
	"github.com/deskmate/deskmate/internal/vault"
	"github.com/deskmate/deskmate/pkg/ai/provider"
	"github.com/deskmate/deskmate/pkg/ai/provider/anthropic"
	"github.com/deskmate/deskmate/pkg/ai/provider/openai"
	"github.com/deskmate/deskmate/pkg/connectors"
)

// AppContainer wires every component of the service. It is built once at
// startup and handed to the CLI commands.
type AppContainer struct {
	Config *Config

	Vault        *vault.Vault
	Registry     domain.ConnectorRegistry
	ConfigStore  domain.ConnectorConfigStore
	MessageStore domain.MessageStore
	OAuthManager *managers.OAuthManager
	CacheEngine  *cache.Engine
	Assistant    *managers.AssistantManager
	Model        provider.LanguageModel

	AuthController      *controllers.AuthController
	CacheController     *controllers.CacheController
	ConnectorController *controllers.ConnectorController
	ChatController      *controllers.ChatController
}

func NewAppContainer(ctx context.Context, config *Config) (*AppContainer, error) {
	v, err := vault.New(config.EncryptionKey)
	if err != nil {
		return nil, err
	}

	var configStore domain.ConnectorConfigStore
	var messageStore domain.MessageStore

	if config.DatabaseURL != "" {
		postgresStore, err := storage.NewPostgresStore(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		configStore = postgresStore
		messageStore = postgresStore
	} else {
		configStore = storage.NewMemoryConnectorConfigStore()
		messageStore = storage.NewMemoryMessageStore()
	}

	registry := domain.NewConnectorRegistry(connectors.Descriptors())

	oauthManager := managers.NewOAuthManager(managers.OAuthManagerDependencies{
		Registry:            registry,
		ConfigStore:         configStore,
		StateStore:          storage.NewMemoryAuthorizationStateStore(),
		Vault:               v,
		Credentials:         appCredentials(config),
		SettingsRedirectURL: config.SettingsRedirectURL,
		CallbackBaseURL:     config.CallbackBaseURL,
	})

	cacheEngine := cache.NewEngine(cache.Dependencies{
		Registry: registry,
		Store:    configStore,
	})

	err = connectors.RegisterAll(ctx, connectors.Dependencies{
		Registry: registry,
		Clients:  oauthManager,
		Tokens:   oauthManager,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register connectors: %w", err)
	}

	model, err := buildModel(config)
	if err != nil {
		return nil, err
	}

	assistant := managers.NewAssistantManager(managers.AssistantManagerDependencies{
		Registry:     registry,
		ConfigStore:  configStore,
		MessageStore: messageStore,
		Model:        model,
		MaxSteps:     config.MaxToolSteps,
	})

	return &AppContainer{
		Config:       config,
		Vault:        v,
		Registry:     registry,
		ConfigStore:  configStore,
		MessageStore: messageStore,
		OAuthManager: oauthManager,
		CacheEngine:  cacheEngine,
		Assistant:    assistant,
		Model:        model,

		AuthController: controllers.NewAuthController(controllers.AuthControllerDependencies{
			OAuthManager: oauthManager,
			Registry:     registry,
		}),
		CacheController: controllers.NewCacheController(controllers.CacheControllerDependencies{
			Engine: cacheEngine,
		}),
		ConnectorController: controllers.NewConnectorController(controllers.ConnectorControllerDependencies{
			Registry:    registry,
			ConfigStore: configStore,
		}),
		ChatController: controllers.NewChatController(controllers.ChatControllerDependencies{
			Assistant: assistant,
		}),
	}, nil
}

func appCredentials(config *Config) map[domain.ConnectorType]managers.AppCredentials {
	credentials := make(map[domain.ConnectorType]managers.AppCredentials)

	google := managers.AppCredentials{ClientID: config.GoogleClientID, ClientSecret: config.GoogleClientSecret}
	if google.ClientID != "" {
		credentials[domain.ConnectorTypeGmail] = google
		credentials[domain.ConnectorTypeGoogleDrive] = google
		credentials[domain.ConnectorTypeGoogleDocs] = google
		credentials[domain.ConnectorTypeGoogleSheets] = google
		credentials[domain.ConnectorTypeGoogleCalendar] = google
	}

	if config.OutlookClientID != "" {
		credentials[domain.ConnectorTypeOutlook] = managers.AppCredentials{
			ClientID:     config.OutlookClientID,
			ClientSecret: config.OutlookClientSecret,
		}
	}

	if config.YahooClientID != "" {
		credentials[domain.ConnectorTypeYahooMail] = managers.AppCredentials{
			ClientID:     config.YahooClientID,
			ClientSecret: config.YahooClientSecret,
		}
	}

	return credentials
}

func buildModel(config *Config) (provider.LanguageModel, error) {
	model := config.LLMModel

	switch config.LLMProvider {
	case "anthropic":
		if model == "" {
			model = "claude-sonnet-4-5"
		}
		return anthropic.New(config.AnthropicAPIKey, model), nil
	case "openai":
		if model == "" {
			model = "gpt-4o"
		}
		return openai.New(config.OpenAIAPIKey, model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", config.LLMProvider)
	}
}
