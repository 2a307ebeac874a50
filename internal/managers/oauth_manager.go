package managers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/internal/vault"
)

// expirySkew refreshes tokens slightly before their reported expiry so a
// connector call never races the provider clock.
const expirySkew = time.Minute

// AppCredentials are the OAuth application credentials registered with one
// provider, supplied through configuration.
type AppCredentials struct {
	ClientID     string
	ClientSecret string
}

type OAuthManagerDependencies struct {
	Registry    domain.ConnectorRegistry
	ConfigStore domain.ConnectorConfigStore
	StateStore  domain.AuthorizationStateStore
	Vault       *vault.Vault
	Credentials map[domain.ConnectorType]AppCredentials

	// SettingsRedirectURL is where callback results land, with a success or
	// error query parameter appended.
	SettingsRedirectURL string

	// CallbackBaseURL is the externally reachable base of this server, used
	// to build per-connector redirect URIs.
	CallbackBaseURL string
}

// OAuthManager drives the full token lifecycle for every connector type: the
// authorization redirect, the callback exchange, refresh and authorized
// client handout. Per-provider variation is data on the descriptor.
type OAuthManager struct {
	registry    domain.ConnectorRegistry
	configStore domain.ConnectorConfigStore
	stateStore  domain.AuthorizationStateStore
	vault       *vault.Vault
	credentials map[domain.ConnectorType]AppCredentials

	settingsRedirectURL string
	callbackBaseURL     string

	locksMu sync.Mutex
	locks   map[domain.ConnectorType]*sync.Mutex

	now func() time.Time
}

func NewOAuthManager(deps OAuthManagerDependencies) *OAuthManager {
	return &OAuthManager{
		registry:            deps.Registry,
		configStore:         deps.ConfigStore,
		stateStore:          deps.StateStore,
		vault:               deps.Vault,
		credentials:         deps.Credentials,
		settingsRedirectURL: deps.SettingsRedirectURL,
		callbackBaseURL:     deps.CallbackBaseURL,
		locks:               make(map[domain.ConnectorType]*sync.Mutex),
		now:                 time.Now,
	}
}

// BeginAuthorization starts the authorization-code flow for a connector and
// returns the provider URL the browser is redirected to.
func (m *OAuthManager) BeginAuthorization(ctx context.Context, connectorType domain.ConnectorType) (string, error) {
	return m.BeginAuthorizationExtended(ctx, connectorType, nil)
}

// BeginAuthorizationExtended additionally merges pre-registration fields
// (descriptor ExtraConfigFields, e.g. tenant_id) into the persisted config
// before redirecting.
func (m *OAuthManager) BeginAuthorizationExtended(ctx context.Context, connectorType domain.ConnectorType, extra map[string]string) (string, error) {
	descriptor, err := m.registry.Descriptor(connectorType)
	if err != nil {
		return "", err
	}

	appCredentials, ok := m.credentials[connectorType]
	if !ok || appCredentials.ClientID == "" {
		return "", domain.NewConfigurationError("oauth_credentials", fmt.Sprintf("no application credentials configured for %s", connectorType))
	}

	lock := m.lock(connectorType)
	lock.Lock()
	defer lock.Unlock()

	config, secrets, err := m.loadOrInitSecrets(ctx, connectorType)
	if err != nil {
		return "", err
	}

	secrets.ClientID = appCredentials.ClientID
	secrets.ClientSecret = appCredentials.ClientSecret

	for _, field := range descriptor.ExtraConfigFields {
		value, ok := extra[field]
		if !ok || value == "" {
			continue
		}

		switch field {
		case "tenant_id":
			secrets.TenantID = value
		default:
			return "", domain.NewConfigurationError(field, fmt.Sprintf("unsupported config field for %s", connectorType))
		}
	}

	if err := m.persistSecrets(ctx, config, secrets); err != nil {
		return "", err
	}

	nonce := uuid.NewString()

	err = m.stateStore.Put(domain.AuthorizationState{
		Nonce:         nonce,
		ConnectorType: connectorType,
		CreatedAt:     m.now(),
	})
	if err != nil {
		return "", err
	}

	oauthConfig := m.oauthConfig(descriptor, secrets)

	options := make([]oauth2.AuthCodeOption, 0, len(descriptor.ExtraAuthParams))

	params := make([]string, 0, len(descriptor.ExtraAuthParams))
	for key := range descriptor.ExtraAuthParams {
		params = append(params, key)
	}
	sort.Strings(params)

	for _, key := range params {
		options = append(options, oauth2.SetAuthURLParam(key, descriptor.ExtraAuthParams[key]))
	}

	return oauthConfig.AuthCodeURL(nonce, options...), nil
}

// CompleteAuthorization handles the provider callback. Every outcome is a
// redirect to the settings location; failures carry an error message and
// leave the stored config untouched.
func (m *OAuthManager) CompleteAuthorization(ctx context.Context, connectorType domain.ConnectorType, query url.Values) string {
	descriptor, err := m.registry.Descriptor(connectorType)
	if err != nil {
		return m.failureRedirect(err.Error())
	}

	if providerError := query.Get("error"); providerError != "" {
		authErr := &domain.AuthorizationError{
			ConnectorType: connectorType,
			Code:          providerError,
			Description:   query.Get("error_description"),
		}
		log.Warn().Str("connector_type", string(connectorType)).Str("code", providerError).Msg("Authorization denied by provider")

		return m.failureRedirect(authErr.Error())
	}

	code := query.Get("code")
	if code == "" {
		return m.failureRedirect("authorization callback carried no code")
	}

	state, ok := m.stateStore.Consume(query.Get("state"))
	if !ok {
		return m.failureRedirect("authorization state is unknown or already used")
	}

	if state.ConnectorType != connectorType {
		return m.failureRedirect("authorization state does not match connector")
	}

	lock := m.lock(connectorType)
	lock.Lock()
	defer lock.Unlock()

	config, secrets, err := m.loadSecrets(ctx, connectorType)
	if err != nil {
		return m.failureRedirect(fmt.Sprintf("connector %s is not configured", connectorType))
	}

	token, err := m.oauthConfig(descriptor, secrets).Exchange(ctx, code)
	if err != nil {
		exchangeErr := &domain.TokenExchangeError{ConnectorType: connectorType, Err: err}
		log.Error().Err(err).Str("connector_type", string(connectorType)).Msg("Token exchange failed")

		return m.failureRedirect(exchangeErr.Error())
	}

	mergeToken(&secrets, token)

	if email := emailFromIDToken(token); email != "" {
		secrets.AccountEmail = email
	}

	now := m.now()
	config.Enabled = true
	config.LastHealthyAt = &now

	if err := m.persistSecrets(ctx, config, secrets); err != nil {
		log.Error().Err(err).Str("connector_type", string(connectorType)).Msg("Failed to persist connector credentials")

		return m.failureRedirect("failed to store connector credentials")
	}

	log.Info().Str("connector_type", string(connectorType)).Msg("Connector authorized")

	return m.successRedirect(fmt.Sprintf("Connected to %s", descriptor.DisplayName))
}

// Refresh runs the refresh-token grant for a connector. On failure the
// connector is disabled but its credentials are kept, so the user can
// re-authorize without re-entering anything.
func (m *OAuthManager) Refresh(ctx context.Context, connectorType domain.ConnectorType) error {
	lock := m.lock(connectorType)
	lock.Lock()
	defer lock.Unlock()

	return m.refreshLocked(ctx, connectorType)
}

func (m *OAuthManager) refreshLocked(ctx context.Context, connectorType domain.ConnectorType) error {
	descriptor, err := m.registry.Descriptor(connectorType)
	if err != nil {
		return err
	}

	config, secrets, err := m.loadSecrets(ctx, connectorType)
	if err != nil {
		return err
	}

	if secrets.RefreshToken == "" {
		return &domain.TokenExchangeError{ConnectorType: connectorType, Err: fmt.Errorf("no refresh token stored")}
	}

	// Expiry in the past forces the token source to hit the token endpoint.
	staleToken := &oauth2.Token{
		AccessToken:  secrets.AccessToken,
		RefreshToken: secrets.RefreshToken,
		Expiry:       time.Unix(1, 0),
	}

	token, err := m.oauthConfig(descriptor, secrets).TokenSource(ctx, staleToken).Token()
	if err != nil {
		config.Enabled = false

		if persistErr := m.persistSecrets(ctx, config, secrets); persistErr != nil {
			log.Error().Err(persistErr).Str("connector_type", string(connectorType)).Msg("Failed to disable connector after refresh failure")
		}

		log.Warn().Err(err).Str("connector_type", string(connectorType)).Msg("Token refresh failed, connector disconnected")

		return &domain.TokenExchangeError{ConnectorType: connectorType, Err: err}
	}

	mergeToken(&secrets, token)

	now := m.now()
	config.LastHealthyAt = &now

	if err := m.persistSecrets(ctx, config, secrets); err != nil {
		return err
	}

	return nil
}

// AuthorizedClient returns an HTTP client carrying a live access token for
// the connector, refreshing first when the stored token is past expiry.
func (m *OAuthManager) AuthorizedClient(ctx context.Context, connectorType domain.ConnectorType) (*http.Client, error) {
	accessToken, err := m.AccessToken(ctx, connectorType)
	if err != nil {
		return nil, err
	}

	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})

	return oauth2.NewClient(ctx, tokenSource), nil
}

// AccessToken returns a live access token for connectors whose SDKs manage
// their own transport.
func (m *OAuthManager) AccessToken(ctx context.Context, connectorType domain.ConnectorType) (string, error) {
	lock := m.lock(connectorType)
	lock.Lock()
	defer lock.Unlock()

	config, secrets, err := m.loadSecrets(ctx, connectorType)
	if err != nil {
		return "", err
	}

	if !config.Enabled {
		return "", fmt.Errorf("%w: %s", domain.ErrConnectorDisabled, connectorType)
	}

	if secrets.AccessToken == "" {
		return "", fmt.Errorf("%w: %s has no access token", domain.ErrConnectorNotConfigured, connectorType)
	}

	if !secrets.Expiry.IsZero() && m.now().After(secrets.Expiry.Add(-expirySkew)) {
		if err := m.refreshLocked(ctx, connectorType); err != nil {
			return "", err
		}

		_, secrets, err = m.loadSecrets(ctx, connectorType)
		if err != nil {
			return "", err
		}
	}

	return secrets.AccessToken, nil
}

func (m *OAuthManager) oauthConfig(descriptor domain.ConnectorDescriptor, secrets domain.ConnectorSecrets) *oauth2.Config {
	authStyle := oauth2.AuthStyleInParams
	if descriptor.UseBasicAuth {
		authStyle = oauth2.AuthStyleInHeader
	}

	tenant := secrets.TenantID
	if tenant == "" {
		tenant = "common"
	}

	return &oauth2.Config{
		ClientID:     secrets.ClientID,
		ClientSecret: secrets.ClientSecret,
		Scopes:       descriptor.Scopes,
		RedirectURL:  fmt.Sprintf("%s/auth/%s/callback", m.callbackBaseURL, descriptor.Type),
		Endpoint: oauth2.Endpoint{
			AuthURL:   strings.ReplaceAll(descriptor.AuthURL, "{tenant}", tenant),
			TokenURL:  strings.ReplaceAll(descriptor.TokenURL, "{tenant}", tenant),
			AuthStyle: authStyle,
		},
	}
}

func (m *OAuthManager) loadOrInitSecrets(ctx context.Context, connectorType domain.ConnectorType) (domain.ConnectorConfig, domain.ConnectorSecrets, error) {
	config, secrets, err := m.loadSecrets(ctx, connectorType)
	if err == nil {
		return config, secrets, nil
	}

	if !errors.Is(err, domain.ErrConnectorNotConfigured) {
		return domain.ConnectorConfig{}, domain.ConnectorSecrets{}, err
	}

	return domain.ConnectorConfig{Type: connectorType}, domain.ConnectorSecrets{}, nil
}

func (m *OAuthManager) loadSecrets(ctx context.Context, connectorType domain.ConnectorType) (domain.ConnectorConfig, domain.ConnectorSecrets, error) {
	config, err := m.configStore.GetConnectorConfig(ctx, connectorType)
	if err != nil {
		return domain.ConnectorConfig{}, domain.ConnectorSecrets{}, err
	}

	secrets := domain.ConnectorSecrets{}
	if err := m.vault.DecryptJSON(config.EncryptedPayload, &secrets); err != nil {
		return domain.ConnectorConfig{}, domain.ConnectorSecrets{}, err
	}

	return config, secrets, nil
}

func (m *OAuthManager) persistSecrets(ctx context.Context, config domain.ConnectorConfig, secrets domain.ConnectorSecrets) error {
	envelope, err := m.vault.EncryptJSON(secrets)
	if err != nil {
		return err
	}

	config.EncryptedPayload = envelope
	config.UpdatedAt = m.now()

	return m.configStore.UpsertConnectorConfig(ctx, config)
}

func (m *OAuthManager) lock(connectorType domain.ConnectorType) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	lock, ok := m.locks[connectorType]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[connectorType] = lock
	}

	return lock
}

func (m *OAuthManager) successRedirect(message string) string {
	return fmt.Sprintf("%s?success=%s", m.settingsRedirectURL, url.QueryEscape(message))
}

func (m *OAuthManager) failureRedirect(message string) string {
	return fmt.Sprintf("%s?error=%s", m.settingsRedirectURL, url.QueryEscape(message))
}

// mergeToken folds an exchange or refresh result into the stored secrets,
// keeping the previous refresh token when the provider did not rotate it.
func mergeToken(secrets *domain.ConnectorSecrets, token *oauth2.Token) {
	secrets.AccessToken = token.AccessToken
	secrets.Expiry = token.Expiry

	if token.RefreshToken != "" {
		secrets.RefreshToken = token.RefreshToken
	}

	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		secrets.Scope = scope
	}
}

// emailFromIDToken pulls the account email out of an OpenID Connect id_token
// without verifying it; it came straight from the token endpoint over TLS.
func emailFromIDToken(token *oauth2.Token) string {
	idToken, ok := token.Extra("id_token").(string)
	if !ok || idToken == "" {
		return ""
	}

	claims := jwt.MapClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(idToken, claims)
	if err != nil {
		return ""
	}

	if email, ok := claims["email"].(string); ok {
		return email
	}

	return ""
}
