package managers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/internal/storage"
	"github.com/deskmate/deskmate/internal/vault"
)

const testConnectorType = domain.ConnectorTypeGmail

type managerFixture struct {
	manager     *OAuthManager
	configStore *storage.MemoryConnectorConfigStore
	stateStore  *storage.MemoryAuthorizationStateStore
	vault       *vault.Vault
	tokenServer *httptest.Server
}

// newManagerFixture wires a manager against an in-memory store and a stub
// token endpoint whose behavior is controlled per test.
func newManagerFixture(t *testing.T, tokenHandler http.HandlerFunc) *managerFixture {
	t.Helper()

	tokenServer := httptest.NewServer(tokenHandler)
	t.Cleanup(tokenServer.Close)

	key, err := vault.GenerateKey()
	require.NoError(t, err)

	v, err := vault.New(key)
	require.NoError(t, err)

	registry := domain.NewConnectorRegistry([]domain.ConnectorDescriptor{
		{
			Type:            testConnectorType,
			DisplayName:     "Gmail",
			AuthURL:         tokenServer.URL + "/authorize",
			TokenURL:        tokenServer.URL + "/token",
			Scopes:          []string{"scope-a"},
			ExtraAuthParams: map[string]string{"access_type": "offline"},
		},
		{
			Type:              domain.ConnectorTypeOutlook,
			DisplayName:       "Outlook",
			AuthURL:           tokenServer.URL + "/{tenant}/authorize",
			TokenURL:          tokenServer.URL + "/{tenant}/token",
			Scopes:            []string{"Mail.Read"},
			ExtraConfigFields: []string{"tenant_id"},
		},
	})

	configStore := storage.NewMemoryConnectorConfigStore()
	stateStore := storage.NewMemoryAuthorizationStateStore()

	manager := NewOAuthManager(OAuthManagerDependencies{
		Registry:    registry,
		ConfigStore: configStore,
		StateStore:  stateStore,
		Vault:       v,
		Credentials: map[domain.ConnectorType]AppCredentials{
			testConnectorType:           {ClientID: "client-id", ClientSecret: "client-secret"},
			domain.ConnectorTypeOutlook: {ClientID: "ms-client", ClientSecret: "ms-secret"},
		},
		SettingsRedirectURL: "http://localhost:3000/settings",
		CallbackBaseURL:     "http://localhost:8080",
	})

	return &managerFixture{
		manager:     manager,
		configStore: configStore,
		stateStore:  stateStore,
		vault:       v,
		tokenServer: tokenServer,
	}
}

func tokenResponse(accessToken, refreshToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}
}

func tokenFailure() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
	}
}

// beginAndExtractState starts the flow and pulls the state nonce out of the
// returned provider URL.
func beginAndExtractState(t *testing.T, fixture *managerFixture) string {
	t.Helper()

	redirectURL, err := fixture.manager.BeginAuthorization(context.Background(), testConnectorType)
	require.NoError(t, err)

	parsed, err := url.Parse(redirectURL)
	require.NoError(t, err)

	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	return state
}

func (f *managerFixture) decryptedSecrets(t *testing.T) domain.ConnectorSecrets {
	t.Helper()

	config, err := f.configStore.GetConnectorConfig(context.Background(), testConnectorType)
	require.NoError(t, err)

	secrets := domain.ConnectorSecrets{}
	require.NoError(t, f.vault.DecryptJSON(config.EncryptedPayload, &secrets))

	return secrets
}

func TestBeginAuthorization_BuildsProviderURL(t *testing.T) {
	fixture := newManagerFixture(t, tokenResponse("at", "rt"))

	redirectURL, err := fixture.manager.BeginAuthorization(context.Background(), testConnectorType)
	require.NoError(t, err)

	parsed, err := url.Parse(redirectURL)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "scope-a", query.Get("scope"))
	assert.Equal(t, "offline", query.Get("access_type"))
	assert.Equal(t, "http://localhost:8080/auth/gmail/callback", query.Get("redirect_uri"))
	assert.NotEmpty(t, query.Get("state"))

	// Client credentials are persisted encrypted before the redirect.
	secrets := fixture.decryptedSecrets(t)
	assert.Equal(t, "client-id", secrets.ClientID)
	assert.Equal(t, "client-secret", secrets.ClientSecret)
}

func TestBeginAuthorization_UnknownCredentials(t *testing.T) {
	fixture := newManagerFixture(t, tokenResponse("at", "rt"))

	_, err := fixture.manager.BeginAuthorization(context.Background(), domain.ConnectorTypeYahooMail)
	require.Error(t, err)
}

func TestBeginAuthorizationExtended_MergesTenant(t *testing.T) {
	fixture := newManagerFixture(t, tokenResponse("at", "rt"))

	redirectURL, err := fixture.manager.BeginAuthorizationExtended(context.Background(), domain.ConnectorTypeOutlook, map[string]string{
		"tenant_id": "contoso",
	})
	require.NoError(t, err)

	assert.Contains(t, redirectURL, "/contoso/authorize")

	config, err := fixture.configStore.GetConnectorConfig(context.Background(), domain.ConnectorTypeOutlook)
	require.NoError(t, err)

	secrets := domain.ConnectorSecrets{}
	require.NoError(t, fixture.vault.DecryptJSON(config.EncryptedPayload, &secrets))
	assert.Equal(t, "contoso", secrets.TenantID)
}

func TestCompleteAuthorization_ProviderErrorWritesNothing(t *testing.T) {
	fixture := newManagerFixture(t, tokenResponse("at", "rt"))

	redirect := fixture.manager.CompleteAuthorization(context.Background(), testConnectorType, url.Values{
		"error": {"access_denied"},
	})

	assert.Contains(t, redirect, "http://localhost:3000/settings?error=")

	_, err := fixture.configStore.GetConnectorConfig(context.Background(), testConnectorType)
	assert.ErrorIs(t, err, domain.ErrConnectorNotConfigured)
}

func TestCompleteAuthorization_MissingCode(t *testing.T) {
	fixture := newManagerFixture(t, tokenResponse("at", "rt"))

	redirect := fixture.manager.CompleteAuthorization(context.Background(), testConnectorType, url.Values{})
	assert.Contains(t, redirect, "?error=")
}

func TestCompleteAuthorization_UnknownState(t *testing.T) {
	fixture := newManagerFixture(t, tokenResponse("at", "rt"))

	redirect := fixture.manager.CompleteAuthorization(context.Background(), testConnectorType, url.Values{
		"code":  {"auth-code"},
		"state": {"never-issued"},
	})
	assert.Contains(t, redirect, "?error=")
}

func TestCompleteAuthorization_SuccessThenReplay(t *testing.T) {
	fixture := newManagerFixture(t, tokenResponse("access-1", "refresh-1"))

	state := beginAndExtractState(t, fixture)

	redirect := fixture.manager.CompleteAuthorization(context.Background(), testConnectorType, url.Values{
		"code":  {"auth-code"},
		"state": {state},
	})
	assert.Contains(t, redirect, "?success=")

	config, err := fixture.configStore.GetConnectorConfig(context.Background(), testConnectorType)
	require.NoError(t, err)
	assert.True(t, config.Enabled)
	require.NotNil(t, config.LastHealthyAt)

	secrets := fixture.decryptedSecrets(t)
	assert.Equal(t, "access-1", secrets.AccessToken)
	assert.Equal(t, "refresh-1", secrets.RefreshToken)

	// The state nonce is single use; a replayed callback fails and does not
	// touch the stored credentials.
	replay := fixture.manager.CompleteAuthorization(context.Background(), testConnectorType, url.Values{
		"code":  {"auth-code"},
		"state": {state},
	})
	assert.Contains(t, replay, "?error=")

	after := fixture.decryptedSecrets(t)
	assert.Equal(t, secrets, after)
}

func TestRefresh_RotatesTokens(t *testing.T) {
	fixture := newManagerFixture(t, tokenResponse("access-2", "refresh-2"))

	state := beginAndExtractState(t, fixture)
	fixture.manager.CompleteAuthorization(context.Background(), testConnectorType, url.Values{
		"code":  {"auth-code"},
		"state": {state},
	})

	require.NoError(t, fixture.manager.Refresh(context.Background(), testConnectorType))

	secrets := fixture.decryptedSecrets(t)
	assert.Equal(t, "access-2", secrets.AccessToken)
	assert.Equal(t, "refresh-2", secrets.RefreshToken)
}

func TestRefresh_FailureDisconnectsButKeepsCredentials(t *testing.T) {
	calls := 0
	handler := func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			tokenResponse("access-1", "refresh-1")(w, r)
			return
		}
		tokenFailure()(w, r)
	}

	fixture := newManagerFixture(t, handler)

	state := beginAndExtractState(t, fixture)
	fixture.manager.CompleteAuthorization(context.Background(), testConnectorType, url.Values{
		"code":  {"auth-code"},
		"state": {state},
	})

	err := fixture.manager.Refresh(context.Background(), testConnectorType)
	require.Error(t, err)

	var exchangeErr *domain.TokenExchangeError
	require.ErrorAs(t, err, &exchangeErr)

	config, err := fixture.configStore.GetConnectorConfig(context.Background(), testConnectorType)
	require.NoError(t, err)
	assert.False(t, config.Enabled)

	// Credentials survive so re-authorization needs no re-entry.
	secrets := fixture.decryptedSecrets(t)
	assert.Equal(t, "refresh-1", secrets.RefreshToken)
	assert.Equal(t, "client-id", secrets.ClientID)
}

func TestAccessToken_RefreshesExpiredToken(t *testing.T) {
	fixture := newManagerFixture(t, tokenResponse("access-fresh", "refresh-fresh"))

	// Seed an enabled connector whose access token is long expired.
	envelope, err := fixture.vault.EncryptJSON(domain.ConnectorSecrets{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AccessToken:  "access-stale",
		RefreshToken: "refresh-stale",
		Expiry:       time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	err = fixture.configStore.UpsertConnectorConfig(context.Background(), domain.ConnectorConfig{
		Type:             testConnectorType,
		EncryptedPayload: envelope,
		Enabled:          true,
	})
	require.NoError(t, err)

	token, err := fixture.manager.AccessToken(context.Background(), testConnectorType)
	require.NoError(t, err)
	assert.Equal(t, "access-fresh", token)
}

func TestAccessToken_DisabledConnector(t *testing.T) {
	fixture := newManagerFixture(t, tokenResponse("at", "rt"))

	envelope, err := fixture.vault.EncryptJSON(domain.ConnectorSecrets{AccessToken: "at"})
	require.NoError(t, err)

	err = fixture.configStore.UpsertConnectorConfig(context.Background(), domain.ConnectorConfig{
		Type:             testConnectorType,
		EncryptedPayload: envelope,
		Enabled:          false,
	})
	require.NoError(t, err)

	_, err = fixture.manager.AccessToken(context.Background(), testConnectorType)
	assert.ErrorIs(t, err, domain.ErrConnectorDisabled)
}

func TestAuthorizedClient_CarriesBearerToken(t *testing.T) {
	fixture := newManagerFixture(t, tokenResponse("at", "rt"))

	envelope, err := fixture.vault.EncryptJSON(domain.ConnectorSecrets{
		ClientID:    "client-id",
		AccessToken: "live-token",
		Expiry:      time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	err = fixture.configStore.UpsertConnectorConfig(context.Background(), domain.ConnectorConfig{
		Type:             testConnectorType,
		EncryptedPayload: envelope,
		Enabled:          true,
	})
	require.NoError(t, err)

	var gotAuthorization string
	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthorization = r.Header.Get("Authorization")
		fmt.Fprint(w, "{}")
	}))
	defer apiServer.Close()

	client, err := fixture.manager.AuthorizedClient(context.Background(), testConnectorType)
	require.NoError(t, err)

	response, err := client.Get(apiServer.URL)
	require.NoError(t, err)
	response.Body.Close()

	assert.Equal(t, "Bearer live-token", gotAuthorization)
}
