package domain

import (
	"context"
	"net/http"
	"time"
)

// ConnectorType identifies one external data provider integration.
type ConnectorType string

const (
	ConnectorTypeGmail          ConnectorType = "gmail"
	ConnectorTypeGoogleDrive    ConnectorType = "google_drive"
	ConnectorTypeGoogleDocs     ConnectorType = "google_docs"
	ConnectorTypeGoogleSheets   ConnectorType = "google_sheets"
	ConnectorTypeGoogleCalendar ConnectorType = "google_calendar"
	ConnectorTypeOutlook        ConnectorType = "outlook"
	ConnectorTypeYahooMail      ConnectorType = "yahoo_mail"
)

// ConnectorConfig is the persisted row for one connector type. The payload is
// an encrypted envelope; only the OAuth manager and health checks mutate it.
type ConnectorConfig struct {
	Type             ConnectorType
	EncryptedPayload string
	Enabled          bool
	LastHealthyAt    *time.Time
	UpdatedAt        time.Time
}

// ConnectorSecrets is the decrypted payload of a ConnectorConfig. It is never
// logged and never returned verbatim to callers.
type ConnectorSecrets struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	TenantID     string    `json:"tenant_id,omitempty"`
	AccountEmail string    `json:"account_email,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// TokenSet is the transient result of a code exchange or refresh. It is folded
// into ConnectorSecrets before any write and never persisted directly.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AuthorizationState is the ephemeral value carried through the OAuth redirect
// round trip. It is consumed exactly once at callback time.
type AuthorizationState struct {
	Nonce         string
	ConnectorType ConnectorType
	CreatedAt     time.Time
}

// ConnectorDescriptor is the static capability record for one connector type.
// Per-provider token-exchange variation is data on the descriptor, not code.
type ConnectorDescriptor struct {
	Type        ConnectorType
	DisplayName string

	AuthURL  string
	TokenURL string
	Scopes   []string

	// UseBasicAuth selects HTTP Basic authentication with client credentials
	// for the token exchange instead of body parameters.
	UseBasicAuth bool

	// ExtraAuthParams are appended to the provider authorization URL.
	ExtraAuthParams map[string]string

	// ExtraConfigFields are pre-registration fields (e.g. tenant_id) merged
	// into the persisted config by the extended init variant.
	ExtraConfigFields []string

	// CacheTTL is the connector-specific cache lifetime. Zero means default.
	CacheTTL time.Duration

	// PreloadKeys are the logical cache keys warmed by a bulk preload.
	PreloadKeys []string
}

// ConnectorConfigStore persists ConnectorConfig rows keyed by connector type.
type ConnectorConfigStore interface {
	GetConnectorConfig(ctx context.Context, connectorType ConnectorType) (ConnectorConfig, error)
	UpsertConnectorConfig(ctx context.Context, config ConnectorConfig) error
	ListConnectorConfigs(ctx context.Context) ([]ConnectorConfig, error)
}

// AuthorizationStateStore holds pending authorization states for the redirect
// round trip. Consume removes the state so a nonce cannot be replayed.
type AuthorizationStateStore interface {
	Put(state AuthorizationState) error
	Consume(nonce string) (AuthorizationState, bool)
}

// HTTPClientProvider hands out an authorized HTTP client for a connector,
// refreshing the stored token first when it is past expiry.
type HTTPClientProvider interface {
	AuthorizedClient(ctx context.Context, connectorType ConnectorType) (*http.Client, error)
}

// AccessTokenProvider hands out a fresh bearer token for connectors whose
// SDKs manage their own transport instead of taking an *http.Client.
type AccessTokenProvider interface {
	AccessToken(ctx context.Context, connectorType ConnectorType) (string, error)
}

// ConnectorFetcher computes a live payload for one of a connector's logical
// cache keys. Implementations never cache internally.
type ConnectorFetcher interface {
	Fetch(ctx context.Context, key string) (any, error)
}

// ConnectorConnectionTester probes a connector's provider with a cheap
// authenticated call.
type ConnectorConnectionTester interface {
	TestConnection(ctx context.Context) (bool, error)
}
