package connectors

import (
	"time"

	"github.com/deskmate/deskmate/internal/domain"
)

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"

	// {tenant} is substituted with the configured tenant id, or "common".
	outlookAuthURL  = "https://login.microsoftonline.com/{tenant}/oauth2/v2.0/authorize"
	outlookTokenURL = "https://login.microsoftonline.com/{tenant}/oauth2/v2.0/token"

	yahooAuthURL  = "https://api.login.yahoo.com/oauth2/request_auth"
	yahooTokenURL = "https://api.login.yahoo.com/oauth2/get_token"
)

// googleAuthParams are required for Google to return a refresh token on the
// first consent.
var googleAuthParams = map[string]string{
	"access_type": "offline",
	"prompt":      "consent",
}

// Descriptors returns the static capability records for every supported
// connector type. The registry is built from this list at startup.
func Descriptors() []domain.ConnectorDescriptor {
	return []domain.ConnectorDescriptor{
		{
			Type:            domain.ConnectorTypeGmail,
			DisplayName:     "Gmail",
			AuthURL:         googleAuthURL,
			TokenURL:        googleTokenURL,
			Scopes:          []string{"https://www.googleapis.com/auth/gmail.modify"},
			ExtraAuthParams: googleAuthParams,
			CacheTTL:        2 * time.Minute,
			PreloadKeys:     []string{"recent_messages", "unread_count"},
		},
		{
			Type:            domain.ConnectorTypeGoogleDrive,
			DisplayName:     "Google Drive",
			AuthURL:         googleAuthURL,
			TokenURL:        googleTokenURL,
			Scopes:          []string{"https://www.googleapis.com/auth/drive.readonly"},
			ExtraAuthParams: googleAuthParams,
			CacheTTL:        5 * time.Minute,
			PreloadKeys:     []string{"recent_files"},
		},
		{
			Type:        domain.ConnectorTypeGoogleDocs,
			DisplayName: "Google Docs",
			AuthURL:     googleAuthURL,
			TokenURL:    googleTokenURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/documents",
				"https://www.googleapis.com/auth/drive.metadata.readonly",
			},
			ExtraAuthParams: googleAuthParams,
			CacheTTL:        10 * time.Minute,
			PreloadKeys:     []string{"recent_documents"},
		},
		{
			Type:        domain.ConnectorTypeGoogleSheets,
			DisplayName: "Google Sheets",
			AuthURL:     googleAuthURL,
			TokenURL:    googleTokenURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/spreadsheets",
				"https://www.googleapis.com/auth/drive.metadata.readonly",
			},
			ExtraAuthParams: googleAuthParams,
			CacheTTL:        5 * time.Minute,
			PreloadKeys:     []string{"recent_spreadsheets"},
		},
		{
			Type:            domain.ConnectorTypeGoogleCalendar,
			DisplayName:     "Google Calendar",
			AuthURL:         googleAuthURL,
			TokenURL:        googleTokenURL,
			Scopes:          []string{"https://www.googleapis.com/auth/calendar.events"},
			ExtraAuthParams: googleAuthParams,
			CacheTTL:        5 * time.Minute,
			PreloadKeys:     []string{"upcoming_events"},
		},
		{
			Type:        domain.ConnectorTypeOutlook,
			DisplayName: "Outlook",
			AuthURL:     outlookAuthURL,
			TokenURL:    outlookTokenURL,
			Scopes: []string{
				"offline_access",
				"User.Read",
				"Mail.Read",
				"Mail.Send",
				"Calendars.Read",
			},
			ExtraConfigFields: []string{"tenant_id"},
			CacheTTL:          2 * time.Minute,
			PreloadKeys:       []string{"recent_messages", "upcoming_events"},
		},
		{
			Type:         domain.ConnectorTypeYahooMail,
			DisplayName:  "Yahoo Mail",
			AuthURL:      yahooAuthURL,
			TokenURL:     yahooTokenURL,
			Scopes:       []string{"openid", "email", "mail-r"},
			UseBasicAuth: true,
			CacheTTL:     5 * time.Minute,
			PreloadKeys:  []string{"recent_messages"},
		},
	}
}
