package outlook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	auth "github.com/microsoft/kiota-authentication-azure-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/pkg/ai/tool"
)

// Connector exposes Outlook mail and calendar through the Microsoft Graph
// API as assistant tools and as a cacheable data source.
type Connector struct {
	tokens domain.AccessTokenProvider
}

func NewConnector(tokens domain.AccessTokenProvider) *Connector {
	return &Connector{tokens: tokens}
}

// graphClient builds a Graph client on a freshly issued token so every call
// picks up refreshes.
func (c *Connector) graphClient(ctx context.Context) (*msgraphsdk.GraphServiceClient, error) {
	token, err := c.tokens.AccessToken(ctx, domain.ConnectorTypeOutlook)
	if err != nil {
		return nil, err
	}

	credential := &staticTokenCredential{accessToken: token}

	authProvider, err := auth.NewAzureIdentityAuthenticationProvider(credential)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth provider: %w", err)
	}

	adapter, err := msgraphsdk.NewGraphRequestAdapter(authProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph request adapter: %w", err)
	}

	return msgraphsdk.NewGraphServiceClient(adapter), nil
}

type staticTokenCredential struct {
	accessToken string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.accessToken,
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}

type MessageSummary struct {
	ID       string `json:"id"`
	From     string `json:"from"`
	Subject  string `json:"subject"`
	Received string `json:"received"`
	Preview  string `json:"preview"`
}

type EventSummary struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type listMessagesParams struct {
	MaxResults int32 `json:"max_results"`
}

type sendMessageParams struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (c *Connector) Tools(ctx context.Context) ([]tool.Tool, error) {
	return []tool.Tool{
		tool.Define(
			"outlook_list_messages",
			"List the most recent messages from the Outlook inbox.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"max_results": map[string]any{"type": "integer", "description": "Maximum messages to return, default 10"},
				},
			},
			func(ctx context.Context, args string) (string, error) {
				p := listMessagesParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				messages, err := c.recentMessages(ctx, p.MaxResults)
				if err != nil {
					return "", err
				}

				return marshalResult(messages)
			},
		),
		tool.Define(
			"outlook_send_message",
			"Send an email from the connected Outlook account.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"to":      map[string]any{"type": "string"},
					"subject": map[string]any{"type": "string"},
					"body":    map[string]any{"type": "string"},
				},
				"required": []any{"to", "subject", "body"},
			},
			func(ctx context.Context, args string) (string, error) {
				p := sendMessageParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				client, err := c.graphClient(ctx)
				if err != nil {
					return "", err
				}

				contentType := models.TEXT_BODYTYPE

				body := models.NewItemBody()
				body.SetContentType(&contentType)
				body.SetContent(&p.Body)

				emailAddress := models.NewEmailAddress()
				emailAddress.SetAddress(&p.To)

				recipient := models.NewRecipient()
				recipient.SetEmailAddress(emailAddress)

				message := models.NewMessage()
				message.SetSubject(&p.Subject)
				message.SetBody(body)
				message.SetToRecipients([]models.Recipientable{recipient})

				requestBody := users.NewItemSendMailPostRequestBody()
				requestBody.SetMessage(message)

				if err := client.Me().SendMail().Post(ctx, requestBody, nil); err != nil {
					return "", fmt.Errorf("failed to send message: %w", graphError(err))
				}

				return marshalResult(map[string]any{"sent": true})
			},
		),
		tool.Define(
			"outlook_list_events",
			"List upcoming events from the Outlook calendar.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"max_results": map[string]any{"type": "integer", "description": "Maximum events to return, default 10"},
				},
			},
			func(ctx context.Context, args string) (string, error) {
				p := listMessagesParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				events, err := c.upcomingEvents(ctx, p.MaxResults)
				if err != nil {
					return "", err
				}

				return marshalResult(events)
			},
		),
	}, nil
}

func (c *Connector) Fetch(ctx context.Context, key string) (any, error) {
	switch key {
	case "recent_messages":
		return c.recentMessages(ctx, 10)
	case "upcoming_events":
		return c.upcomingEvents(ctx, 10)
	default:
		return nil, fmt.Errorf("unknown outlook cache key %s", key)
	}
}

func (c *Connector) TestConnection(ctx context.Context) (bool, error) {
	client, err := c.graphClient(ctx)
	if err != nil {
		return false, err
	}

	user, err := client.Me().Get(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to authenticate with Microsoft Graph: %w", graphError(err))
	}

	if user == nil || user.GetId() == nil {
		return false, fmt.Errorf("Microsoft Graph returned no user information")
	}

	return true, nil
}

func (c *Connector) recentMessages(ctx context.Context, maxResults int32) ([]MessageSummary, error) {
	client, err := c.graphClient(ctx)
	if err != nil {
		return nil, err
	}

	if maxResults <= 0 {
		maxResults = 10
	}

	config := &users.ItemMessagesRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesRequestBuilderGetQueryParameters{
			Top:     &maxResults,
			Select:  []string{"id", "subject", "from", "receivedDateTime", "bodyPreview"},
			Orderby: []string{"receivedDateTime desc"},
		},
	}

	result, err := client.Me().Messages().Get(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", graphError(err))
	}

	if result == nil || result.GetValue() == nil {
		return []MessageSummary{}, nil
	}

	summaries := make([]MessageSummary, 0, len(result.GetValue()))

	for _, message := range result.GetValue() {
		summary := MessageSummary{
			ID:      deref(message.GetId()),
			Subject: deref(message.GetSubject()),
			Preview: deref(message.GetBodyPreview()),
		}

		if from := message.GetFrom(); from != nil && from.GetEmailAddress() != nil {
			summary.From = deref(from.GetEmailAddress().GetAddress())
		}

		if received := message.GetReceivedDateTime(); received != nil {
			summary.Received = received.Format(time.RFC3339)
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (c *Connector) upcomingEvents(ctx context.Context, maxResults int32) ([]EventSummary, error) {
	client, err := c.graphClient(ctx)
	if err != nil {
		return nil, err
	}

	if maxResults <= 0 {
		maxResults = 10
	}

	filter := fmt.Sprintf("start/dateTime ge '%s'", time.Now().UTC().Format(time.RFC3339))

	config := &users.ItemEventsRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemEventsRequestBuilderGetQueryParameters{
			Top:     &maxResults,
			Select:  []string{"id", "subject", "start", "end"},
			Filter:  &filter,
			Orderby: []string{"start/dateTime"},
		},
	}

	result, err := client.Me().Events().Get(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", graphError(err))
	}

	if result == nil || result.GetValue() == nil {
		return []EventSummary{}, nil
	}

	summaries := make([]EventSummary, 0, len(result.GetValue()))

	for _, event := range result.GetValue() {
		summary := EventSummary{
			ID:      deref(event.GetId()),
			Subject: deref(event.GetSubject()),
		}

		if start := event.GetStart(); start != nil {
			summary.Start = deref(start.GetDateTime())
		}

		if end := event.GetEnd(); end != nil {
			summary.End = deref(end.GetDateTime())
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// graphError unwraps the OData error body Graph responses carry.
func graphError(err error) error {
	odataErr, ok := err.(*odataerrors.ODataError)
	if !ok {
		return err
	}

	mainErr := odataErr.GetErrorEscaped()
	if mainErr == nil {
		return err
	}

	code := "UnknownError"
	if mainErr.GetCode() != nil {
		code = *mainErr.GetCode()
	}

	message := err.Error()
	if mainErr.GetMessage() != nil {
		message = *mainErr.GetMessage()
	}

	return fmt.Errorf("[%s] %s", code, message)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func marshalResult(v any) (string, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(resultJSON), nil
}
