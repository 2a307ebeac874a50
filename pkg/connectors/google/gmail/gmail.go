package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/pkg/ai/tool"
)

// Connector exposes Gmail as assistant tools and as a cacheable data source.
type Connector struct {
	clients domain.HTTPClientProvider
}

func NewConnector(clients domain.HTTPClientProvider) *Connector {
	return &Connector{clients: clients}
}

// service builds a Gmail client on a freshly authorized HTTP client so every
// call picks up token refreshes.
func (c *Connector) service(ctx context.Context) (*gmail.Service, error) {
	httpClient, err := c.clients.AuthorizedClient(ctx, domain.ConnectorTypeGmail)
	if err != nil {
		return nil, err
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}

	return service, nil
}

type MessageSummary struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
}

type listMessagesParams struct {
	Query      string `json:"query"`
	MaxResults int64  `json:"max_results"`
}

type getMessageParams struct {
	MessageID string `json:"message_id"`
}

type sendMessageParams struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (c *Connector) Tools(ctx context.Context) ([]tool.Tool, error) {
	return []tool.Tool{
		tool.Define(
			"gmail_list_messages",
			"List recent Gmail messages, optionally filtered by a Gmail search query.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":       map[string]any{"type": "string", "description": "Gmail search query, e.g. 'is:unread from:alice'"},
					"max_results": map[string]any{"type": "integer", "description": "Maximum messages to return, default 10"},
				},
			},
			func(ctx context.Context, args string) (string, error) {
				p := listMessagesParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				summaries, err := c.listMessages(ctx, p.Query, p.MaxResults)
				if err != nil {
					return "", err
				}

				return marshalResult(summaries)
			},
		),
		tool.Define(
			"gmail_get_message",
			"Get the full body of one Gmail message by its id.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message_id": map[string]any{"type": "string"},
				},
				"required": []any{"message_id"},
			},
			func(ctx context.Context, args string) (string, error) {
				p := getMessageParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				service, err := c.service(ctx)
				if err != nil {
					return "", err
				}

				message, err := service.Users.Messages.Get("me", p.MessageID).Format("full").Do()
				if err != nil {
					return "", fmt.Errorf("failed to get message %s: %w", p.MessageID, err)
				}

				return marshalResult(map[string]any{
					"id":      message.Id,
					"from":    headerValue(message, "From"),
					"to":      headerValue(message, "To"),
					"subject": headerValue(message, "Subject"),
					"date":    headerValue(message, "Date"),
					"body":    messageBody(message),
				})
			},
		),
		tool.Define(
			"gmail_send_message",
			"Send an email from the connected Gmail account.",
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

				service, err := c.service(ctx)
				if err != nil {
					return "", err
				}

				raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=\"UTF-8\"\r\n\r\n%s", p.To, p.Subject, p.Body)

				sent, err := service.Users.Messages.Send("me", &gmail.Message{
					Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
				}).Do()
				if err != nil {
					return "", fmt.Errorf("failed to send message: %w", err)
				}

				return marshalResult(map[string]any{"id": sent.Id, "thread_id": sent.ThreadId})
			},
		),
	}, nil
}

func (c *Connector) Fetch(ctx context.Context, key string) (any, error) {
	switch key {
	case "recent_messages":
		return c.listMessages(ctx, "", 10)
	case "unread_count":
		service, err := c.service(ctx)
		if err != nil {
			return nil, err
		}

		label, err := service.Users.Labels.Get("me", "UNREAD").Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get unread label: %w", err)
		}

		return map[string]any{"unread": label.MessagesUnread}, nil
	default:
		return nil, fmt.Errorf("unknown gmail cache key %s", key)
	}
}

func (c *Connector) TestConnection(ctx context.Context) (bool, error) {
	service, err := c.service(ctx)
	if err != nil {
		return false, err
	}

	profile, err := service.Users.GetProfile("me").Do()
	if err != nil {
		return false, fmt.Errorf("failed to authenticate with Gmail: %w", err)
	}

	if profile.EmailAddress == "" {
		return false, fmt.Errorf("Gmail API returned no profile information")
	}

	return true, nil
}

func (c *Connector) listMessages(ctx context.Context, query string, maxResults int64) ([]MessageSummary, error) {
	service, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	if maxResults <= 0 {
		maxResults = 10
	}

	call := service.Users.Messages.List("me").MaxResults(maxResults)
	if query != "" {
		call = call.Q(query)
	}

	list, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	summaries := make([]MessageSummary, 0, len(list.Messages))

	for _, ref := range list.Messages {
		message, err := service.Users.Messages.Get("me", ref.Id).Format("metadata").
			MetadataHeaders("From", "Subject", "Date").Do()
		if err != nil {
			return nil, fmt.Errorf("failed to get message %s: %w", ref.Id, err)
		}

		summaries = append(summaries, MessageSummary{
			ID:      message.Id,
			From:    headerValue(message, "From"),
			Subject: headerValue(message, "Subject"),
			Date:    headerValue(message, "Date"),
			Snippet: message.Snippet,
		})
	}

	return summaries, nil
}

func headerValue(message *gmail.Message, name string) string {
	if message.Payload == nil {
		return ""
	}

	for _, header := range message.Payload.Headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}

	return ""
}

// messageBody walks the payload tree and returns the first text/plain part.
func messageBody(message *gmail.Message) string {
	if message.Payload == nil {
		return message.Snippet
	}

	if body := partBody(message.Payload); body != "" {
		return body
	}

	return message.Snippet
}

func partBody(part *gmail.MessagePart) string {
	if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return ""
		}

		return string(decoded)
	}

	for _, child := range part.Parts {
		if body := partBody(child); body != "" {
			return body
		}
	}

	return ""
}

func marshalResult(v any) (string, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(resultJSON), nil
}
