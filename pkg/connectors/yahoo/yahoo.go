package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/pkg/ai/tool"
)

const (
	mailAPIBase     = "https://mail.yahooapis.com/ws/v3"
	userinfoURL     = "https://api.login.yahoo.com/openid/v1/userinfo"
	defaultPageSize = 10
)

// Connector exposes Yahoo Mail as assistant tools and as a cacheable data
// source. Yahoo has no Go SDK; calls go straight to its JSON API over the
// authorized client.
type Connector struct {
	clients domain.HTTPClientProvider
}

func NewConnector(clients domain.HTTPClientProvider) *Connector {
	return &Connector{clients: clients}
}

type MessageSummary struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Snippet string `json:"snippet"`
}

type messageListResponse struct {
	Messages []struct {
		ID      string `json:"id"`
		Snippet string `json:"snippet"`
		Headers struct {
			Subject string `json:"subject"`
			From    []struct {
				Email string `json:"email"`
				Name  string `json:"name"`
			} `json:"from"`
		} `json:"headers"`
	} `json:"messages"`
}

type listMessagesParams struct {
	MaxResults int `json:"max_results"`
}

func (c *Connector) Tools(ctx context.Context) ([]tool.Tool, error) {
	return []tool.Tool{
		tool.Define(
			"yahoo_list_messages",
			"List the most recent messages from the Yahoo Mail inbox.",
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

				resultJSON, err := json.Marshal(messages)
				if err != nil {
					return "", err
				}

				return string(resultJSON), nil
			},
		),
	}, nil
}

func (c *Connector) Fetch(ctx context.Context, key string) (any, error) {
	switch key {
	case "recent_messages":
		return c.recentMessages(ctx, defaultPageSize)
	default:
		return nil, fmt.Errorf("unknown yahoo cache key %s", key)
	}
}

func (c *Connector) TestConnection(ctx context.Context) (bool, error) {
	userinfo := struct {
		Sub   string `json:"sub"`
		Email string `json:"email"`
	}{}

	if err := c.getJSON(ctx, userinfoURL, &userinfo); err != nil {
		return false, fmt.Errorf("failed to authenticate with Yahoo: %w", err)
	}

	if userinfo.Sub == "" {
		return false, fmt.Errorf("Yahoo userinfo returned no subject")
	}

	return true, nil
}

func (c *Connector) recentMessages(ctx context.Context, maxResults int) ([]MessageSummary, error) {
	if maxResults <= 0 {
		maxResults = defaultPageSize
	}

	url := fmt.Sprintf("%s/mailboxes/@.id==primary/messages?count=%d&sortOrder=desc", mailAPIBase, maxResults)

	listResponse := messageListResponse{}
	if err := c.getJSON(ctx, url, &listResponse); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	summaries := make([]MessageSummary, 0, len(listResponse.Messages))

	for _, message := range listResponse.Messages {
		summary := MessageSummary{
			ID:      message.ID,
			Subject: message.Headers.Subject,
			Snippet: message.Snippet,
		}

		if len(message.Headers.From) > 0 {
			summary.From = message.Headers.From[0].Email
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (c *Connector) getJSON(ctx context.Context, url string, out any) error {
	httpClient, err := c.clients.AuthorizedClient(ctx, domain.ConnectorTypeYahooMail)
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	request.Header.Set("Accept", "application/json")

	response, err := httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))
		return fmt.Errorf("yahoo api returned %d: %s", response.StatusCode, string(body))
	}

	return json.NewDecoder(response.Body).Decode(out)
}
