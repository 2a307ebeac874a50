package gcalendar

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/pkg/ai/tool"
)

// Connector exposes Google Calendar as assistant tools and as a cacheable
// data source.
type Connector struct {
	clients domain.HTTPClientProvider
}

func NewConnector(clients domain.HTTPClientProvider) *Connector {
	return &Connector{clients: clients}
}

func (c *Connector) service(ctx context.Context) (*calendar.Service, error) {
	httpClient, err := c.clients.AuthorizedClient(ctx, domain.ConnectorTypeGoogleCalendar)
	if err != nil {
		return nil, err
	}

	service, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return service, nil
}

type EventSummary struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Location string `json:"location,omitempty"`
	Link     string `json:"link,omitempty"`
}

type listEventsParams struct {
	Days       int   `json:"days"`
	MaxResults int64 `json:"max_results"`
}

type createEventParams struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Location    string `json:"location"`
}

func (c *Connector) Tools(ctx context.Context) ([]tool.Tool, error) {
	return []tool.Tool{
		tool.Define(
			"calendar_list_events",
			"List upcoming events from the primary Google Calendar.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"days":        map[string]any{"type": "integer", "description": "How many days ahead to look, default 7"},
					"max_results": map[string]any{"type": "integer", "description": "Maximum events to return, default 10"},
				},
			},
			func(ctx context.Context, args string) (string, error) {
				p := listEventsParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				events, err := c.upcomingEvents(ctx, p.Days, p.MaxResults)
				if err != nil {
					return "", err
				}

				return marshalResult(events)
			},
		),
		tool.Define(
			"calendar_create_event",
			"Create an event on the primary Google Calendar. Times are RFC 3339, e.g. '2026-09-01T14:00:00+02:00'.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"summary":     map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
					"start":       map[string]any{"type": "string"},
					"end":         map[string]any{"type": "string"},
					"location":    map[string]any{"type": "string"},
				},
				"required": []any{"summary", "start", "end"},
			},
			func(ctx context.Context, args string) (string, error) {
				p := createEventParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				service, err := c.service(ctx)
				if err != nil {
					return "", err
				}

				event, err := service.Events.Insert("primary", &calendar.Event{
					Summary:     p.Summary,
					Description: p.Description,
					Location:    p.Location,
					Start:       &calendar.EventDateTime{DateTime: p.Start},
					End:         &calendar.EventDateTime{DateTime: p.End},
				}).Do()
				if err != nil {
					return "", fmt.Errorf("failed to create event: %w", err)
				}

				return marshalResult(map[string]any{"id": event.Id, "link": event.HtmlLink})
			},
		),
	}, nil
}

func (c *Connector) Fetch(ctx context.Context, key string) (any, error) {
	switch key {
	case "upcoming_events":
		return c.upcomingEvents(ctx, 7, 10)
	default:
		return nil, fmt.Errorf("unknown calendar cache key %s", key)
	}
}

func (c *Connector) TestConnection(ctx context.Context) (bool, error) {
	service, err := c.service(ctx)
	if err != nil {
		return false, err
	}

	list, err := service.CalendarList.List().MaxResults(1).Do()
	if err != nil {
		return false, fmt.Errorf("failed to authenticate with Google Calendar: %w", err)
	}

	if list == nil {
		return false, fmt.Errorf("Google Calendar API returned no calendar list")
	}

	return true, nil
}

func (c *Connector) upcomingEvents(ctx context.Context, days int, maxResults int64) ([]EventSummary, error) {
	service, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	if days <= 0 {
		days = 7
	}

	if maxResults <= 0 {
		maxResults = 10
	}

	now := time.Now()

	list, err := service.Events.List("primary").
		TimeMin(now.Format(time.RFC3339)).
		TimeMax(now.AddDate(0, 0, days).Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(maxResults).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	summaries := make([]EventSummary, 0, len(list.Items))

	for _, event := range list.Items {
		summaries = append(summaries, EventSummary{
			ID:       event.Id,
			Summary:  event.Summary,
			Start:    eventTime(event.Start),
			End:      eventTime(event.End),
			Location: event.Location,
			Link:     event.HtmlLink,
		})
	}

	return summaries, nil
}

func eventTime(t *calendar.EventDateTime) string {
	if t == nil {
		return ""
	}

	if t.DateTime != "" {
		return t.DateTime
	}

	return t.Date
}

func marshalResult(v any) (string, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(resultJSON), nil
}
