package gsheets

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/pkg/ai/tool"
)

// Connector exposes Google Sheets as assistant tools and as a cacheable data
// source. Spreadsheet listing goes through the Drive API.
type Connector struct {
	clients domain.HTTPClientProvider
}

func NewConnector(clients domain.HTTPClientProvider) *Connector {
	return &Connector{clients: clients}
}

func (c *Connector) sheetsService(ctx context.Context) (*sheets.Service, error) {
	httpClient, err := c.clients.AuthorizedClient(ctx, domain.ConnectorTypeGoogleSheets)
	if err != nil {
		return nil, err
	}

	service, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return service, nil
}

func (c *Connector) driveService(ctx context.Context) (*drive.Service, error) {
	httpClient, err := c.clients.AuthorizedClient(ctx, domain.ConnectorTypeGoogleSheets)
	if err != nil {
		return nil, err
	}

	service, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return service, nil
}

type SpreadsheetSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ModifiedTime string `json:"modified_time"`
}

type readRangeParams struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	Range         string `json:"range"`
}

type appendRowParams struct {
	SpreadsheetID string   `json:"spreadsheet_id"`
	Range         string   `json:"range"`
	Values        []string `json:"values"`
}

func (c *Connector) Tools(ctx context.Context) ([]tool.Tool, error) {
	return []tool.Tool{
		tool.Define(
			"sheets_read_range",
			"Read cell values from a Google Sheet. Range uses A1 notation, e.g. 'Sheet1!A1:D20'.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"spreadsheet_id": map[string]any{"type": "string"},
					"range":          map[string]any{"type": "string"},
				},
				"required": []any{"spreadsheet_id", "range"},
			},
			func(ctx context.Context, args string) (string, error) {
				p := readRangeParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				service, err := c.sheetsService(ctx)
				if err != nil {
					return "", err
				}

				values, err := service.Spreadsheets.Values.Get(p.SpreadsheetID, p.Range).Do()
				if err != nil {
					return "", fmt.Errorf("failed to read range %s: %w", p.Range, err)
				}

				return marshalResult(map[string]any{"range": values.Range, "values": values.Values})
			},
		),
		tool.Define(
			"sheets_append_row",
			"Append one row of values to a Google Sheet range.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"spreadsheet_id": map[string]any{"type": "string"},
					"range":          map[string]any{"type": "string", "description": "A1 range the row is appended after, e.g. 'Sheet1!A1'"},
					"values":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []any{"spreadsheet_id", "range", "values"},
			},
			func(ctx context.Context, args string) (string, error) {
				p := appendRowParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				service, err := c.sheetsService(ctx)
				if err != nil {
					return "", err
				}

				row := make([]any, 0, len(p.Values))
				for _, value := range p.Values {
					row = append(row, value)
				}

				result, err := service.Spreadsheets.Values.Append(p.SpreadsheetID, p.Range, &sheets.ValueRange{
					Values: [][]any{row},
				}).ValueInputOption("USER_ENTERED").Do()
				if err != nil {
					return "", fmt.Errorf("failed to append row: %w", err)
				}

				return marshalResult(map[string]any{"updated_range": result.Updates.UpdatedRange})
			},
		),
		tool.Define(
			"sheets_list_recent_spreadsheets",
			"List the most recently modified Google Sheets.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"max_results": map[string]any{"type": "integer", "description": "Maximum spreadsheets to return, default 10"},
				},
			},
			func(ctx context.Context, args string) (string, error) {
				p := struct {
					MaxResults int64 `json:"max_results"`
				}{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				spreadsheets, err := c.recentSpreadsheets(ctx, p.MaxResults)
				if err != nil {
					return "", err
				}

				return marshalResult(spreadsheets)
			},
		),
	}, nil
}

func (c *Connector) Fetch(ctx context.Context, key string) (any, error) {
	switch key {
	case "recent_spreadsheets":
		return c.recentSpreadsheets(ctx, 10)
	default:
		return nil, fmt.Errorf("unknown sheets cache key %s", key)
	}
}

func (c *Connector) TestConnection(ctx context.Context) (bool, error) {
	service, err := c.driveService(ctx)
	if err != nil {
		return false, err
	}

	about, err := service.About.Get().Fields("user(emailAddress)").Do()
	if err != nil {
		return false, fmt.Errorf("failed to authenticate with Google Sheets: %w", err)
	}

	if about.User == nil {
		return false, fmt.Errorf("Google Sheets API returned no user information")
	}

	return true, nil
}

func (c *Connector) recentSpreadsheets(ctx context.Context, maxResults int64) ([]SpreadsheetSummary, error) {
	service, err := c.driveService(ctx)
	if err != nil {
		return nil, err
	}

	if maxResults <= 0 {
		maxResults = 10
	}

	list, err := service.Files.List().
		Q("mimeType = 'application/vnd.google-apps.spreadsheet' and trashed = false").
		OrderBy("modifiedTime desc").
		PageSize(maxResults).
		Fields("files(id,name,modifiedTime)").
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list spreadsheets: %w", err)
	}

	summaries := make([]SpreadsheetSummary, 0, len(list.Files))

	for _, file := range list.Files {
		summaries = append(summaries, SpreadsheetSummary{
			ID:           file.Id,
			Title:        file.Name,
			ModifiedTime: file.ModifiedTime,
		})
	}

	return summaries, nil
}

func marshalResult(v any) (string, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(resultJSON), nil
}
