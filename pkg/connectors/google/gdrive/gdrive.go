package gdrive

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/pkg/ai/tool"
)

const fileFields = "files(id,name,mimeType,modifiedTime,webViewLink,owners(emailAddress))"

// Connector exposes Google Drive as assistant tools and as a cacheable data
// source.
type Connector struct {
	clients domain.HTTPClientProvider
}

func NewConnector(clients domain.HTTPClientProvider) *Connector {
	return &Connector{clients: clients}
}

func (c *Connector) service(ctx context.Context) (*drive.Service, error) {
	httpClient, err := c.clients.AuthorizedClient(ctx, domain.ConnectorTypeGoogleDrive)
	if err != nil {
		return nil, err
	}

	service, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return service, nil
}

type FileSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mime_type"`
	ModifiedTime string `json:"modified_time"`
	WebViewLink  string `json:"web_view_link,omitempty"`
}

type searchFilesParams struct {
	Query      string `json:"query"`
	MaxResults int64  `json:"max_results"`
}

type getFileParams struct {
	FileID string `json:"file_id"`
}

func (c *Connector) Tools(ctx context.Context) ([]tool.Tool, error) {
	return []tool.Tool{
		tool.Define(
			"drive_search_files",
			"Search Google Drive files by name. Returns file ids, names and links.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query":       map[string]any{"type": "string", "description": "Text matched against file names"},
					"max_results": map[string]any{"type": "integer", "description": "Maximum files to return, default 10"},
				},
				"required": []any{"query"},
			},
			func(ctx context.Context, args string) (string, error) {
				p := searchFilesParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				service, err := c.service(ctx)
				if err != nil {
					return "", err
				}

				if p.MaxResults <= 0 {
					p.MaxResults = 10
				}

				list, err := service.Files.List().
					Q(fmt.Sprintf("name contains '%s' and trashed = false", escapeQuery(p.Query))).
					PageSize(p.MaxResults).
					Fields(fileFields).
					Do()
				if err != nil {
					return "", fmt.Errorf("failed to search files: %w", err)
				}

				return marshalResult(summarize(list.Files))
			},
		),
		tool.Define(
			"drive_list_recent_files",
			"List the most recently modified files in Google Drive.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"max_results": map[string]any{"type": "integer", "description": "Maximum files to return, default 10"},
				},
			},
			func(ctx context.Context, args string) (string, error) {
				p := searchFilesParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				files, err := c.recentFiles(ctx, p.MaxResults)
				if err != nil {
					return "", err
				}

				return marshalResult(files)
			},
		),
		tool.Define(
			"drive_get_file",
			"Get metadata for one Google Drive file by its id.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_id": map[string]any{"type": "string"},
				},
				"required": []any{"file_id"},
			},
			func(ctx context.Context, args string) (string, error) {
				p := getFileParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				service, err := c.service(ctx)
				if err != nil {
					return "", err
				}

				file, err := service.Files.Get(p.FileID).
					Fields("id,name,mimeType,modifiedTime,webViewLink,size,owners(emailAddress)").
					Do()
				if err != nil {
					return "", fmt.Errorf("failed to get file %s: %w", p.FileID, err)
				}

				return marshalResult(file)
			},
		),
	}, nil
}

func (c *Connector) Fetch(ctx context.Context, key string) (any, error) {
	switch key {
	case "recent_files":
		return c.recentFiles(ctx, 10)
	default:
		return nil, fmt.Errorf("unknown drive cache key %s", key)
	}
}

func (c *Connector) TestConnection(ctx context.Context) (bool, error) {
	service, err := c.service(ctx)
	if err != nil {
		return false, err
	}

	about, err := service.About.Get().Fields("user(displayName,emailAddress)").Do()
	if err != nil {
		return false, fmt.Errorf("failed to authenticate with Google Drive: %w", err)
	}

	if about.User == nil {
		return false, fmt.Errorf("Google Drive API returned no user information")
	}

	return true, nil
}

func (c *Connector) recentFiles(ctx context.Context, maxResults int64) ([]FileSummary, error) {
	service, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	if maxResults <= 0 {
		maxResults = 10
	}

	list, err := service.Files.List().
		Q("trashed = false").
		OrderBy("modifiedTime desc").
		PageSize(maxResults).
		Fields(fileFields).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return summarize(list.Files), nil
}

func summarize(files []*drive.File) []FileSummary {
	summaries := make([]FileSummary, 0, len(files))

	for _, file := range files {
		summaries = append(summaries, FileSummary{
			ID:           file.Id,
			Name:         file.Name,
			MimeType:     file.MimeType,
			ModifiedTime: file.ModifiedTime,
			WebViewLink:  file.WebViewLink,
		})
	}

	return summaries
}

func escapeQuery(query string) string {
	escaped := make([]rune, 0, len(query))

	for _, r := range query {
		if r == '\'' || r == '\\' {
			escaped = append(escaped, '\\')
		}

		escaped = append(escaped, r)
	}

	return string(escaped)
}

func marshalResult(v any) (string, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(resultJSON), nil
}
