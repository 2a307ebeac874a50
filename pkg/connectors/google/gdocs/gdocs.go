package gdocs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/api/docs/v1"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/deskmate/deskmate/internal/domain"
	"github.com/deskmate/deskmate/pkg/ai/tool"
)

// Connector exposes Google Docs as assistant tools and as a cacheable data
// source. Document listing goes through the Drive API; the Docs API itself
// has no list call.
type Connector struct {
	clients domain.HTTPClientProvider
}

func NewConnector(clients domain.HTTPClientProvider) *Connector {
	return &Connector{clients: clients}
}

func (c *Connector) docsService(ctx context.Context) (*docs.Service, error) {
	httpClient, err := c.clients.AuthorizedClient(ctx, domain.ConnectorTypeGoogleDocs)
	if err != nil {
		return nil, err
	}

	service, err := docs.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create docs service: %w", err)
	}

	return service, nil
}

func (c *Connector) driveService(ctx context.Context) (*drive.Service, error) {
	httpClient, err := c.clients.AuthorizedClient(ctx, domain.ConnectorTypeGoogleDocs)
	if err != nil {
		return nil, err
	}

	service, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return service, nil
}

type DocumentSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	ModifiedTime string `json:"modified_time"`
}

type readDocumentParams struct {
	DocumentID string `json:"document_id"`
}

type createDocumentParams struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (c *Connector) Tools(ctx context.Context) ([]tool.Tool, error) {
	return []tool.Tool{
		tool.Define(
			"docs_read_document",
			"Read the plain-text content of a Google Doc by its id.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"document_id": map[string]any{"type": "string"},
				},
				"required": []any{"document_id"},
			},
			func(ctx context.Context, args string) (string, error) {
				p := readDocumentParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				service, err := c.docsService(ctx)
				if err != nil {
					return "", err
				}

				document, err := service.Documents.Get(p.DocumentID).Do()
				if err != nil {
					return "", fmt.Errorf("failed to get document %s: %w", p.DocumentID, err)
				}

				return marshalResult(map[string]any{
					"id":    document.DocumentId,
					"title": document.Title,
					"text":  documentText(document),
				})
			},
		),
		tool.Define(
			"docs_create_document",
			"Create a new Google Doc with a title and optional initial body text.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{"type": "string"},
					"body":  map[string]any{"type": "string"},
				},
				"required": []any{"title"},
			},
			func(ctx context.Context, args string) (string, error) {
				p := createDocumentParams{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				service, err := c.docsService(ctx)
				if err != nil {
					return "", err
				}

				document, err := service.Documents.Create(&docs.Document{Title: p.Title}).Do()
				if err != nil {
					return "", fmt.Errorf("failed to create document: %w", err)
				}

				if p.Body != "" {
					_, err = service.Documents.BatchUpdate(document.DocumentId, &docs.BatchUpdateDocumentRequest{
						Requests: []*docs.Request{
							{
								InsertText: &docs.InsertTextRequest{
									Text:     p.Body,
									Location: &docs.Location{Index: 1},
								},
							},
						},
					}).Do()
					if err != nil {
						return "", fmt.Errorf("failed to write document body: %w", err)
					}
				}

				return marshalResult(map[string]any{"id": document.DocumentId, "title": document.Title})
			},
		),
		tool.Define(
			"docs_list_recent_documents",
			"List the most recently modified Google Docs.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"max_results": map[string]any{"type": "integer", "description": "Maximum documents to return, default 10"},
				},
			},
			func(ctx context.Context, args string) (string, error) {
				p := struct {
					MaxResults int64 `json:"max_results"`
				}{}
				if err := json.Unmarshal([]byte(args), &p); err != nil {
					return "", err
				}

				documents, err := c.recentDocuments(ctx, p.MaxResults)
				if err != nil {
					return "", err
				}

				return marshalResult(documents)
			},
		),
	}, nil
}

func (c *Connector) Fetch(ctx context.Context, key string) (any, error) {
	switch key {
	case "recent_documents":
		return c.recentDocuments(ctx, 10)
	default:
		return nil, fmt.Errorf("unknown docs cache key %s", key)
	}
}

func (c *Connector) TestConnection(ctx context.Context) (bool, error) {
	service, err := c.driveService(ctx)
	if err != nil {
		return false, err
	}

	about, err := service.About.Get().Fields("user(emailAddress)").Do()
	if err != nil {
		return false, fmt.Errorf("failed to authenticate with Google Docs: %w", err)
	}

	if about.User == nil {
		return false, fmt.Errorf("Google Docs API returned no user information")
	}

	return true, nil
}

func (c *Connector) recentDocuments(ctx context.Context, maxResults int64) ([]DocumentSummary, error) {
	service, err := c.driveService(ctx)
	if err != nil {
		return nil, err
	}

	if maxResults <= 0 {
		maxResults = 10
	}

	list, err := service.Files.List().
		Q("mimeType = 'application/vnd.google-apps.document' and trashed = false").
		OrderBy("modifiedTime desc").
		PageSize(maxResults).
		Fields("files(id,name,modifiedTime)").
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	summaries := make([]DocumentSummary, 0, len(list.Files))

	for _, file := range list.Files {
		summaries = append(summaries, DocumentSummary{
			ID:           file.Id,
			Title:        file.Name,
			ModifiedTime: file.ModifiedTime,
		})
	}

	return summaries, nil
}

// documentText flattens the structural elements of a doc into plain text.
func documentText(document *docs.Document) string {
	if document.Body == nil {
		return ""
	}

	var sb strings.Builder

	for _, element := range document.Body.Content {
		if element.Paragraph == nil {
			continue
		}

		for _, pe := range element.Paragraph.Elements {
			if pe.TextRun != nil {
				sb.WriteString(pe.TextRun.Content)
			}
		}
	}

	return sb.String()
}

func marshalResult(v any) (string, error) {
	resultJSON, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(resultJSON), nil
}
