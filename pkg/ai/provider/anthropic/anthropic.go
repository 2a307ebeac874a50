package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/deskmate/deskmate/pkg/ai/provider"
	"github.com/deskmate/deskmate/pkg/ai/types"
)

// Provider implements the LanguageModel interface for Anthropic Claude
type Provider struct {
	client anthropic.Client
	model  string
	config Config
}

// Config holds Anthropic-specific configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// New creates a new Anthropic provider
func New(apiKey, model string) *Provider {
	return NewWithConfig(Config{APIKey: apiKey, Model: model})
}

// NewWithConfig creates a new Anthropic provider with custom configuration
func NewWithConfig(config Config) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}

	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Provider{
		client: anthropic.NewClient(opts...),
		model:  config.Model,
		config: config,
	}
}

// ID returns the model identifier
func (p *Provider) ID() string {
	return fmt.Sprintf("anthropic:%s", p.model)
}

func (p *Provider) buildRequest(req provider.GenerateRequest) anthropic.MessageNewParams {
	messages, system := p.convertMessages(req.Messages, req.System)

	msgReq := anthropic.MessageNewParams{
		Model:    anthropic.Model(p.model),
		Messages: messages,
	}

	if len(system) > 0 {
		msgReq.System = system
	}

	if req.MaxTokens > 0 {
		msgReq.MaxTokens = int64(req.MaxTokens)
	} else if p.config.MaxTokens > 0 {
		msgReq.MaxTokens = int64(p.config.MaxTokens)
	} else {
		// Anthropic requires max_tokens, set a reasonable default
		msgReq.MaxTokens = int64(4096)
	}

	if req.Temperature > 0 {
		msgReq.Temperature = anthropic.Float(float64(req.Temperature))
	} else if p.config.Temperature > 0 {
		msgReq.Temperature = anthropic.Float(float64(p.config.Temperature))
	}

	if len(req.Stop) > 0 {
		msgReq.StopSequences = req.Stop
	}

	if tools := p.convertTools(req.Tools); len(tools) > 0 {
		msgReq.Tools = tools
	}

	return msgReq
}

// Generate implements the Generate method of the LanguageModel interface
func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (*types.GenerateResponse, error) {
	resp, err := p.client.Messages.New(ctx, p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	response := &types.GenerateResponse{
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		Usage: types.Usage{
			PromptTokens:      int(resp.Usage.InputTokens),
			CompletionTokens:  int(resp.Usage.OutputTokens),
			TotalTokens:       int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			CachedInputTokens: int(resp.Usage.CacheReadInputTokens),
		},
	}

	var textContent strings.Builder
	var toolCalls []types.ToolCall

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textContent.WriteString(block.Text)
		case "tool_use":
			args := make(map[string]any)
			if len(block.Input) > 0 {
				json.Unmarshal(block.Input, &args)
			}
			toolCalls = append(toolCalls, types.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	response.Content = textContent.String()
	response.ToolCalls = toolCalls

	return response, nil
}

// Stream implements the Stream method of the LanguageModel interface
func (p *Provider) Stream(ctx context.Context, req provider.GenerateRequest) (<-chan types.StreamEvent, <-chan error) {
	eventChan := make(chan types.StreamEvent, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(eventChan)
		defer close(errChan)

		stream := p.client.Messages.NewStreaming(ctx, p.buildRequest(req))

		toolCallBuilders := make(map[int]*toolCallBuilder)
		var fullText string
		var totalUsage types.Usage
		streamStarted := false

		for stream.Next() {
			event := stream.Current()

			switch event.Type {
			case "message_start":
				messageStart := event.Message
				if !streamStarted {
					eventChan <- types.NewStreamStartEvent(string(messageStart.Model), messageStart.ID)
					streamStarted = true
				}

				totalUsage.PromptTokens = int(messageStart.Usage.InputTokens)
				totalUsage.CachedInputTokens = int(messageStart.Usage.CacheReadInputTokens)
				eventChan <- types.NewUsageEvent(totalUsage)

			case "content_block_start":
				block := event.ContentBlock
				index := int(event.Index)

				if block.Type == "tool_use" {
					toolCallBuilders[index] = &toolCallBuilder{id: block.ID, name: block.Name}
					eventChan <- types.NewToolCallStartEvent(block.ID, block.Name, index)
				}

			case "content_block_delta":
				delta := event.Delta
				index := int(event.Index)

				switch delta.Type {
				case "text_delta":
					fullText += delta.Text
					eventChan <- types.NewTextDeltaEvent(delta.Text, index)

				case "input_json_delta":
					if builder, exists := toolCallBuilders[index]; exists {
						builder.arguments += delta.PartialJSON
						eventChan <- types.NewToolCallDeltaEvent(builder.id, delta.PartialJSON, index)
					}
				}

			case "content_block_stop":
				index := int(event.Index)
				if builder, exists := toolCallBuilders[index]; exists {
					args := make(map[string]any)
					if builder.arguments != "" {
						json.Unmarshal([]byte(builder.arguments), &args)
					}
					eventChan <- types.NewToolCallCompleteEvent(types.ToolCall{
						ID:        builder.id,
						Name:      builder.name,
						Arguments: args,
					}, index)
				}

			case "message_delta":
				totalUsage.CompletionTokens = int(event.Usage.OutputTokens)
				totalUsage.TotalTokens = totalUsage.PromptTokens + totalUsage.CompletionTokens
				eventChan <- types.NewUsageEvent(totalUsage)

				if event.Delta.StopReason != "" {
					eventChan <- types.NewFinishReasonEvent(string(event.Delta.StopReason))
				}

			case "message_stop":
				if fullText != "" {
					eventChan <- types.NewTextCompleteEvent(fullText)
				}
				eventChan <- types.NewStreamEndEvent("stop", totalUsage)
			}
		}

		if err := stream.Err(); err != nil {
			errChan <- fmt.Errorf("anthropic stream error: %w", err)
			return
		}
	}()

	return eventChan, errChan
}

// Helper type for building tool calls from deltas
type toolCallBuilder struct {
	id        string
	name      string
	arguments string
}

// convertMessages converts messages to Anthropic format and extracts system messages
func (p *Provider) convertMessages(messages []types.Message, systemPrompt string) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	var systemTexts []string
	if systemPrompt != "" {
		systemTexts = append(systemTexts, systemPrompt)
	}

	for _, msg := range messages {
		if msg.Role == types.RoleSystem {
			systemTexts = append(systemTexts, msg.Content)
			continue
		}

		var contentBlocks []anthropic.ContentBlockParamUnion

		if msg.Content != "" {
			contentBlocks = append(contentBlocks, anthropic.NewTextBlock(msg.Content))
		}

		if msg.Role == types.RoleAssistant && len(msg.ToolCalls) > 0 {
			for _, tc := range msg.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = make(map[string]any)
				}
				contentBlocks = append(contentBlocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
		}

		if len(msg.ToolResults) > 0 {
			for _, tr := range msg.ToolResults {
				contentBlocks = append(contentBlocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
		}

		role := anthropic.MessageParamRole(msg.Role)

		// Tool role messages become user messages in Anthropic with tool_result blocks
		if msg.Role == types.RoleTool {
			role = anthropic.MessageParamRoleUser
		}

		if len(contentBlocks) > 0 {
			result = append(result, anthropic.MessageParam{
				Role:    role,
				Content: contentBlocks,
			})
		}
	}

	var system []anthropic.TextBlockParam
	if len(systemTexts) > 0 {
		system = []anthropic.TextBlockParam{{
			Text: strings.Join(systemTexts, "\n\n"),
			Type: "text",
		}}
	}

	return result, system
}

// convertTools converts tools to Anthropic format
func (p *Provider) convertTools(tools []types.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: "object",
		}

		if properties, ok := tool.Parameters["properties"]; ok {
			inputSchema.Properties = properties
		}

		if required, ok := tool.Parameters["required"].([]any); ok {
			reqStrings := make([]string, 0, len(required))
			for _, r := range required {
				if s, ok := r.(string); ok {
					reqStrings = append(reqStrings, s)
				}
			}
			inputSchema.Required = reqStrings
		} else if required, ok := tool.Parameters["required"].([]string); ok {
			inputSchema.Required = required
		}

		result[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: inputSchema,
			},
		}
	}

	return result
}
