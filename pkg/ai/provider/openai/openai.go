package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/deskmate/deskmate/pkg/ai/provider"
	"github.com/deskmate/deskmate/pkg/ai/types"
)

// Provider implements the LanguageModel interface for OpenAI
type Provider struct {
	client *openai.Client
	model  string
}

// New creates a new OpenAI provider
func New(apiKey, model string) *Provider {
	return &Provider{
		client: openai.NewClientWithConfig(openai.DefaultConfig(apiKey)),
		model:  model,
	}
}

// ID returns the model identifier
func (p *Provider) ID() string {
	return fmt.Sprintf("openai:%s", p.model)
}

// Generate implements the Generate method of the LanguageModel interface
func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (*types.GenerateResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    p.convertMessages(req.Messages, req.System),
		Tools:       p.convertTools(req.Tools),
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}

	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, types.ErrEmptyResponse
	}

	choice := resp.Choices[0]
	response := &types.GenerateResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
		Usage: types.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}

	if len(choice.Message.ToolCalls) > 0 {
		response.ToolCalls = make([]types.ToolCall, len(choice.Message.ToolCalls))
		for i, tc := range choice.Message.ToolCalls {
			var args map[string]any
			if tc.Function.Arguments != "" {
				json.Unmarshal([]byte(tc.Function.Arguments), &args)
			}
			response.ToolCalls[i] = types.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: args,
			}
		}
	}

	return response, nil
}

// Stream implements the Stream method of the LanguageModel interface
func (p *Provider) Stream(ctx context.Context, req provider.GenerateRequest) (<-chan types.StreamEvent, <-chan error) {
	eventChan := make(chan types.StreamEvent, 100)
	errChan := make(chan error, 1)

	go func() {
		defer close(eventChan)
		defer close(errChan)

		chatReq := openai.ChatCompletionRequest{
			Model:    p.model,
			Messages: p.convertMessages(req.Messages, req.System),
			Stream:   true,
			StreamOptions: &openai.StreamOptions{
				IncludeUsage: true,
			},
			Tools:       p.convertTools(req.Tools),
			Temperature: req.Temperature,
			Stop:        req.Stop,
		}

		if req.MaxTokens > 0 {
			chatReq.MaxTokens = req.MaxTokens
		}

		stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
		if err != nil {
			errChan <- fmt.Errorf("openai stream error: %w", err)
			return
		}
		defer stream.Close()

		toolCallsMap := make(map[int]*toolCallBuilder)
		var totalUsage types.Usage
		var fullText string
		streamStarted := false

		for {
			response, err := stream.Recv()
			if err != nil {
				if err.Error() == "EOF" {
					break
				}
				errChan <- fmt.Errorf("stream recv error: %w", err)
				return
			}

			if !streamStarted {
				eventChan <- types.NewStreamStartEvent(response.Model, response.ID)
				streamStarted = true
			}

			// Usage comes in a special chunk with an empty choices array;
			// check it before the choices length.
			if response.Usage != nil {
				totalUsage = types.Usage{
					PromptTokens:     response.Usage.PromptTokens,
					CompletionTokens: response.Usage.CompletionTokens,
					TotalTokens:      response.Usage.TotalTokens,
				}
				eventChan <- types.NewUsageEvent(totalUsage)
			}

			if len(response.Choices) == 0 {
				continue
			}

			choice := response.Choices[0]
			delta := choice.Delta

			if delta.Content != "" {
				fullText += delta.Content
				eventChan <- types.NewTextDeltaEvent(delta.Content, choice.Index)
			}

			for _, tc := range delta.ToolCalls {
				if tc.Index == nil {
					continue
				}
				index := *tc.Index
				if _, exists := toolCallsMap[index]; !exists {
					toolCallsMap[index] = &toolCallBuilder{
						id:   tc.ID,
						name: tc.Function.Name,
					}
					if tc.ID != "" {
						eventChan <- types.NewToolCallStartEvent(tc.ID, tc.Function.Name, index)
					}
				}

				if tc.Function.Arguments != "" {
					toolCallsMap[index].arguments += tc.Function.Arguments
					eventChan <- types.NewToolCallDeltaEvent(toolCallsMap[index].id, tc.Function.Arguments, index)
				}
			}

			if choice.FinishReason != "" {
				eventChan <- types.NewFinishReasonEvent(string(choice.FinishReason))
			}
		}

		if fullText != "" {
			eventChan <- types.NewTextCompleteEvent(fullText)
		}

		for index, builder := range toolCallsMap {
			var args map[string]any
			if builder.arguments != "" {
				json.Unmarshal([]byte(builder.arguments), &args)
			}
			eventChan <- types.NewToolCallCompleteEvent(types.ToolCall{
				ID:        builder.id,
				Name:      builder.name,
				Arguments: args,
			}, index)
		}

		eventChan <- types.NewStreamEndEvent("stop", totalUsage)
	}()

	return eventChan, errChan
}

// Helper type for building tool calls from deltas
type toolCallBuilder struct {
	id        string
	name      string
	arguments string
}

func (p *Provider) convertMessages(messages []types.Message, system string) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}

		if len(msg.ToolCalls) > 0 {
			toolCalls := make([]openai.ToolCall, len(msg.ToolCalls))
			for i, tc := range msg.ToolCalls {
				argsJSON, _ := json.Marshal(tc.Arguments)
				toolCalls[i] = openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(argsJSON),
					},
				}
			}
			oaiMsg.ToolCalls = toolCalls
		}

		// Tool results become separate tool messages
		if len(msg.ToolResults) > 0 {
			if len(msg.ToolCalls) > 0 {
				result = append(result, oaiMsg)
			}
			for _, toolResult := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    toolResult.Content,
					ToolCallID: toolResult.ToolCallID,
				})
			}
		} else {
			result = append(result, oaiMsg)
		}
	}

	return result
}

func (p *Provider) convertTools(tools []types.Tool) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		}
	}
	return result
}
