package types

import "errors"

// ErrEmptyResponse is returned when a provider yields no choices.
var ErrEmptyResponse = errors.New("empty response from provider")

// GenerateResponse represents a response from text generation
type GenerateResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Usage        Usage      `json:"usage"`
	FinishReason string     `json:"finish_reason"`
	Model        string     `json:"model"`
}
