package provider

import (
	"context"

	"github.com/deskmate/deskmate/pkg/ai/types"
)

// LanguageModel defines the interface that all LLM providers must implement
type LanguageModel interface {
	// Generate produces a complete response (blocking)
	Generate(ctx context.Context, req GenerateRequest) (*types.GenerateResponse, error)

	// Stream produces a streaming response via channel
	Stream(ctx context.Context, req GenerateRequest) (<-chan types.StreamEvent, <-chan error)

	// ID returns the unique identifier for this model
	ID() string
}

// GenerateRequest contains all parameters for generating text
type GenerateRequest struct {
	// Messages is the conversation history
	Messages []types.Message `json:"messages"`

	// System is an optional system prompt
	System string `json:"system,omitempty"`

	// Tools is a list of tools available to the model
	Tools []types.Tool `json:"tools,omitempty"`

	// Temperature controls randomness (0.0 to 2.0)
	Temperature float32 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `json:"max_tokens,omitempty"`

	// Stop sequences where generation should stop
	Stop []string `json:"stop,omitempty"`
}
