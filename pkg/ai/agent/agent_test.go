package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deskmate/deskmate/pkg/ai/provider"
	"github.com/deskmate/deskmate/pkg/ai/tool"
	"github.com/deskmate/deskmate/pkg/ai/types"
)

// scriptedModel emits a fixed text plus optional tool calls on every step.
type scriptedModel struct {
	text        string
	toolCalls   []types.ToolCall
	alwaysCall  bool
	streamCalls int
	failNthCall int
	requests    []provider.GenerateRequest
}

func (m *scriptedModel) ID() string {
	return "scripted:test"
}

func (m *scriptedModel) Generate(ctx context.Context, req provider.GenerateRequest) (*types.GenerateResponse, error) {
	return &types.GenerateResponse{Content: m.text}, nil
}

func (m *scriptedModel) Stream(ctx context.Context, req provider.GenerateRequest) (<-chan types.StreamEvent, <-chan error) {
	m.streamCalls++
	m.requests = append(m.requests, req)

	events := make(chan types.StreamEvent, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		if m.failNthCall > 0 && m.streamCalls == m.failNthCall {
			errs <- errors.New("provider unavailable")
			return
		}

		events <- types.NewStreamStartEvent("scripted", "req-1")

		if m.text != "" {
			events <- types.NewTextDeltaEvent(m.text, 0)
		}

		if m.alwaysCall {
			for i, tc := range m.toolCalls {
				events <- types.NewToolCallCompleteEvent(tc, i)
			}
			events <- types.NewFinishReasonEvent(types.FinishReasonToolUse)
		} else {
			events <- types.NewFinishReasonEvent(types.FinishReasonStop)
		}

		events <- types.NewStreamEndEvent(types.FinishReasonStop, types.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	}()

	return events, errs
}

func echoTool(name string) tool.Tool {
	return tool.Define(name, "echoes its arguments", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required": []any{"query"},
	}, func(ctx context.Context, args string) (string, error) {
		return "echo:" + args, nil
	})
}

func TestAgent_PlainTextTurnFinishesInOneStep(t *testing.T) {
	model := &scriptedModel{text: "hello there"}

	a, err := New(WithModel(model), WithMaxSteps(5))
	require.NoError(t, err)

	result, err := a.Run(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}})
	require.NoError(t, err)

	assert.Equal(t, "hello there", result.Content)
	assert.Len(t, result.Steps, 1)
	assert.Equal(t, types.FinishReasonStop, result.FinishReason)
	assert.Equal(t, 1, model.streamCalls)
}

func TestAgent_AlwaysCallingModelTerminatesAtBound(t *testing.T) {
	model := &scriptedModel{
		text:       "working on it",
		alwaysCall: true,
		toolCalls: []types.ToolCall{
			{ID: "call-1", Name: "echo", Arguments: map[string]any{"query": "x"}},
		},
	}

	a, err := New(WithModel(model), WithMaxSteps(3), WithTools(echoTool("echo")))
	require.NoError(t, err)

	result, err := a.Run(context.Background(), []types.Message{{Role: types.RoleUser, Content: "loop forever"}})
	require.NoError(t, err)

	assert.Equal(t, 3, model.streamCalls)
	assert.Len(t, result.Steps, 3)
	assert.Equal(t, types.FinishReasonMaxSteps, result.FinishReason)
	assert.NotEmpty(t, result.Content)
}

func TestAgent_ToolResultsFedBackToModel(t *testing.T) {
	model := &scriptedModel{
		text:       "checking",
		alwaysCall: true,
		toolCalls: []types.ToolCall{
			{ID: "call-1", Name: "echo", Arguments: map[string]any{"query": "inbox"}},
		},
	}

	a, err := New(WithModel(model), WithMaxSteps(2), WithTools(echoTool("echo")))
	require.NoError(t, err)

	_, err = a.Run(context.Background(), []types.Message{{Role: types.RoleUser, Content: "check my mail"}})
	require.NoError(t, err)

	require.Len(t, model.requests, 2)

	// The second request must carry the assistant tool call and its result.
	second := model.requests[1]
	require.Len(t, second.Messages, 3)
	assert.Equal(t, types.RoleAssistant, second.Messages[1].Role)
	require.Len(t, second.Messages[1].ToolCalls, 1)
	assert.Equal(t, types.RoleTool, second.Messages[2].Role)
	require.Len(t, second.Messages[2].ToolResults, 1)
	assert.Contains(t, second.Messages[2].ToolResults[0].Content, "echo:")
	assert.False(t, second.Messages[2].ToolResults[0].IsError)
}

func TestAgent_FailingToolBecomesErrorResult(t *testing.T) {
	failing := tool.Define("broken", "always fails", map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}, func(ctx context.Context, args string) (string, error) {
		return "", fmt.Errorf("upstream exploded")
	})

	model := &scriptedModel{
		text:       "trying",
		alwaysCall: true,
		toolCalls: []types.ToolCall{
			{ID: "call-1", Name: "broken", Arguments: map[string]any{}},
		},
	}

	a, err := New(WithModel(model), WithMaxSteps(2), WithTools(failing))
	require.NoError(t, err)

	result, err := a.Run(context.Background(), []types.Message{{Role: types.RoleUser, Content: "go"}})
	require.NoError(t, err)

	require.NotEmpty(t, result.Steps)
	require.Len(t, result.Steps[0].ToolResults, 1)
	assert.True(t, result.Steps[0].ToolResults[0].IsError)
	assert.Contains(t, result.Steps[0].ToolResults[0].Content, "upstream exploded")
}

func TestAgent_InvalidToolArgumentsRejected(t *testing.T) {
	model := &scriptedModel{
		text:       "trying",
		alwaysCall: true,
		toolCalls: []types.ToolCall{
			// query is required but missing
			{ID: "call-1", Name: "echo", Arguments: map[string]any{}},
		},
	}

	a, err := New(WithModel(model), WithMaxSteps(2), WithTools(echoTool("echo")))
	require.NoError(t, err)

	result, err := a.Run(context.Background(), []types.Message{{Role: types.RoleUser, Content: "go"}})
	require.NoError(t, err)

	require.NotEmpty(t, result.Steps)
	require.Len(t, result.Steps[0].ToolResults, 1)
	assert.True(t, result.Steps[0].ToolResults[0].IsError)
	assert.Contains(t, result.Steps[0].ToolResults[0].Content, "invalid arguments")
}

func TestAgent_UnknownToolBecomesErrorResult(t *testing.T) {
	model := &scriptedModel{
		text:       "trying",
		alwaysCall: true,
		toolCalls: []types.ToolCall{
			{ID: "call-1", Name: "missing_tool", Arguments: map[string]any{}},
		},
	}

	a, err := New(WithModel(model), WithMaxSteps(2))
	require.NoError(t, err)

	result, err := a.Run(context.Background(), []types.Message{{Role: types.RoleUser, Content: "go"}})
	require.NoError(t, err)

	require.NotEmpty(t, result.Steps)
	require.Len(t, result.Steps[0].ToolResults, 1)
	assert.True(t, result.Steps[0].ToolResults[0].IsError)
	assert.Contains(t, result.Steps[0].ToolResults[0].Content, "not found")
}

func TestAgent_ProviderErrorSurfaces(t *testing.T) {
	model := &scriptedModel{failNthCall: 1}

	a, err := New(WithModel(model))
	require.NoError(t, err)

	_, err = a.Run(context.Background(), []types.Message{{Role: types.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider unavailable")
}

func TestAgent_RequiresModel(t *testing.T) {
	_, err := New(WithMaxSteps(2))
	require.Error(t, err)
}
