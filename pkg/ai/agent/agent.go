// Package agent runs the bounded tool-dispatch loop: it lets a language model
// alternate between producing text and invoking tools, for a fixed maximum
// number of rounds within a single conversational turn.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/deskmate/deskmate/pkg/ai/provider"
	"github.com/deskmate/deskmate/pkg/ai/tool"
	"github.com/deskmate/deskmate/pkg/ai/types"
)

const DefaultMaxSteps = 5

type Agent struct {
	MaxSteps     int
	Tools        []tool.Tool
	SystemPrompt string
	Model        provider.LanguageModel

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema
}

func New(opts ...Option) (*Agent, error) {
	agent := &Agent{
		schemas: make(map[string]*jsonschema.Schema),
	}

	for _, opt := range opts {
		opt(agent)
	}

	if agent.Model == nil {
		return nil, errors.New("model is required")
	}

	if agent.MaxSteps <= 0 {
		agent.MaxSteps = DefaultMaxSteps
	}

	return agent, nil
}

// Step is one round of the dispatch loop.
type Step struct {
	StepNumber   int                `json:"step_number"`
	Content      string             `json:"content"`
	ToolCalls    []types.ToolCall   `json:"tool_calls"`
	ToolResults  []types.ToolResult `json:"tool_results"`
	Usage        types.Usage        `json:"usage"`
	FinishReason string             `json:"finish_reason"`
}

// RunResult is the outcome of one complete turn.
type RunResult struct {
	Content      string      `json:"content"`
	Steps        []*Step     `json:"steps"`
	TotalUsage   types.Usage `json:"total_usage"`
	FinishReason string      `json:"finish_reason"`
}

// RunStream exposes the live event feed of a running turn.
type RunStream struct {
	Events <-chan types.StreamEvent

	done   <-chan struct{}
	result *RunResult
	errFn  func() error
}

func (s *RunStream) Err() error {
	return s.errFn()
}

// Wait blocks until the turn settles and returns the final result.
func (s *RunStream) Wait() (RunResult, error) {
	<-s.done

	if err := s.errFn(); err != nil {
		return RunResult{}, err
	}

	return *s.result, nil
}

// Run executes a complete turn synchronously, draining events internally.
func (a *Agent) Run(ctx context.Context, messages []types.Message) (RunResult, error) {
	stream, err := a.Stream(ctx, messages)
	if err != nil {
		return RunResult{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return RunResult{}, ctx.Err()
		case _, ok := <-stream.Events:
			if !ok {
				return stream.Wait()
			}
		}
	}
}

// Stream starts a turn and returns its event feed. The conversation slice is
// not mutated; the loop works on its own copy.
func (a *Agent) Stream(ctx context.Context, messages []types.Message) (*RunStream, error) {
	if a.Model == nil {
		return nil, errors.New("model is required")
	}

	conversation := make([]types.Message, len(messages))
	copy(conversation, messages)

	events := make(chan types.StreamEvent, 100)
	done := make(chan struct{})
	result := &RunResult{}

	var mu sync.Mutex
	var runErr error

	setErr := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if runErr == nil {
			runErr = err
		}
	}

	getErr := func() error {
		mu.Lock()
		defer mu.Unlock()
		return runErr
	}

	go func() {
		defer close(done)
		defer close(events)

		var contents []string

		toolDefs := make([]types.Tool, 0, len(a.Tools))
		for _, t := range a.Tools {
			toolDefs = append(toolDefs, tool.ToTypesTool(t))
		}

		for stepNumber := 1; stepNumber <= a.MaxSteps; stepNumber++ {
			events <- types.NewStepStartEvent(stepNumber)

			step, err := a.runStep(ctx, stepNumber, conversation, toolDefs, events)
			if err != nil {
				setErr(err)
				events <- types.NewStreamErrorEvent(err, err.Error())

				return
			}

			result.Steps = append(result.Steps, step)
			result.TotalUsage = result.TotalUsage.Add(step.Usage)

			if step.Content != "" {
				contents = append(contents, step.Content)
			}

			conversation = append(conversation, types.Message{
				Role:      types.RoleAssistant,
				Content:   step.Content,
				ToolCalls: step.ToolCalls,
				Timestamp: time.Now(),
			})

			if len(step.ToolCalls) == 0 {
				result.FinishReason = types.FinishReasonStop
				if step.FinishReason != "" {
					result.FinishReason = step.FinishReason
				}

				break
			}

			toolResults := a.executeToolCalls(ctx, step, events)
			step.ToolResults = toolResults

			conversation = append(conversation, types.Message{
				Role:        types.RoleTool,
				ToolResults: toolResults,
				Timestamp:   time.Now(),
			})

			events <- types.NewStepCompleteEvent(stepNumber, step.Content, step.ToolCalls, step.ToolResults, step.Usage, step.FinishReason)
		}

		// Reaching the step bound is a defined termination, not an error.
		if result.FinishReason == "" {
			result.FinishReason = types.FinishReasonMaxSteps
		}

		result.Content = strings.Join(contents, "\n\n")
		if result.Content == "" {
			result.Content = "I could not finish the request within the allowed number of tool rounds."
		}
	}()

	return &RunStream{
		Events: events,
		done:   done,
		result: result,
		errFn:  getErr,
	}, nil
}

func (a *Agent) runStep(ctx context.Context, stepNumber int, conversation []types.Message, toolDefs []types.Tool, events chan<- types.StreamEvent) (*Step, error) {
	step := &Step{
		StepNumber:  stepNumber,
		ToolCalls:   []types.ToolCall{},
		ToolResults: []types.ToolResult{},
	}

	providerEvents, providerErrs := a.Model.Stream(ctx, provider.GenerateRequest{
		Messages: conversation,
		System:   a.SystemPrompt,
		Tools:    toolDefs,
	})

	for event := range providerEvents {
		events <- event

		switch e := event.(type) {
		case *types.TextDeltaEvent:
			step.Content += e.Delta
		case *types.ToolCallCompleteEvent:
			step.ToolCalls = append(step.ToolCalls, e.ToolCall)
		case *types.UsageEvent:
			step.Usage = e.Usage
		case *types.FinishReasonEvent:
			step.FinishReason = e.Reason
		}
	}

	if err := <-providerErrs; err != nil {
		return nil, err
	}

	return step, nil
}

// executeToolCalls runs every tool call of a step. A failing tool yields an
// error-marked result fed back to the model; it never aborts the loop or its
// sibling calls.
func (a *Agent) executeToolCalls(ctx context.Context, step *Step, events chan<- types.StreamEvent) []types.ToolResult {
	toolResults := make([]types.ToolResult, 0, len(step.ToolCalls))

	for _, toolCall := range step.ToolCalls {
		events <- types.NewToolExecutionStartEvent(toolCall)

		toolResult := a.executeToolCall(ctx, toolCall)
		toolResults = append(toolResults, toolResult)

		events <- types.NewToolExecutionCompleteEvent(toolCall, toolResult)
	}

	return toolResults
}

func (a *Agent) executeToolCall(ctx context.Context, toolCall types.ToolCall) types.ToolResult {
	errorResult := func(err error) types.ToolResult {
		return types.ToolResult{
			ToolCallID: toolCall.ID,
			Content:    fmt.Sprintf("Error: %v", err),
			IsError:    true,
		}
	}

	t, exists := a.getTool(toolCall.Name)
	if !exists {
		return errorResult(fmt.Errorf("tool %s not found", toolCall.Name))
	}

	if err := a.validateArguments(t, toolCall.Arguments); err != nil {
		return errorResult(fmt.Errorf("invalid arguments for %s: %w", toolCall.Name, err))
	}

	argsJSON, err := json.Marshal(toolCall.Arguments)
	if err != nil {
		return errorResult(fmt.Errorf("failed to marshal tool call arguments: %w", err))
	}

	content, err := t.Execute(ctx, string(argsJSON))
	if err != nil {
		return errorResult(err)
	}

	return types.ToolResult{
		ToolCallID: toolCall.ID,
		Content:    content,
	}
}

func (a *Agent) getTool(toolName string) (tool.Tool, bool) {
	for _, t := range a.Tools {
		if t.Name() == toolName {
			return t, true
		}
	}

	return nil, false
}

// validateArguments checks a tool call's arguments against the tool's
// parameter schema before the handler runs.
func (a *Agent) validateArguments(t tool.Tool, args map[string]any) error {
	parameters := t.Parameters()
	if len(parameters) == 0 {
		return nil
	}

	schema, err := a.compiledSchema(t.Name(), parameters)
	if err != nil {
		return err
	}

	if args == nil {
		args = map[string]any{}
	}

	return schema.Validate(map[string]any(args))
}

func (a *Agent) compiledSchema(name string, parameters map[string]any) (*jsonschema.Schema, error) {
	a.schemaMu.Lock()
	defer a.schemaMu.Unlock()

	if schema, ok := a.schemas[name]; ok {
		return schema, nil
	}

	encoded, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameter schema: %w", err)
	}

	schema, err := jsonschema.CompileString(name+".json", string(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to compile parameter schema: %w", err)
	}

	a.schemas[name] = schema

	return schema, nil
}
