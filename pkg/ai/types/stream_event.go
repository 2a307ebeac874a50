package types

// StreamEvent is the interface implemented by all streaming events
type StreamEvent interface {
	GetType() StreamEventType
}

// StreamEventType identifies the type of streaming event
type StreamEventType string

const (
	EventTypeStreamStart StreamEventType = "stream-start"
	EventTypeStreamEnd   StreamEventType = "stream-end"
	EventTypeStreamError StreamEventType = "stream-error"

	EventTypeTextDelta    StreamEventType = "text-delta"
	EventTypeTextComplete StreamEventType = "text-complete"

	EventTypeToolCallStart    StreamEventType = "tool-call-start"
	EventTypeToolCallDelta    StreamEventType = "tool-call-delta"
	EventTypeToolCallComplete StreamEventType = "tool-call-complete"

	EventTypeUsage        StreamEventType = "usage"
	EventTypeFinishReason StreamEventType = "finish-reason"

	EventTypeStepStart             StreamEventType = "step-start"
	EventTypeStepComplete          StreamEventType = "step-complete"
	EventTypeToolExecutionStart    StreamEventType = "tool-execution-start"
	EventTypeToolExecutionComplete StreamEventType = "tool-execution-complete"
)

type baseEvent struct {
	eventType StreamEventType
}

func (e *baseEvent) GetType() StreamEventType {
	return e.eventType
}

func newBaseEvent(eventType StreamEventType) baseEvent {
	return baseEvent{eventType: eventType}
}

type StreamStartEvent struct {
	baseEvent
	Model     string `json:"model"`
	RequestID string `json:"request_id"`
}

func NewStreamStartEvent(model, requestID string) *StreamStartEvent {
	return &StreamStartEvent{
		baseEvent: newBaseEvent(EventTypeStreamStart),
		Model:     model,
		RequestID: requestID,
	}
}

type StreamEndEvent struct {
	baseEvent
	FinishReason string `json:"finish_reason"`
	Usage        Usage  `json:"usage"`
}

func NewStreamEndEvent(finishReason string, usage Usage) *StreamEndEvent {
	return &StreamEndEvent{
		baseEvent:    newBaseEvent(EventTypeStreamEnd),
		FinishReason: finishReason,
		Usage:        usage,
	}
}

type StreamErrorEvent struct {
	baseEvent
	Err     error  `json:"-"`
	Message string `json:"message"`
}

func NewStreamErrorEvent(err error, message string) *StreamErrorEvent {
	return &StreamErrorEvent{
		baseEvent: newBaseEvent(EventTypeStreamError),
		Err:       err,
		Message:   message,
	}
}

type TextDeltaEvent struct {
	baseEvent
	Delta string `json:"delta"`
	Index int    `json:"index"`
}

func NewTextDeltaEvent(delta string, index int) *TextDeltaEvent {
	return &TextDeltaEvent{
		baseEvent: newBaseEvent(EventTypeTextDelta),
		Delta:     delta,
		Index:     index,
	}
}

type TextCompleteEvent struct {
	baseEvent
	Text string `json:"text"`
}

func NewTextCompleteEvent(text string) *TextCompleteEvent {
	return &TextCompleteEvent{
		baseEvent: newBaseEvent(EventTypeTextComplete),
		Text:      text,
	}
}

type ToolCallStartEvent struct {
	baseEvent
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Index      int    `json:"index"`
}

func NewToolCallStartEvent(toolCallID, toolName string, index int) *ToolCallStartEvent {
	return &ToolCallStartEvent{
		baseEvent:  newBaseEvent(EventTypeToolCallStart),
		ToolCallID: toolCallID,
		ToolName:   toolName,
		Index:      index,
	}
}

type ToolCallDeltaEvent struct {
	baseEvent
	ToolCallID string `json:"tool_call_id"`
	Delta      string `json:"delta"`
	Index      int    `json:"index"`
}

func NewToolCallDeltaEvent(toolCallID, delta string, index int) *ToolCallDeltaEvent {
	return &ToolCallDeltaEvent{
		baseEvent:  newBaseEvent(EventTypeToolCallDelta),
		ToolCallID: toolCallID,
		Delta:      delta,
		Index:      index,
	}
}

type ToolCallCompleteEvent struct {
	baseEvent
	ToolCall ToolCall `json:"tool_call"`
	Index    int      `json:"index"`
}

func NewToolCallCompleteEvent(toolCall ToolCall, index int) *ToolCallCompleteEvent {
	return &ToolCallCompleteEvent{
		baseEvent: newBaseEvent(EventTypeToolCallComplete),
		ToolCall:  toolCall,
		Index:     index,
	}
}

type UsageEvent struct {
	baseEvent
	Usage Usage `json:"usage"`
}

func NewUsageEvent(usage Usage) *UsageEvent {
	return &UsageEvent{
		baseEvent: newBaseEvent(EventTypeUsage),
		Usage:     usage,
	}
}

type FinishReasonEvent struct {
	baseEvent
	Reason string `json:"reason"`
}

func NewFinishReasonEvent(reason string) *FinishReasonEvent {
	return &FinishReasonEvent{
		baseEvent: newBaseEvent(EventTypeFinishReason),
		Reason:    reason,
	}
}

type StepStartEvent struct {
	baseEvent
	StepNumber int `json:"step_number"`
}

func NewStepStartEvent(stepNumber int) *StepStartEvent {
	return &StepStartEvent{
		baseEvent:  newBaseEvent(EventTypeStepStart),
		StepNumber: stepNumber,
	}
}

type StepCompleteEvent struct {
	baseEvent
	StepNumber   int          `json:"step_number"`
	Content      string       `json:"content"`
	ToolCalls    []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults  []ToolResult `json:"tool_results,omitempty"`
	Usage        Usage        `json:"usage"`
	FinishReason string       `json:"finish_reason"`
}

func NewStepCompleteEvent(stepNumber int, content string, toolCalls []ToolCall, toolResults []ToolResult, usage Usage, finishReason string) *StepCompleteEvent {
	return &StepCompleteEvent{
		baseEvent:    newBaseEvent(EventTypeStepComplete),
		StepNumber:   stepNumber,
		Content:      content,
		ToolCalls:    toolCalls,
		ToolResults:  toolResults,
		Usage:        usage,
		FinishReason: finishReason,
	}
}

type ToolExecutionStartEvent struct {
	baseEvent
	ToolCall ToolCall `json:"tool_call"`
}

func NewToolExecutionStartEvent(toolCall ToolCall) *ToolExecutionStartEvent {
	return &ToolExecutionStartEvent{
		baseEvent: newBaseEvent(EventTypeToolExecutionStart),
		ToolCall:  toolCall,
	}
}

type ToolExecutionCompleteEvent struct {
	baseEvent
	ToolCall   ToolCall   `json:"tool_call"`
	ToolResult ToolResult `json:"tool_result"`
}

func NewToolExecutionCompleteEvent(toolCall ToolCall, toolResult ToolResult) *ToolExecutionCompleteEvent {
	return &ToolExecutionCompleteEvent{
		baseEvent:  newBaseEvent(EventTypeToolExecutionComplete),
		ToolCall:   toolCall,
		ToolResult: toolResult,
	}
}
