package models

// StreamEventType enumerates the canonical, dialect-independent stream
// vocabulary both provider families translate into (§3, §9 "Streaming state
// across two dialects"). Anthropic's block-oriented events map directly;
// OpenAI's delta chunks are resynthesized into the same shape.
type StreamEventType string

const (
	EventContentBlockStart StreamEventType = "content_block_start"
	EventContentBlockDelta StreamEventType = "content_block_delta"
	EventContentBlockStop  StreamEventType = "content_block_stop"

	// Engine-synthetic events emitted around tool execution (§4.7).
	EventToolExecutionStart    StreamEventType = "tool_execution_start"
	EventToolExecutionComplete StreamEventType = "tool_execution_complete"
)

// DeltaType enumerates the recognized shapes of StreamEvent.Delta.
type DeltaType string

const (
	DeltaText        DeltaType = "text_delta"
	DeltaInputJSON   DeltaType = "input_json_delta"
	DeltaThinking    DeltaType = "thinking_delta"
	DeltaSignature   DeltaType = "signature_delta"
	BlockTypeText    DeltaType = "text"
	BlockTypeToolUse DeltaType = "tool_use"
	BlockTypeThink   DeltaType = "thinking"
)

// StreamEvent is the unit the provider and the engine emit to the caller
// while a turn is in flight.
type StreamEvent struct {
	EventType StreamEventType `json:"event_type"`
	Index     int             `json:"index,omitempty"`

	// Delta carries event-specific fields. For content_block_start it holds
	// at minimum "type"; for tool_use starts also "id" and "name". For
	// content_block_delta it holds "type" plus one of "text", "partial_json",
	// "thinking", or "signature" depending on DeltaType.
	Delta map[string]any `json:"delta,omitempty"`

	// ContentBlock can carry the block being opened on content_block_start.
	// The providers in this module leave it nil; tool_use id/name travel in
	// Delta.
	ContentBlock *Content `json:"content_block,omitempty"`

	// ToolExecution fields populate the two engine-synthetic event types.
	ToolUseID   string `json:"tool_use_id,omitempty"`
	ToolName    string `json:"tool_name,omitempty"`
	ToolInput   map[string]any `json:"tool_input,omitempty"`
	ToolOutput  string `json:"tool_output,omitempty"`
	ToolError   string `json:"tool_error,omitempty"`
	DurationMS  int64  `json:"duration_ms,omitempty"`
}

// ResultMessage is the terminal element of any receive() sequence (§3, §8
// property 3). It carries no further content after emission.
type ResultMessage struct {
	IsError      bool         `json:"is_error"`
	NumTurns     int          `json:"num_turns"`
	SessionID    string       `json:"session_id,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	StopReason   string       `json:"stop_reason,omitempty"`
}

// AnyMessage is the union receive() yields: a StreamEvent while a turn is in
// flight, an AssistantMessage/Tool Message once a block of content settles,
// or the closing ResultMessage. Exactly one field is non-nil.
type AnyMessage struct {
	Event   *StreamEvent   `json:"event,omitempty"`
	Message *Message       `json:"message,omitempty"`
	Result  *ResultMessage `json:"result,omitempty"`
	Err     error          `json:"-"`
}
