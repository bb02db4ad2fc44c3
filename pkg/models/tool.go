package models

import "encoding/json"

// ToolHandler executes a tool invocation. Implementations may block; the
// agent loop calls them synchronously on its own turn goroutine and waits
// for the result, so a Go handler needs no separate sync/async distinction the way
// the originating SDK's Python handlers do (see C2 in the design notes).
type ToolHandler func(ctx CallContext, input map[string]any) (any, error)

// CallContext is the minimal context a tool handler receives about the call
// site: which session it is running under and which tool_use_id produced it.
// It intentionally does not embed context.Context's cancellation signal here
// — callers needing cancellation thread a context.Context as the first
// argument of their own closures; CallContext only carries correlation data
// hooks also see.
type CallContext struct {
	SessionID string
	ToolUseID string
}

// ToolDefinition is the engine's record of one invocable tool: its name
// (unique within an AgentOptions), description, JSON Schema, and optional
// handler. A ToolDefinition with a nil Handler is declared to the provider
// but cannot be executed locally — invoking it yields a tool error (§4.2).
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
	Handler     ToolHandler
}

// ToolResult is the stringified outcome of a tool invocation as stored in a
// Tool message's Content.
type ToolResult struct {
	Content string
	IsError bool
}

// Usage reports token accounting for one provider call.
type Usage struct {
	PromptTokens       int `json:"prompt_tokens"`
	CompletionTokens   int `json:"completion_tokens"`
	TotalTokens        int `json:"total_tokens"`
	CacheReadTokens    int `json:"cache_read_tokens,omitempty"`
	CacheCreationTokens int `json:"cache_creation_tokens,omitempty"`
}

// StringifyToolOutput converts a tool handler's return value to the string
// representation stored in history: strings pass through unchanged, every
// other value is JSON-encoded (§4.2, §4.7 step 8).
func StringifyToolOutput(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
