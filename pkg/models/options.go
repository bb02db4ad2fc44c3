package models

import "time"

// ToolChoice selects how strongly the provider should be steered toward
// using a tool on the next turn.
type ToolChoice struct {
	// Mode is one of "auto", "required", "none", or "name" (a specific tool).
	Mode string
	// Name is set only when Mode == "name".
	Name string
}

var (
	ToolChoiceAuto     = ToolChoice{Mode: "auto"}
	ToolChoiceRequired = ToolChoice{Mode: "required"}
	ToolChoiceNone     = ToolChoice{Mode: "none"}
)

// ToolChoiceName builds a ToolChoice pinned to one named tool.
func ToolChoiceName(name string) ToolChoice {
	return ToolChoice{Mode: "name", Name: name}
}

// HookEventType is the closed set of lifecycle points a hook may attach to
// (§4.6). No other values are recognized.
type HookEventType string

const (
	HookSessionStart   HookEventType = "SessionStart"
	HookPreToolUse     HookEventType = "PreToolUse"
	HookPostToolUse    HookEventType = "PostToolUse"
	HookPreCompletion  HookEventType = "PreCompletion"
	HookPostCompletion HookEventType = "PostCompletion"
	HookOnError        HookEventType = "OnError"
)

// HookInput is what a hook callback receives: the event-specific payload
// plus correlation context.
type HookInput struct {
	Data      map[string]any
	ToolUseID string
	Context   HookContext
}

// HookContext is the correlation context attached to every hook invocation.
type HookContext struct {
	SessionID string
	ToolUseID string
}

// HookSpecificOutput carries the PreToolUse/PostToolUse/SessionStart-specific
// recognized fields described in the §4.6 output table.
type HookSpecificOutput struct {
	PermissionDecision       string // "allow" | "deny"
	PermissionDecisionReason string
	AdditionalContext        string
}

// HookOutput is the merged result of running a hook (or a chain of hooks).
// Later hooks in a matcher's list override earlier keys when merged (§4.6,
// §9 "Hook composition order").
type HookOutput struct {
	Continue           *bool
	StopReason         string
	ModifiedInput       map[string]any
	HookSpecificOutput HookSpecificOutput
}

// Merge folds other on top of o, with other's set fields taking precedence.
// A zero HookOutput has every field unset, so merging a hook that didn't
// touch a field never clobbers an earlier decision for that field — except
// PermissionDecision=="deny", which is sticky for the remainder of the event
// per §9 and is handled by the caller, not here.
func (o HookOutput) Merge(other HookOutput) HookOutput {
	merged := o
	if other.Continue != nil {
		merged.Continue = other.Continue
	}
	if other.StopReason != "" {
		merged.StopReason = other.StopReason
	}
	if other.ModifiedInput != nil {
		merged.ModifiedInput = other.ModifiedInput
	}
	if other.HookSpecificOutput.PermissionDecision != "" {
		merged.HookSpecificOutput.PermissionDecision = other.HookSpecificOutput.PermissionDecision
		merged.HookSpecificOutput.PermissionDecisionReason = other.HookSpecificOutput.PermissionDecisionReason
	}
	if other.HookSpecificOutput.AdditionalContext != "" {
		merged.HookSpecificOutput.AdditionalContext = other.HookSpecificOutput.AdditionalContext
	}
	return merged
}

// HookCallback is a user-supplied hook function.
type HookCallback func(in HookInput) (HookOutput, error)

// HookMatcher groups an ordered list of hooks that fire together when an
// event's tool name matches Matcher (or unconditionally when Matcher is
// nil/empty, per §4.6).
type HookMatcher struct {
	Matcher string // empty means "match every instance of this event"
	Hooks   []HookCallback
	Timeout time.Duration // zero means no timeout
}

// PermissionDecision is the outcome of a can_use_tool callback (§4.7 step 5).
type PermissionDecision struct {
	Allow        bool
	Reason       string
	UpdatedInput map[string]any
}

// CanUseTool is the per-call permission callback consulted whenever no
// PreToolUse hook denied a tool invocation (a hook "allow" does not skip it).
type CanUseTool func(toolName string, input map[string]any, ctx HookContext) (PermissionDecision, error)

// AgentOptions enumerates the recognized configuration knobs for a Client
// (§3).
type AgentOptions struct {
	Provider       string
	ProviderConfig map[string]any

	Model       string
	MaxTokens   int
	Temperature float64
	TopP        float64

	Tools      []ToolDefinition
	ToolChoice ToolChoice

	CanUseTool CanUseTool
	Hooks      map[HookEventType][]HookMatcher

	MaxTurns int
	Stream   bool

	EnableThinking    bool
	MaxThinkingTokens int

	SystemPrompt string
	SessionID    string
}

// DefaultMaxTurns is the default upper bound on agentic iterations (§3).
const DefaultMaxTurns = 10

// WithDefaults fills in the documented default values for unset fields.
func (o AgentOptions) WithDefaults() AgentOptions {
	if o.MaxTurns <= 0 {
		o.MaxTurns = DefaultMaxTurns
	}
	if o.ToolChoice.Mode == "" {
		o.ToolChoice = ToolChoiceAuto
	}
	return o
}
