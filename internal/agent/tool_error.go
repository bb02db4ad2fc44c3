package agent

import "fmt"

// ToolErrorKind categorizes a failed tool invocation. Unlike ProviderError,
// a ToolError never aborts the agentic loop (§7) — it is always reified as
// a Tool message whose content is the error text, so the model gets a
// chance to recover. Tool messages carry no separate error flag.
type ToolErrorKind string

const (
	ToolErrNotFound       ToolErrorKind = "not_found"
	ToolErrValidation     ToolErrorKind = "validation"
	ToolErrPermission     ToolErrorKind = "permission"
	ToolErrHandlerPanic   ToolErrorKind = "panic"
	ToolErrHandlerFailure ToolErrorKind = "handler_failure"
)

// ToolError is the structured form of a tool-execution failure, carried
// internally while building the Tool message and tool_execution_complete
// event; callers never see it directly, they see the resulting history
// entry and StreamEvent.
type ToolError struct {
	Kind     ToolErrorKind
	ToolName string
	Message  string
	Cause    error
}

func (e *ToolError) Error() string {
	if e.ToolName != "" {
		return fmt.Sprintf("tool %q: %s", e.ToolName, e.Message)
	}
	return e.Message
}

func (e *ToolError) Unwrap() error { return e.Cause }

// NewToolNotFoundError builds a ToolErrNotFound ToolError.
func NewToolNotFoundError(toolName string) *ToolError {
	return &ToolError{Kind: ToolErrNotFound, ToolName: toolName, Message: "tool not found"}
}

// NewToolValidationError builds a ToolErrValidation ToolError.
func NewToolValidationError(toolName, message string) *ToolError {
	return &ToolError{Kind: ToolErrValidation, ToolName: toolName, Message: message}
}

// NewToolHandlerError wraps a handler's own returned error.
func NewToolHandlerError(toolName string, cause error) *ToolError {
	return &ToolError{Kind: ToolErrHandlerFailure, ToolName: toolName, Message: cause.Error(), Cause: cause}
}
