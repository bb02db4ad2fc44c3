package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexusrun/agentrt/internal/hooks"
	"github.com/nexusrun/agentrt/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type toolMetrics struct {
	Duration    prometheus.Histogram
	ErrorsTotal prometheus.Counter
	DeniedTotal prometheus.Counter
}

var (
	toolMetricsOnce     sync.Once
	toolMetricsInstance *toolMetrics
)

func getToolMetrics() *toolMetrics {
	toolMetricsOnce.Do(func() {
		toolMetricsInstance = &toolMetrics{
			Duration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "agentrt_tool_execution_duration_seconds",
				Help:    "Wall-clock time spent executing a single tool call",
				Buckets: prometheus.DefBuckets,
			}),
			ErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "agentrt_tool_execution_errors_total",
				Help: "Total tool invocations that ended in a Tool error message",
			}),
			DeniedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "agentrt_tool_execution_denied_total",
				Help: "Total tool invocations denied by a hook or can_use_tool callback",
			}),
		}
	})
	return toolMetricsInstance
}

// toolOutcome is what executeOneTool reports back to the turn loop: whether
// processing should stop after this tool (step 3 or a PostToolUse veto), and
// if so, the human-readable reason to surface in the terminal ResultMessage
// (§4.6 "stopReason ... surfaced in the final ResultMessage").
type toolOutcome struct {
	stop       bool
	stopReason string
}

const toolOutputEventTruncateLen = 500

// executeTools runs every ToolUseBlock from one assistant turn sequentially,
// in declaration order (§4.7 "Tool execution", §5 "no parallelism across
// tools"). It appends one Tool message to history per block (except when a
// hook vetoes before any message is produced) and emits the matching
// tool_execution_start/complete events on out. It returns stop=true the
// moment any block's outcome says to halt the turn.
func (c *Client) executeTools(ctx context.Context, pipeline *hooks.Pipeline, toolUses []models.Content, out chan<- models.AnyMessage) (bool, string) {
	for _, use := range toolUses {
		outcome := c.executeOneTool(ctx, pipeline, use, out)
		if outcome.stop {
			return true, outcome.stopReason
		}
	}
	return false, ""
}

func (c *Client) executeOneTool(ctx context.Context, pipeline *hooks.Pipeline, use models.Content, out chan<- models.AnyMessage) toolOutcome {
	metrics := getToolMetrics()
	start := time.Now()
	hookCtx := models.HookContext{SessionID: c.sessionID, ToolUseID: use.ToolUseID}

	out <- models.AnyMessage{Event: &models.StreamEvent{
		EventType: models.EventToolExecutionStart,
		ToolUseID: use.ToolUseID,
		ToolName:  use.ToolUseName,
		ToolInput: use.ToolUseInput,
	}}

	// Step 2: PreToolUse hooks.
	preOut := pipeline.Run(ctx, models.HookPreToolUse, use.ToolUseName, models.HookInput{
		Data:      map[string]any{"tool_input": use.ToolUseInput},
		ToolUseID: use.ToolUseID,
		Context:   hookCtx,
	})

	// Step 3: a hook vetoing the whole turn.
	if preOut.Continue != nil && !*preOut.Continue {
		c.completeToolEvent(out, use, start, "", preOut.StopReason)
		return toolOutcome{stop: true, stopReason: preOut.StopReason}
	}

	// Step 4/5: permission decision, first from hooks (a deny ends here),
	// then from the can_use_tool callback whenever no hook denied. A PreToolUse hook's
	// modified_input replaces what the handler sees; the original model
	// input is preserved in the assistant message only (§4.7 step 4).
	input := use.ToolUseInput
	if preOut.ModifiedInput != nil {
		input = preOut.ModifiedInput
	}
	if preOut.HookSpecificOutput.PermissionDecision == "deny" {
		metrics.DeniedTotal.Inc()
		c.denyTool(out, use, start, preOut.HookSpecificOutput.PermissionDecisionReason)
		return toolOutcome{}
	}
	if c.opts.CanUseTool != nil {
		decision, err := c.opts.CanUseTool(use.ToolUseName, input, hookCtx)
		if err != nil {
			metrics.DeniedTotal.Inc()
			c.denyTool(out, use, start, err.Error())
			return toolOutcome{}
		}
		if !decision.Allow {
			metrics.DeniedTotal.Inc()
			c.denyTool(out, use, start, decision.Reason)
			return toolOutcome{}
		}
		if decision.UpdatedInput != nil {
			input = decision.UpdatedInput
		}
	}

	// Step 6: tool lookup.
	def, err := c.registry.Get(use.ToolUseName)
	if err != nil || def.Handler == nil {
		metrics.ErrorsTotal.Inc()
		c.errorTool(out, use, start, "Tool not found")
		return toolOutcome{}
	}

	// Validate the (possibly hook/callback-modified) input against the
	// tool's declared schema before invoking the handler. A violation is a
	// recoverable Tool error, not an abort (§7 "ToolValidation ... does NOT
	// abort the loop").
	if err := c.registry.Validate(use.ToolUseName, input); err != nil {
		metrics.ErrorsTotal.Inc()
		c.errorTool(out, use, start, err.Error())
		return toolOutcome{}
	}

	// Step 7: invoke the handler.
	result, err := c.invokeHandler(def, use, input)
	if err != nil {
		metrics.ErrorsTotal.Inc()
		pipeline.Run(ctx, models.HookOnError, use.ToolUseName, models.HookInput{
			Data:      map[string]any{"error": err.Error()},
			ToolUseID: use.ToolUseID,
			Context:   hookCtx,
		})
		c.errorTool(out, use, start, err.Error())
		return toolOutcome{}
	}

	// Step 8: stringify.
	content, err := models.StringifyToolOutput(result)
	if err != nil {
		metrics.ErrorsTotal.Inc()
		c.errorTool(out, use, start, fmt.Sprintf("encoding tool output: %v", err))
		return toolOutcome{}
	}

	// Step 9: PostToolUse hooks.
	postOut := pipeline.Run(ctx, models.HookPostToolUse, use.ToolUseName, models.HookInput{
		Data:      map[string]any{"tool_output": content},
		ToolUseID: use.ToolUseID,
		Context:   hookCtx,
	})
	if postOut.HookSpecificOutput.AdditionalContext != "" {
		content += "\n\n[Hook note: " + postOut.HookSpecificOutput.AdditionalContext + "]"
	}

	// Step 10: append the Tool message and emit tool_execution_complete.
	c.history = append(c.history, models.NewTool(use.ToolUseID, content))
	duration := time.Since(start)
	metrics.Duration.Observe(duration.Seconds())
	out <- models.AnyMessage{Message: ptrMessage(models.NewTool(use.ToolUseID, content))}
	out <- models.AnyMessage{Event: &models.StreamEvent{
		EventType:  models.EventToolExecutionComplete,
		ToolUseID:  use.ToolUseID,
		ToolName:   use.ToolUseName,
		ToolOutput: truncate(content, toolOutputEventTruncateLen),
		DurationMS: duration.Milliseconds(),
	}}

	if postOut.Continue != nil && !*postOut.Continue {
		return toolOutcome{stop: true, stopReason: postOut.StopReason}
	}
	return toolOutcome{}
}

// invokeHandler calls a tool's handler, converting a panic into an error
// the same way a handler exception is treated (§4.7 step 7).
func (c *Client) invokeHandler(def models.ToolDefinition, use models.Content, input map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %q panicked: %v", use.ToolUseName, r)
		}
	}()
	return def.Handler(models.CallContext{SessionID: c.sessionID, ToolUseID: use.ToolUseID}, input)
}

// denyTool implements §4.7 step 4: a permission denial appends a Tool
// message carrying the reason and continues to the next tool.
func (c *Client) denyTool(out chan<- models.AnyMessage, use models.Content, start time.Time, reason string) {
	content := "Permission denied: " + reason
	c.history = append(c.history, models.NewTool(use.ToolUseID, content))
	out <- models.AnyMessage{Message: ptrMessage(models.NewTool(use.ToolUseID, content))}
	c.completeToolEvent(out, use, start, "", content)
}

// errorTool implements §4.7 step 6/7: a lookup failure or handler exception
// appends an error Tool message and continues to the next tool.
func (c *Client) errorTool(out chan<- models.AnyMessage, use models.Content, start time.Time, message string) {
	c.history = append(c.history, models.NewTool(use.ToolUseID, message))
	out <- models.AnyMessage{Message: ptrMessage(models.NewTool(use.ToolUseID, message))}
	c.completeToolEvent(out, use, start, "", message)
}

func (c *Client) completeToolEvent(out chan<- models.AnyMessage, use models.Content, start time.Time, output, errMsg string) {
	out <- models.AnyMessage{Event: &models.StreamEvent{
		EventType:  models.EventToolExecutionComplete,
		ToolUseID:  use.ToolUseID,
		ToolName:   use.ToolUseName,
		ToolOutput: truncate(output, toolOutputEventTruncateLen),
		ToolError:  errMsg,
		DurationMS: time.Since(start).Milliseconds(),
	}}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func ptrMessage(m models.Message) *models.Message { return &m }
