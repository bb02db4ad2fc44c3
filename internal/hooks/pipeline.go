// Package hooks implements the Hook Pipeline (C6): declaration-ordered
// execution of HookMatcher lists against the closed event set, with
// left-to-right output merging, sticky permission denial, per-hook timeouts,
// and exception suppression.
package hooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexusrun/agentrt/pkg/models"
)

// Pipeline runs the hook matchers registered for each event type.
type Pipeline struct {
	matchers map[models.HookEventType][]models.HookMatcher
	logger   *slog.Logger
}

// New builds a Pipeline over the hook matchers configured on an agent's
// options (§4.6).
func New(matchers map[models.HookEventType][]models.HookMatcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{matchers: matchers, logger: logger}
}

// Run executes every HookMatcher registered for eventType whose Matcher
// string matches toolName (or is empty), in declaration order, merging their
// outputs left to right. A matcher's hooks also run in declaration order.
//
// Per §4.6/§9: a permission denial set by one hook is sticky — once set,
// later hooks in the same Run still execute (their other fields, such as
// additional context, still merge over earlier ones) but cannot clear the
// denial. A hook that panics, errors, or times
// out is logged and its output discarded; it never aborts the pipeline.
func (p *Pipeline) Run(ctx context.Context, eventType models.HookEventType, toolName string, in models.HookInput) models.HookOutput {
	var merged models.HookOutput
	denied := false

	for _, matcher := range p.matchers[eventType] {
		if matcher.Matcher != "" && matcher.Matcher != toolName {
			continue
		}
		for _, hook := range matcher.Hooks {
			out, ok := p.runOne(ctx, hook, matcher.Timeout, in)
			if !ok {
				continue
			}
			if denied {
				out.HookSpecificOutput.PermissionDecision = "deny"
			}
			merged = merged.Merge(out)
			if merged.HookSpecificOutput.PermissionDecision == "deny" {
				denied = true
			}
		}
	}
	return merged
}

// runOne invokes a single hook callback, applying its timeout if set and
// swallowing both panics and returned errors (§7 "hook exceptions logged and
// suppressed").
func (p *Pipeline) runOne(ctx context.Context, hook models.HookCallback, timeout time.Duration, in models.HookInput) (out models.HookOutput, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("hook panicked", "session_id", in.Context.SessionID, "panic", r)
			ok = false
		}
	}()

	if timeout <= 0 {
		result, err := hook(in)
		if err != nil {
			p.logger.Error("hook returned error", "session_id", in.Context.SessionID, "error", err)
			return models.HookOutput{}, false
		}
		return result, true
	}

	type hookResult struct {
		out models.HookOutput
		err error
	}
	done := make(chan hookResult, 1)
	go func() {
		result, err := hook(in)
		done <- hookResult{out: result, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			p.logger.Error("hook returned error", "session_id", in.Context.SessionID, "error", r.err)
			return models.HookOutput{}, false
		}
		return r.out, true
	case <-time.After(timeout):
		p.logger.Warn("hook timed out, skipping", "session_id", in.Context.SessionID, "timeout", timeout)
		return models.HookOutput{}, false
	case <-ctx.Done():
		return models.HookOutput{}, false
	}
}
