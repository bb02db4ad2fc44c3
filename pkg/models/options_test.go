package models

import "testing"

func TestAgentOptionsWithDefaults(t *testing.T) {
	opts := AgentOptions{}.WithDefaults()
	if opts.MaxTurns != DefaultMaxTurns {
		t.Errorf("MaxTurns = %d, want %d", opts.MaxTurns, DefaultMaxTurns)
	}
	if opts.ToolChoice != ToolChoiceAuto {
		t.Errorf("ToolChoice = %v, want auto", opts.ToolChoice)
	}
}

func TestAgentOptionsWithDefaultsPreservesSetValues(t *testing.T) {
	opts := AgentOptions{MaxTurns: 3, ToolChoice: ToolChoiceRequired}.WithDefaults()
	if opts.MaxTurns != 3 {
		t.Errorf("MaxTurns = %d, want 3", opts.MaxTurns)
	}
	if opts.ToolChoice != ToolChoiceRequired {
		t.Errorf("ToolChoice = %v, want required", opts.ToolChoice)
	}
}

func TestHookOutputMergeLaterWins(t *testing.T) {
	allow := true
	deny := false
	base := HookOutput{Continue: &allow, HookSpecificOutput: HookSpecificOutput{AdditionalContext: "first"}}
	override := HookOutput{Continue: &deny, HookSpecificOutput: HookSpecificOutput{AdditionalContext: "second"}}

	merged := base.Merge(override)
	if merged.Continue == nil || *merged.Continue != false {
		t.Errorf("Continue = %v, want false", merged.Continue)
	}
	if merged.HookSpecificOutput.AdditionalContext != "second" {
		t.Errorf("AdditionalContext = %q, want %q", merged.HookSpecificOutput.AdditionalContext, "second")
	}
}

func TestHookOutputMergeUnsetFieldsDoNotClobber(t *testing.T) {
	base := HookOutput{HookSpecificOutput: HookSpecificOutput{PermissionDecision: "deny", PermissionDecisionReason: "nope"}}
	noop := HookOutput{}

	merged := base.Merge(noop)
	if merged.HookSpecificOutput.PermissionDecision != "deny" {
		t.Errorf("PermissionDecision = %q, want %q", merged.HookSpecificOutput.PermissionDecision, "deny")
	}
	if merged.HookSpecificOutput.PermissionDecisionReason != "nope" {
		t.Errorf("PermissionDecisionReason = %q, want %q", merged.HookSpecificOutput.PermissionDecisionReason, "nope")
	}
}

func TestToolChoiceName(t *testing.T) {
	choice := ToolChoiceName("get_weather")
	if choice.Mode != "name" || choice.Name != "get_weather" {
		t.Errorf("ToolChoiceName = %+v", choice)
	}
}
