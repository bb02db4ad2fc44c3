package models

import "testing"

func TestToolUseBlocksFiltersNonAssistant(t *testing.T) {
	msg := NewUserText("hi")
	if blocks := msg.ToolUseBlocks(); blocks != nil {
		t.Errorf("expected nil for a non-Assistant message, got %v", blocks)
	}
}

func TestToolUseBlocksPreservesOrder(t *testing.T) {
	msg := NewAssistant("m", FinishToolUse,
		NewText("thinking out loud"),
		NewToolUse("id1", "a", nil),
		NewText("more text"),
		NewToolUse("id2", "b", nil),
	)
	uses := msg.ToolUseBlocks()
	if len(uses) != 2 {
		t.Fatalf("len(uses) = %d, want 2", len(uses))
	}
	if uses[0].ToolUseID != "id1" || uses[1].ToolUseID != "id2" {
		t.Errorf("unexpected order: %v", uses)
	}
}

func TestMessageTextConcatenatesTextBlocksOnly(t *testing.T) {
	msg := NewAssistant("m", FinishStop,
		NewText("Hello, "),
		NewToolUse("id1", "ignored", nil),
		NewText("world"),
	)
	if got := msg.Text(); got != "Hello, world" {
		t.Errorf("Text() = %q, want %q", got, "Hello, world")
	}
}

func TestMessageEqual(t *testing.T) {
	a := NewAssistant("m", FinishStop, NewText("hi"))
	b := NewAssistant("m", FinishStop, NewText("hi"))
	c := NewAssistant("m", FinishStop, NewText("bye"))

	if !a.Equal(b) {
		t.Error("expected equal messages to compare equal")
	}
	if a.Equal(c) {
		t.Error("expected differing messages to compare unequal")
	}
}
