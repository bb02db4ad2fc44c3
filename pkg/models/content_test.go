package models

import "testing"

func TestContentEqualToolUseComparesInputByValue(t *testing.T) {
	a := NewToolUse("id1", "search", map[string]any{"q": "go", "n": float64(3)})
	b := NewToolUse("id1", "search", map[string]any{"n": float64(3), "q": "go"})
	if !a.Equal(b) {
		t.Fatal("expected tool_use blocks with the same input in different key order to be equal")
	}

	c := NewToolUse("id1", "search", map[string]any{"q": "rust"})
	if a.Equal(c) {
		t.Fatal("expected blocks with different input to be unequal")
	}
}

func TestContentEqualRequiresSameType(t *testing.T) {
	text := NewText("hi")
	thinking := NewThinking("hi", "")
	if text.Equal(thinking) {
		t.Fatal("blocks of different types must never be equal")
	}
}

func TestContentStringIsHumanReadable(t *testing.T) {
	if got := NewToolUse("id1", "search", nil).String(); got != "tool_use(search/id1)" {
		t.Errorf("String() = %q", got)
	}
}
