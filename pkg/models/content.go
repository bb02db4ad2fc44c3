// Package models holds the provider-agnostic message and content types shared
// by the agent loop, the provider dialects, and the hook pipeline.
package models

import (
	"encoding/json"
	"fmt"
)

// ContentType tags the concrete shape a Content block carries.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentImage      ContentType = "image"
	ContentThinking   ContentType = "thinking"
	ContentToolUse    ContentType = "tool_use"
	ContentToolResult ContentType = "tool_result"
)

// Content is a tagged union over the five block shapes an Assistant message
// (or a synthesized User tool-result message) can carry. Exactly one of the
// typed fields is meaningful for a given Type; the rest are zero.
//
// Content intentionally has no interface-based polymorphism: callers switch
// on Type the same way the wire dialects do, which keeps translation to and
// from Anthropic/OpenAI shapes a flat mapping rather than a type assertion
// maze.
type Content struct {
	Type ContentType `json:"type"`

	// Text carries the payload for ContentText.
	Text string `json:"text,omitempty"`

	// Image carries the payload for ContentImage.
	ImageSource    string `json:"image_source,omitempty"`
	ImageMediaType string `json:"image_media_type,omitempty"`

	// Thinking carries the payload for ContentThinking. Signature is present
	// only when the provider requires it to authenticate a thinking block
	// across turns (Anthropic extended thinking).
	Thinking          string `json:"thinking,omitempty"`
	ThinkingSignature string `json:"thinking_signature,omitempty"`

	// ToolUse carries the payload for ContentToolUse.
	ToolUseID    string         `json:"tool_use_id,omitempty"`
	ToolUseName  string         `json:"tool_use_name,omitempty"`
	ToolUseInput map[string]any `json:"tool_use_input,omitempty"`

	// ToolResult carries the payload for ContentToolResult.
	ToolResultToolUseID string `json:"tool_result_tool_use_id,omitempty"`
	ToolResultContent   string `json:"tool_result_content,omitempty"`
	ToolResultIsError   bool   `json:"tool_result_is_error,omitempty"`
}

// NewText builds a ContentText block.
func NewText(text string) Content {
	return Content{Type: ContentText, Text: text}
}

// NewImage builds a ContentImage block.
func NewImage(source, mediaType string) Content {
	return Content{Type: ContentImage, ImageSource: source, ImageMediaType: mediaType}
}

// NewThinking builds a ContentThinking block. signature may be empty when the
// provider does not require one.
func NewThinking(thinking, signature string) Content {
	return Content{Type: ContentThinking, Thinking: thinking, ThinkingSignature: signature}
}

// NewToolUse builds a ContentToolUse block.
func NewToolUse(id, name string, input map[string]any) Content {
	return Content{Type: ContentToolUse, ToolUseID: id, ToolUseName: name, ToolUseInput: input}
}

// NewToolResult builds a ContentToolResult block.
func NewToolResult(toolUseID, content string, isError bool) Content {
	return Content{
		Type:                ContentToolResult,
		ToolResultToolUseID: toolUseID,
		ToolResultContent:   content,
		ToolResultIsError:   isError,
	}
}

// Equal reports whether two content blocks are value-equal. Used by the
// Anthropic-dialect round-trip property.
func (c Content) Equal(other Content) bool {
	if c.Type != other.Type {
		return false
	}
	switch c.Type {
	case ContentText:
		return c.Text == other.Text
	case ContentImage:
		return c.ImageSource == other.ImageSource && c.ImageMediaType == other.ImageMediaType
	case ContentThinking:
		return c.Thinking == other.Thinking && c.ThinkingSignature == other.ThinkingSignature
	case ContentToolUse:
		if c.ToolUseID != other.ToolUseID || c.ToolUseName != other.ToolUseName {
			return false
		}
		return mapsEqual(c.ToolUseInput, other.ToolUseInput)
	case ContentToolResult:
		return c.ToolResultToolUseID == other.ToolResultToolUseID &&
			c.ToolResultContent == other.ToolResultContent &&
			c.ToolResultIsError == other.ToolResultIsError
	default:
		return false
	}
}

func mapsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		aj, _ := json.Marshal(v)
		bj, _ := json.Marshal(bv)
		if string(aj) != string(bj) {
			return false
		}
	}
	return true
}

// String renders a short debug form, handy in log lines and test failures.
func (c Content) String() string {
	switch c.Type {
	case ContentText:
		return fmt.Sprintf("text(%q)", c.Text)
	case ContentImage:
		return fmt.Sprintf("image(%s)", c.ImageMediaType)
	case ContentThinking:
		return fmt.Sprintf("thinking(%d chars)", len(c.Thinking))
	case ContentToolUse:
		return fmt.Sprintf("tool_use(%s/%s)", c.ToolUseName, c.ToolUseID)
	case ContentToolResult:
		return fmt.Sprintf("tool_result(%s, error=%v)", c.ToolResultToolUseID, c.ToolResultIsError)
	default:
		return string(c.Type)
	}
}
