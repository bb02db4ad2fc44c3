package models

// Role identifies which tagged variant a Message carries.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// FinishReason is the canonical, dialect-independent stop reason attached to
// an Assistant message.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishToolUse        FinishReason = "tool_use"
	FinishContentFilter FinishReason = "content_filter"
)

// Message is a tagged variant over Role. Only the fields relevant to Role are
// meaningful; the others are left zero. This mirrors the provider-agnostic
// message shape in §3 of the runtime's data model rather than any single
// dialect's wire format — both Anthropic- and OpenAI-style providers
// translate to and from this shape.
type Message struct {
	Role Role `json:"role"`

	// TextContent holds the content for a User message sent as plain text,
	// or for a System message.
	TextContent string `json:"text_content,omitempty"`

	// Blocks holds the content for a User message sent as structured blocks,
	// and always holds the content for an Assistant message.
	Blocks []Content `json:"blocks,omitempty"`

	// Model and FinishReason are set on Assistant messages only.
	Model        string       `json:"model,omitempty"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// ToolCallID and the string Content below are set on Tool messages
	// (the OpenAI-dialect representation of a tool result).
	ToolCallID string `json:"tool_call_id,omitempty"`
	Content    string `json:"content,omitempty"`
}

// NewUserText builds a User message carrying plain text.
func NewUserText(text string) Message {
	return Message{Role: RoleUser, TextContent: text}
}

// NewUserBlocks builds a User message carrying structured content blocks.
// The Anthropic-dialect formatter sends only the text blocks of such a
// message; tool results travel as Tool messages instead.
func NewUserBlocks(blocks ...Content) Message {
	return Message{Role: RoleUser, Blocks: blocks}
}

// NewSystem builds a System message.
func NewSystem(text string) Message {
	return Message{Role: RoleSystem, TextContent: text}
}

// NewAssistant builds an Assistant message from its content blocks.
func NewAssistant(model string, finish FinishReason, blocks ...Content) Message {
	return Message{Role: RoleAssistant, Model: model, FinishReason: finish, Blocks: blocks}
}

// NewTool builds a Tool message (OpenAI-dialect tool result representation).
func NewTool(toolCallID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: toolCallID, Content: content}
}

// ToolUseBlocks returns the subset of an Assistant message's blocks that are
// tool invocations, preserving declaration order. This is the only
// block-list query the data model mandates (§4.1).
func (m Message) ToolUseBlocks() []Content {
	if m.Role != RoleAssistant {
		return nil
	}
	var out []Content
	for _, b := range m.Blocks {
		if b.Type == ContentToolUse {
			out = append(out, b)
		}
	}
	return out
}

// Text concatenates every ContentText block's text, in order. Used both by
// callers wanting the plain-text summary of an Assistant turn and by the
// stream-to-message consistency property.
func (m Message) Text() string {
	var out string
	for _, b := range m.Blocks {
		if b.Type == ContentText {
			out += b.Text
		}
	}
	return out
}

// Equal reports whether two messages are value-equal, used by the
// Anthropic-dialect round-trip property.
func (m Message) Equal(other Message) bool {
	if m.Role != other.Role || m.TextContent != other.TextContent ||
		m.Model != other.Model || m.FinishReason != other.FinishReason ||
		m.ToolCallID != other.ToolCallID || m.Content != other.Content {
		return false
	}
	if len(m.Blocks) != len(other.Blocks) {
		return false
	}
	for i := range m.Blocks {
		if !m.Blocks[i].Equal(other.Blocks[i]) {
			return false
		}
	}
	return true
}
