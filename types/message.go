package types

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Role represents the message role
type Role string

const (
	// RoleSystem represents the system prompt message
	RoleSystem Role = "system"

	// RoleUser represents a user message
	RoleUser Role = "user"

	// RoleAssistant represents an assistant message
	RoleAssistant Role = "assistant"

	// RoleTool represents a tool response message
	RoleTool Role = "tool"
)

// MessageType classifies a message beyond its role
type MessageType string

const (
	// MessageTypeText represents plain text output
	MessageTypeText MessageType = "text"

	// MessageTypeToolCall represents an assistant message that issues tool calls
	MessageTypeToolCall MessageType = "tool-call"

	// MessageTypeToolResult represents a tool response message
	MessageTypeToolResult MessageType = "tool-result"

	// MessageTypeSummary represents a compaction summary message
	MessageTypeSummary MessageType = "summary"
)

// Message is the conversation message value type shared by Context and History.
// Field names follow the persisted wire format: engine-level fields are
// camelCase, model-protocol fields keep their snake_case provider names.
type Message struct {
	MessageID    string      `json:"messageId"`
	Role         Role        `json:"role"`
	Content      Content     `json:"content"`
	Type         MessageType `json:"type,omitempty"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	ToolCallID   string      `json:"tool_call_id,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *Usage      `json:"usage,omitempty"`
}

// NewSystemMessage creates the system message for a session
func NewSystemMessage(systemPrompt string) Message {
	return Message{
		MessageID: "system-" + uuid.New().String(),
		Role:      RoleSystem,
		Content:   TextContent(systemPrompt),
		Type:      MessageTypeText,
	}
}

// NewUserMessage creates a user message with text content
func NewUserMessage(text string) Message {
	return Message{
		MessageID: uuid.New().String(),
		Role:      RoleUser,
		Content:   TextContent(text),
		Type:      MessageTypeText,
	}
}

// NewAssistantMessage creates an assistant message with text content
func NewAssistantMessage(text string) Message {
	return Message{
		MessageID: uuid.New().String(),
		Role:      RoleAssistant,
		Content:   TextContent(text),
		Type:      MessageTypeText,
	}
}

// NewToolResultMessage creates a tool response message for the given tool call
func NewToolResultMessage(toolCallID string, content string) Message {
	return Message{
		MessageID:  uuid.New().String(),
		Role:       RoleTool,
		Content:    TextContent(content),
		Type:       MessageTypeToolResult,
		ToolCallID: toolCallID,
	}
}

// NewSummaryMessage creates a compaction summary message
func NewSummaryMessage(text string) Message {
	return Message{
		MessageID: "summary-" + uuid.New().String(),
		Role:      RoleAssistant,
		Content:   TextContent(text),
		Type:      MessageTypeSummary,
	}
}

// Clone returns a deep copy of the message
func (m Message) Clone() Message {
	out := m
	out.Content = m.Content.Clone()
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	if m.Usage != nil {
		u := *m.Usage
		out.Usage = &u
	}
	return out
}

// CloneMessages returns a deep copy of a message slice
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// IsSummaryMessage reports whether the message is a compaction summary
func (m Message) IsSummaryMessage() bool {
	return m.Type == MessageTypeSummary
}

// Content holds message content that is either a plain string or an ordered
// sequence of content parts. The wire format preserves whichever shape was
// set: parts marshal as a JSON array, everything else marshals as a string.
type Content struct {
	Text  string
	Parts []ContentPart
}

// TextContent creates string content
func TextContent(text string) Content {
	return Content{Text: text}
}

// PartsContent creates multi-part content
func PartsContent(parts ...ContentPart) Content {
	return Content{Parts: parts}
}

// IsParts reports whether the content carries content parts
func (c Content) IsParts() bool {
	return c.Parts != nil
}

// IsEmpty reports whether the content has neither text nor parts
func (c Content) IsEmpty() bool {
	return c.Text == "" && len(c.Parts) == 0
}

// AsText flattens the content to plain text. Part content concatenates the
// text parts; non-text parts contribute nothing.
func (c Content) AsText() string {
	if !c.IsParts() {
		return c.Text
	}
	var out string
	for _, p := range c.Parts {
		if p.Type == ContentPartText {
			out += p.Text
		}
	}
	return out
}

// Clone returns a deep copy of the content
func (c Content) Clone() Content {
	out := c
	if c.Parts != nil {
		out.Parts = make([]ContentPart, len(c.Parts))
		copy(out.Parts, c.Parts)
	}
	return out
}

// MarshalJSON implements json.Marshaler
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsParts() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON implements json.Unmarshaler
func (c *Content) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*c = Content{Text: text}
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err == nil {
		*c = Content{Parts: parts}
		return nil
	}
	// null content is treated as empty text
	if string(data) == "null" {
		*c = Content{}
		return nil
	}
	return fmt.Errorf("content must be a string or an array of content parts")
}

// ContentPartType represents the type of a content part
type ContentPartType string

const (
	// ContentPartText represents a text part
	ContentPartText ContentPartType = "text"

	// ContentPartImageURL represents an image reference part
	ContentPartImageURL ContentPartType = "image_url"

	// ContentPartFile represents an attached file part
	ContentPartFile ContentPartType = "file"

	// ContentPartInputAudio represents an audio input part
	ContentPartInputAudio ContentPartType = "input_audio"

	// ContentPartInputVideo represents a video input part
	ContentPartInputVideo ContentPartType = "input_video"
)

// ContentPart represents one element of multi-part message content
type ContentPart struct {
	Type ContentPartType `json:"type"`

	// Text part
	Text string `json:"text,omitempty"`

	// Image part
	ImageURL *ImageURL `json:"image_url,omitempty"`

	// File part
	File *FileData `json:"file,omitempty"`

	// Audio part
	InputAudio *AudioData `json:"input_audio,omitempty"`

	// Video part
	InputVideo *VideoData `json:"input_video,omitempty"`
}

// ImageURL references an image by URL or data URI
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// FileData carries an attached file
type FileData struct {
	FileID   string `json:"file_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	FileData string `json:"file_data,omitempty"`
}

// AudioData carries base64 audio input
type AudioData struct {
	Data   string `json:"data"`
	Format string `json:"format"`
}

// VideoData carries a video reference
type VideoData struct {
	URL string `json:"url"`
}

// ToolCall represents one tool invocation issued by an assistant message.
// The shape matches the provider wire format.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and its serialized arguments
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`

	// argumentsNonString records that the persisted arguments field was not
	// a JSON string. Protocol repair treats such calls as invalid.
	argumentsNonString bool
}

// ArgumentsIsString reports whether arguments arrived as a JSON string, the
// only shape the protocol allows.
func (f FunctionCall) ArgumentsIsString() bool {
	return !f.argumentsNonString
}

// UnmarshalJSON tolerates malformed persisted calls whose arguments field is
// not a string; the raw JSON is kept so nothing is lost before repair runs.
func (f *FunctionCall) UnmarshalJSON(data []byte) error {
	var wire struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	f.Name = wire.Name
	f.Arguments = ""
	f.argumentsNonString = false

	if len(wire.Arguments) == 0 || string(wire.Arguments) == "null" {
		f.argumentsNonString = true
		return nil
	}
	var s string
	if err := json.Unmarshal(wire.Arguments, &s); err == nil {
		f.Arguments = s
		return nil
	}
	f.Arguments = string(wire.Arguments)
	f.argumentsNonString = true
	return nil
}

// ToolCallTypeFunction is the only tool call type the protocol defines
const ToolCallTypeFunction = "function"

// Usage represents token usage reported by the provider
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
