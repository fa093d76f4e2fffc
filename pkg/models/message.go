// Package models holds the data types shared by every component of the
// agent core: messages, sessions, tools, and approval rules.
package models

import (
	"encoding/json"
	"time"
)

// MessageKind discriminates the five Message variants. A Message carries
// only the fields relevant to its Kind; the others stay zero.
type MessageKind string

const (
	KindUser       MessageKind = "user"
	KindAssistant  MessageKind = "assistant"
	KindToolCall   MessageKind = "tool_call"
	KindToolResult MessageKind = "tool_result"
	KindSystem     MessageKind = "system"
)

// ErrorKind enumerates the ways a tool execution can fail. Exactly one of
// these is set on a ToolResult message when Success is false.
type ErrorKind string

const (
	ErrorInvalidArguments ErrorKind = "invalid_arguments"
	ErrorNotPermitted     ErrorKind = "not_permitted"
	ErrorCancelled        ErrorKind = "cancelled"
	ErrorTimeout          ErrorKind = "timeout"
	ErrorIO               ErrorKind = "io"
	ErrorSubprocess       ErrorKind = "subprocess"
	ErrorExternal         ErrorKind = "external"
	ErrorInternal         ErrorKind = "internal"
)

// Message is a tagged variant of the five kinds of transcript entries a
// session can hold. Field-by-kind:
//
//	User        Text
//	Assistant   Text, ToolCalls (the tool-call requests it produced)
//	ToolCall    ToolCallID, ToolName, ToolArguments, Interrupted
//	ToolResult  ToolCallID, Success, Output, Error
//	System      Text
//
// A Message's TokenCount is -1 until the accountant measures it; callers
// must not treat a zero count as "measured".
type Message struct {
	ID        string      `json:"id"`
	Kind      MessageKind `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`

	// TokenCount caches the accountant's measurement for this message.
	// -1 means "not yet measured".
	TokenCount int `json:"token_count"`
	// Estimated is true when TokenCount came from the heuristic fallback
	// rather than an exact tokenizer call.
	Estimated bool `json:"estimated,omitempty"`

	// Text holds the body for User, Assistant, and System messages.
	Text string `json:"text,omitempty"`

	// ToolCalls holds the tool-call requests attached to an Assistant
	// message. Each entry also appears as its own ToolCall message in the
	// transcript; this slice lets the context assembler group them with
	// the assistant turn that produced them.
	ToolCalls []ToolCallRef `json:"tool_calls,omitempty"`

	// ToolCallID identifies the tool invocation for ToolCall and
	// ToolResult messages; a ToolResult's ToolCallID must match exactly
	// one prior ToolCall message's ID.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolName is set on ToolCall messages.
	ToolName string `json:"tool_name,omitempty"`
	// ToolArguments is the raw argument object on ToolCall messages.
	ToolArguments json.RawMessage `json:"tool_arguments,omitempty"`
	// Interrupted marks a ToolCall whose turn was cancelled before a
	// matching ToolResult was produced.
	Interrupted bool `json:"interrupted,omitempty"`

	// Success, Output and Error are set on ToolResult messages.
	Success bool      `json:"success,omitempty"`
	Output  string     `json:"output,omitempty"`
	Error   ErrorKind  `json:"error,omitempty"`

	// CompactionSummary marks a System message as the product of
	// compaction rather than an ordinary system note.
	CompactionSummary bool `json:"compaction_summary,omitempty"`
}

// ToolCallRef is a lightweight pointer from an Assistant message to one of
// the ToolCall messages it produced, preserving the order the LLM
// returned them in.
type ToolCallRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewUserMessage constructs a User message with an unmeasured token count.
func NewUserMessage(id, text string, createdAt time.Time) Message {
	return Message{ID: id, Kind: KindUser, Text: text, CreatedAt: createdAt, TokenCount: -1}
}

// NewAssistantMessage constructs an Assistant message.
func NewAssistantMessage(id, text string, toolCalls []ToolCallRef, createdAt time.Time) Message {
	return Message{ID: id, Kind: KindAssistant, Text: text, ToolCalls: toolCalls, CreatedAt: createdAt, TokenCount: -1}
}

// NewToolCallMessage constructs a ToolCall message.
func NewToolCallMessage(id, toolName string, args json.RawMessage, createdAt time.Time) Message {
	return Message{ID: id, Kind: KindToolCall, ToolCallID: id, ToolName: toolName, ToolArguments: args, CreatedAt: createdAt, TokenCount: -1}
}

// NewToolResultMessage constructs a ToolResult message.
func NewToolResultMessage(id, toolCallID, output string, success bool, errKind ErrorKind, createdAt time.Time) Message {
	return Message{
		ID:         id,
		Kind:       KindToolResult,
		ToolCallID: toolCallID,
		Success:    success,
		Output:     output,
		Error:      errKind,
		CreatedAt:  createdAt,
		TokenCount: -1,
	}
}

// NewSystemMessage constructs a System message.
func NewSystemMessage(id, text string, createdAt time.Time) Message {
	return Message{ID: id, Kind: KindSystem, Text: text, CreatedAt: createdAt, TokenCount: -1}
}

// SerializedContent returns the text the token accountant should measure
// for this message: the body text for User/Assistant/System, the
// argument JSON for ToolCall, and the output string for ToolResult.
func (m Message) SerializedContent() string {
	switch m.Kind {
	case KindToolCall:
		return string(m.ToolArguments)
	case KindToolResult:
		return m.Output
	default:
		return m.Text
	}
}
