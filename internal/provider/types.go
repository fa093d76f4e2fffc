// Package provider adapts the spec's ReAct orchestrator to concrete LLM
// backends. It generalizes the teacher's internal/agent provider
// abstraction (LLMProvider, CompletionRequest/Chunk) directly onto
// pkg/models.Message rather than duplicating a parallel wire-message
// type, since the context assembler already produces the exact
// transcript shape a provider needs to send.
package provider

import (
	"context"
	"encoding/json"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// ToolSpec describes one callable tool to the LLM: name, description, and
// JSON Schema parameters, mirroring internal/tools.Registry entries
// without importing that package (avoids an import cycle, since the
// registry itself has no need to know about providers).
type ToolSpec struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ToolCallRequest is a complete tool invocation the model asked for,
// assembled from one or more streamed chunks.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// CompletionRequest is everything a provider needs to produce the next
// assistant turn. Messages is the assembler's output verbatim; providers
// that require the system prompt out-of-band (Anthropic) split it out of
// the leading System message themselves via SplitSystem.
type CompletionRequest struct {
	Model     string
	Messages  []models.Message
	Tools     []ToolSpec
	MaxTokens int
}

// CompletionChunk is one piece of a streamed completion. Each chunk
// carries one of Text, ToolCall, Done, or Error (an Error chunk may also
// set Done), matching the teacher's agent.CompletionChunk discipline.
type CompletionChunk struct {
	Text         string
	ToolCall     *ToolCallRequest
	Done         bool
	Error        error
	InputTokens  int
	OutputTokens int
}

// Model describes an available backend model.
type Model struct {
	ID             string
	Name           string
	ContextSize    int
	SupportsVision bool
}

// LLMProvider is the interface the orchestrator (component F) and the
// failover wrapper program against. Grounded on the teacher's
// internal/agent.LLMProvider.
type LLMProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error)
	Name() string
	Models() []Model
	SupportsTools() bool
}

// SplitSystem pulls any leading System messages off the front of a
// transcript and joins their text for APIs (Anthropic) that take the
// system prompt as a separate request field rather than a transcript
// entry.
func SplitSystem(messages []models.Message) (system string, rest []models.Message) {
	i := 0
	var parts []string
	for i < len(messages) && messages[i].Kind == models.KindSystem {
		parts = append(parts, messages[i].Text)
		i++
	}
	rest = messages[i:]
	for j, p := range parts {
		if j > 0 {
			system += "\n\n"
		}
		system += p
	}
	return system, rest
}
