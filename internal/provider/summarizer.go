package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// summarizationInstruction is the dedicated system prompt §4.E calls for
// when compaction is summarized by the LLM rather than the deterministic
// extractor. It enumerates exactly what the compaction summary MUST
// preserve so the model doesn't drop file identities or open questions.
const summarizationInstruction = `Summarize the following conversation segment for a coding agent's own future reference. Preserve: the identity of every file created or modified, with a one-line description of the change; every unresolved error or open question; the user's current stated objective; any pending todo items; any approval rules established. You may discard verbose prose already acted on, superseded reasoning, and duplicated tool output. Write plain prose, no headers.`

// LLMSummarizer implements context.Summarizer by asking a Completer to
// fold a run of messages into prose, grounded on the teacher's
// agent/compaction.go LLM-backed summarization call. It is a thin wrapper
// deliberately kept out of internal/context so that package stays
// network-free and unit-testable without a provider.
type LLMSummarizer struct {
	llm   Completer
	model string
}

// Completer is the subset of LLMProvider a summarizer needs.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error)
}

// NewLLMSummarizer builds a Summarizer backed by llm, using model for the
// summarization call (which need not match the agent's main model; a
// cheaper/faster model is a reasonable choice here).
func NewLLMSummarizer(llm Completer, model string) *LLMSummarizer {
	return &LLMSummarizer{llm: llm, model: model}
}

// Summarize renders messages as a flat transcript and asks the model to
// fold it into the preserved-facts prose §4.E requires.
func (s *LLMSummarizer) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	if len(messages) == 0 {
		return "No prior activity to summarize.", nil
	}
	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "[%s] %s\n", m.Kind, m.SerializedContent())
	}
	req := CompletionRequest{
		Model: s.model,
		Messages: []models.Message{
			models.NewSystemMessage("summarizer-instruction", summarizationInstruction, messages[0].CreatedAt),
			models.NewUserMessage("summarizer-input", transcript.String(), messages[0].CreatedAt),
		},
		MaxTokens: 1024,
	}
	chunks, err := s.llm.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm summarize: %w", err)
	}
	var out strings.Builder
	for c := range chunks {
		if c.Error != nil {
			return "", fmt.Errorf("llm summarize stream: %w", c.Error)
		}
		out.WriteString(c.Text)
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("llm summarize: empty response")
	}
	return out.String(), nil
}
