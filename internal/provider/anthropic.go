package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// AnthropicConfig configures an AnthropicProvider. All fields but APIKey
// are optional and defaulted in NewAnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// AnthropicProvider implements LLMProvider against Claude's Messages API.
// Grounded on the teacher's internal/agent/providers/anthropic.go: same
// client construction, retry-with-backoff-then-stream shape, and SSE
// event switch, narrowed to the non-beta (no computer-use, no extended
// thinking) path this spec's tool set needs.
type AnthropicProvider struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// NewAnthropicProvider constructs a provider, applying the teacher's
// defaults (3 retries, 1s base backoff, Claude Sonnet 4 as default
// model) when the caller leaves a field zero.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []Model {
	return []Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-3-haiku-20240307", Name: "Claude 3 Haiku", ContextSize: 200000, SupportsVision: true},
	}
}

func (p *AnthropicProvider) SupportsTools() bool { return true }

func (p *AnthropicProvider) getModel(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *AnthropicProvider) getMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return 4096
}

// Complete streams a completion, retrying transient failures with
// exponential backoff before the stream starts (once streaming begins,
// a mid-stream error is surfaced as an Error chunk rather than retried,
// matching the teacher).
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error) {
	chunks := make(chan CompletionChunk)

	go func() {
		defer close(chunks)

		var stream *ssestream.Stream[anthropic.MessageStreamEventUnion]
		var err error
		for attempt := 0; attempt <= p.maxRetries; attempt++ {
			stream, err = p.createStream(ctx, req)
			if err == nil {
				break
			}
			if !isRetryableError(err) {
				chunks <- CompletionChunk{Error: fmt.Errorf("anthropic: %w", err)}
				return
			}
			if attempt < p.maxRetries {
				backoff := p.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
				select {
				case <-ctx.Done():
					chunks <- CompletionChunk{Error: ctx.Err()}
					return
				case <-time.After(backoff):
				}
			}
		}
		if err != nil {
			chunks <- CompletionChunk{Error: fmt.Errorf("anthropic: max retries exceeded: %w", err)}
			return
		}

		p.processStream(stream, chunks)
	}()

	return chunks, nil
}

func (p *AnthropicProvider) createStream(ctx context.Context, req CompletionRequest) (*ssestream.Stream[anthropic.MessageStreamEventUnion], error) {
	system, rest := SplitSystem(req.Messages)

	messages, err := convertMessages(rest)
	if err != nil {
		return nil, fmt.Errorf("convert messages: %w", err)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.getModel(req.Model)),
		Messages:  messages,
		MaxTokens: int64(p.getMaxTokens(req.MaxTokens)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	return p.client.Messages.NewStreaming(ctx, params), nil
}

// convertMessages groups the transcript into alternating user/assistant
// turns. An Assistant message's text and the ToolCall messages that
// immediately follow it (its ToolCalls) are folded into a single
// assistant turn with multiple content blocks, since the Messages API
// expects one content-block array per role, not one message per block.
func convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	var userBlocks, assistantBlocks []anthropic.ContentBlockParamUnion
	inAssistant := false

	flushUser := func() {
		if len(userBlocks) > 0 {
			result = append(result, anthropic.NewUserMessage(userBlocks...))
			userBlocks = nil
		}
	}
	flushAssistant := func() {
		if inAssistant {
			if len(assistantBlocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(assistantBlocks...))
			}
			assistantBlocks = nil
			inAssistant = false
		}
	}

	for i := range messages {
		m := &messages[i]
		switch m.Kind {
		case models.KindUser:
			flushAssistant()
			flushUser()
			userBlocks = append(userBlocks, anthropic.NewTextBlock(m.Text))
		case models.KindToolResult:
			flushAssistant()
			userBlocks = append(userBlocks, anthropic.NewToolResultBlock(m.ToolCallID, m.Output, !m.Success))
		case models.KindAssistant:
			flushUser()
			flushAssistant()
			inAssistant = true
			if m.Text != "" {
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(m.Text))
			}
		case models.KindToolCall:
			flushUser()
			inAssistant = true
			var input map[string]any
			if len(m.ToolArguments) > 0 {
				if err := json.Unmarshal(m.ToolArguments, &input); err != nil {
					return nil, fmt.Errorf("invalid tool call arguments for %s: %w", m.ToolName, err)
				}
			}
			assistantBlocks = append(assistantBlocks, anthropic.NewToolUseBlock(m.ToolCallID, input, m.ToolName))
		}
	}
	flushAssistant()
	flushUser()
	return result, nil
}

func convertTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(t.Schema, &schemaMap); err != nil {
			schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		props, _ := schemaMap["properties"].(map[string]any)
		var required []string
		if r, ok := schemaMap["required"].([]any); ok {
			for _, v := range r {
				if s, ok := v.(string); ok {
					required = append(required, s)
				}
			}
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	return result
}

func (p *AnthropicProvider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], chunks chan<- CompletionChunk) {
	var currentToolCall *ToolCallRequest
	var currentToolInput strings.Builder
	var inputTokens, outputTokens int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			if ms.Message.Usage.InputTokens > 0 {
				inputTokens = int(ms.Message.Usage.InputTokens)
			}
		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			if block.Type == "tool_use" {
				toolUse := block.AsToolUse()
				currentToolCall = &ToolCallRequest{ID: toolUse.ID, Name: toolUse.Name}
				currentToolInput.Reset()
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					chunks <- CompletionChunk{Text: delta.Text}
				}
			case "input_json_delta":
				currentToolInput.WriteString(delta.PartialJSON)
			}
		case "content_block_stop":
			if currentToolCall != nil {
				currentToolCall.Arguments = json.RawMessage(currentToolInput.String())
				chunks <- CompletionChunk{ToolCall: currentToolCall}
				currentToolCall = nil
			}
		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = int(md.Usage.OutputTokens)
			}
		case "message_stop":
			chunks <- CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
			return
		case "error":
			chunks <- CompletionChunk{Error: errors.New("anthropic: stream error")}
			return
		}
	}
	if err := stream.Err(); err != nil {
		chunks <- CompletionChunk{Error: fmt.Errorf("anthropic: %w", err)}
	}
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded", "connection reset"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// Count implements accountant.Tokenizer against the real Messages
// endpoint, so the accountant's exact-count path is backed by the
// actual API rather than a character heuristic (the teacher's own
// CountTokens is char/4 and is demoted to the fallback here; see
// DESIGN.md).
func (p *AnthropicProvider) Count(ctx context.Context, text string) (int, error) {
	resp, err := p.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model:    anthropic.Model(p.defaultModel),
		Messages: []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(text))},
	})
	if err != nil {
		return 0, fmt.Errorf("anthropic: count tokens: %w", err)
	}
	return int(resp.InputTokens), nil
}
