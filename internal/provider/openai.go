package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// OpenAIProvider implements LLMProvider against the Chat Completions API.
// Grounded on the teacher's internal/agent/providers/openai.go: same
// client, streaming-with-retry shape, and delta-accumulation loop for
// tool calls, adapted to pkg/models.Message.
type OpenAIProvider struct {
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// NewOpenAIProvider constructs a provider. An empty apiKey yields a
// provider whose Complete always errors, mirroring the teacher's
// "configured without credentials" placeholder state used in tests.
func NewOpenAIProvider(apiKey, defaultModel string) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}
	p := &OpenAIProvider{maxRetries: 3, retryDelay: time.Second, defaultModel: defaultModel}
	if apiKey != "" {
		client := openai.NewClient(apiKey)
		p.client = client
	}
	return p
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Models() []Model {
	return []Model{
		{ID: "gpt-4o", Name: "GPT-4o", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo", ContextSize: 128000, SupportsVision: true},
		{ID: "gpt-4", Name: "GPT-4", ContextSize: 8192, SupportsVision: false},
	}
}

func (p *OpenAIProvider) SupportsTools() bool { return true }

func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New("openai: API key not configured")
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	system, rest := SplitSystem(req.Messages)
	messages, err := convertOpenAIMessages(system, rest)
	if err != nil {
		return nil, fmt.Errorf("openai: convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertOpenAITools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error
	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}
		stream, lastErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryableError(lastErr) {
			return nil, fmt.Errorf("openai: non-retryable error: %w", lastErr)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("openai: max retries exceeded: %w", lastErr)
	}

	chunks := make(chan CompletionChunk)
	go processOpenAIStream(stream, chunks)
	return chunks, nil
}

func processOpenAIStream(stream *openai.ChatCompletionStream, chunks chan<- CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	pending := make(map[int]*ToolCallRequest)
	var inputTokens, outputTokens int

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				for _, tc := range orderedCalls(pending) {
					if tc.ID != "" && tc.Name != "" {
						chunks <- CompletionChunk{ToolCall: tc}
					}
				}
				chunks <- CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
				return
			}
			chunks <- CompletionChunk{Error: err, Done: true}
			return
		}

		if resp.Usage != nil {
			inputTokens = resp.Usage.PromptTokens
			outputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			chunks <- CompletionChunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if pending[index] == nil {
				pending[index] = &ToolCallRequest{}
			}
			if tc.ID != "" {
				pending[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				pending[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				pending[index].Arguments = append(pending[index].Arguments, []byte(tc.Function.Arguments)...)
			}
		}

		if resp.Choices[0].FinishReason == openai.FinishReasonToolCalls {
			for _, tc := range orderedCalls(pending) {
				if tc.ID != "" && tc.Name != "" {
					chunks <- CompletionChunk{ToolCall: tc}
				}
			}
			pending = make(map[int]*ToolCallRequest)
		}
	}
}

// orderedCalls returns the accumulated tool calls sorted by stream index,
// which is the order the model returned them in.
func orderedCalls(pending map[int]*ToolCallRequest) []*ToolCallRequest {
	indices := make([]int, 0, len(pending))
	for i := range pending {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	out := make([]*ToolCallRequest, 0, len(indices))
	for _, i := range indices {
		out = append(out, pending[i])
	}
	return out
}

// convertOpenAIMessages mirrors convertMessages' grouping: an Assistant
// message's text and the ToolCall messages following it are folded into
// one assistant-role message carrying both Content and ToolCalls, since
// the Chat Completions API expects tool_calls attached to the assistant
// turn that requested them, not as standalone messages.
func convertOpenAIMessages(system string, messages []models.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	var pendingText string
	var pendingCalls []openai.ToolCall
	inAssistant := false

	flushAssistant := func() {
		if !inAssistant {
			return
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   pendingText,
			ToolCalls: pendingCalls,
		})
		pendingText, pendingCalls, inAssistant = "", nil, false
	}

	for i := range messages {
		m := &messages[i]
		switch m.Kind {
		case models.KindUser:
			flushAssistant()
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Text})
		case models.KindAssistant:
			flushAssistant()
			inAssistant = true
			pendingText = m.Text
		case models.KindToolCall:
			inAssistant = true
			pendingCalls = append(pendingCalls, openai.ToolCall{
				ID:   m.ToolCallID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      m.ToolName,
					Arguments: string(m.ToolArguments),
				},
			})
		case models.KindToolResult:
			flushAssistant()
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Output,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	flushAssistant()
	return result, nil
}

func convertOpenAITools(tools []ToolSpec) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(t.Schema, &schemaMap); err != nil {
			schemaMap = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schemaMap,
			},
		}
	}
	return result
}
