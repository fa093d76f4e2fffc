package agent

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/accountant"
	agentctx "github.com/OpenVibeCoding/swe-cli-sub001/internal/context"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/observability"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/provider"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/store"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/tools"
	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.LogConfig{Output: io.Discard})
}

// fakeCompleter drives a scripted sequence of responses, one per call to
// Complete, so a test can control exactly what the orchestrator "hears"
// back from the model at each S1 cycle.
type fakeCompleter struct {
	responses []fakeResponse
	calls     int
}

type fakeResponse struct {
	text  string
	calls []provider.ToolCallRequest
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, req provider.CompletionRequest) (<-chan provider.CompletionChunk, error) {
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	resp := f.responses[idx]
	if resp.err != nil {
		return nil, resp.err
	}

	ch := make(chan provider.CompletionChunk, len(resp.calls)+2)
	if resp.text != "" {
		ch <- provider.CompletionChunk{Text: resp.text}
	}
	for _, c := range resp.calls {
		cc := c
		ch <- provider.CompletionChunk{ToolCall: &cc}
	}
	ch <- provider.CompletionChunk{Done: true}
	close(ch)
	return ch, nil
}

// fakeTool is a minimal models.Tool driven entirely by its fields, in the
// no-mocking-library style the rest of the tree already tests with.
type fakeTool struct {
	name           string
	dangerous      bool
	reversible     bool
	result         func(args json.RawMessage) models.ToolResult
	defaultTimeout time.Duration
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "test tool" }
func (t *fakeTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object"}`)
}
func (t *fakeTool) Dangerous() bool  { return t.dangerous }
func (t *fakeTool) Reversible() bool { return t.reversible }
func (t *fakeTool) DefaultTimeout() time.Duration {
	if t.defaultTimeout > 0 {
		return t.defaultTimeout
	}
	return time.Second
}
func (t *fakeTool) Execute(ctx context.Context, args json.RawMessage, execCtx models.ExecutionContext) models.ToolResult {
	return t.result(args)
}

func newTestOrchestrator(t *testing.T, cfg Config, llm Completer, registry *tools.Registry) (*Orchestrator, *models.Session) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.New(dir)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	logger := testLogger()
	acct := accountant.New(nil, 0, logger, nil)
	compactor := agentctx.NewCompactor(agentctx.CompactorConfig{}, nil)
	executor := tools.NewExecutor(registry, tools.DefaultExecutorConfig(), logger, nil)

	o := New(cfg, st, registry, executor, acct, compactor, llm, logger, nil, nil)
	sess := store.NewSession(dir)
	return o, sess
}

func drainEvents(events <-chan Event) []Event {
	var out []Event
	for e := range events {
		out = append(out, e)
	}
	return out
}

func lastEvent(events []Event) Event {
	if len(events) == 0 {
		return Event{}
	}
	return events[len(events)-1]
}

func TestRunTurnCompletesWithoutToolCalls(t *testing.T) {
	llm := &fakeCompleter{responses: []fakeResponse{{text: "hello there"}}}
	registry := tools.NewRegistry()
	cfg := Config{SystemPrompt: "sys", MaxIterations: 5, LLMRetryBackoff: time.Millisecond}

	o, sess := newTestOrchestrator(t, cfg, llm, registry)
	events := drainEvents(o.RunTurn(context.Background(), sess, "hi", models.ModeNormal))

	if got := lastEvent(events); got.Kind != EventTurnCompleted {
		t.Fatalf("expected TurnCompleted, got %+v", got)
	}
	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 messages (user+assistant), got %d", len(sess.Messages))
	}
}

func TestRunTurnAbortsAtMaxIterations(t *testing.T) {
	call := provider.ToolCallRequest{ID: "c1", Name: "echo", Arguments: json.RawMessage(`{"n":1}`)}
	llm := &fakeCompleter{responses: []fakeResponse{{calls: []provider.ToolCallRequest{call}}}}

	registry := tools.NewRegistry()
	registry.Register(&fakeTool{
		name: "echo", reversible: true,
		result: func(args json.RawMessage) models.ToolResult {
			return models.ToolResult{Success: true, Output: "ok"}
		},
	})
	cfg := Config{SystemPrompt: "sys", MaxIterations: 2, LLMRetryBackoff: time.Millisecond}

	o, sess := newTestOrchestrator(t, cfg, llm, registry)
	events := drainEvents(o.RunTurn(context.Background(), sess, "loop forever", models.ModeNormal))

	got := lastEvent(events)
	if got.Kind != EventTurnAborted {
		t.Fatalf("expected TurnAborted, got %+v", got)
	}
}

func TestRunTurnAbortsOnStuckState(t *testing.T) {
	call := provider.ToolCallRequest{ID: "c1", Name: "fail_tool", Arguments: json.RawMessage(`{"path":"x"}`)}
	llm := &fakeCompleter{responses: []fakeResponse{{calls: []provider.ToolCallRequest{call}}}}

	registry := tools.NewRegistry()
	registry.Register(&fakeTool{
		name: "fail_tool", reversible: true,
		result: func(args json.RawMessage) models.ToolResult {
			return models.ToolResult{Success: false, Error: models.ErrorIO, Output: "boom"}
		},
	})
	cfg := Config{SystemPrompt: "sys", MaxIterations: 20, StuckThreshold: 3, LLMRetryBackoff: time.Millisecond}

	o, sess := newTestOrchestrator(t, cfg, llm, registry)
	events := drainEvents(o.RunTurn(context.Background(), sess, "retry the same broken call", models.ModeNormal))

	got := lastEvent(events)
	if got.Kind != EventTurnAborted || got.Reason == "" {
		t.Fatalf("expected TurnAborted with a reason, got %+v", got)
	}
}

func TestRunTurnAskUserApprovalFlow(t *testing.T) {
	call := provider.ToolCallRequest{ID: "c1", Name: "danger", Arguments: json.RawMessage(`{}`)}
	llm := &fakeCompleter{responses: []fakeResponse{
		{calls: []provider.ToolCallRequest{call}},
		{text: "all done"},
	}}

	registry := tools.NewRegistry()
	registry.Register(&fakeTool{
		name: "danger", dangerous: true,
		result: func(args json.RawMessage) models.ToolResult {
			return models.ToolResult{Success: true, Output: "did the dangerous thing"}
		},
	})
	cfg := Config{SystemPrompt: "sys", MaxIterations: 5, ApprovalTimeout: 2 * time.Second, LLMRetryBackoff: time.Millisecond}

	o, sess := newTestOrchestrator(t, cfg, llm, registry)
	eventsCh := o.RunTurn(context.Background(), sess, "do the dangerous thing", models.ModeNormal)

	var collected []Event
	for e := range eventsCh {
		collected = append(collected, e)
		if e.Kind == EventApprovalRequest && e.ToolName == "danger" {
			if !o.ResolveApproval(e.ToolCallID, models.ResponseYes) {
				t.Fatalf("ResolveApproval returned false for a pending request")
			}
		}
	}

	got := lastEvent(collected)
	if got.Kind != EventTurnCompleted {
		t.Fatalf("expected TurnCompleted, got %+v (all events: %+v)", got, collected)
	}

	var sawFinished bool
	for _, e := range collected {
		if e.Kind == EventToolCallFinished && e.ToolSuccess {
			sawFinished = true
		}
	}
	if !sawFinished {
		t.Fatalf("expected a successful ToolCallFinished event after approval, got %+v", collected)
	}
}

func TestRunTurnAskUserDenyMarksNotPermitted(t *testing.T) {
	call := provider.ToolCallRequest{ID: "c1", Name: "danger", Arguments: json.RawMessage(`{}`)}
	llm := &fakeCompleter{responses: []fakeResponse{
		{calls: []provider.ToolCallRequest{call}},
		{text: "okay, not doing that"},
	}}

	registry := tools.NewRegistry()
	registry.Register(&fakeTool{
		name: "danger", dangerous: true,
		result: func(args json.RawMessage) models.ToolResult {
			return models.ToolResult{Success: true, Output: "should not run"}
		},
	})
	cfg := Config{SystemPrompt: "sys", MaxIterations: 5, ApprovalTimeout: 2 * time.Second, LLMRetryBackoff: time.Millisecond}

	o, sess := newTestOrchestrator(t, cfg, llm, registry)
	eventsCh := o.RunTurn(context.Background(), sess, "do the dangerous thing", models.ModeNormal)

	var collected []Event
	for e := range eventsCh {
		collected = append(collected, e)
		if e.Kind == EventApprovalRequest {
			o.ResolveApproval(e.ToolCallID, models.ResponseNo)
		}
	}

	var sawNotPermitted bool
	for _, m := range sess.Messages {
		if m.Kind == models.KindToolResult && m.Error == models.ErrorNotPermitted {
			sawNotPermitted = true
		}
	}
	if !sawNotPermitted {
		t.Fatalf("expected a not_permitted tool result after deny, messages: %+v", sess.Messages)
	}

	// Denying a dangerous tool trips the batch-halt tie-break, and
	// declining to continue aborts the turn.
	if got := lastEvent(collected); got.Kind != EventTurnAborted {
		t.Fatalf("expected TurnAborted after declining to continue, got %+v", got)
	}
}

func TestRunTurnCancellationMidTool(t *testing.T) {
	call := provider.ToolCallRequest{ID: "c1", Name: "slow", Arguments: json.RawMessage(`{}`)}
	llm := &fakeCompleter{responses: []fakeResponse{{calls: []provider.ToolCallRequest{call}}}}

	started := make(chan struct{})
	registry := tools.NewRegistry()
	registry.Register(&fakeTool{
		name: "slow", reversible: true, defaultTimeout: 10 * time.Second,
		result: func(args json.RawMessage) models.ToolResult {
			close(started)
			time.Sleep(5 * time.Second)
			return models.ToolResult{Success: true, Output: "too slow"}
		},
	})
	cfg := Config{SystemPrompt: "sys", MaxIterations: 5, LLMRetryBackoff: time.Millisecond}

	o, sess := newTestOrchestrator(t, cfg, llm, registry)
	eventsCh := o.RunTurn(context.Background(), sess, "go slow", models.ModeNormal)

	go func() {
		<-started
		o.CancelTurn(sess.ID)
	}()

	events := drainEvents(eventsCh)
	if got := lastEvent(events); got.Kind != EventTurnCancelled {
		t.Fatalf("expected TurnCancelled, got %+v", got)
	}
}

func TestRunTurnLLMUnreachableEndsTurnGracefully(t *testing.T) {
	llm := &fakeCompleter{responses: []fakeResponse{{err: context.DeadlineExceeded}}}
	registry := tools.NewRegistry()
	cfg := Config{SystemPrompt: "sys", MaxIterations: 5, LLMRetries: 2, LLMRetryBackoff: time.Millisecond}

	o, sess := newTestOrchestrator(t, cfg, llm, registry)
	events := drainEvents(o.RunTurn(context.Background(), sess, "hi", models.ModeNormal))

	var sawUnreachable bool
	for _, e := range events {
		if e.Kind == EventAssistantText && e.Text == llmUnreachableMessage {
			sawUnreachable = true
		}
	}
	if !sawUnreachable {
		t.Fatalf("expected the unreachable-model assistant message, got %+v", events)
	}
	if got := lastEvent(events); got.Kind != EventTurnCompleted {
		t.Fatalf("expected TurnCompleted after giving up on the model, got %+v", got)
	}
}
