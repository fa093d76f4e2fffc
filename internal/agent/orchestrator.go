package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/accountant"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/approval"
	agentctx "github.com/OpenVibeCoding/swe-cli-sub001/internal/context"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/observability"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/playbook"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/provider"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/store"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/tools"
	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// Completer is the subset of provider.LLMProvider the orchestrator
// needs, satisfied directly by a single provider or by
// provider.FailoverProvider.
type Completer interface {
	Complete(ctx context.Context, req provider.CompletionRequest) (<-chan provider.CompletionChunk, error)
}

// Orchestrator drives the S0/S1/S2/S3 state machine for one session at a
// time, wiring together every other component. Grounded on the teacher's
// internal/agent/loop.go AgenticLoop: the goroutine-plus-buffered-
// channel event shape and the persist-as-you-go message handling are
// kept; the parallel tool fan-out and streaming-chunk-to-client plumbing
// are replaced with the strictly sequential, approval-gated cycle §4.F
// specifies.
type Orchestrator struct {
	cfg Config

	store      *store.Store
	registry   *tools.Registry
	executor   *tools.Executor
	accountant *accountant.Accountant
	assembler  agentctx.Config
	compactor  *agentctx.Compactor
	llm        Completer
	logger     *observability.Logger
	metrics    *observability.Metrics

	globalRules []models.ApprovalRule

	approvals *approvalWaiter

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs an Orchestrator. globalRules are the configuration-level
// approval rules (as opposed to a session's own ApprovalRules).
func New(
	cfg Config,
	st *store.Store,
	registry *tools.Registry,
	executor *tools.Executor,
	acct *accountant.Accountant,
	compactor *agentctx.Compactor,
	llm Completer,
	logger *observability.Logger,
	metrics *observability.Metrics,
	globalRules []models.ApprovalRule,
) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:        cfg,
		store:      st,
		registry:   registry,
		executor:   executor,
		accountant: acct,
		assembler:  agentctx.Config{SystemPrompt: cfg.SystemPrompt, DigestSize: cfg.DigestSize, WindowPairs: cfg.WindowPairs},
		compactor:  compactor,
		llm:        llm,
		logger:     logger,
		metrics:    metrics,
		globalRules: globalRules,
		approvals:  newApprovalWaiter(),
		cancels:    make(map[string]context.CancelFunc),
	}
}

// ResolveApproval delivers a user's decision for an outstanding
// ApprovalRequest event, identified by its ToolCallID. It returns false
// if no such request is outstanding.
func (o *Orchestrator) ResolveApproval(toolCallID string, resp models.UserResponse) bool {
	return o.approvals.Resolve(toolCallID, resp)
}

// CancelTurn requests cancellation of the turn currently running for
// sessionID, if any. It is a no-op if no turn is in flight.
func (o *Orchestrator) CancelTurn(sessionID string) {
	o.mu.Lock()
	cancel, ok := o.cancels[sessionID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

func (o *Orchestrator) registerCancel(sessionID string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.cancels[sessionID] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) unregisterCancel(sessionID string) {
	o.mu.Lock()
	delete(o.cancels, sessionID)
	o.mu.Unlock()
}

// RunTurn starts a new turn for sess with userText as the inbound
// message and streams Events over the returned channel until the turn
// reaches S_END, S_CANC, or S_ABORT, at which point the channel is
// closed. Per §4.F, a new turn must not start until the previous one
// has reached a terminal state; callers are responsible for serializing
// calls to RunTurn per session (the CLI and any future front-end only
// ever have one turn in flight for a given session at a time).
func (o *Orchestrator) RunTurn(ctx context.Context, sess *models.Session, userText string, mode models.Mode) <-chan Event {
	events := make(chan Event, 16)
	turnCtx, cancel := context.WithCancel(ctx)
	o.registerCancel(sess.ID, cancel)

	go func() {
		defer close(events)
		defer o.unregisterCancel(sess.ID)
		defer cancel()
		o.runTurn(turnCtx, sess, userText, mode, events)
	}()

	return events
}

func (o *Orchestrator) runTurn(ctx context.Context, sess *models.Session, userText string, mode models.Mode, events chan<- Event) {
	now := time.Now
	turnStart := now()

	userMsg := models.NewUserMessage(uuid.NewString(), userText, now())
	o.appendAndMeasure(ctx, sess, userMsg)
	o.persist(ctx, sess)

	var toolTrace []playbook.ToolTrace
	stuck := newStuckTracker(o.cfg.StuckThreshold)
	tokensAtStart := sess.TotalTokens

	iterations := 0
	if o.metrics != nil {
		defer func() { o.metrics.TurnIterations.Observe(float64(iterations)) }()
	}

	for iteration := 1; ; iteration++ {
		if ctx.Err() != nil {
			o.finishCancelled(ctx, sess, events)
			return
		}
		if iteration > o.cfg.MaxIterations {
			o.finishAborted(ctx, sess, events, fmt.Sprintf("max_iterations: exceeded %d reason/act iterations", o.cfg.MaxIterations))
			return
		}
		if o.cfg.MaxWallTime > 0 && now().Sub(turnStart) > o.cfg.MaxWallTime {
			o.finishAborted(ctx, sess, events, fmt.Sprintf("max_wall_time: exceeded %s wall-time budget", o.cfg.MaxWallTime))
			return
		}
		if o.cfg.MaxTurnTokens > 0 && sess.TotalTokens-tokensAtStart > o.cfg.MaxTurnTokens {
			o.finishAborted(ctx, sess, events, fmt.Sprintf("max_turn_tokens: exceeded %d cumulative tokens for this turn", o.cfg.MaxTurnTokens))
			return
		}

		if total := o.accountant.SessionTotal(ctx, sess); o.accountant.NeedsCompaction(total) && o.compactor != nil {
			if compacted, err := o.compactor.Compact(ctx, sess, now()); err != nil && o.logger != nil {
				o.logger.Warn(ctx, "compaction failed", "session_id", sess.ID, "error", err.Error())
			} else if compacted {
				if o.metrics != nil {
					o.metrics.CompactionEvents.WithLabelValues("threshold").Inc()
				}
				o.accountant.SessionTotal(ctx, sess)
			}
		}

		iterations = iteration
		assistantText, toolCalls, reached, err := o.think(ctx, sess, events)
		if err != nil {
			o.appendAndMeasure(ctx, sess, models.NewAssistantMessage(uuid.NewString(), llmUnreachableMessage, nil, now()))
			o.persist(ctx, sess)
			events <- Event{Kind: EventAssistantText, Text: llmUnreachableMessage}
			events <- Event{Kind: EventTurnCompleted}
			return
		}
		if !reached {
			o.finishCancelled(ctx, sess, events)
			return
		}

		refs := make([]models.ToolCallRef, len(toolCalls))
		for i, tc := range toolCalls {
			refs[i] = models.ToolCallRef{ID: tc.ID, Name: tc.Name}
		}
		o.appendAndMeasure(ctx, sess, models.NewAssistantMessage(uuid.NewString(), assistantText, refs, now()))
		o.persist(ctx, sess)

		if len(toolCalls) == 0 {
			o.finishCompleted(ctx, sess, toolTrace, events)
			return
		}

		haltBatch, abortReason, cancelled := o.runToolBatch(ctx, sess, mode, toolCalls, &toolTrace, stuck, events)
		if cancelled {
			o.finishCancelled(ctx, sess, events)
			return
		}
		if abortReason != "" {
			o.finishAborted(ctx, sess, events, abortReason)
			return
		}
		if haltBatch {
			events <- Event{Kind: EventApprovalRequest, ToolCallID: batchContinueID(sess), ToolName: "__continue_batch__", Reason: "a dangerous tool call was not permitted; continue the turn?"}
			resp, err := o.approvals.await(ctx, batchContinueID(sess), o.approvalTimeoutChan())
			if err != nil || !approval.Allowed(resp) {
				o.finishAborted(ctx, sess, events, "user_declined_continue: user declined to continue after a denied dangerous tool call")
				return
			}
		}
		// loop back to S1
	}
}

func batchContinueID(sess *models.Session) string {
	return "continue-batch:" + sess.ID
}

// think runs the S1 state: assemble context, call the LLM with retry,
// and accumulate the streamed response. reached is false only when the
// turn was cancelled mid-call.
func (o *Orchestrator) think(ctx context.Context, sess *models.Session, events chan<- Event) (text string, calls []provider.ToolCallRequest, reached bool, err error) {
	req := provider.CompletionRequest{
		Model:     o.cfg.Model,
		Messages:  agentctx.Assemble(sess, o.assembler, time.Now()),
		Tools:     o.toolSpecs(),
		MaxTokens: o.cfg.MaxTokens,
	}

	backoff := o.cfg.LLMRetryBackoff
	for attempt := 0; attempt < o.cfg.LLMRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", nil, false, nil
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		start := time.Now()
		llmCtx, cancel := context.WithTimeout(ctx, o.cfg.LLMTimeout)
		chunks, completeErr := o.llm.Complete(llmCtx, req)
		if completeErr != nil {
			cancel()
			err = completeErr
			continue
		}

		text, calls, streamErr := o.drain(chunks, events)
		cancel()
		if o.metrics != nil {
			status := "success"
			if streamErr != nil {
				status = "error"
			}
			o.metrics.LLMRequestDuration.WithLabelValues("default", o.cfg.Model).Observe(time.Since(start).Seconds())
			o.metrics.LLMRequestCounter.WithLabelValues("default", o.cfg.Model, status).Inc()
		}
		if streamErr != nil {
			if ctx.Err() != nil {
				return "", nil, false, nil
			}
			err = streamErr
			continue
		}
		return text, calls, true, nil
	}
	return "", nil, true, fmt.Errorf("agent: llm unreachable after %d attempts: %w", o.cfg.LLMRetries, err)
}

func (o *Orchestrator) drain(chunks <-chan provider.CompletionChunk, events chan<- Event) (string, []provider.ToolCallRequest, error) {
	var text string
	var calls []provider.ToolCallRequest
	for c := range chunks {
		if c.Error != nil {
			return "", nil, c.Error
		}
		if c.Text != "" {
			text += c.Text
			events <- Event{Kind: EventAssistantText, Text: c.Text}
		}
		if c.ToolCall != nil {
			calls = append(calls, *c.ToolCall)
		}
	}
	return text, calls, nil
}

func (o *Orchestrator) toolSpecs() []provider.ToolSpec {
	all := o.registry.All()
	specs := make([]provider.ToolSpec, len(all))
	for i, t := range all {
		specs[i] = provider.ToolSpec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()}
	}
	return specs
}

// runToolBatch executes the S2/S3 cycle for one assistant turn's tool
// calls, in order. It returns haltBatch true if a dangerous tool's
// NotPermitted result should stop the remaining calls in this batch per
// §4.F's tie-break rule.
func (o *Orchestrator) runToolBatch(
	ctx context.Context,
	sess *models.Session,
	mode models.Mode,
	calls []provider.ToolCallRequest,
	toolTrace *[]playbook.ToolTrace,
	stuck *stuckTracker,
	events chan<- Event,
) (haltBatch bool, abortReason string, cancelled bool) {
	now := time.Now

	for _, call := range calls {
		if ctx.Err() != nil {
			return false, "", true
		}

		callMsg := models.NewToolCallMessage(call.ID, call.Name, call.Arguments, now())
		o.appendAndMeasure(ctx, sess, callMsg)

		if haltBatch {
			skipped := models.NewToolResultMessage(uuid.NewString(), call.ID, "skipped: a prior call in this batch was not permitted", false, models.ErrorNotPermitted, now())
			o.appendAndMeasure(ctx, sess, skipped)
			continue
		}

		toolInfo := approval.ToolInfo{Name: call.Name}
		if t, ok := o.registry.Lookup(call.Name); ok {
			toolInfo.Dangerous = t.Dangerous()
			toolInfo.Reversible = t.Reversible()
		}
		canonicalArgs := approval.Canonicalize(call.Arguments)
		decision := approval.Authorize(mode, toolInfo, canonicalArgs, sess.ApprovalRules, o.globalRules)
		if o.metrics != nil {
			o.metrics.ApprovalDecisions.WithLabelValues(string(decision)).Inc()
		}

		var result models.ToolResult
		switch decision {
		case models.AutoDeny:
			result = models.ToolResult{Success: false, Error: models.ErrorNotPermitted, Output: "denied by policy"}
		case models.AskUser:
			events <- Event{Kind: EventApprovalRequest, ToolCallID: call.ID, ToolName: call.Name, ToolArgs: string(call.Arguments)}
			resp, err := o.approvals.await(ctx, call.ID, o.approvalTimeoutChan())
			if err != nil {
				if ctx.Err() != nil {
					return false, "", true
				}
				result = models.ToolResult{Success: false, Error: models.ErrorNotPermitted, Output: "approval request timed out"}
				break
			}
			if rule := approval.RecordResponse(call.Name, canonicalArgs, resp); rule != nil {
				sess.ApprovalRules = append(sess.ApprovalRules, *rule)
			}
			if !approval.Allowed(resp) {
				result = models.ToolResult{Success: false, Error: models.ErrorNotPermitted, Output: "denied by user"}
				break
			}
			result = o.execute(ctx, call, sess, events)
		case models.AutoAllow:
			result = o.execute(ctx, call, sess, events)
		}

		resultMsg := models.NewToolResultMessage(uuid.NewString(), call.ID, result.Output, result.Success, result.Error, now())
		o.appendAndMeasure(ctx, sess, resultMsg)
		o.persist(ctx, sess)

		*toolTrace = append(*toolTrace, playbook.ToolTrace{Name: call.Name, Success: result.Success})

		if result.Error == models.ErrorCancelled {
			return false, "", true
		}
		if stuck.Observe(call.Name, canonicalArgs, result.Success) {
			return false, fmt.Sprintf("stuck_state: %q repeated with identical arguments and failed %d times in a row", call.Name, o.cfg.StuckThreshold), false
		}
		if !result.Success && result.Error == models.ErrorNotPermitted && toolInfo.Dangerous {
			haltBatch = true
		}
	}
	return haltBatch, "", false
}

func (o *Orchestrator) execute(ctx context.Context, call provider.ToolCallRequest, sess *models.Session, events chan<- Event) models.ToolResult {
	events <- Event{Kind: EventToolCallStarted, ToolCallID: call.ID, ToolName: call.Name, ToolArgs: string(call.Arguments)}

	execCtx := models.ExecutionContext{WorkingDirectory: sess.WorkingDirectory}
	start := time.Now()
	result := o.executor.Execute(ctx, call.Name, call.Arguments, execCtx)
	if o.metrics != nil {
		o.metrics.ToolExecutionDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	}

	events <- Event{
		Kind:        EventToolCallFinished,
		ToolCallID:  call.ID,
		ToolName:    call.Name,
		ToolSuccess: result.Success,
		ToolOutput:  result.Output,
		ToolError:   string(result.Error),
	}
	return result
}

func (o *Orchestrator) approvalTimeoutChan() <-chan time.Time {
	if o.cfg.ApprovalTimeout <= 0 {
		return nil
	}
	return time.After(o.cfg.ApprovalTimeout)
}

func (o *Orchestrator) appendAndMeasure(ctx context.Context, sess *models.Session, m models.Message) {
	sess.Messages = append(sess.Messages, m)
	o.accountant.CountMessage(ctx, &sess.Messages[len(sess.Messages)-1])
	sess.TotalTokens = o.accountant.SessionTotal(ctx, sess)
}

func (o *Orchestrator) persist(ctx context.Context, sess *models.Session) {
	if err := o.store.Save(sess); err != nil && o.logger != nil {
		o.logger.Error(ctx, "failed to persist session", "session_id", sess.ID, "error", err.Error())
	}
}

func (o *Orchestrator) finishCompleted(ctx context.Context, sess *models.Session, toolTrace []playbook.ToolTrace, events chan<- Event) {
	o.reflect(ctx, sess, toolTrace)
	o.persist(ctx, sess)
	events <- Event{Kind: EventTurnCompleted}
}

// reflect runs the playbook reflector, per §4.F only on a successful
// S_END, and is best-effort: any failure is logged but never changes the
// turn's outcome.
func (o *Orchestrator) reflect(ctx context.Context, sess *models.Session, toolTrace []playbook.ToolTrace) {
	defer func() {
		if r := recover(); r != nil && o.logger != nil {
			o.logger.Warn(ctx, "reflection panicked", "session_id", sess.ID, "recovered", fmt.Sprintf("%v", r))
		}
	}()
	candidates := playbook.Reflect(toolTrace)
	if len(candidates) == 0 {
		return
	}
	added := playbook.Apply(&sess.Playbook, candidates)
	if added > 0 && o.metrics != nil {
		counts := make(map[models.StrategyCategory]int)
		for _, s := range sess.Playbook.Ordered() {
			counts[s.Category]++
		}
		for cat, n := range counts {
			o.metrics.PlaybookStrategies.WithLabelValues(string(cat)).Set(float64(n))
		}
	}
}

func (o *Orchestrator) finishAborted(ctx context.Context, sess *models.Session, events chan<- Event, reason string) {
	o.persist(ctx, sess)
	events <- Event{Kind: EventTurnAborted, Reason: reason}
}

func (o *Orchestrator) finishCancelled(ctx context.Context, sess *models.Session, events chan<- Event) {
	for i := range sess.Messages {
		m := &sess.Messages[i]
		if m.Kind == models.KindToolCall && !o.hasMatchingResult(sess, m.ToolCallID) {
			m.Interrupted = true
		}
	}
	o.persist(ctx, sess)
	events <- Event{Kind: EventTurnCancelled}
}

func (o *Orchestrator) hasMatchingResult(sess *models.Session, toolCallID string) bool {
	for _, m := range sess.Messages {
		if m.Kind == models.KindToolResult && m.ToolCallID == toolCallID {
			return true
		}
	}
	return false
}
