// Package agent implements component F: the ReAct orchestrator. It drives
// the S0(Idle)/S1(Thinking)/S2(ToolGating)/S3(ToolExecuting) state
// machine to S_END/S_CANC/S_ABORT per turn, wiring together the token
// accountant, tool executor, approval policy, context assembler and
// compactor, and playbook reflector. Grounded throughout on the teacher's
// internal/agent/loop.go AgenticLoop, generalized from its parallel,
// streaming-chunk-oriented shape to the spec's strictly sequential,
// one-tool-at-a-time state machine.
package agent

// EventKind discriminates the events a turn emits to its front-end
// consumer, matching the spec's exposed Event union exactly.
type EventKind string

const (
	EventAssistantText   EventKind = "assistant_text"
	EventToolCallStarted EventKind = "tool_call_started"
	EventApprovalRequest EventKind = "approval_request"
	EventToolCallFinished EventKind = "tool_call_finished"
	EventTurnCompleted   EventKind = "turn_completed"
	EventTurnAborted     EventKind = "turn_aborted"
	EventTurnCancelled   EventKind = "turn_cancelled"
)

// Event is one update the orchestrator emits while running a turn. Only
// the fields relevant to Kind are populated.
type Event struct {
	Kind EventKind

	// AssistantText carries streamed or final assistant prose.
	Text string

	// ToolCallID identifies the call an ApprovalRequest/ToolCallStarted/
	// ToolCallFinished event refers to.
	ToolCallID string
	ToolName   string
	ToolArgs   string

	// ToolSuccess/ToolOutput/ToolError are populated on ToolCallFinished.
	ToolSuccess bool
	ToolOutput  string
	ToolError   string

	// Reason explains a TurnAborted event; it starts with one of
	// "max_iterations", "max_wall_time", "max_turn_tokens", "stuck_state"
	// or "user_declined_continue". On the batch-continuation
	// ApprovalRequest it carries the question put to the user.
	Reason string
}
