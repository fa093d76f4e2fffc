package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/observability"
	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// ExecutorConfig controls retry/backoff/timeout defaults for calls that
// don't specify their own via the tool's DefaultTimeout.
type ExecutorConfig struct {
	DefaultTimeout  time.Duration
	DefaultRetries  int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
}

// DefaultExecutorConfig mirrors the teacher runtime's defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultTimeout:  30 * time.Second,
		DefaultRetries:  2,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
	}
}

// Executor runs one tool call at a time. Per §4.B/§4.F, a turn never
// executes more than one tool concurrently; Executor has no internal
// fan-out, unlike the teacher's parallel ExecuteAll.
type Executor struct {
	registry *Registry
	config   ExecutorConfig
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewExecutor builds an Executor bound to a registry.
func NewExecutor(registry *Registry, config ExecutorConfig, logger *observability.Logger, metrics *observability.Metrics) *Executor {
	return &Executor{registry: registry, config: config, logger: logger, metrics: metrics}
}

// Execute validates arguments, then runs the named tool with retry,
// timeout, and panic recovery, classifying the outcome into one of the
// error kinds from §4.B. The approval decision has already been made by
// the caller (component C); Execute assumes it has been authorized.
func (e *Executor) Execute(ctx context.Context, toolName string, args json.RawMessage, execCtx models.ExecutionContext) models.ToolResult {
	tool, ok := e.registry.Lookup(toolName)
	if !ok {
		return e.result(toolName, models.ToolResult{Success: false, Error: models.ErrorInvalidArguments, Output: fmt.Sprintf("unknown tool %q", toolName)})
	}

	if err := e.registry.ValidateArguments(tool, args); err != nil {
		return e.result(toolName, models.ToolResult{Success: false, Error: models.ErrorInvalidArguments, Output: err.Error()})
	}

	timeout := tool.DefaultTimeout()
	if timeout <= 0 {
		timeout = e.config.DefaultTimeout
	}
	// No tool runs longer than 300s, whatever its own default says.
	const maxToolTimeout = 300 * time.Second
	if timeout > maxToolTimeout {
		timeout = maxToolTimeout
	}

	retries := e.config.DefaultRetries
	backoff := e.config.RetryBackoff

	var last models.ToolResult
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			if e.metrics != nil {
				e.metrics.ToolExecutionRetries.WithLabelValues(toolName).Inc()
			}
			select {
			case <-ctx.Done():
				return e.result(toolName, models.ToolResult{Success: false, Error: models.ErrorCancelled, Output: "cancelled before retry"})
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > e.config.MaxRetryBackoff {
				backoff = e.config.MaxRetryBackoff
			}
		}

		last = e.executeOnce(ctx, tool, args, execCtx, timeout)
		if last.Success || !isRetryable(last.Error) {
			return e.result(toolName, last)
		}
	}
	return e.result(toolName, last)
}

func (e *Executor) executeOnce(ctx context.Context, tool models.Tool, args json.RawMessage, execCtx models.ExecutionContext, timeout time.Duration) (result models.ToolResult) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan models.ToolResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- models.ToolResult{Success: false, Error: models.ErrorInternal, Output: fmt.Sprintf("tool panicked: %v", r)}
			}
		}()
		done <- tool.Execute(runCtx, args, execCtx)
	}()

	select {
	case result = <-done:
		return result
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return models.ToolResult{Success: false, Error: models.ErrorCancelled, Output: "cancelled"}
		}
		return models.ToolResult{Success: false, Error: models.ErrorTimeout, Output: fmt.Sprintf("tool exceeded %s timeout", timeout)}
	}
}

func (e *Executor) result(toolName string, r models.ToolResult) models.ToolResult {
	if e.metrics != nil {
		status := "success"
		if !r.Success {
			status = "error"
		}
		e.metrics.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	}
	return r
}

// isRetryable reports whether a failed result's error kind is worth
// retrying. Invalid arguments, permission denials, cancellation, and a
// tool's own reported failure never improve on retry.
func isRetryable(kind models.ErrorKind) bool {
	switch kind {
	case models.ErrorTimeout, models.ErrorIO, models.ErrorInternal:
		return true
	default:
		return false
	}
}
