package config

import (
	"io"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/observability"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/tools"
)

// AgentOrchestratorConfig is the shape agent.Config mirrors
// field-for-field. It is a plain struct here (rather than importing
// internal/agent directly) so internal/config has no dependency on the
// orchestrator package; cmd/agentcore, which already imports both,
// converts this into an agent.Config with a one-to-one field copy.
type AgentOrchestratorConfig struct {
	SystemPrompt    string
	MaxIterations   int
	MaxWallTime     time.Duration
	MaxTurnTokens   int
	StuckThreshold  int
	LLMTimeout      time.Duration
	ApprovalTimeout time.Duration
	ToolTimeout     time.Duration
	LLMRetries      int
	LLMRetryBackoff time.Duration
	Model           string
	MaxTokens       int
	DigestSize      int
	WindowPairs     int
}

// ToAgentOrchestratorConfig flattens the Agent/Context/Playbook sections
// into the orchestrator's flat Config shape.
func (c *Config) ToAgentOrchestratorConfig() AgentOrchestratorConfig {
	return AgentOrchestratorConfig{
		SystemPrompt:    c.Context.SystemPrompt,
		MaxIterations:   c.Agent.MaxIterations,
		MaxWallTime:     c.Agent.MaxWallTime,
		MaxTurnTokens:   c.Agent.MaxTurnTokens,
		StuckThreshold:  c.Agent.StuckThreshold,
		LLMTimeout:      c.Agent.LLMTimeout,
		ApprovalTimeout: c.Agent.ApprovalTimeout,
		ToolTimeout:     c.Agent.ToolTimeout,
		LLMRetries:      c.Agent.LLMRetries,
		LLMRetryBackoff: c.Agent.LLMRetryBackoff,
		Model:           c.Agent.Model,
		MaxTokens:       c.Agent.MaxTokens,
		DigestSize:      c.Playbook.DigestSize,
		WindowPairs:     c.Context.WindowPairs,
	}
}

// ToExecutorConfig builds the tools.ExecutorConfig this Config describes.
func (c *Config) ToExecutorConfig() tools.ExecutorConfig {
	return tools.ExecutorConfig{
		DefaultTimeout:  c.Tools.DefaultTimeout,
		DefaultRetries:  c.Tools.DefaultRetries,
		RetryBackoff:    c.Tools.RetryBackoff,
		MaxRetryBackoff: c.Tools.MaxRetryBackoff,
	}
}

// ToLogConfig builds the observability.LogConfig this Config describes.
// Output is the writer the caller passes (cmd/agentcore passes
// os.Stderr); NewLogger falls back to os.Stdout when it is nil.
func (c *Config) ToLogConfig(output io.Writer) observability.LogConfig {
	return observability.LogConfig{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.AddSource,
		Output:    output,
	}
}

// ToolTimeoutFor returns the configured timeout override for name,
// reporting whether one was set. Tools with no override fall back to
// Tools.DefaultTimeout at the executor/tool-construction layer.
func (c *Config) ToolTimeoutFor(name string) (time.Duration, bool) {
	d, ok := c.Tools.Timeouts[name]
	return d, ok
}
