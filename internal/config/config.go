// Package config implements the single aggregated Config that seeds
// every other component, loaded from a global->project->env->flag
// precedence chain. Grounded on the teacher's internal/config/config.go
// (struct-of-embedded-sub-configs shape, applyXxxDefaults per section,
// applyEnvOverrides, ConfigValidationError) and internal/config/loader.go
// (raw-map merge then single yaml.v3 decode), narrowed from the
// teacher's multi-channel-gateway surface to the fields this core
// actually consumes.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// Config is the root configuration object. Every field is optional; Load
// applies defaults matching the component packages' own zero-value
// behavior so a bare Config{} is always usable.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Tools      ToolsConfig      `yaml:"tools"`
	Approval   ApprovalConfig   `yaml:"approval"`
	Session    SessionConfig    `yaml:"session"`
	Accountant AccountantConfig `yaml:"accountant"`
	Playbook   PlaybookConfig   `yaml:"playbook"`
	Context    ContextConfig    `yaml:"context"`
	Agent      AgentConfig      `yaml:"agent"`
	Retention  RetentionConfig  `yaml:"retention"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LLMConfig selects and configures the model provider(s). DefaultProvider
// picks which entry of Providers is used first; FallbackChain lists
// additional provider ids tried, in order, through provider.Failover
// when the default one exhausts its retries.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	FallbackChain   []string                      `yaml:"fallback_chain"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig configures one named provider entry. Kind selects
// which concrete provider.LLMProvider constructor to call ("anthropic"
// or "openai"); it defaults to the map key itself when empty, so a
// provider named "anthropic" need not repeat its kind.
type LLMProviderConfig struct {
	Kind         string        `yaml:"kind"`
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// ToolsConfig configures the builtin tool implementations and the
// executor's retry/timeout defaults (component B).
type ToolsConfig struct {
	Workspace       string                   `yaml:"workspace"`
	MaxReadBytes    int                      `yaml:"max_read_bytes"`
	ShellPath       string                   `yaml:"shell_path"`
	ShellTimeout    time.Duration            `yaml:"shell_timeout"`
	DefaultTimeout  time.Duration            `yaml:"default_timeout"`
	DefaultRetries  int                      `yaml:"default_retries"`
	RetryBackoff    time.Duration            `yaml:"retry_backoff"`
	MaxRetryBackoff time.Duration            `yaml:"max_retry_backoff"`
	// Timeouts overrides DefaultTimeout per tool name, per spec.md's
	// "per-tool timeout overrides" recognized option.
	Timeouts map[string]time.Duration `yaml:"timeouts"`
}

// ApprovalConfig carries the global approval rules; session-scoped rules
// live on the models.Session itself and are never configured here.
type ApprovalConfig struct {
	GlobalRules []ApprovalRuleConfig `yaml:"global_rules"`
}

// ApprovalRuleConfig is models.ApprovalRule's YAML-facing shape.
// models.ApprovalRule only carries json tags (it's a session-persistence
// type), so a parallel type with yaml tags is decoded here and converted
// via ToModel rather than giving the shared model a second tag set.
type ApprovalRuleConfig struct {
	Tool       string `yaml:"tool"`
	ArgPattern string `yaml:"arg_pattern"`
	Decision   string `yaml:"decision"`
}

// ToModel converts the decoded config rules into the models.ApprovalRule
// slice approval.Authorize expects.
func (c ApprovalConfig) ToModel() []models.ApprovalRule {
	out := make([]models.ApprovalRule, 0, len(c.GlobalRules))
	for _, r := range c.GlobalRules {
		out = append(out, models.ApprovalRule{
			Tool:       r.Tool,
			ArgPattern: r.ArgPattern,
			Decision:   models.RuleDecision(r.Decision),
		})
	}
	return out
}

// SessionConfig configures the session store location.
type SessionConfig struct {
	Dir              string `yaml:"dir"`
	WorkingDirectory string `yaml:"working_directory"`
}

// AccountantConfig configures component A's hard context limit L.
type AccountantConfig struct {
	Limit int `yaml:"limit"`
}

// PlaybookConfig configures the playbook digest size K.
type PlaybookConfig struct {
	DigestSize int `yaml:"digest_size"`
}

// ContextConfig configures the assembler's static system prompt and the
// reflection window size W.
type ContextConfig struct {
	SystemPrompt string `yaml:"system_prompt"`
	WindowPairs  int    `yaml:"window_pairs"`
}

// AgentConfig mirrors agent.Config's safety-limit and suspension-point
// fields, kept as a distinct type here (rather than importing
// internal/agent) so internal/config has no dependency on the
// orchestrator package; cmd/agentcore copies these fields across when
// constructing agent.Config.
type AgentConfig struct {
	MaxIterations   int           `yaml:"max_iterations"`
	MaxWallTime     time.Duration `yaml:"max_wall_time"`
	MaxTurnTokens   int           `yaml:"max_turn_tokens"`
	StuckThreshold  int           `yaml:"stuck_threshold"`
	LLMTimeout      time.Duration `yaml:"llm_timeout"`
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`
	ToolTimeout     time.Duration `yaml:"tool_timeout"`
	LLMRetries      int           `yaml:"llm_retries"`
	LLMRetryBackoff time.Duration `yaml:"llm_retry_backoff"`
	Model           string        `yaml:"model"`
	MaxTokens       int           `yaml:"max_tokens"`
}

// RetentionConfig configures the background idle-session sweep.
type RetentionConfig struct {
	Enabled   bool          `yaml:"enabled"`
	IdleAfter time.Duration `yaml:"idle_after"`
	// Schedule is a standard 5-field cron expression (or a predefined
	// schedule like "@hourly") understood by robfig/cron/v3.
	Schedule string `yaml:"schedule"`
}

// LoggingConfig configures the shared observability.Logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

func applyDefaults(cfg *Config) {
	applyLLMDefaults(&cfg.LLM)
	applyToolsDefaults(&cfg.Tools)
	applySessionDefaults(&cfg.Session)
	applyAccountantDefaults(&cfg.Accountant)
	applyPlaybookDefaults(&cfg.Playbook)
	applyContextDefaults(&cfg.Context)
	applyAgentDefaults(&cfg.Agent)
	applyRetentionDefaults(&cfg.Retention)
	applyLoggingDefaults(&cfg.Logging)
}

func applyLLMDefaults(cfg *LLMConfig) {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = "anthropic"
	}
	for name, entry := range cfg.Providers {
		if entry.Kind == "" {
			entry.Kind = name
			cfg.Providers[name] = entry
		}
	}
}

func applyToolsDefaults(cfg *ToolsConfig) {
	if cfg.Workspace == "" {
		cfg.Workspace = "."
	}
	if cfg.MaxReadBytes == 0 {
		cfg.MaxReadBytes = 1 << 20
	}
	if cfg.ShellPath == "" {
		cfg.ShellPath = "/bin/sh"
	}
	if cfg.ShellTimeout == 0 {
		cfg.ShellTimeout = 30 * time.Second
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.DefaultRetries == 0 {
		cfg.DefaultRetries = 2
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = 5 * time.Second
	}
}

func applySessionDefaults(cfg *SessionConfig) {
	if cfg.Dir == "" {
		cfg.Dir = "sessions"
	}
	if cfg.WorkingDirectory == "" {
		cfg.WorkingDirectory = "."
	}
}

func applyAccountantDefaults(cfg *AccountantConfig) {
	if cfg.Limit == 0 {
		cfg.Limit = 256_000
	}
}

func applyPlaybookDefaults(cfg *PlaybookConfig) {
	if cfg.DigestSize == 0 {
		cfg.DigestSize = 30
	}
}

func applyContextDefaults(cfg *ContextConfig) {
	if cfg.WindowPairs == 0 {
		cfg.WindowPairs = 5
	}
}

func applyAgentDefaults(cfg *AgentConfig) {
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 30
	}
	if cfg.StuckThreshold == 0 {
		cfg.StuckThreshold = 3
	}
	if cfg.LLMTimeout == 0 {
		cfg.LLMTimeout = 120 * time.Second
	}
	if cfg.ToolTimeout == 0 {
		cfg.ToolTimeout = 300 * time.Second
	}
	if cfg.LLMRetries == 0 {
		cfg.LLMRetries = 3
	}
	if cfg.LLMRetryBackoff == 0 {
		cfg.LLMRetryBackoff = 500 * time.Millisecond
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
}

func applyRetentionDefaults(cfg *RetentionConfig) {
	if cfg.Schedule == "" {
		cfg.Schedule = "@hourly"
	}
	if cfg.Enabled && cfg.IdleAfter == 0 {
		cfg.IdleAfter = 30 * 24 * time.Hour
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}
}

// ConfigValidationError collects every validation issue found, so a user
// fixing a config file sees every problem at once rather than one per
// Load attempt. Grounded on the teacher's own ConfigValidationError.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if defaultProvider != "" {
		if _, ok := cfg.LLM.Providers[defaultProvider]; !ok {
			if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
				issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
			}
		}
	}
	for _, id := range cfg.LLM.FallbackChain {
		if _, ok := cfg.LLM.Providers[id]; !ok {
			issues = append(issues, fmt.Sprintf("llm.fallback_chain entry %q has no matching llm.providers entry", id))
		}
	}

	for i, rule := range cfg.Approval.GlobalRules {
		if strings.TrimSpace(rule.Tool) == "" {
			issues = append(issues, fmt.Sprintf("approval.global_rules[%d].tool is required", i))
		}
		switch models.RuleDecision(rule.Decision) {
		case models.RuleAllowOnce, models.RuleAllowSession, models.RuleDenyOnce, models.RuleDenySession:
		default:
			issues = append(issues, fmt.Sprintf("approval.global_rules[%d].decision %q is not a recognized decision", i, rule.Decision))
		}
	}

	if cfg.Accountant.Limit < 0 {
		issues = append(issues, "accountant.limit must be >= 0")
	}
	if cfg.Playbook.DigestSize < 0 {
		issues = append(issues, "playbook.digest_size must be >= 0")
	}
	if cfg.Context.WindowPairs < 0 {
		issues = append(issues, "context.window_pairs must be >= 0")
	}
	if cfg.Agent.MaxIterations < 0 {
		issues = append(issues, "agent.max_iterations must be >= 0")
	}
	if cfg.Agent.StuckThreshold < 0 {
		issues = append(issues, "agent.stuck_threshold must be >= 0")
	}
	if cfg.Agent.LLMRetries < 0 {
		issues = append(issues, "agent.llm_retries must be >= 0")
	}
	if cfg.Retention.Enabled {
		if _, err := parseCronSchedule(cfg.Retention.Schedule); err != nil {
			issues = append(issues, fmt.Sprintf("retention.schedule %q is invalid: %v", cfg.Retention.Schedule, err))
		}
		if cfg.Retention.IdleAfter <= 0 {
			issues = append(issues, "retention.idle_after must be > 0 when retention.enabled is true")
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, "logging.level must be \"debug\", \"info\", \"warn\", or \"error\"")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "json", "text":
	default:
		issues = append(issues, "logging.format must be \"json\" or \"text\"")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}
