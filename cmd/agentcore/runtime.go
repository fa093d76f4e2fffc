package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/accountant"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/agent"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/config"
	agentctx "github.com/OpenVibeCoding/swe-cli-sub001/internal/context"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/observability"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/provider"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/store"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/tools"
	"github.com/OpenVibeCoding/swe-cli-sub001/internal/tools/builtin"
	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// Runtime bundles the constructed components a chat session drives.
// Assembling it in one place (rather than inline in runChat) mirrors the
// teacher's main.go buildService-style wiring function.
type Runtime struct {
	Config       *config.Config
	Store        *store.Store
	Registry     *tools.Registry
	Orchestrator *agent.Orchestrator
	Logger       *observability.Logger
	Sweeper      *store.RetentionSweeper
}

// buildRuntime wires every component in dependency order (A through F)
// from a fully defaulted, validated Config.
func buildRuntime(cfg *config.Config) (*Runtime, error) {
	logger := observability.NewLogger(cfg.ToLogConfig(os.Stderr))
	registerer := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registerer)

	st, err := store.New(cfg.Session.Dir)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	toolRegistry := buildToolRegistry(cfg)
	executor := tools.NewExecutor(toolRegistry, cfg.ToExecutorConfig(), logger, metrics)

	llm, err := buildCompleter(cfg)
	if err != nil {
		return nil, err
	}

	var tokenizer accountant.Tokenizer
	if anthropicTokenizer, ok := resolveAnthropicTokenizer(cfg); ok {
		tokenizer = anthropicTokenizer
	}
	acct := accountant.New(tokenizer, cfg.Accountant.Limit, logger, metrics)

	summarizer := provider.NewLLMSummarizer(llm, cfg.Agent.Model)
	compactor := agentctx.NewCompactor(agentctx.CompactorConfig{}, summarizer)

	agentCfg := toAgentConfig(cfg.ToAgentOrchestratorConfig())
	orch := agent.New(agentCfg, st, toolRegistry, executor, acct, compactor, llm, logger, metrics, cfg.Approval.ToModel())

	var sweeper *store.RetentionSweeper
	if cfg.Retention.Enabled {
		sweeper = store.NewRetentionSweeper(st, cfg.Retention.IdleAfter, logger)
		if err := sweeper.Start(cfg.Retention.Schedule); err != nil {
			return nil, fmt.Errorf("start retention sweeper: %w", err)
		}
	}

	return &Runtime{Config: cfg, Store: st, Registry: toolRegistry, Orchestrator: orch, Logger: logger, Sweeper: sweeper}, nil
}

func toAgentConfig(c config.AgentOrchestratorConfig) agent.Config {
	return agent.Config{
		SystemPrompt:    c.SystemPrompt,
		MaxIterations:   c.MaxIterations,
		MaxWallTime:     c.MaxWallTime,
		MaxTurnTokens:   c.MaxTurnTokens,
		StuckThreshold:  c.StuckThreshold,
		LLMTimeout:      c.LLMTimeout,
		ApprovalTimeout: c.ApprovalTimeout,
		ToolTimeout:     c.ToolTimeout,
		LLMRetries:      c.LLMRetries,
		LLMRetryBackoff: c.LLMRetryBackoff,
		Model:           c.Model,
		MaxTokens:       c.MaxTokens,
		DigestSize:      c.DigestSize,
		WindowPairs:     c.WindowPairs,
	}
}

// buildToolRegistry registers the builtin filesystem/shell tools scoped
// to the configured workspace, applying any per-tool timeout override
// from cfg.Tools.Timeouts via timeoutOverrideTool.
func buildToolRegistry(cfg *config.Config) *tools.Registry {
	registry := tools.NewRegistry()
	register := func(t models.Tool) {
		if d, ok := cfg.ToolTimeoutFor(t.Name()); ok {
			t = timeoutOverrideTool{Tool: t, timeout: d}
		}
		registry.Register(t)
	}
	register(builtin.NewReadTool(cfg.Tools.Workspace, cfg.Tools.MaxReadBytes))
	register(builtin.NewWriteTool(cfg.Tools.Workspace))
	register(builtin.NewListDirectoryTool(cfg.Tools.Workspace))
	register(builtin.NewShellTool(cfg.Tools.Workspace, cfg.Tools.ShellPath, cfg.Tools.ShellTimeout))
	return registry
}

// timeoutOverrideTool wraps a models.Tool to report a configured timeout
// in place of the tool's own built-in default, without touching the
// builtin tool implementations themselves.
type timeoutOverrideTool struct {
	models.Tool
	timeout time.Duration
}

func (t timeoutOverrideTool) DefaultTimeout() time.Duration { return t.timeout }

// buildCompleter constructs the configured default provider plus any
// fallback chain, always wrapped in a provider.Failover (even when only
// one provider resolves) and adapted to the orchestrator's
// two-return-value Completer via provider.FailoverProvider.
func buildCompleter(cfg *config.Config) (agent.Completer, error) {
	order := []string{cfg.LLM.DefaultProvider}
	for _, id := range cfg.LLM.FallbackChain {
		if id != cfg.LLM.DefaultProvider {
			order = append(order, id)
		}
	}

	failover := provider.NewFailover(provider.DefaultFailoverConfig())
	var built int
	for _, name := range order {
		entry := cfg.LLM.Providers[name]
		p, err := buildProvider(name, entry, cfg.Agent.Model)
		if err != nil {
			return nil, fmt.Errorf("build provider %q: %w", name, err)
		}
		if p == nil {
			continue
		}
		failover.AddProvider(p)
		built++
	}
	if built == 0 {
		return nil, fmt.Errorf("no usable LLM provider configured (set an API key for %q)", cfg.LLM.DefaultProvider)
	}
	return &provider.FailoverProvider{Failover: failover}, nil
}

// buildProvider constructs one provider.LLMProvider from its config
// entry, falling back to the conventional ANTHROPIC_API_KEY/
// OPENAI_API_KEY environment variables when the config entry carries no
// key of its own, matching the env vars the teacher's own CLI
// documents. Returns a nil provider (not an error) when no credential is
// available anywhere, so an unconfigured fallback-chain entry is simply
// skipped rather than failing the whole run.
func buildProvider(name string, entry config.LLMProviderConfig, defaultModel string) (provider.LLMProvider, error) {
	kind := strings.ToLower(entry.Kind)
	if kind == "" {
		kind = strings.ToLower(name)
	}
	model := entry.DefaultModel
	if model == "" {
		model = defaultModel
	}

	switch kind {
	case "anthropic":
		key := firstNonEmpty(entry.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
		if key == "" {
			return nil, nil
		}
		return provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey:       key,
			BaseURL:      entry.BaseURL,
			MaxRetries:   entry.MaxRetries,
			RetryDelay:   entry.RetryDelay,
			DefaultModel: model,
		})
	case "openai":
		key := firstNonEmpty(entry.APIKey, os.Getenv("OPENAI_API_KEY"))
		if key == "" {
			return nil, nil
		}
		return provider.NewOpenAIProvider(key, model), nil
	default:
		return nil, fmt.Errorf("unrecognized provider kind %q", kind)
	}
}

// resolveAnthropicTokenizer builds a standalone AnthropicProvider for use
// as the token accountant's exact tokenizer, independent of which
// provider ends up serving completions, as long as an Anthropic key is
// available anywhere in configuration or environment. Returns ok=false
// to leave the accountant on its heuristic fallback.
func resolveAnthropicTokenizer(cfg *config.Config) (accountant.Tokenizer, bool) {
	entry := cfg.LLM.Providers["anthropic"]
	key := firstNonEmpty(entry.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
	if key == "" {
		return nil, false
	}
	p, err := provider.NewAnthropicProvider(provider.AnthropicConfig{APIKey: key, BaseURL: entry.BaseURL})
	if err != nil {
		return nil, false
	}
	return p, true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
