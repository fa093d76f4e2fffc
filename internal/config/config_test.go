package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "agentcore.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsOnEmptyConfig(t *testing.T) {
	path := writeConfig(t, `llm:
  default_provider: anthropic
  providers:
    anthropic: {}
`)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.MaxIterations != 30 {
		t.Errorf("MaxIterations = %d, want 30", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.StuckThreshold != 3 {
		t.Errorf("StuckThreshold = %d, want 3", cfg.Agent.StuckThreshold)
	}
	if cfg.Accountant.Limit != 256_000 {
		t.Errorf("Accountant.Limit = %d, want 256000", cfg.Accountant.Limit)
	}
	if cfg.Playbook.DigestSize != 30 {
		t.Errorf("Playbook.DigestSize = %d, want 30", cfg.Playbook.DigestSize)
	}
	if cfg.Context.WindowPairs != 5 {
		t.Errorf("Context.WindowPairs = %d, want 5", cfg.Context.WindowPairs)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging defaults = %+v", cfg.Logging)
	}
	if cfg.Tools.Workspace != "." {
		t.Errorf("Tools.Workspace = %q, want \".\"", cfg.Tools.Workspace)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `llm:
  default_provider: anthropic
  providers:
    anthropic: {}
tools:
  not_a_real_field: true
`)

	if _, err := Load(path, ""); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadValidatesDefaultProvider(t *testing.T) {
	path := writeConfig(t, `llm:
  default_provider: openai
  providers:
    anthropic: {}
`)

	_, err := Load(path, "")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "default_provider") {
		t.Fatalf("expected default_provider error, got %v", err)
	}
}

func TestLoadValidatesFallbackChain(t *testing.T) {
	path := writeConfig(t, `llm:
  default_provider: anthropic
  fallback_chain: [openai]
  providers:
    anthropic: {}
`)

	_, err := Load(path, "")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "fallback_chain") {
		t.Fatalf("expected fallback_chain error, got %v", err)
	}
}

func TestLoadValidatesRetentionSchedule(t *testing.T) {
	path := writeConfig(t, `llm:
  default_provider: anthropic
  providers:
    anthropic: {}
retention:
  enabled: true
  idle_after: 24h
  schedule: "not a cron expression"
`)

	_, err := Load(path, "")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "schedule") {
		t.Fatalf("expected schedule error, got %v", err)
	}
}

func TestLoadProjectLayerOverlaysGlobal(t *testing.T) {
	globalPath := writeConfig(t, `llm:
  default_provider: anthropic
  providers:
    anthropic:
      default_model: claude-sonnet-4-20250514
tools:
  workspace: /global/workspace
session:
  dir: /global/sessions
`)
	projectDir := t.TempDir()
	projectPath := filepath.Join(projectDir, "project.yaml")
	if err := os.WriteFile(projectPath, []byte(`tools:
  workspace: /project/workspace
`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tools.Workspace != "/project/workspace" {
		t.Errorf("Tools.Workspace = %q, want project override", cfg.Tools.Workspace)
	}
	if cfg.Session.Dir != "/global/sessions" {
		t.Errorf("Session.Dir = %q, want global value to survive the overlay", cfg.Session.Dir)
	}
	if cfg.LLM.Providers["anthropic"].DefaultModel != "claude-sonnet-4-20250514" {
		t.Errorf("nested provider field did not survive the overlay: %+v", cfg.LLM.Providers["anthropic"])
	}
}

func TestEnvOverrideTakesPrecedenceOverFile(t *testing.T) {
	path := writeConfig(t, `llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: from-file
`)
	t.Setenv("AGENTCORE_ANTHROPIC_API_KEY", "from-env")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "from-env" {
		t.Errorf("APIKey = %q, want env override to win", cfg.LLM.Providers["anthropic"].APIKey)
	}
}

func TestOverridesApplyTakesPrecedenceOverEverything(t *testing.T) {
	path := writeConfig(t, `llm:
  default_provider: anthropic
  providers:
    anthropic: {}
agent:
  model: claude-sonnet-4-20250514
`)
	t.Setenv("AGENTCORE_MODEL", "from-env-model")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	flagModel := "from-flag-model"
	if err := (Overrides{Model: &flagModel}).Apply(cfg); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if cfg.Agent.Model != "from-flag-model" {
		t.Errorf("Agent.Model = %q, want flag override to win", cfg.Agent.Model)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Fatalf("expected error for missing global config file")
	}
}

func TestToAgentOrchestratorConfigFlattensSections(t *testing.T) {
	path := writeConfig(t, `llm:
  default_provider: anthropic
  providers:
    anthropic: {}
context:
  system_prompt: "you are an agent"
  window_pairs: 7
playbook:
  digest_size: 12
agent:
  max_iterations: 10
  llm_timeout: 45s
`)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	oc := cfg.ToAgentOrchestratorConfig()
	if oc.SystemPrompt != "you are an agent" {
		t.Errorf("SystemPrompt = %q", oc.SystemPrompt)
	}
	if oc.WindowPairs != 7 {
		t.Errorf("WindowPairs = %d, want 7", oc.WindowPairs)
	}
	if oc.DigestSize != 12 {
		t.Errorf("DigestSize = %d, want 12", oc.DigestSize)
	}
	if oc.MaxIterations != 10 {
		t.Errorf("MaxIterations = %d, want 10", oc.MaxIterations)
	}
	if oc.LLMTimeout != 45*time.Second {
		t.Errorf("LLMTimeout = %v, want 45s", oc.LLMTimeout)
	}
}

func TestToolTimeoutForOverride(t *testing.T) {
	path := writeConfig(t, `llm:
  default_provider: anthropic
  providers:
    anthropic: {}
tools:
  timeouts:
    shell: 10s
`)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	d, ok := cfg.ToolTimeoutFor("shell")
	if !ok || d != 10*time.Second {
		t.Errorf("ToolTimeoutFor(shell) = %v, %v; want 10s, true", d, ok)
	}
	if _, ok := cfg.ToolTimeoutFor("read"); ok {
		t.Errorf("ToolTimeoutFor(read) = ok, want no override present")
	}
}
