package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the global->project->env precedence
// chain (last wins) and returns a fully defaulted, validated Config.
// Either path may be empty to skip that layer; a missing file at a
// non-empty path is an error (an absent *optional* layer is expressed by
// passing "", not by pointing at a file that doesn't exist).
//
// Grounded on the teacher's internal/config/loader.go: load each layer
// into a raw map[string]any, merge maps (not structs) so that unset keys
// in the project file don't shadow the global file's values with zeroes,
// then decode the merged map into Config exactly once with
// yaml.Decoder.KnownFields(true) so a typo'd key is caught rather than
// silently ignored. The teacher's $include directive and json5 layer are
// dropped: this spec's config is always YAML and the two-layer
// global/project chain replaces the teacher's recursive-include
// mechanism outright.
func Load(globalPath, projectPath string) (*Config, error) {
	merged := map[string]any{}

	for _, path := range []string{globalPath, projectPath} {
		if strings.TrimSpace(path) == "" {
			continue
		}
		raw, err := loadRaw(path)
		if err != nil {
			return nil, err
		}
		merged = mergeMaps(merged, raw)
	}

	cfg, err := decodeRaw(merged)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	var raw map[string]any
	if err := decoder.Decode(&raw); err != nil {
		if err == io.EOF {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse config %s: expected single document", path)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func mergeMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = map[string]any{}
	}
	for key, value := range src {
		if valueMap, ok := value.(map[string]any); ok {
			if existing, ok := dst[key].(map[string]any); ok {
				dst[key] = mergeMaps(existing, valueMap)
				continue
			}
		}
		dst[key] = value
	}
	return dst
}

func decodeRaw(raw map[string]any) (*Config, error) {
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("serialize merged config: %w", err)
	}
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		if err == io.EOF {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("decode merged config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("decode merged config: expected single document")
	}
	return &cfg, nil
}

// applyEnvOverrides applies the environment-variable layer of the
// precedence chain, taking priority over both config files but yielding
// to CLI flags (applied afterward by Overrides.Apply). Prefixed
// AGENTCORE_ the way the teacher prefixes its own overrides NEXUS_.
func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_ANTHROPIC_API_KEY")); value != "" {
		setProviderAPIKey(cfg, "anthropic", value)
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_OPENAI_API_KEY")); value != "" {
		setProviderAPIKey(cfg, "openai", value)
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_DEFAULT_PROVIDER")); value != "" {
		cfg.LLM.DefaultProvider = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_MODEL")); value != "" {
		cfg.Agent.Model = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_SESSION_DIR")); value != "" {
		cfg.Session.Dir = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_WORKSPACE")); value != "" {
		cfg.Tools.Workspace = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_LOG_LEVEL")); value != "" {
		cfg.Logging.Level = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_CONTEXT_LIMIT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Accountant.Limit = parsed
		}
	}
}

func setProviderAPIKey(cfg *Config, name, key string) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]LLMProviderConfig{}
	}
	entry := cfg.LLM.Providers[name]
	entry.APIKey = key
	cfg.LLM.Providers[name] = entry
}

// Overrides carries the CLI-flag layer, the last and highest-precedence
// step of the chain. Every field is a pointer so "flag not passed" is
// distinguishable from "flag passed with its zero value". cmd/agentcore
// sets only Workspace, always, to the resolved --working-dir; the other
// fields are left nil there.
type Overrides struct {
	Model           *string
	DefaultProvider *string
	SessionDir      *string
	Workspace       *string
	ContextLimit    *int
	LogLevel        *string
}

// Apply writes each set override field onto cfg, then re-validates.
func (o Overrides) Apply(cfg *Config) error {
	if o.Model != nil {
		cfg.Agent.Model = *o.Model
	}
	if o.DefaultProvider != nil {
		cfg.LLM.DefaultProvider = *o.DefaultProvider
	}
	if o.SessionDir != nil {
		cfg.Session.Dir = *o.SessionDir
	}
	if o.Workspace != nil {
		cfg.Tools.Workspace = *o.Workspace
	}
	if o.ContextLimit != nil {
		cfg.Accountant.Limit = *o.ContextLimit
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	return validate(cfg)
}

func parseCronSchedule(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(expr)
}

// DefaultGlobalPath returns the conventional global config file location
// (~/.agentcore/config.yaml), mirroring the teacher's
// os.UserHomeDir()-based cache/config path construction in
// applyMemorySearchEmbeddingsDefaults.
func DefaultGlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ""
	}
	return filepath.Join(home, ".agentcore", "config.yaml")
}

// DefaultProjectPath returns the conventional project-local config file
// location relative to workingDir.
func DefaultProjectPath(workingDir string) string {
	return filepath.Join(workingDir, ".agentcore.yaml")
}
