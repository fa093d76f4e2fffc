package main

import (
	"testing"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/config"
)

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "x", "y"); got != "x" {
		t.Fatalf("firstNonEmpty = %q, want %q", got, "x")
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("firstNonEmpty = %q, want empty", got)
	}
}

func TestBuildToolRegistryAppliesTimeoutOverride(t *testing.T) {
	cfg := &config.Config{}
	cfg.Tools.Workspace = t.TempDir()
	cfg.Tools.Timeouts = map[string]time.Duration{"read_file": 42 * time.Second}

	registry := buildToolRegistry(cfg)

	read, ok := registry.Lookup("read_file")
	if !ok {
		t.Fatal("expected read_file to be registered")
	}
	if got := read.DefaultTimeout(); got != 42*time.Second {
		t.Fatalf("read_file timeout = %v, want 42s", got)
	}

	write, ok := registry.Lookup("write_file")
	if !ok {
		t.Fatal("expected write_file to be registered")
	}
	if got := write.DefaultTimeout(); got != 10*time.Second {
		t.Fatalf("write_file timeout = %v, want its untouched builtin default of 10s", got)
	}
}

func TestBuildProviderSkipsUnconfiguredEntry(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	p, err := buildProvider("anthropic", config.LLMProviderConfig{}, "claude-sonnet-4-20250514")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p != nil {
		t.Fatal("expected a nil provider when no credential is available")
	}
}

func TestBuildProviderRejectsUnknownKind(t *testing.T) {
	if _, err := buildProvider("weird", config.LLMProviderConfig{Kind: "weird", APIKey: "x"}, "m"); err == nil {
		t.Fatal("expected an error for an unrecognized provider kind")
	}
}
