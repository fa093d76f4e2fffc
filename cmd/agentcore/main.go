// Package main provides the CLI entry point for agentcore, the ReAct
// agent loop described in this repository: conversation orchestration,
// gated tool execution, bounded context assembly, and a learned-strategy
// playbook, all driven from a single interactive terminal session.
//
// # Basic usage
//
// Start a chat in the current directory:
//
//	agentcore chat
//
// Resume the most recent session for this working directory:
//
//	agentcore chat --continue
//
// Resume a specific session:
//
//	agentcore chat --session <id>
//
// List known sessions without starting a chat:
//
//	agentcore chat --list-sessions
//
// # Environment variables
//
// Configuration can be provided via environment variables layered over
// any config file (see internal/config):
//
//   - AGENTCORE_ANTHROPIC_API_KEY / AGENTCORE_OPENAI_API_KEY: provider credentials
//   - AGENTCORE_DEFAULT_PROVIDER: "anthropic" or "openai"
//   - AGENTCORE_MODEL: model identifier
//   - AGENTCORE_SESSION_DIR: session store directory
//   - AGENTCORE_WORKSPACE: tool workspace root (chat replaces it with
//     the resolved --working-dir)
//   - AGENTCORE_LOG_LEVEL: "debug", "info", "warn", or "error"
//   - AGENTCORE_CONTEXT_LIMIT: hard token limit L
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// buildRootCmd assembles the root command and its subcommands. Kept
// separate from main so tests can exercise the command tree without
// calling os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentcore",
		Short:        "agentcore - a ReAct coding agent core",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildChatCmd())
	return rootCmd
}

// exitCodeFor maps an error into one of the three codes §6 specifies: 0
// (handled above, success), 1 (unhandled failure), 2 (invalid
// invocation). invocationError marks the latter.
func exitCodeFor(err error) int {
	if _, ok := err.(*invocationError); ok {
		return 2
	}
	return 1
}

// invocationError marks a cobra flag/argument validation failure as an
// invalid-invocation error (exit code 2) rather than an unhandled
// runtime failure (exit code 1).
type invocationError struct{ msg string }

func (e *invocationError) Error() string { return e.msg }

func newInvocationError(format string, args ...any) error {
	return &invocationError{msg: fmt.Sprintf(format, args...)}
}
