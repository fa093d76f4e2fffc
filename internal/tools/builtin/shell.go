package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// ShellTool runs a command via the platform shell inside the workspace.
// It is always dangerous and not reversible: the approval policy must
// ask the user in NORMAL mode and the tool never runs in PLAN mode.
type ShellTool struct {
	workspace string
	shell     string
	timeout   time.Duration
}

// NewShellTool builds a shell tool scoped to workspace, using shellPath
// (e.g. "/bin/sh") to run commands. timeout of 0 uses a 60s default.
func NewShellTool(workspace, shellPath string, timeout time.Duration) *ShellTool {
	if shellPath == "" {
		shellPath = "/bin/sh"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ShellTool{workspace: workspace, shell: shellPath, timeout: timeout}
}

func (t *ShellTool) Name() string        { return "run_shell_command" }
func (t *ShellTool) Description() string { return "Run a shell command in the workspace and capture its output." }
func (t *ShellTool) Dangerous() bool      { return true }
func (t *ShellTool) Reversible() bool     { return false }
func (t *ShellTool) DefaultTimeout() time.Duration { return t.timeout }

func (t *ShellTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Shell command to run."}
		},
		"required": ["command"]
	}`)
}

// dangerousShellPatterns flags command-chaining, redirection, and
// subshell metacharacters so Execute can prepend a warning note to the
// result even though the tool is already always-dangerous.
var dangerousShellPatterns = []string{"&&", "||", ";", "|", ">", "<", "`", "$("}

func classifyShell(cmd string) []string {
	var found []string
	for _, p := range dangerousShellPatterns {
		if strings.Contains(cmd, p) {
			found = append(found, p)
		}
	}
	return found
}

func (t *ShellTool) Execute(ctx context.Context, params json.RawMessage, execCtx models.ExecutionContext) models.ToolResult {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(models.ErrorInvalidArguments, fmt.Sprintf("invalid parameters: %v", err))
	}
	if strings.TrimSpace(input.Command) == "" {
		return errResult(models.ErrorInvalidArguments, "command is required")
	}

	workdir := t.workspace
	if execCtx.WorkingDirectory != "" {
		workdir = execCtx.WorkingDirectory
	}

	cmd := exec.CommandContext(ctx, t.shell, "-c", input.Command)
	cmd.Dir = workdir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var b strings.Builder
	if risky := classifyShell(input.Command); len(risky) > 0 {
		fmt.Fprintf(&b, "note: command uses shell metacharacters %v\n", risky)
	}
	b.WriteString(stdout.String())
	if stderr.Len() > 0 {
		b.WriteString("\n--- stderr ---\n")
		b.WriteString(stderr.String())
	}

	if ctx.Err() != nil {
		return models.ToolResult{Success: false, Error: models.ErrorCancelled, Output: b.String()}
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			fmt.Fprintf(&b, "\nexit status %d", exitErr.ExitCode())
			return models.ToolResult{Success: false, Error: models.ErrorSubprocess, Output: b.String()}
		}
		return models.ToolResult{Success: false, Error: models.ErrorIO, Output: err.Error()}
	}
	return models.ToolResult{Success: true, Output: b.String()}
}
