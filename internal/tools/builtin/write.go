package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// WriteTool writes a file within the workspace, overwriting by default.
// It is dangerous (a write mutates durable state the user did not yet
// see) and not reversible, so the approval policy always asks in NORMAL
// mode and is always denied in PLAN mode.
type WriteTool struct {
	resolver resolver
}

func NewWriteTool(workspace string) *WriteTool {
	return &WriteTool{resolver: resolver{root: workspace}}
}

func (t *WriteTool) Name() string        { return "write_file" }
func (t *WriteTool) Description() string { return "Write content to a file in the workspace (overwrites by default)." }
func (t *WriteTool) Dangerous() bool      { return true }
func (t *WriteTool) Reversible() bool     { return false }
func (t *WriteTool) DefaultTimeout() time.Duration { return 10 * time.Second }

func (t *WriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to write, relative to the workspace."},
			"content": {"type": "string", "description": "File contents to write."},
			"append": {"type": "boolean", "description": "Append instead of overwrite (default false)."}
		},
		"required": ["path", "content"]
	}`)
}

func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage, execCtx models.ExecutionContext) models.ToolResult {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Append  bool   `json:"append"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(models.ErrorInvalidArguments, fmt.Sprintf("invalid parameters: %v", err))
	}

	resolved, err := t.resolver.resolve(input.Path)
	if err != nil {
		return errResult(models.ErrorInvalidArguments, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errResult(models.ErrorIO, fmt.Sprintf("create directory: %v", err))
	}

	flags := os.O_CREATE | os.O_WRONLY
	if input.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return errResult(models.ErrorIO, fmt.Sprintf("open file: %v", err))
	}
	defer file.Close()

	n, err := file.WriteString(input.Content)
	if err != nil {
		return errResult(models.ErrorIO, fmt.Sprintf("write file: %v", err))
	}

	return models.ToolResult{Success: true, Output: fmt.Sprintf("wrote %d bytes to %s", n, input.Path)}
}
