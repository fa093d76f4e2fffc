package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// ReadTool reads a file from the workspace. It is non-dangerous and
// reversible (reading has no side effect), so the approval policy
// auto-allows it in both PLAN and NORMAL mode.
type ReadTool struct {
	resolver     resolver
	maxReadBytes int
}

// NewReadTool scopes a read tool to workspace, capping reads at
// maxReadBytes (200000 if zero).
func NewReadTool(workspace string, maxReadBytes int) *ReadTool {
	if maxReadBytes <= 0 {
		maxReadBytes = 200_000
	}
	return &ReadTool{resolver: resolver{root: workspace}, maxReadBytes: maxReadBytes}
}

func (t *ReadTool) Name() string        { return "read_file" }
func (t *ReadTool) Description() string { return "Read a file from the workspace with optional offset and byte limit." }
func (t *ReadTool) Dangerous() bool      { return false }
func (t *ReadTool) Reversible() bool     { return true }
func (t *ReadTool) DefaultTimeout() time.Duration { return 10 * time.Second }

func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file, relative to the workspace."},
			"offset": {"type": "integer", "minimum": 0, "description": "Byte offset to start reading from."},
			"max_bytes": {"type": "integer", "minimum": 0, "description": "Maximum bytes to read, capped by the tool default."}
		},
		"required": ["path"]
	}`)
}

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage, execCtx models.ExecutionContext) models.ToolResult {
	var input struct {
		Path     string `json:"path"`
		Offset   int64  `json:"offset"`
		MaxBytes int    `json:"max_bytes"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return errResult(models.ErrorInvalidArguments, fmt.Sprintf("invalid parameters: %v", err))
	}

	resolved, err := t.resolver.resolve(input.Path)
	if err != nil {
		return errResult(models.ErrorInvalidArguments, err.Error())
	}

	file, err := os.Open(resolved)
	if err != nil {
		return errResult(models.ErrorIO, fmt.Sprintf("open file: %v", err))
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return errResult(models.ErrorIO, fmt.Sprintf("stat file: %v", err))
	}
	if info.IsDir() {
		return errResult(models.ErrorInvalidArguments, fmt.Sprintf("%s is a directory", input.Path))
	}

	if input.Offset > 0 {
		if _, err := file.Seek(input.Offset, io.SeekStart); err != nil {
			return errResult(models.ErrorIO, fmt.Sprintf("seek file: %v", err))
		}
	}

	limit := t.maxReadBytes
	if input.MaxBytes > 0 && input.MaxBytes < limit {
		limit = input.MaxBytes
	}
	buf, err := io.ReadAll(io.LimitReader(file, int64(limit)))
	if err != nil {
		return errResult(models.ErrorIO, fmt.Sprintf("read file: %v", err))
	}

	truncated := info.Size() > input.Offset+int64(len(buf))
	summary := fmt.Sprintf("read %d bytes from %s", len(buf), input.Path)
	if truncated {
		summary += " (truncated)"
	}
	return models.ToolResult{Success: true, Output: summary + "\n" + string(buf)}
}

func errResult(kind models.ErrorKind, msg string) models.ToolResult {
	return models.ToolResult{Success: false, Error: kind, Output: msg}
}
