package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// ListDirectoryTool lists the entries of a directory within the
// workspace. Non-dangerous and reversible, like ReadTool.
type ListDirectoryTool struct {
	resolver resolver
}

func NewListDirectoryTool(workspace string) *ListDirectoryTool {
	return &ListDirectoryTool{resolver: resolver{root: workspace}}
}

func (t *ListDirectoryTool) Name() string        { return "list_directory" }
func (t *ListDirectoryTool) Description() string { return "List the files and subdirectories of a workspace directory." }
func (t *ListDirectoryTool) Dangerous() bool      { return false }
func (t *ListDirectoryTool) Reversible() bool     { return true }
func (t *ListDirectoryTool) DefaultTimeout() time.Duration { return 5 * time.Second }

func (t *ListDirectoryTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Directory to list, relative to the workspace (default: \".\")."}
		}
	}`)
}

func (t *ListDirectoryTool) Execute(ctx context.Context, params json.RawMessage, execCtx models.ExecutionContext) models.ToolResult {
	var input struct {
		Path string `json:"path"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &input); err != nil {
			return errResult(models.ErrorInvalidArguments, fmt.Sprintf("invalid parameters: %v", err))
		}
	}
	if strings.TrimSpace(input.Path) == "" {
		input.Path = "."
	}

	resolved, err := t.resolver.resolve(input.Path)
	if err != nil {
		return errResult(models.ErrorInvalidArguments, err.Error())
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return errResult(models.ErrorIO, fmt.Sprintf("read directory: %v", err))
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%d entries in %s\n", len(names), input.Path)
	for _, n := range names {
		b.WriteString(n)
		b.WriteString("\n")
	}
	return models.ToolResult{Success: true, Output: b.String()}
}
