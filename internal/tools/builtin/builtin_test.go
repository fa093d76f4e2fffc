package builtin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	write := NewWriteTool(dir)
	read := NewReadTool(dir, 0)

	res := write.Execute(context.Background(), json.RawMessage(`{"path":"hello.txt","content":"hi\n"}`), models.ExecutionContext{})
	if !res.Success {
		t.Fatalf("write failed: %+v", res)
	}

	res = read.Execute(context.Background(), json.RawMessage(`{"path":"hello.txt"}`), models.ExecutionContext{})
	if !res.Success {
		t.Fatalf("read failed: %+v", res)
	}
	if got := res.Output; !contains(got, "hi\n") {
		t.Fatalf("read output %q missing file content", got)
	}
}

func TestResolver_RejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	read := NewReadTool(dir, 0)
	res := read.Execute(context.Background(), json.RawMessage(`{"path":"../etc/passwd"}`), models.ExecutionContext{})
	if res.Success || res.Error != models.ErrorInvalidArguments {
		t.Fatalf("expected escape to be rejected, got %+v", res)
	}
}

func TestListDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	list := NewListDirectoryTool(dir)
	res := list.Execute(context.Background(), json.RawMessage(`{}`), models.ExecutionContext{})
	if !res.Success {
		t.Fatalf("list failed: %+v", res)
	}
	if !contains(res.Output, "a.txt") || !contains(res.Output, "sub/") {
		t.Fatalf("unexpected listing: %s", res.Output)
	}
}

func TestShellTool_CapturesOutput(t *testing.T) {
	dir := t.TempDir()
	shell := NewShellTool(dir, "", 0)
	res := shell.Execute(context.Background(), json.RawMessage(`{"command":"echo hi"}`), models.ExecutionContext{})
	if !res.Success {
		t.Fatalf("shell command failed: %+v", res)
	}
	if !contains(res.Output, "hi") {
		t.Fatalf("expected output to contain 'hi', got %q", res.Output)
	}
}

func TestShellTool_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	shell := NewShellTool(dir, "", 0)
	res := shell.Execute(context.Background(), json.RawMessage(`{"command":"exit 3"}`), models.ExecutionContext{})
	if res.Success || res.Error != models.ErrorSubprocess {
		t.Fatalf("expected subprocess error, got %+v", res)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
