package approval

import (
	"encoding/json"
	"testing"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

func TestAuthorize_DenyRuleBeatsEverything(t *testing.T) {
	tool := ToolInfo{Name: "read_file", Dangerous: false, Reversible: true}
	rules := []models.ApprovalRule{{Tool: "read_file", ArgPattern: "*", Decision: models.RuleDenySession}}
	got := Authorize(models.ModeNormal, tool, `{"path":"x"}`, rules, nil)
	if got != models.AutoDeny {
		t.Fatalf("got %v, want AutoDeny", got)
	}
}

func TestAuthorize_AllowRuleBeatsDangerous(t *testing.T) {
	tool := ToolInfo{Name: "run_shell_command", Dangerous: true, Reversible: false}
	rules := []models.ApprovalRule{{Tool: "run_shell_command", ArgPattern: "*", Decision: models.RuleAllowSession}}
	got := Authorize(models.ModeNormal, tool, `{"command":"ls"}`, rules, nil)
	if got != models.AutoAllow {
		t.Fatalf("got %v, want AutoAllow", got)
	}
}

func TestAuthorize_PlanModeBlanketDenyForSideEffecting(t *testing.T) {
	tool := ToolInfo{Name: "write_file", Dangerous: true, Reversible: false}
	got := Authorize(models.ModePlan, tool, `{}`, nil, nil)
	if got != models.AutoDeny {
		t.Fatalf("got %v, want AutoDeny in PLAN mode", got)
	}
}

func TestAuthorize_PlanModeAllowsReadOnly(t *testing.T) {
	tool := ToolInfo{Name: "read_file", Dangerous: false, Reversible: true}
	got := Authorize(models.ModePlan, tool, `{}`, nil, nil)
	if got != models.AutoAllow {
		t.Fatalf("got %v, want AutoAllow for read-only tool in PLAN mode", got)
	}
}

func TestAuthorize_DangerousAsksUser(t *testing.T) {
	tool := ToolInfo{Name: "run_shell_command", Dangerous: true, Reversible: false}
	got := Authorize(models.ModeNormal, tool, `{}`, nil, nil)
	if got != models.AskUser {
		t.Fatalf("got %v, want AskUser", got)
	}
}

func TestAuthorize_ReversibleNonDangerousAutoAllows(t *testing.T) {
	tool := ToolInfo{Name: "list_directory", Dangerous: false, Reversible: true}
	got := Authorize(models.ModeNormal, tool, `{}`, nil, nil)
	if got != models.AutoAllow {
		t.Fatalf("got %v, want AutoAllow", got)
	}
}

func TestAuthorize_NotReversibleNotDangerousAsksUser(t *testing.T) {
	tool := ToolInfo{Name: "send_email", Dangerous: false, Reversible: false}
	got := Authorize(models.ModeNormal, tool, `{}`, nil, nil)
	if got != models.AskUser {
		t.Fatalf("got %v, want AskUser", got)
	}
}

func TestCanonicalize_NormalizesWhitespaceAndCase(t *testing.T) {
	a := Canonicalize(json.RawMessage(`{"Path":  "Foo.TXT"}`))
	b := Canonicalize(json.RawMessage(`{"path": "foo.txt"}`))
	// Canonicalize lowercases the whole string, keys included, and
	// collapses whitespace, so compact/expanded JSON and differently-cased
	// spellings of the same arguments compare equal.
	c := Canonicalize(json.RawMessage(`{  "Path":    "Foo.TXT"  }`))
	if a != c {
		t.Fatalf("canonicalization not stable under whitespace: %q vs %q", a, c)
	}
	if a != b {
		t.Fatalf("canonicalization not stable under case: %q vs %q", a, b)
	}
}

func TestRecordResponse(t *testing.T) {
	if r := RecordResponse("t", "args", models.ResponseYes); r != nil {
		t.Fatalf("plain yes should not create a rule, got %+v", r)
	}
	r := RecordResponse("t", "args", models.ResponseYesRememberForSession)
	if r == nil || r.Decision != models.RuleAllowSession {
		t.Fatalf("got %+v", r)
	}
	r = RecordResponse("t", "args", models.ResponseNoRememberForSession)
	if r == nil || r.Decision != models.RuleDenySession {
		t.Fatalf("got %+v", r)
	}
}
