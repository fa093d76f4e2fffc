// Package approval implements component C: the mode and approval policy.
// Authorize is a pure function of its inputs, per the design note that
// approval-as-pure-function keeps the precedence chain directly
// unit-testable; recording a "remember for session" decision is a
// separate, explicitly side-effecting step.
package approval

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// ToolInfo is the subset of a registered tool's metadata the policy
// needs to decide.
type ToolInfo struct {
	Name       string
	Dangerous  bool
	Reversible bool
}

// Authorize implements the precedence chain from §4.C:
//  1. a matching deny-* rule (session rules checked before global)
//  2. a matching allow-* rule
//  3. PLAN-mode blanket deny for side-effecting tools
//  4. tool.dangerous => AskUser
//  5. reversible && !dangerous => AutoAllow
//  6. otherwise AskUser
func Authorize(mode models.Mode, tool ToolInfo, canonicalArgs string, sessionRules, globalRules []models.ApprovalRule) models.Decision {
	if rule, ok := matchRule(tool.Name, canonicalArgs, sessionRules); ok && rule.IsDeny() {
		return models.AutoDeny
	}
	if rule, ok := matchRule(tool.Name, canonicalArgs, globalRules); ok && rule.IsDeny() {
		return models.AutoDeny
	}
	if rule, ok := matchRule(tool.Name, canonicalArgs, sessionRules); ok && rule.IsAllow() {
		return models.AutoAllow
	}
	if rule, ok := matchRule(tool.Name, canonicalArgs, globalRules); ok && rule.IsAllow() {
		return models.AutoAllow
	}

	sideEffecting := tool.Dangerous || !tool.Reversible
	if mode == models.ModePlan && sideEffecting {
		return models.AutoDeny
	}

	if tool.Dangerous {
		return models.AskUser
	}
	if tool.Reversible {
		return models.AutoAllow
	}
	return models.AskUser
}

func matchRule(tool, canonicalArgs string, rules []models.ApprovalRule) (models.ApprovalRule, bool) {
	for _, r := range rules {
		if r.Matches(tool, canonicalArgs) {
			return r, true
		}
	}
	return models.ApprovalRule{}, false
}

// Canonicalize normalizes a tool's argument object into the comparison
// string used both by approval-rule matching and stuck-state detection:
// whitespace-collapsed, lowercased JSON.
func Canonicalize(args json.RawMessage) string {
	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return strings.ToLower(collapseWhitespace(string(args)))
	}
	normalized, err := json.Marshal(sortKeys(decoded))
	if err != nil {
		return strings.ToLower(collapseWhitespace(string(args)))
	}
	return strings.ToLower(string(normalized))
}

var whitespaceRE = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

// sortKeys recursively rewrites maps into a form that marshals with
// deterministic key order by converting them to a slice of key/value
// pairs is unnecessary since encoding/json already sorts map[string]any
// keys; this just recurses so nested maps get the same treatment as a
// defensive measure against callers passing ordered structures.
func sortKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[k] = sortKeys(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = sortKeys(e)
		}
		return out
	default:
		return val
	}
}

// RecordResponse turns a user's AskUser response into a rule to append to
// session-scoped rules, or nil if the response does not create a
// standing rule (plain yes/no, or edit-arguments, which Allowed treats
// as a denial).
func RecordResponse(tool string, canonicalArgs string, resp models.UserResponse) *models.ApprovalRule {
	switch resp {
	case models.ResponseYesRememberForSession:
		return &models.ApprovalRule{Tool: tool, ArgPattern: canonicalArgs, Decision: models.RuleAllowSession}
	case models.ResponseNoRememberForSession:
		return &models.ApprovalRule{Tool: tool, ArgPattern: canonicalArgs, Decision: models.RuleDenySession}
	default:
		return nil
	}
}

// Allowed reports whether resp means the call should proceed.
func Allowed(resp models.UserResponse) bool {
	return resp == models.ResponseYes || resp == models.ResponseYesRememberForSession
}
