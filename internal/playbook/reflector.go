// Package playbook implements the reflector named in the Playbook design
// notes: a deterministic pattern matcher over the tool-name sequence of a
// completed turn that distills reusable strategies into a session's
// Playbook. There is no precedent for this subsystem anywhere in the
// retrieved corpus (see DESIGN.md's "Ungrounded additions"); it is built
// fresh in the style of the teacher's other rule-based extractors.
package playbook

import (
	"strings"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// ToolTrace is the minimal record of one executed tool call the
// reflector needs: enough to recognize a pattern without replaying the
// full transcript.
type ToolTrace struct {
	Name    string
	Success bool
}

// Candidate is a pattern match awaiting admission into a Playbook. It
// carries no id yet; Apply assigns one only if it survives the
// confidence and dedup checks.
type Candidate struct {
	Category   models.StrategyCategory
	Content    string
	Confidence float64
}

// DefaultConfidenceThreshold is the minimum confidence a candidate needs
// to be admitted into the playbook.
const DefaultConfidenceThreshold = 0.65

// pattern recognizes a fixed tool-name sequence (or property of the
// trace) and proposes one strategy if it matches.
type pattern struct {
	category   models.StrategyCategory
	content    string
	confidence float64
	matches    func(trace []ToolTrace) bool
}

var patterns = []pattern{
	{
		category:   models.CategoryCodeNavigation,
		content:    "list a directory before reading a specific file in it, to confirm the file exists and spot siblings worth checking.",
		confidence: 0.8,
		matches:    adjacentPair("list_directory", "read_file"),
	},
	{
		category:   models.CategoryFileOperations,
		content:    "read a file's current contents before overwriting it, so the replacement preserves anything still needed.",
		confidence: 0.75,
		matches:    adjacentPair("read_file", "write_file"),
	},
	{
		category:   models.CategoryTesting,
		content:    "run the test suite immediately after editing a file to confirm the change didn't break anything.",
		confidence: 0.8,
		matches:    adjacentPair("write_file", "run_shell_command"),
	},
	{
		category:   models.CategoryShellCommands,
		content:    "chain related shell commands so intermediate state doesn't need to be rediscovered between calls.",
		confidence: 0.65,
		matches:    repeatedTool("run_shell_command", 2),
	},
	{
		category:   models.CategoryErrorHandling,
		content:    "when a tool call fails, inspect the error output before retrying rather than repeating the identical call.",
		confidence: 0.7,
		matches:    hasFailureFollowedByDifferentCall,
	},
	{
		category:   models.CategoryFileOperations,
		content:    "list a directory before writing a new file into it, to avoid clobbering an existing one with the same name.",
		confidence: 0.7,
		matches:    adjacentPair("list_directory", "write_file"),
	},
}

func adjacentPair(first, second string) func([]ToolTrace) bool {
	return func(trace []ToolTrace) bool {
		for i := 0; i+1 < len(trace); i++ {
			if trace[i].Name == first && trace[i+1].Name == second {
				return true
			}
		}
		return false
	}
}

func repeatedTool(name string, minCount int) func([]ToolTrace) bool {
	return func(trace []ToolTrace) bool {
		count := 0
		for _, t := range trace {
			if t.Name == name {
				count++
			}
		}
		return count >= minCount
	}
}

func hasFailureFollowedByDifferentCall(trace []ToolTrace) bool {
	for i := 0; i+1 < len(trace); i++ {
		if !trace[i].Success && trace[i].Name != trace[i+1].Name {
			return true
		}
	}
	return false
}

// Reflect inspects a completed turn's tool trace and returns the
// candidate strategies any matching pattern proposes. Per §4.F, a
// minimum of two tool calls is required to emit anything.
func Reflect(trace []ToolTrace) []Candidate {
	if len(trace) < 2 {
		return nil
	}
	var out []Candidate
	for _, p := range patterns {
		if p.matches(trace) {
			out = append(out, Candidate{Category: p.category, Content: p.content, Confidence: p.confidence})
		}
	}
	return out
}

// Apply admits each candidate above the confidence threshold into pb,
// skipping any whose normalized content duplicates an existing strategy.
// It returns the number of strategies actually added.
func Apply(pb *models.Playbook, candidates []Candidate) int {
	added := 0
	for _, c := range candidates {
		if c.Confidence < DefaultConfidenceThreshold {
			continue
		}
		if containsNormalized(pb, c.Content) {
			continue
		}
		id := pb.NewStrategyID(c.Category)
		now := nowFunc()
		pb.Strategies[id] = models.Strategy{
			ID:         id,
			Category:   c.Category,
			Content:    c.Content,
			Confidence: c.Confidence,
			CreatedAt:  now,
			LastUsed:   now,
		}
		added++
	}
	return added
}

func containsNormalized(pb *models.Playbook, content string) bool {
	normalized := normalize(content)
	for _, s := range pb.Strategies {
		if normalize(s.Content) == normalized {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
