package models

import "time"

// StrategyCategory is the fixed enumeration of procedural-knowledge
// categories the reflector can classify a strategy into.
type StrategyCategory string

const (
	CategoryFileOperations StrategyCategory = "file_operations"
	CategoryCodeNavigation StrategyCategory = "code_navigation"
	CategoryTesting        StrategyCategory = "testing"
	CategoryShellCommands   StrategyCategory = "shell_commands"
	CategoryErrorHandling   StrategyCategory = "error_handling"
	CategoryOther           StrategyCategory = "other"
)

// Strategy is one distilled, reusable piece of procedural knowledge the
// reflector extracted from a turn's tool trace.
type Strategy struct {
	ID         string           `json:"id"`
	Category   StrategyCategory `json:"category"`
	Content    string           `json:"content"`
	Confidence float64          `json:"confidence"`

	Helpful int `json:"helpful"`
	Harmful int `json:"harmful"`
	Neutral int `json:"neutral"`

	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
}

// Score is the derived effectiveness score:
// (helpful - harmful) / max(1, helpful + harmful + neutral).
func (s Strategy) Score() float64 {
	total := s.Helpful + s.Harmful + s.Neutral
	if total < 1 {
		total = 1
	}
	return float64(s.Helpful-s.Harmful) / float64(total)
}

// Playbook is a mapping from strategy id to Strategy. Ids are never
// reused; NextIndex keeps insertion order per category so serialization
// is deterministic (see Ordered).
type Playbook struct {
	Strategies map[string]Strategy `json:"strategies"`
	// nextIndex tracks the next insertion index per category so ids stay
	// stable (category + index) even as strategies are removed.
	NextIndex map[StrategyCategory]int `json:"next_index,omitempty"`
}

// NewPlaybook returns an empty, ready-to-use Playbook.
func NewPlaybook() Playbook {
	return Playbook{
		Strategies: make(map[string]Strategy),
		NextIndex:  make(map[StrategyCategory]int),
	}
}

// Ordered returns the playbook's strategies in stable id order: by
// category (in enumeration order), then by insertion index within the
// category. This is the order used both for deterministic serialization
// and for the playbook digest shown to the LLM (there re-sorted by
// score, see the context assembler).
func (p Playbook) Ordered() []Strategy {
	cats := []StrategyCategory{
		CategoryFileOperations, CategoryCodeNavigation, CategoryTesting,
		CategoryShellCommands, CategoryErrorHandling, CategoryOther,
	}
	out := make([]Strategy, 0, len(p.Strategies))
	for _, cat := range cats {
		ids := idsForCategory(p.Strategies, cat)
		for _, id := range ids {
			out = append(out, p.Strategies[id])
		}
	}
	return out
}

func idsForCategory(strategies map[string]Strategy, cat StrategyCategory) []string {
	var ids []string
	for id, s := range strategies {
		if s.Category == cat {
			ids = append(ids, id)
		}
	}
	// Sort by the numeric suffix of the id (category_<n>) rather than
	// lexicographically, so strategy_10 sorts after strategy_9.
	sortByInsertionSuffix(ids)
	return ids
}
