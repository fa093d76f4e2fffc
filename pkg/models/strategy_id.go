package models

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NewStrategyID derives the next stable id for a category given the
// playbook's per-category insertion counter, and advances the counter.
// Ids look like "file_operations_3" and are never reused even if the
// strategy at that index is later removed.
func (p *Playbook) NewStrategyID(cat StrategyCategory) string {
	if p.NextIndex == nil {
		p.NextIndex = make(map[StrategyCategory]int)
	}
	idx := p.NextIndex[cat]
	p.NextIndex[cat] = idx + 1
	return fmt.Sprintf("%s_%d", cat, idx)
}

func sortByInsertionSuffix(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		ni, oki := suffixNumber(ids[i])
		nj, okj := suffixNumber(ids[j])
		if oki && okj {
			return ni < nj
		}
		return ids[i] < ids[j]
	})
}

func suffixNumber(id string) (int, bool) {
	idx := strings.LastIndex(id, "_")
	if idx < 0 || idx == len(id)-1 {
		return 0, false
	}
	n, err := strconv.Atoi(id[idx+1:])
	if err != nil {
		return 0, false
	}
	return n, true
}
