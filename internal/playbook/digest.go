package playbook

import (
	"fmt"
	"sort"
	"strings"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// DefaultDigestSize is the default top-K strategies shown to the LLM.
const DefaultDigestSize = 30

// RenderDigest renders the playbook's top-K strategies by effectiveness
// score descending, ties broken by most-recently-used first, as the
// bullet list the context assembler embeds in its synthetic System
// message. Returns "" if the playbook is empty.
func RenderDigest(pb models.Playbook, topK int) string {
	if topK <= 0 {
		topK = DefaultDigestSize
	}
	ordered := pb.Ordered()
	if len(ordered) == 0 {
		return ""
	}

	sorted := make([]models.Strategy, len(ordered))
	copy(sorted, ordered)
	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].Score(), sorted[j].Score()
		if si != sj {
			return si > sj
		}
		return sorted[i].LastUsed.After(sorted[j].LastUsed)
	})
	if len(sorted) > topK {
		sorted = sorted[:topK]
	}

	var b strings.Builder
	b.WriteString("Learned strategies from prior turns:\n")
	for _, s := range sorted {
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", s.Category, s.Content, s.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}
