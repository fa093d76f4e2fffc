package context

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// DefaultRecentMessages is N, the number of most recent messages the
// compactor always keeps verbatim.
const DefaultRecentMessages = 20

// Summarizer produces prose covering a run of messages that is about to
// be folded into a compaction summary. An LLM-backed implementation
// lives in internal/provider; Compactor falls back to a deterministic
// extractor when none is configured or Summarize returns an error, per
// the "fallback must not silently
// change behavior" requirement carried over from the token accountant.
type Summarizer interface {
	Summarize(ctx context.Context, messages []models.Message) (string, error)
}

// CompactorConfig controls how much of the transcript Compact keeps
// verbatim.
type CompactorConfig struct {
	RecentMessages int // default DefaultRecentMessages
}

// Compactor replaces the older portion of a session's transcript with a
// single synthetic System message, keeping the most recent messages
// untouched. It generalizes the teacher's flush/summarize split in
// agent/compaction.go to a synchronous, idempotent operation: the
// teacher's CompactionManager is callback- and confirmation-driven, which
// §4.E's "compact(compact(s)) == compact(s)" determinism requirement
// rules out here.
type Compactor struct {
	cfg        CompactorConfig
	summarizer Summarizer
}

// NewCompactor constructs a Compactor. summarizer may be nil, in which
// case ExtractSummary provides the fallback text.
func NewCompactor(cfg CompactorConfig, summarizer Summarizer) *Compactor {
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = DefaultRecentMessages
	}
	return &Compactor{cfg: cfg, summarizer: summarizer}
}

// Compact folds every message older than the last RecentMessages into one
// compaction-summary System message prepended to the kept tail. It is a
// no-op (returns false, nil) when the session is already short enough
// that there is nothing to fold, which is what makes a second call
// idempotent: Compact(Compact(s)) always observes len(Messages) <=
// RecentMessages+1 and stops.
func (c *Compactor) Compact(ctx context.Context, sess *models.Session, now time.Time) (bool, error) {
	if len(sess.Messages) <= c.cfg.RecentMessages+1 {
		return false, nil
	}

	splitAt := len(sess.Messages) - c.cfg.RecentMessages
	old := sess.Messages[:splitAt]
	recent := make([]models.Message, len(sess.Messages)-splitAt)
	copy(recent, sess.Messages[splitAt:])

	var previous string
	fold := old
	if len(old) > 0 && old[0].Kind == models.KindSystem && old[0].CompactionSummary {
		previous = old[0].Text
		fold = old[1:]
	}

	var summaryText string
	if c.summarizer != nil {
		text, err := c.summarizer.Summarize(ctx, fold)
		if err != nil {
			text = ExtractSummary(fold)
		}
		summaryText = text
	} else {
		summaryText = ExtractSummary(fold)
	}
	if previous != "" {
		summaryText = previous + "\n" + summaryText
	}

	summary := models.NewSystemMessage("compaction-summary", summaryText, now)
	summary.CompactionSummary = true

	sess.Messages = append([]models.Message{summary}, recent...)
	return true, nil
}

var (
	filePathPattern = regexp.MustCompile(`(?:^|[\s` + "`" + `'"])((?:/|\./|[A-Za-z0-9_.-]+/)[A-Za-z0-9_./-]+\.[A-Za-z0-9]+)`)
	todoPattern     = regexp.MustCompile(`(?i)\bTODO\b[:\s].{0,120}`)
)

// ExtractSummary is the deterministic fallback summarizer: no LLM call,
// just regex extraction of the facts a synthesized summary most needs to
// preserve — files touched, errors raised, and TODO markers left behind —
// plus a bare count of everything else so nothing vanishes silently.
func ExtractSummary(messages []models.Message) string {
	if len(messages) == 0 {
		return "No prior activity to summarize."
	}

	files := newOrderedSet()
	errs := newOrderedSet()
	todos := newOrderedSet()
	userTurns := 0

	for _, m := range messages {
		switch m.Kind {
		case models.KindUser:
			userTurns++
		case models.KindToolCall:
			for _, match := range filePathPattern.FindAllStringSubmatch(string(m.ToolArguments), -1) {
				files.add(match[1])
			}
		case models.KindToolResult:
			if !m.Success && m.Error != "" {
				errs.add(fmt.Sprintf("%s: %s", m.Error, firstLine(m.Output)))
			}
			for _, match := range todoPattern.FindAllString(m.Output, -1) {
				todos.add(strings.TrimSpace(match))
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summary of %d earlier messages across %d user turns.", len(messages), userTurns)
	if files.len() > 0 {
		fmt.Fprintf(&b, " Files touched: %s.", strings.Join(files.items(), ", "))
	}
	if errs.len() > 0 {
		fmt.Fprintf(&b, " Errors encountered: %s.", strings.Join(errs.items(), "; "))
	}
	if todos.len() > 0 {
		fmt.Fprintf(&b, " Open TODOs noted: %s.", strings.Join(todos.items(), "; "))
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// orderedSet keeps first-seen insertion order, which ExtractSummary needs
// for deterministic output.
type orderedSet struct {
	seen  map[string]bool
	order []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (o *orderedSet) add(v string) {
	if v == "" || o.seen[v] {
		return
	}
	o.seen[v] = true
	o.order = append(o.order, v)
}

func (o *orderedSet) len() int          { return len(o.order) }
func (o *orderedSet) items() []string   { return o.order }
