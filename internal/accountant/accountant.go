// Package accountant implements component A: token accounting. It counts
// tokens per message, aggregates session totals, and evaluates the
// compaction/warning thresholds.
package accountant

import (
	"context"
	"fmt"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/observability"
	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// Tokenizer is the external tokenizer library treated as a pure function.
// The real implementation wraps the Anthropic SDK's message token-count
// call; Count may return an error (rate limited, no API key, wrong
// provider) at which point the accountant falls back to the heuristic.
type Tokenizer interface {
	Count(ctx context.Context, text string) (int, error)
}

// Default threshold constants. L is the hard context limit; T is the
// compaction trigger; Warning is the user-visible warning band. These are
// the only numeric tunables the accountant exposes.
const (
	DefaultLimit      = 256_000
	compactionRatio   = 0.8
	warningRatio      = 0.7
	heuristicDerating = 0.9 // L is multiplied by this while the heuristic fallback is in use.
)

// charsPerToken is the deterministic fallback rate: one token per 3.5
// characters of serialized content.
const charsPerToken = 3.5

// Accountant measures token usage. A nil Tokenizer makes every call use
// the heuristic fallback.
type Accountant struct {
	tokenizer Tokenizer
	limit     int
	logger    *observability.Logger
	metrics   *observability.Metrics

	// heuristicActive latches true the first time the tokenizer fails or
	// is absent and stays true for the Accountant's lifetime; nothing
	// resets it. cmd/agentcore builds one Accountant per runtime, shared
	// by every session that runtime serves.
	heuristicActive bool
}

// New constructs an Accountant. tokenizer may be nil to force
// heuristic-only operation (e.g. no LLM API key configured, or a
// provider other than Anthropic).
func New(tokenizer Tokenizer, limit int, logger *observability.Logger, metrics *observability.Metrics) *Accountant {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Accountant{tokenizer: tokenizer, limit: limit, logger: logger, metrics: metrics}
}

// CountText counts the tokens in a raw string, trying the exact tokenizer
// first and falling back to the heuristic on any error or absence.
func (a *Accountant) CountText(ctx context.Context, s string) (n int, estimated bool) {
	reason := "no tokenizer configured"
	if a.tokenizer != nil {
		count, err := a.tokenizer.Count(ctx, s)
		if err == nil {
			a.observe("exact")
			return count, false
		}
		reason = err.Error()
	}
	if a.logger != nil {
		a.logger.Warn(ctx, "token count fell back to heuristic", "fallback", true, "reason", reason)
	}
	a.heuristicActive = true
	a.observe("heuristic")
	return heuristicCount(s), true
}

func (a *Accountant) observe(method string) {
	if a.metrics != nil {
		a.metrics.TokensCounted.WithLabelValues(method).Inc()
	}
}

func heuristicCount(s string) int {
	n := int(float64(len(s))/charsPerToken + 0.5)
	if n < 1 && len(s) > 0 {
		n = 1
	}
	return n
}

// CountMessage measures a Message, using its cached TokenCount if already
// computed. The cache is mutated in place so a caller that persists the
// session afterward does not need to re-measure on reload.
func (a *Accountant) CountMessage(ctx context.Context, m *models.Message) int {
	if m.TokenCount >= 0 {
		return m.TokenCount
	}
	n, estimated := a.CountText(ctx, m.SerializedContent())
	m.TokenCount = n
	m.Estimated = estimated
	return n
}

// SessionTotal sums the per-message counts, measuring any message whose
// TokenCount is not yet cached, and updates Session.TotalTokens.
func (a *Accountant) SessionTotal(ctx context.Context, s *models.Session) int {
	total := 0
	for i := range s.Messages {
		total += a.CountMessage(ctx, &s.Messages[i])
	}
	s.TotalTokens = total
	return total
}

// EffectiveLimit returns the configured hard limit, derated by
// heuristicDerating once the heuristic fallback has been used at least
// once by this accountant, per the fallback design note.
func (a *Accountant) EffectiveLimit() int {
	if a.heuristicActive {
		return int(float64(a.limit) * heuristicDerating)
	}
	return a.limit
}

// NeedsCompaction reports whether total has crossed the compaction
// trigger T = 0.8 * effective limit.
func (a *Accountant) NeedsCompaction(total int) bool {
	return float64(total) >= compactionRatio*float64(a.EffectiveLimit())
}

// InWarningBand reports whether total has crossed the user-visible
// warning threshold (0.7 * effective limit) but not yet the compaction
// trigger.
func (a *Accountant) InWarningBand(total int) bool {
	limit := float64(a.EffectiveLimit())
	return float64(total) >= warningRatio*limit && !a.NeedsCompaction(total)
}

// Describe renders a short human status line, e.g. for a `/usage` command.
func (a *Accountant) Describe(total int) string {
	return fmt.Sprintf("%d / %d tokens (%.1f%%)", total, a.EffectiveLimit(), 100*float64(total)/float64(a.EffectiveLimit()))
}
