package agent

// stuckTracker implements the stuck-state detector from §4.F: three
// successive cycles that execute the same tool with the same
// canonicalized arguments and all fail trips it. Kept as its own small
// type (rather than inline counters in the orchestrator loop) so the
// detection rule is unit-testable without spinning up a whole turn.
type stuckTracker struct {
	threshold int

	lastTool string
	lastArgs string
	streak   int
}

func newStuckTracker(threshold int) *stuckTracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &stuckTracker{threshold: threshold}
}

// Observe records one tool call's outcome and reports whether the streak
// has now reached the threshold. A successful call, or a call that
// differs from the previous one, resets the streak.
func (s *stuckTracker) Observe(tool, canonicalArgs string, success bool) bool {
	if !success && tool == s.lastTool && canonicalArgs == s.lastArgs {
		s.streak++
	} else {
		s.lastTool = tool
		s.lastArgs = canonicalArgs
		if success {
			s.streak = 0
		} else {
			s.streak = 1
		}
	}
	return s.streak >= s.threshold
}
