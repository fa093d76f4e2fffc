// Package context implements component E: the context assembler and
// compactor. Assemble generalizes the teacher's agent/context.Packer.Pack
// (see DESIGN.md) to the fixed five-part ordering §4.E requires, and is a
// pure function of its inputs so that repeated calls with identical
// state produce byte-identical output (the determinism property in §8).
package context

import (
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/internal/playbook"
	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

// Config controls assembly: how many playbook strategies to surface and
// how many user/assistant interaction pairs the reflection window keeps.
type Config struct {
	SystemPrompt string
	DigestSize   int // default playbook.DefaultDigestSize
	WindowPairs  int // default DefaultWindowPairs
}

// DefaultWindowPairs is the default reflection window size W.
const DefaultWindowPairs = 5

// Assemble produces the ordered message list §4.E describes:
//
//  1. the static system prompt
//  2. the playbook digest (if the playbook is non-empty)
//  3. the most recent compaction summary (if any)
//  4. the reflection window
//
// The caller is responsible for having already appended the current
// user message to session.Messages (mirroring the teacher's
// persist-then-assemble ordering in AgenticLoop.Run), so the reflection
// window's final entry is always that message; this keeps Assemble a
// pure function of session state without a separate "current message"
// parameter to keep in sync.
func Assemble(session *models.Session, cfg Config, now time.Time) []models.Message {
	digestSize := cfg.DigestSize
	if digestSize <= 0 {
		digestSize = playbook.DefaultDigestSize
	}
	windowPairs := cfg.WindowPairs
	if windowPairs <= 0 {
		windowPairs = DefaultWindowPairs
	}

	out := make([]models.Message, 0, len(session.Messages)+3)
	out = append(out, models.NewSystemMessage("system-prompt", cfg.SystemPrompt, now))

	if digest := playbook.RenderDigest(session.Playbook, digestSize); digest != "" {
		out = append(out, models.NewSystemMessage("playbook-digest", digest, now))
	}

	if summary, ok := findCompactionSummary(session.Messages); ok {
		out = append(out, summary)
	}

	out = append(out, ReflectionWindow(session.Messages, windowPairs)...)
	return out
}

// findCompactionSummary returns the most recent compaction-summary
// System message in messages, if any. Per §3 there is at most one at a
// time.
func findCompactionSummary(messages []models.Message) (models.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Kind == models.KindSystem && messages[i].CompactionSummary {
			return messages[i], true
		}
	}
	return models.Message{}, false
}

// ReflectionWindow returns the suffix of messages covering the last
// windowPairs user/assistant interaction pairs: for each retained User
// message, every intervening Assistant/ToolCall/ToolResult message up to
// (but not including) the next User message. If the computed suffix
// would begin mid-turn, leading non-User messages are dropped so the
// window always starts at a User message, per §4.E.
func ReflectionWindow(messages []models.Message, windowPairs int) []models.Message {
	var userIdxs []int
	for i, m := range messages {
		if m.Kind == models.KindUser {
			userIdxs = append(userIdxs, i)
		}
	}
	if len(userIdxs) == 0 {
		return nil
	}

	start := userIdxs[0]
	if len(userIdxs) > windowPairs {
		start = userIdxs[len(userIdxs)-windowPairs]
	}

	window := messages[start:]
	for len(window) > 0 && window[0].Kind != models.KindUser {
		window = window[1:]
	}

	out := make([]models.Message, len(window))
	copy(out, window)
	return out
}
