package context

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

func messagesFixture(n int, now time.Time) []models.Message {
	var out []models.Message
	for i := 0; i < n; i++ {
		out = append(out, models.NewUserMessage(string(rune('a'+i%26)), "turn", now))
		out = append(out, models.NewAssistantMessage(string(rune('A'+i%26)), "reply", nil, now))
	}
	return out
}

func TestCompactNoOpWhenShort(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	sess := &models.Session{Messages: messagesFixture(5, now)}
	c := NewCompactor(CompactorConfig{RecentMessages: 20}, nil)

	changed, err := c.Compact(context.Background(), sess, now)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if changed {
		t.Fatalf("expected no-op for a short transcript")
	}
}

func TestCompactFoldsOldMessages(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	sess := &models.Session{Messages: messagesFixture(30, now)} // 60 messages
	c := NewCompactor(CompactorConfig{RecentMessages: 20}, nil)

	changed, err := c.Compact(context.Background(), sess, now)
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if !changed {
		t.Fatalf("expected compaction to occur")
	}
	if len(sess.Messages) != 21 {
		t.Fatalf("expected 1 summary + 20 recent messages, got %d", len(sess.Messages))
	}
	if !sess.Messages[0].CompactionSummary {
		t.Fatalf("expected first message to be the compaction summary, got %+v", sess.Messages[0])
	}
}

func TestCompactIsIdempotent(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	sess := &models.Session{Messages: messagesFixture(30, now)}
	c := NewCompactor(CompactorConfig{RecentMessages: 20}, nil)

	if _, err := c.Compact(context.Background(), sess, now); err != nil {
		t.Fatalf("first Compact: %v", err)
	}
	before := make([]models.Message, len(sess.Messages))
	copy(before, sess.Messages)

	changed, err := c.Compact(context.Background(), sess, now)
	if err != nil {
		t.Fatalf("second Compact: %v", err)
	}
	if changed {
		t.Fatalf("expected second compaction to be a no-op")
	}
	if len(before) != len(sess.Messages) {
		t.Fatalf("idempotence violated: length changed from %d to %d", len(before), len(sess.Messages))
	}
	for i := range before {
		if !reflect.DeepEqual(before[i], sess.Messages[i]) {
			t.Fatalf("idempotence violated at index %d: %+v vs %+v", i, before[i], sess.Messages[i])
		}
	}
}

func TestCompactMergesPreviousSummary(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	sess := &models.Session{Messages: messagesFixture(30, now)}
	c := NewCompactor(CompactorConfig{RecentMessages: 20}, nil)
	if _, err := c.Compact(context.Background(), sess, now); err != nil {
		t.Fatalf("first Compact: %v", err)
	}
	firstSummary := sess.Messages[0].Text

	sess.Messages = append(sess.Messages, messagesFixture(15, now)...)
	if _, err := c.Compact(context.Background(), sess, now); err != nil {
		t.Fatalf("second Compact: %v", err)
	}
	if sess.Messages[0].Text == firstSummary {
		t.Fatalf("expected the new summary to extend the previous one")
	}
	if len(sess.Messages[0].Text) < len(firstSummary) {
		t.Fatalf("expected merged summary to retain prior summary content")
	}
}

func TestExtractSummaryReportsErrorsAndTodos(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	messages := []models.Message{
		models.NewUserMessage("u1", "fix the bug", now),
		models.NewToolResultMessage("r1", "c1", "boom\nTODO: add a regression test", false, models.ErrorIO, now),
	}
	summary := ExtractSummary(messages)
	if summary == "" {
		t.Fatalf("expected non-empty summary")
	}
	if !contains(summary, "io") {
		t.Fatalf("expected error kind in summary: %q", summary)
	}
	if !contains(summary, "TODO") {
		t.Fatalf("expected TODO marker in summary: %q", summary)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
