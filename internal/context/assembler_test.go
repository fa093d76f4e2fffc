package context

import (
	"reflect"
	"testing"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

func TestAssembleIsDeterministic(t *testing.T) {
	sess := &models.Session{Playbook: models.NewPlaybook()}
	now := time.Unix(1_700_000_000, 0).UTC()
	sess.Messages = append(sess.Messages, models.NewUserMessage("u1", "hello", now))

	cfg := Config{SystemPrompt: "you are an agent"}
	first := Assemble(sess, cfg, now)
	second := Assemble(sess, cfg, now)

	if len(first) != len(second) {
		t.Fatalf("non-deterministic length: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !reflect.DeepEqual(first[i], second[i]) {
			t.Fatalf("message %d differs between calls: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestAssembleOrdering(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	sess := &models.Session{Playbook: models.NewPlaybook()}
	sess.Playbook.Strategies["testing_0"] = models.Strategy{
		ID: "testing_0", Category: models.CategoryTesting, Content: "run tests after edits", Confidence: 0.8,
	}
	summary := models.NewSystemMessage("compaction-summary", "earlier work summarized", now)
	summary.CompactionSummary = true
	sess.Messages = append(sess.Messages,
		summary,
		models.NewUserMessage("u1", "what's next", now),
		models.NewAssistantMessage("a1", "checking", nil, now),
	)

	out := Assemble(sess, Config{SystemPrompt: "prompt"}, now)

	if out[0].Kind != models.KindSystem || out[0].ID != "system-prompt" {
		t.Fatalf("expected system prompt first, got %+v", out[0])
	}
	if out[1].ID != "playbook-digest" {
		t.Fatalf("expected playbook digest second, got %+v", out[1])
	}
	if !out[2].CompactionSummary {
		t.Fatalf("expected compaction summary third, got %+v", out[2])
	}
	if out[3].Kind != models.KindUser {
		t.Fatalf("expected reflection window to start at user message, got %+v", out[3])
	}
}

func TestAssembleOmitsDigestWhenPlaybookEmpty(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	sess := &models.Session{Playbook: models.NewPlaybook()}
	sess.Messages = append(sess.Messages, models.NewUserMessage("u1", "hi", now))

	out := Assemble(sess, Config{SystemPrompt: "prompt"}, now)
	for _, m := range out {
		if m.ID == "playbook-digest" {
			t.Fatalf("did not expect a playbook digest message: %+v", out)
		}
	}
}

func TestReflectionWindowDropsOlderTurnsBeyondPairCount(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	var messages []models.Message
	for i := 0; i < 8; i++ {
		messages = append(messages,
			models.NewUserMessage(string(rune('a'+i)), "turn", now),
			models.NewAssistantMessage(string(rune('A'+i)), "reply", nil, now),
		)
	}

	window := ReflectionWindow(messages, 3)

	userCount := 0
	for _, m := range window {
		if m.Kind == models.KindUser {
			userCount++
		}
	}
	if userCount != 3 {
		t.Fatalf("expected 3 retained user turns, got %d (%+v)", userCount, window)
	}
	if window[0].Kind != models.KindUser {
		t.Fatalf("expected window to start at a user message, got %+v", window[0])
	}
}

func TestReflectionWindowHandlesFewerTurnsThanWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	messages := []models.Message{
		models.NewUserMessage("u1", "hi", now),
		models.NewAssistantMessage("a1", "hello", nil, now),
	}
	window := ReflectionWindow(messages, 5)
	if len(window) != 2 {
		t.Fatalf("expected both messages retained, got %+v", window)
	}
}
