package provider

import (
	"testing"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

func TestSplitSystemJoinsLeadingSystemMessages(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	messages := []models.Message{
		models.NewSystemMessage("s1", "prompt", now),
		models.NewSystemMessage("s2", "digest", now),
		models.NewUserMessage("u1", "hello", now),
	}

	system, rest := SplitSystem(messages)
	if system != "prompt\n\ndigest" {
		t.Fatalf("unexpected joined system text: %q", system)
	}
	if len(rest) != 1 || rest[0].Kind != models.KindUser {
		t.Fatalf("expected only the user message left, got %+v", rest)
	}
}

func TestSplitSystemNoLeadingSystem(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	messages := []models.Message{models.NewUserMessage("u1", "hi", now)}
	system, rest := SplitSystem(messages)
	if system != "" {
		t.Fatalf("expected empty system text, got %q", system)
	}
	if len(rest) != 1 {
		t.Fatalf("expected all messages retained, got %+v", rest)
	}
}
