package accountant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/OpenVibeCoding/swe-cli-sub001/pkg/models"
)

type fakeTokenizer struct {
	count int
	err   error
}

func (f fakeTokenizer) Count(ctx context.Context, text string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.count, nil
}

func TestCountText_ExactTokenizer(t *testing.T) {
	a := New(fakeTokenizer{count: 42}, 0, nil, nil)
	n, estimated := a.CountText(context.Background(), "hello world")
	if n != 42 || estimated {
		t.Fatalf("got (%d, %v), want (42, false)", n, estimated)
	}
}

func TestCountText_FallsBackOnError(t *testing.T) {
	a := New(fakeTokenizer{err: errors.New("rate limited")}, 0, nil, nil)
	n, estimated := a.CountText(context.Background(), "1234567")
	if !estimated {
		t.Fatalf("expected estimated=true")
	}
	if n != 2 { // 7 chars / 3.5
		t.Fatalf("got %d tokens, want 2", n)
	}
}

func TestCountText_NilTokenizerAlwaysHeuristic(t *testing.T) {
	a := New(nil, 0, nil, nil)
	_, estimated := a.CountText(context.Background(), "abc")
	if !estimated {
		t.Fatalf("expected estimated=true with nil tokenizer")
	}
}

func TestCountMessage_CachesResult(t *testing.T) {
	calls := 0
	tok := countingTokenizer{fn: func(s string) (int, error) {
		calls++
		return 10, nil
	}}
	a := New(tok, 0, nil, nil)
	m := models.NewUserMessage("m1", "hi", time.Now())
	first := a.CountMessage(context.Background(), &m)
	second := a.CountMessage(context.Background(), &m)
	if first != 10 || second != 10 {
		t.Fatalf("got (%d, %d), want (10, 10)", first, second)
	}
	if calls != 1 {
		t.Fatalf("tokenizer called %d times, want 1 (cached)", calls)
	}
}

func TestNeedsCompaction_DeratesLimitAfterHeuristicUse(t *testing.T) {
	a := New(fakeTokenizer{err: errors.New("no key")}, 1000, nil, nil)
	a.CountText(context.Background(), "x") // triggers heuristic fallback
	if a.EffectiveLimit() != 900 {
		t.Fatalf("effective limit = %d, want 900", a.EffectiveLimit())
	}
	if !a.NeedsCompaction(720) {
		t.Fatalf("expected compaction needed at 0.8*900=720")
	}
	if a.NeedsCompaction(719) {
		t.Fatalf("did not expect compaction needed at 719")
	}
}

func TestInWarningBand(t *testing.T) {
	a := New(fakeTokenizer{count: 0}, 1000, nil, nil)
	if !a.InWarningBand(700) {
		t.Fatalf("expected warning band at 0.7*1000=700")
	}
	if a.InWarningBand(800) {
		t.Fatalf("800 should already be in compaction range, not just warning")
	}
}

type countingTokenizer struct {
	fn func(string) (int, error)
}

func (c countingTokenizer) Count(ctx context.Context, text string) (int, error) {
	return c.fn(text)
}

