package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	name    string
	failN   int
	calls   int
	chunks  []CompletionChunk
	lastErr error
}

func (f *fakeProvider) Name() string            { return f.name }
func (f *fakeProvider) Models() []Model         { return nil }
func (f *fakeProvider) SupportsTools() bool     { return true }

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error) {
	f.calls++
	if f.calls <= f.failN {
		return nil, errors.New("simulated failure")
	}
	ch := make(chan CompletionChunk, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func TestFailoverUsesFirstHealthyProvider(t *testing.T) {
	p1 := &fakeProvider{name: "flaky", failN: 10}
	p2 := &fakeProvider{name: "stable", chunks: []CompletionChunk{{Text: "hi"}, {Done: true}}}

	fo := NewFailover(FailoverConfig{MaxRetriesPerProvider: 2, RetryDelay: time.Millisecond})
	fo.AddProvider(p1)
	fo.AddProvider(p2)

	chunks, name, err := fo.Complete(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if name != "stable" {
		t.Fatalf("expected fallback to stable provider, got %q", name)
	}
	var got []CompletionChunk
	for c := range chunks {
		got = append(got, c)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if p1.calls != 2 {
		t.Fatalf("expected flaky provider called exactly MaxRetriesPerProvider=2 times, got %d", p1.calls)
	}
}

func TestFailoverAllProvidersFail(t *testing.T) {
	p1 := &fakeProvider{name: "a", failN: 10}
	p2 := &fakeProvider{name: "b", failN: 10}

	fo := NewFailover(FailoverConfig{MaxRetriesPerProvider: 1, RetryDelay: time.Millisecond})
	fo.AddProvider(p1)
	fo.AddProvider(p2)

	_, _, err := fo.Complete(context.Background(), CompletionRequest{})
	if !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("expected ErrAllProvidersFailed, got %v", err)
	}
}

func TestFailoverNoProvidersConfigured(t *testing.T) {
	fo := NewFailover(DefaultFailoverConfig())
	_, _, err := fo.Complete(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatalf("expected an error with no providers configured")
	}
}
