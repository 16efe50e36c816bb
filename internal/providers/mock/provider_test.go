package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mwiater/concilium/internal/providers"
)

func TestScriptReplaysAndRepeatsLastStep(t *testing.T) {
	p := NewScripted("A", Text("one"), Text("two"))
	ctx := context.Background()

	for i, want := range []string{"one", "two", "two"} {
		got, err := p.Complete(ctx, providers.CompletionRequest{Prompt: "p"})
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("call %d: expected %q, got %q", i, want, got)
		}
	}
	if p.Calls() != 3 {
		t.Fatalf("expected 3 calls, got %d", p.Calls())
	}
}

func TestFailuresAreClassified(t *testing.T) {
	ctx := context.Background()

	_, err := NewScripted("B", Fail(providers.ErrTransport)).Complete(ctx, providers.CompletionRequest{})
	if !errors.Is(err, providers.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}

	_, err = New("C", "  ").Complete(ctx, providers.CompletionRequest{})
	if !errors.Is(err, providers.ErrEmptyResponse) {
		t.Fatalf("expected empty response, got %v", err)
	}
}

func TestSlowStepHonoursContext(t *testing.T) {
	p := NewScripted("A", Slow("late", time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Complete(ctx, providers.CompletionRequest{})
	if !errors.Is(err, providers.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = p.Complete(ctx, providers.CompletionRequest{})
	if !errors.Is(err, providers.ErrCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
}

func TestRequestsAreRecorded(t *testing.T) {
	p := New("A", "ok")
	_, _ = p.Complete(context.Background(), providers.CompletionRequest{Prompt: "first", MaxTokens: 10})
	_, _ = p.Complete(context.Background(), providers.CompletionRequest{Prompt: "second"})

	reqs := p.Requests()
	if len(reqs) != 2 || reqs[0].MaxTokens != 10 {
		t.Fatalf("unexpected requests %+v", reqs)
	}
	if p.LastPrompt() != "second" {
		t.Fatalf("unexpected last prompt %q", p.LastPrompt())
	}
}
