// Package mock provides a scripted providers.Provider for tests and offline runs.
package mock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mwiater/concilium/internal/providers"
)

// Step scripts the outcome of a single call.
type Step struct {
	Text  string
	Err   error
	Delay time.Duration
}

// Text returns a step that answers with text.
func Text(text string) Step { return Step{Text: text} }

// Fail returns a step that fails with the given error kind.
func Fail(kind error) Step { return Step{Err: kind} }

// Slow returns a step that answers with text after delay, unless the
// context ends first.
func Slow(text string, delay time.Duration) Step { return Step{Text: text, Delay: delay} }

// Provider replays a script of steps. Once the script is exhausted the last
// step repeats.
type Provider struct {
	name string

	mu       sync.Mutex
	script   []Step
	requests []providers.CompletionRequest
}

// New returns a provider that always answers with text.
func New(name, text string) *Provider {
	return NewScripted(name, Text(text))
}

// NewScripted returns a provider that replays steps in order.
func NewScripted(name string, steps ...Step) *Provider {
	if len(steps) == 0 {
		steps = []Step{Text("Mock response")}
	}
	return &Provider{name: name, script: steps}
}

func (p *Provider) Name() string { return p.name }

// Complete records the request and plays the next step.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	p.mu.Lock()
	idx := len(p.requests)
	p.requests = append(p.requests, req)
	step := p.script[min(idx, len(p.script)-1)]
	p.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", providers.NewCallError(p.name, providers.Classify(ctx, ctx.Err()), ctx.Err())
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", providers.NewCallError(p.name, providers.Classify(ctx, err), err)
	}

	if step.Err != nil {
		var callErr *providers.CallError
		if errors.As(step.Err, &callErr) {
			return "", step.Err
		}
		return "", providers.NewCallError(p.name, providers.KindOf(step.Err), step.Err)
	}
	if strings.TrimSpace(step.Text) == "" {
		return "", providers.NewCallError(p.name, providers.ErrEmptyResponse, nil)
	}
	return step.Text, nil
}

// Calls reports how many times Complete was invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []providers.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]providers.CompletionRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// LastPrompt returns the prompt of the most recent call.
func (p *Provider) LastPrompt() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return ""
	}
	return p.requests[len(p.requests)-1].Prompt
}
