// internal/metrics/provider.go
package metrics

import (
	"context"
	"time"

	"github.com/mwiater/concilium/internal/providers"
)

// Provider is a decorator that wraps a providers.Provider to record metrics.
type Provider struct {
	wrapped    providers.Provider
	aggregator *Aggregator
	now        func() time.Time
}

// NewProvider creates a metrics-enabled provider that wraps an existing Provider.
func NewProvider(wrapped providers.Provider, aggregator *Aggregator) *Provider {
	return &Provider{wrapped: wrapped, aggregator: aggregator, now: time.Now}
}

// Name passes the call through to the wrapped provider.
func (p *Provider) Name() string {
	return p.wrapped.Name()
}

// Complete times the wrapped call and records its outcome.
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (string, error) {
	start := p.now()
	text, err := p.wrapped.Complete(ctx, req)
	if p.aggregator != nil {
		p.aggregator.Record(Outcome{
			Backend:     p.wrapped.Name(),
			Duration:    p.now().Sub(start),
			PromptChars: len([]rune(req.Prompt)),
			OutputChars: len([]rune(text)),
			Err:         err,
		})
	}
	return text, err
}

// Unwrap returns the decorated provider.
func (p *Provider) Unwrap() providers.Provider {
	return p.wrapped
}
