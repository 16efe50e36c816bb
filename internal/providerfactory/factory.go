// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"

	"github.com/mwiater/concilium/internal/appconfig"
	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/metrics"
	"github.com/mwiater/concilium/internal/providers"
	"github.com/mwiater/concilium/internal/providers/anthropic"
	"github.com/mwiater/concilium/internal/providers/gemini"
	"github.com/mwiater/concilium/internal/providers/mock"
	"github.com/mwiater/concilium/internal/providers/xai"
)

// NewProviders builds one provider per configured slot, keyed by slot name,
// and wraps each with metrics collection if enabled.
func NewProviders(cfg *appconfig.Config) (map[string]providers.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	out := make(map[string]providers.Provider, len(appconfig.Slots))
	for _, slot := range appconfig.Slots {
		backend, ok := cfg.Backends[slot]
		if !ok {
			return nil, fmt.Errorf("backend %q is not configured", slot)
		}
		provider, err := NewProvider(slot, backend)
		if err != nil {
			return nil, err
		}
		if cfg.Metrics {
			provider = metrics.NewProvider(provider, metrics.GetInstance())
		}
		out[slot] = provider
	}
	return out, nil
}

// NewProvider selects the transport for a single backend slot.
func NewProvider(slot string, b appconfig.Backend) (providers.Provider, error) {
	name := b.DisplayName(slot)
	if b.Type != appconfig.TypeMock && b.APIKey == "" {
		logging.LogEvent("[PROVIDER] %s (%s) has no API key configured", name, b.Type)
	}

	switch b.Type {
	case appconfig.TypeXAI:
		return xai.New(xai.Config{
			Name:        name,
			URL:         b.URL,
			APIKey:      b.APIKey,
			Model:       b.Model,
			MaxTokens:   b.MaxTokens,
			Temperature: b.Temperature,
			Timeout:     b.RequestTimeout(),
		}), nil
	case appconfig.TypeAnthropic:
		return anthropic.New(anthropic.Config{
			Name:        name,
			BaseURL:     b.URL,
			APIKey:      b.APIKey,
			Model:       b.Model,
			MaxTokens:   b.MaxTokens,
			Temperature: b.Temperature,
			Timeout:     b.RequestTimeout(),
		}), nil
	case appconfig.TypeGemini:
		return gemini.New(gemini.Config{
			Name:        name,
			BaseURL:     b.URL,
			APIKey:      b.APIKey,
			Model:       b.Model,
			MaxTokens:   b.MaxTokens,
			Temperature: b.Temperature,
			Timeout:     b.RequestTimeout(),
		}), nil
	case appconfig.TypeMock:
		text := b.MockText
		if text == "" {
			text = fmt.Sprintf("Resposta simulada de %s.", name)
		}
		return mock.New(name, text), nil
	default:
		return nil, fmt.Errorf("unsupported backend type %q for %s", b.Type, slot)
	}
}
