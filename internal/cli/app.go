package concilium

import (
	"fmt"

	"github.com/mwiater/concilium/internal/appconfig"
	"github.com/mwiater/concilium/internal/gateway"
	"github.com/mwiater/concilium/internal/pipeline"
	"github.com/mwiater/concilium/internal/prompts"
	"github.com/mwiater/concilium/internal/providerfactory"
	"github.com/mwiater/concilium/internal/rag"
	"github.com/mwiater/concilium/internal/store"
)

// app holds the collaborators shared by serve and run.
type app struct {
	cfg   appconfig.Config
	gw    *gateway.Gateway
	orch  *pipeline.Orchestrator
	store store.Store
}

// buildApp wires providers, prompts, context extraction and the merge store
// into an Orchestrator.
func buildApp(cfg *appconfig.Config) (*app, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	provs, err := providerfactory.NewProviders(cfg)
	if err != nil {
		return nil, err
	}
	set, err := prompts.Load(cfg.PromptsDir)
	if err != nil {
		return nil, err
	}
	gw, err := gateway.New(provs, set)
	if err != nil {
		return nil, err
	}
	st, err := store.New(*cfg)
	if err != nil {
		return nil, err
	}

	orch := pipeline.New(gw, rag.NewExtractor(cfg.ContextTokenLimit), st, optionsFrom(*cfg))
	return &app{cfg: *cfg, gw: gw, orch: orch, store: st}, nil
}

func optionsFrom(cfg appconfig.Config) pipeline.Options {
	return pipeline.Options{
		DraftTimeout:   cfg.DraftTimeout(),
		StageTimeout:   cfg.StageTimeout(),
		BoundMaxTokens: cfg.BoundMaxTokens,
		MergeBackend:   gateway.BackendID(cfg.MergeBackend),
		MinChars:       cfg.MinChars,
		MaxChars:       cfg.MaxChars,
	}
}

// names returns the display name of every backend in fan-out order.
func (a *app) names() [3]string {
	var out [3]string
	for i, id := range gateway.Backends {
		out[i] = a.gw.Name(id)
	}
	return out
}

func (a *app) Close() error {
	return a.store.Close()
}
