package pipeline

import (
	"context"
	"fmt"

	"github.com/mwiater/concilium/internal/events"
	"github.com/mwiater/concilium/internal/gateway"
	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/prompts"
	"github.com/mwiater/concilium/internal/util"
)

const hierarchicalStageCount = 3

// hierarchicalStage is one step of the sequential graph. Each stage feeds
// its text to the next through prompts.VarText.
type hierarchicalStage struct {
	name     string
	backend  gateway.BackendID
	template string
	// bound applies the enlarged output budget.
	bound bool
	// progress is reported together with this stage's output.
	progress int
}

var hierarchicalStages = [hierarchicalStageCount]hierarchicalStage{
	{name: "draft", backend: gateway.Grok, template: prompts.HierarchicalDraft, progress: 33},
	{name: "refine", backend: gateway.Sonnet, template: prompts.HierarchicalRefine, bound: true, progress: 66},
	{name: "polish", backend: gateway.Gemini, template: prompts.HierarchicalPolish, progress: 100},
}

func (r *run) hierarchical(ctx context.Context, vars prompts.Vars) {
	gw := r.o.gw
	first := hierarchicalStages[0]
	if !r.emit(events.Progress(15, fmt.Sprintf("O %s está processando sua solicitação...", gw.Name(first.backend)))) {
		r.stopped(ctx)
		return
	}

	for i, stage := range hierarchicalStages {
		if r.stopped(ctx) {
			return
		}

		spec := gateway.CallSpec{
			Backend:  stage.backend,
			Template: stage.template,
			Timeout:  r.o.opts.StageTimeout,
			Stage:    stage.name,
		}
		if i == 0 {
			spec.Timeout = r.o.opts.DraftTimeout
		}
		if stage.bound {
			spec.Params.MaxTokens = r.o.opts.BoundMaxTokens
		}

		res := gw.Run(ctx, spec, vars)
		r.results = append(r.results, res)
		if res.Status == gateway.StatusCancelled || ctx.Err() != nil {
			r.cancel()
			return
		}
		if !res.OK() {
			logging.LogEvent("[PIPELINE] run %s: %s stage failed: %v", r.id, stage.name, res.Err)
			r.fail(stageFailure(res), res.Err)
			return
		}
		logging.LogEvent("[PIPELINE] run %s: %s response from %s (%d words)", r.id, stage.name, res.Name, util.CountWords(res.Text))

		ev := events.Progress(stage.progress, "Processamento concluído!").WithPartial(stage.backend.SlotID(), r.content(res.Text))
		if i+1 < len(hierarchicalStages) {
			ev.Message = fmt.Sprintf("%s está processando...", gw.Name(hierarchicalStages[i+1].backend))
		} else {
			ev = ev.Finish(events.ModeHierarchical)
		}
		if !r.emit(ev) {
			r.stopped(ctx)
			return
		}

		vars = withText(vars, res.Text)
	}
	r.state = StateCompleted
}

// withText copies vars with Text set, so the caller's map is left alone.
func withText(vars prompts.Vars, text string) prompts.Vars {
	next := make(prompts.Vars, len(vars)+1)
	for k, v := range vars {
		next[k] = v
	}
	next[prompts.VarText] = text
	return next
}
