package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/mwiater/concilium/internal/events"
	"github.com/mwiater/concilium/internal/gateway"
	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/prompts"
	"github.com/mwiater/concilium/internal/util"
)

// atomicSpec is the draft call for one backend. Only Sonnet gets the
// enlarged output budget.
func (o *Orchestrator) atomicSpec(id gateway.BackendID) gateway.CallSpec {
	spec := gateway.CallSpec{
		Backend:  id,
		Template: prompts.AtomicDraft,
		Timeout:  o.opts.DraftTimeout,
		Stage:    "atomic",
	}
	if id == gateway.Sonnet {
		spec.Params.MaxTokens = o.opts.BoundMaxTokens
	}
	return spec
}

func (r *run) atomic(ctx context.Context, vars prompts.Vars) {
	gw := r.o.gw
	prompt, err := gw.Prompt(gateway.CallSpec{Template: prompts.AtomicDraft}, vars)
	if err != nil {
		r.fail(fmt.Sprintf(msgUnexpected, err), err)
		return
	}

	if !r.emit(events.Progress(15, "Iniciando processamento paralelo...")) {
		r.stopped(ctx)
		return
	}
	if r.stopped(ctx) {
		return
	}

	results := r.o.scatter(ctx, prompt)
	r.results = results[:]

	if ctx.Err() != nil {
		r.cancel()
		return
	}
	var failures []string
	for _, res := range results {
		switch {
		case res.Status == gateway.StatusCancelled:
			r.cancel()
			return
		case !res.OK():
			logging.LogEvent("[PIPELINE] run %s: atomic %s failed: %v", r.id, res.Name, res.Err)
			failures = append(failures, stageFailure(res))
		}
	}
	if len(failures) > 0 {
		r.fail(strings.Join(failures, " "), results[firstFailure(results)].Err)
		return
	}

	if !r.emit(events.Progress(80, "Todos os modelos responderam. Formatando saídas...")) {
		r.stopped(ctx)
		return
	}
	for _, res := range results {
		logging.LogEvent("[PIPELINE] run %s: atomic response from %s (%d words)", r.id, res.Name, util.CountWords(res.Text))
		if !r.emit(events.PartialResult(res.Backend.SlotID(), r.content(res.Text))) {
			r.stopped(ctx)
			return
		}
	}
	if !r.emit(events.Progress(100, "Processamento Atômico concluído!").Finish(events.ModeAtomic)) {
		r.stopped(ctx)
		return
	}
	r.state = StateCompleted
}

// scatter sends prompt to every backend at once and waits for all of
// them. Each worker owns one slot of the result array and never returns
// an error, so the group always joins all three.
func (o *Orchestrator) scatter(ctx context.Context, prompt string) [3]gateway.StageResult {
	var results [3]gateway.StageResult
	var g errgroup.Group
	for i, id := range gateway.Backends {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					logging.LogEvent("[PIPELINE] atomic worker %s panicked: %v", id, rec)
					results[i] = gateway.StageResult{
						Backend: id,
						Name:    o.gw.Name(id),
						Status:  gateway.StatusError,
						Err:     fmt.Errorf("panic: %v", rec),
					}
				}
			}()
			results[i] = o.gw.RunPrompt(ctx, o.atomicSpec(id), prompt)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func firstFailure(results [3]gateway.StageResult) int {
	for i, res := range results {
		if !res.OK() {
			return i
		}
	}
	return 0
}
