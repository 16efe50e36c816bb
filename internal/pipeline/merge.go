package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/mwiater/concilium/internal/events"
	"github.com/mwiater/concilium/internal/gateway"
	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/prompts"
	"github.com/mwiater/concilium/internal/util"
)

// MergeRequest carries the three atomic outputs to consolidate.
type MergeRequest struct {
	Instruction string
	Grok        string
	Sonnet      string
	Gemini      string
	MinChars    int
	MaxChars    int
	Output      Output
}

const msgMergeInputs = "Textos para consolidação não fornecidos."

// Merge consolidates three drafts with the merge backend. On success the
// raw text is kept under key in the result store and a final_result event
// carries the content and its word count.
func (o *Orchestrator) Merge(ctx context.Context, key string, req MergeRequest, sink events.Sink) (out Outcome) {
	r := o.newRun("", req.Output, sink)
	ctx = gateway.WithRunID(ctx, r.id)
	defer func() {
		if rec := recover(); rec != nil {
			r.panicked(rec)
		}
		out = r.outcome()
		logging.LogEvent("[PIPELINE] merge %s state=%s", r.id, r.state)
	}()

	if strings.TrimSpace(req.Instruction) == "" {
		r.fail(msgMissingInstruction, &ValidationError{Field: "solicitacao_usuario", Message: msgMissingInstruction})
		return
	}
	drafts := [3]struct{ field, text string }{
		{"grok_text", req.Grok},
		{"sonnet_text", req.Sonnet},
		{"gemini_text", req.Gemini},
	}
	for _, d := range drafts {
		if strings.TrimSpace(d.text) == "" {
			r.fail(msgMergeInputs, &ValidationError{Field: d.field, Message: msgMergeInputs})
			return
		}
	}
	if req.MinChars <= 0 {
		req.MinChars = o.opts.MinChars
	}
	if req.MaxChars <= 0 {
		req.MaxChars = o.opts.MaxChars
	}

	if !r.emit(events.Progress(0, "Iniciando o processo de merge...")) {
		r.stopped(ctx)
		return
	}

	backend := o.opts.MergeBackend
	name := o.gw.Name(backend)
	if !r.emit(events.Progress(50, fmt.Sprintf("Enviando textos para o %s para consolidação...", name))) {
		r.stopped(ctx)
		return
	}
	if r.stopped(ctx) {
		return
	}

	spec := gateway.CallSpec{
		Backend:  backend,
		Template: prompts.AtomicMerge,
		Params:   gateway.Params{MaxTokens: o.opts.BoundMaxTokens},
		Timeout:  o.opts.StageTimeout,
		Stage:    "merge",
	}
	res := o.gw.Run(ctx, spec, prompts.Vars{
		prompts.VarInstruction: req.Instruction,
		prompts.VarDraftGrok:   req.Grok,
		prompts.VarDraftSonnet: req.Sonnet,
		prompts.VarDraftGemini: req.Gemini,
		prompts.VarMinChars:    req.MinChars,
		prompts.VarMaxChars:    req.MaxChars,
	})
	r.results = append(r.results, res)

	switch {
	case res.Status == gateway.StatusCancelled || ctx.Err() != nil:
		r.cancel()
		return
	case res.Status == gateway.StatusEmpty:
		r.fail(fmt.Sprintf("Falha no serviço de Merge (%s): Sem resposta.", name), res.Err)
		return
	case res.Status == gateway.StatusTimeout:
		r.fail(fmt.Sprintf("Erro no processo de merge (%s): Tempo limite excedido.", name), res.Err)
		return
	case !res.OK():
		r.fail(fmt.Sprintf("Erro no processo de merge (%s): %s", name, errorDetail(res.Err)), res.Err)
		return
	}

	if o.results != nil {
		if err := o.results.Put(context.WithoutCancel(ctx), key, res.Text); err != nil {
			logging.LogEvent("[PIPELINE] merge %s: storing result: %v", r.id, err)
		}
	}

	words := util.CountWords(res.Text)
	logging.LogEvent("[PIPELINE] merge %s: response from %s (%d words)", r.id, name, words)
	ev := events.Progress(100, "Merge concluído!")
	ev.FinalResult = &events.Final{Content: r.content(res.Text), WordCount: words}
	ev.Done = true
	if !r.emit(ev) {
		r.stopped(ctx)
		return
	}
	r.state = StateCompleted
	return
}
