// Package pipeline drives the three backends through the hierarchical or
// atomic execution graph and reports progress as an ordered event stream.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/concilium/internal/events"
	"github.com/mwiater/concilium/internal/gateway"
	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/markdown"
	"github.com/mwiater/concilium/internal/prompts"
	"github.com/mwiater/concilium/internal/providers"
)

// Mode selects the execution graph.
type Mode string

const (
	ModeHierarchical Mode = events.ModeHierarchical
	ModeAtomic       Mode = events.ModeAtomic
)

// ParseMode maps a form value to a Mode. Anything but "atomic" is
// hierarchical.
func ParseMode(s string) Mode {
	if strings.EqualFold(strings.TrimSpace(s), string(ModeAtomic)) {
		return ModeAtomic
	}
	return ModeHierarchical
}

// Output selects how partial and final results are delivered.
type Output string

const (
	OutputHTML Output = "html"
	OutputRaw  Output = "raw"
)

// ParseOutput maps a request value to an Output, defaulting to HTML.
func ParseOutput(s string) Output {
	if strings.EqualFold(strings.TrimSpace(s), string(OutputRaw)) {
		return OutputRaw
	}
	return OutputHTML
}

// State is a run's position in the execution graph.
type State string

const (
	StateInit         State = "init"
	StateContextReady State = "context_ready"
	StateHierarchical State = "hierarchical"
	StateAtomic       State = "atomic"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateCancelled    State = "cancelled"
)

// Messages shared by every run.
const (
	msgMissingInstruction = "Solicitação não fornecida."
	msgCancelled          = "Processamento cancelado pelo usuário."
	msgUnexpected         = "Ocorreu um erro inesperado na aplicação: %v"
)

// ErrCancelled is the Outcome error of a cancelled run.
var ErrCancelled = errors.New("pipeline cancelled")

// ValidationError reports a request that cannot be run.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Request is one pipeline run.
type Request struct {
	Instruction string
	// Files are uploaded documents. They are deleted when the run ends.
	Files    []string
	Mode     Mode
	MinChars int
	MaxChars int
	Output   Output
}

// Outcome summarises a finished run.
type Outcome struct {
	RunID   string
	State   State
	Mode    Mode
	Results []gateway.StageResult
	Err     error
}

// Text returns the output of backend id, if the run produced one.
func (o Outcome) Text(id gateway.BackendID) string {
	for _, r := range o.Results {
		if r.Backend == id && r.OK() {
			return r.Text
		}
	}
	return ""
}

// ContextSource turns uploaded files into prompt context and removes them.
type ContextSource interface {
	GetRelevantContext(paths []string, query string) string
}

// ResultStore keeps the last merge result per caller.
type ResultStore interface {
	Put(ctx context.Context, key, text string) error
}

// Options bind timeouts and token budgets to the stages.
type Options struct {
	DraftTimeout   time.Duration
	StageTimeout   time.Duration
	BoundMaxTokens int
	MergeBackend   gateway.BackendID
	MinChars       int
	MaxChars       int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		DraftTimeout:   300 * time.Second,
		StageTimeout:   900 * time.Second,
		BoundMaxTokens: 20000,
		MergeBackend:   gateway.Grok,
		MinChars:       24000,
		MaxChars:       30000,
	}
}

// Orchestrator runs pipelines over a Gateway.
type Orchestrator struct {
	gw      *gateway.Gateway
	source  ContextSource
	results ResultStore
	opts    Options

	// Render converts model output to HTML. Defaults to markdown.Render.
	Render func(string) string
}

// New returns an Orchestrator. results may be nil, in which case merge
// results are not kept.
func New(gw *gateway.Gateway, source ContextSource, results ResultStore, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.DraftTimeout <= 0 {
		opts.DraftTimeout = def.DraftTimeout
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = def.StageTimeout
	}
	if opts.BoundMaxTokens <= 0 {
		opts.BoundMaxTokens = def.BoundMaxTokens
	}
	if opts.MergeBackend == "" {
		opts.MergeBackend = def.MergeBackend
	}
	if opts.MinChars <= 0 {
		opts.MinChars = def.MinChars
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = def.MaxChars
	}
	return &Orchestrator{gw: gw, source: source, results: results, opts: opts, Render: markdown.Render}
}

// Options returns the bound options.
func (o *Orchestrator) Options() Options { return o.opts }

// run carries the state of one execution.
type run struct {
	o       *Orchestrator
	id      string
	mode    Mode
	output  Output
	sink    events.Sink
	state   State
	results []gateway.StageResult
	err     error
	// sinkErr is set once the sink refuses an event; nothing more is sent.
	sinkErr error
}

func (o *Orchestrator) newRun(mode Mode, output Output, sink events.Sink) *run {
	return &run{o: o, id: uuid.NewString(), mode: mode, output: output, sink: sink, state: StateInit}
}

func (r *run) emit(e events.Event) bool {
	if r.sinkErr != nil {
		return false
	}
	if err := r.sink.Emit(e); err != nil {
		r.sinkErr = err
		logging.LogEvent("[PIPELINE] run %s: stream closed: %v", r.id, err)
		return false
	}
	return true
}

func (r *run) fail(message string, err error) {
	r.state = StateFailed
	r.err = err
	r.emit(events.Failure(message))
}

func (r *run) cancel() {
	r.state = StateCancelled
	r.err = ErrCancelled
	r.emit(events.Failure(msgCancelled))
}

// stopped reports whether the run must not advance, emitting the
// cancellation event the first time it notices.
func (r *run) stopped(ctx context.Context) bool {
	if r.state == StateCancelled || r.state == StateFailed {
		return true
	}
	if ctx.Err() != nil || r.sinkErr != nil {
		r.cancel()
		return true
	}
	return false
}

// panicked converts a recovered panic into one generic error event.
func (r *run) panicked(rec any) {
	logging.LogEvent("[PIPELINE] run %s: panic: %v\n%s", r.id, rec, debug.Stack())
	r.fail(fmt.Sprintf(msgUnexpected, rec), fmt.Errorf("panic: %v", rec))
}

func (r *run) outcome() Outcome {
	return Outcome{RunID: r.id, State: r.state, Mode: r.mode, Results: r.results, Err: r.err}
}

// content formats a model text for the requested output.
func (r *run) content(text string) string {
	if r.output == OutputRaw {
		return text
	}
	return r.o.Render(text)
}

// Run executes req and sends its events to sink in order. Run always
// returns; every failure ends with exactly one error event.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink events.Sink) (out Outcome) {
	if req.Mode == "" {
		req.Mode = ModeHierarchical
	}
	r := o.newRun(req.Mode, req.Output, sink)
	ctx = gateway.WithRunID(ctx, r.id)
	defer func() {
		if rec := recover(); rec != nil {
			r.panicked(rec)
		}
		out = r.outcome()
		logging.LogEvent("[PIPELINE] run %s mode=%s state=%s", r.id, r.mode, r.state)
	}()

	if strings.TrimSpace(req.Instruction) == "" {
		removeFiles(req.Files)
		r.fail(msgMissingInstruction, &ValidationError{Field: "solicitacao", Message: msgMissingInstruction})
		return
	}
	if req.MinChars <= 0 {
		req.MinChars = o.opts.MinChars
	}
	if req.MaxChars <= 0 {
		req.MaxChars = o.opts.MaxChars
	}
	if req.MinChars > req.MaxChars {
		removeFiles(req.Files)
		msg := fmt.Sprintf("Limites de tamanho inválidos: mínimo %d maior que máximo %d.", req.MinChars, req.MaxChars)
		r.fail(msg, &ValidationError{Field: "min_chars", Message: msg})
		return
	}

	if !r.emit(events.Progress(0, "Processando arquivos e extraindo contexto...")) {
		removeFiles(req.Files)
		r.state = StateCancelled
		r.err = ErrCancelled
		return
	}
	refContext := o.extract(req)
	r.state = StateContextReady
	if r.stopped(ctx) {
		return
	}

	vars := prompts.Vars{
		prompts.VarInstruction: req.Instruction,
		prompts.VarContext:     refContext,
		prompts.VarMinChars:    req.MinChars,
		prompts.VarMaxChars:    req.MaxChars,
	}
	if req.Mode == ModeAtomic {
		r.state = StateAtomic
		r.atomic(ctx, vars)
		return
	}
	r.state = StateHierarchical
	r.hierarchical(ctx, vars)
	return
}

func (o *Orchestrator) extract(req Request) string {
	if o.source == nil {
		removeFiles(req.Files)
		return ""
	}
	return o.source.GetRelevantContext(req.Files, req.Instruction)
}

// stageFailure builds the message reported for a failed call.
func stageFailure(res gateway.StageResult) string {
	switch res.Status {
	case gateway.StatusEmpty:
		return fmt.Sprintf("Falha no serviço %s: Sem resposta.", res.Name)
	case gateway.StatusTimeout:
		return fmt.Sprintf("Erro ao processar %s: Tempo limite excedido.", res.Name)
	default:
		return fmt.Sprintf("Erro ao processar %s: %s", res.Name, errorDetail(res.Err))
	}
}

// errorDetail describes a failed call without the backend name, which the
// surrounding message already carries.
func errorDetail(err error) string {
	var callErr *providers.CallError
	if errors.As(err, &callErr) {
		if callErr.Err == nil || callErr.Err == callErr.Kind {
			return callErr.Kind.Error()
		}
		return fmt.Sprintf("%v: %v", callErr.Kind, callErr.Err)
	}
	if err == nil {
		return "erro desconhecido"
	}
	return err.Error()
}

func removeFiles(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.LogEvent("[PIPELINE] error deleting %q: %v", p, err)
		}
	}
}
