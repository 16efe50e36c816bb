// Package gateway invokes the three model backends through one contract:
// render a prompt, call the backend under a timeout, classify the outcome.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/pipz"

	"github.com/mwiater/concilium/internal/logging"
	"github.com/mwiater/concilium/internal/prompts"
	"github.com/mwiater/concilium/internal/providers"
)

// BackendID names one of the three backend slots.
type BackendID string

const (
	Grok   BackendID = "grok"
	Sonnet BackendID = "sonnet"
	Gemini BackendID = "gemini"
)

// Backends lists the slots in their fixed display order.
var Backends = [3]BackendID{Grok, Sonnet, Gemini}

// SlotID is the front-end element id that shows this backend's output.
func (b BackendID) SlotID() string { return string(b) + "-output" }

// DefaultTimeout applies when a CallSpec leaves Timeout unset.
const DefaultTimeout = 300 * time.Second

var (
	callID    = pipz.NewIdentity("model-call", "Sends one rendered prompt to a backend")
	timeoutID = pipz.NewIdentity("model-timeout", "Bounds one backend call by its stage timeout")
)

// Params are the generation parameters bound to one call.
type Params struct {
	MaxTokens   int
	Temperature *float64
}

// CallSpec describes one stage invocation.
type CallSpec struct {
	Backend  BackendID
	Template string
	Params   Params
	Timeout  time.Duration
	// Stage labels the call in signals and logs.
	Stage string
}

// Status is the outcome of one call.
type Status string

const (
	StatusOK        Status = "ok"
	StatusEmpty     Status = "empty"
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// StageResult is what one invocation produced. Text is set only when
// Status is StatusOK, and is then trimmed and non-empty.
type StageResult struct {
	Backend BackendID
	Name    string
	Text    string
	Status  Status
	Err     error
}

// OK reports whether the call succeeded.
func (r StageResult) OK() bool { return r.Status == StatusOK }

type runIDKey struct{}

// WithRunID tags ctx so signals emitted for calls made with it carry id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the id set by WithRunID.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// Gateway routes call specs to backends.
type Gateway struct {
	providers map[BackendID]providers.Provider
	prompts   *prompts.Set
}

// New returns a Gateway over provs, keyed by slot name. Every slot in
// Backends must be present.
func New(provs map[string]providers.Provider, set *prompts.Set) (*Gateway, error) {
	if set == nil {
		return nil, errors.New("gateway: prompt set is nil")
	}
	g := &Gateway{providers: make(map[BackendID]providers.Provider, len(Backends)), prompts: set}
	for _, id := range Backends {
		p, ok := provs[string(id)]
		if !ok || p == nil {
			return nil, fmt.Errorf("gateway: backend %q not configured", id)
		}
		g.providers[id] = p
	}
	return g, nil
}

// Name returns the display name of a backend.
func (g *Gateway) Name(id BackendID) string {
	if p, ok := g.providers[id]; ok && p.Name() != "" {
		return p.Name()
	}
	return strings.ToUpper(string(id))
}

// Prompt renders the spec's template with vars.
func (g *Gateway) Prompt(spec CallSpec, vars prompts.Vars) (string, error) {
	return g.prompts.Render(spec.Template, vars)
}

// invocation flows through the timeout chain by value, so a call that
// finishes after its deadline has nowhere to write.
type invocation struct {
	prompt string
	text   string
	err    error
}

// Invoke renders the prompt and calls the backend. Errors from the
// backend are *providers.CallError values whose kind is one of
// ErrEmptyResponse, ErrTimeout, ErrTransport or ErrCancelled. A prompt
// that cannot be rendered is returned unchanged and no call is made.
func (g *Gateway) Invoke(ctx context.Context, spec CallSpec, vars prompts.Vars) (string, error) {
	p, ok := g.providers[spec.Backend]
	if !ok {
		return "", fmt.Errorf("gateway: unknown backend %q", spec.Backend)
	}
	prompt, err := g.Prompt(spec, vars)
	if err != nil {
		return "", err
	}
	return g.call(ctx, spec, p, prompt)
}

// InvokePrompt calls the backend with an already rendered prompt.
func (g *Gateway) InvokePrompt(ctx context.Context, spec CallSpec, prompt string) (string, error) {
	p, ok := g.providers[spec.Backend]
	if !ok {
		return "", fmt.Errorf("gateway: unknown backend %q", spec.Backend)
	}
	return g.call(ctx, spec, p, prompt)
}

func (g *Gateway) call(ctx context.Context, spec CallSpec, p providers.Provider, prompt string) (string, error) {
	name := g.Name(spec.Backend)
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	base := []capitan.Field{
		logging.RunIDKey.Field(RunID(ctx)),
		logging.BackendKey.Field(string(spec.Backend)),
		logging.StageKey.Field(spec.Stage),
	}
	capitan.Info(ctx, logging.CallStarted, base...)

	if err := ctx.Err(); err != nil {
		callErr := providers.NewCallError(name, providers.ErrCancelled, err)
		g.emitFailed(ctx, base, StatusCancelled, 0, callErr)
		return "", callErr
	}

	req := providers.CompletionRequest{
		MaxTokens:   spec.Params.MaxTokens,
		Temperature: spec.Params.Temperature,
	}
	chain := pipz.NewTimeout(timeoutID, pipz.Apply(callID, func(callCtx context.Context, in invocation) (invocation, error) {
		r := req
		r.Prompt = in.prompt
		in.text, in.err = p.Complete(callCtx, r)
		return in, nil
	}), timeout)

	start := time.Now()
	out, err := chain.Process(ctx, invocation{prompt: prompt})
	elapsed := time.Since(start)

	if err == nil {
		err = out.err
	}
	if err != nil {
		callErr := classify(ctx, name, err, elapsed >= timeout)
		g.emitFailed(ctx, base, statusOf(callErr), elapsed, callErr)
		return "", callErr
	}

	text := strings.TrimSpace(out.text)
	if text == "" {
		callErr := providers.NewCallError(name, providers.ErrEmptyResponse, nil)
		g.emitFailed(ctx, base, StatusEmpty, elapsed, callErr)
		return "", callErr
	}

	capitan.Info(ctx, logging.CallCompleted, append(base,
		logging.StatusKey.Field(string(StatusOK)),
		logging.DurationMsKey.Field(int(elapsed.Milliseconds())),
		logging.OutputLenKey.Field(len(text)),
	)...)
	return text, nil
}

func (g *Gateway) emitFailed(ctx context.Context, base []capitan.Field, status Status, elapsed time.Duration, err error) {
	// The run context may already be cancelled; signals still go out.
	capitan.Error(context.WithoutCancel(ctx), logging.CallFailed, append(base,
		logging.StatusKey.Field(string(status)),
		logging.DurationMsKey.Field(int(elapsed.Milliseconds())),
		logging.ErrorKey.Field(err.Error()),
	)...)
}

// Run is Invoke reported as a StageResult. It never returns an error.
func (g *Gateway) Run(ctx context.Context, spec CallSpec, vars prompts.Vars) StageResult {
	text, err := g.Invoke(ctx, spec, vars)
	return g.result(spec, text, err)
}

// RunPrompt is InvokePrompt reported as a StageResult.
func (g *Gateway) RunPrompt(ctx context.Context, spec CallSpec, prompt string) StageResult {
	text, err := g.InvokePrompt(ctx, spec, prompt)
	return g.result(spec, text, err)
}

func (g *Gateway) result(spec CallSpec, text string, err error) StageResult {
	res := StageResult{Backend: spec.Backend, Name: g.Name(spec.Backend)}
	if err != nil {
		res.Status = statusOf(err)
		res.Err = err
		return res
	}
	res.Status = StatusOK
	res.Text = text
	return res
}

// classify turns any failure from the timeout chain into a CallError.
// The parent context decides between cancellation and timeout: a chain
// error while the parent is still live can only be the call deadline.
func classify(ctx context.Context, name string, err error, overran bool) *providers.CallError {
	if ctx.Err() != nil {
		return providers.NewCallError(name, providers.ErrCancelled, err)
	}
	var callErr *providers.CallError
	if errors.As(err, &callErr) {
		if errors.Is(callErr, providers.ErrCancelled) {
			// Cancelled by the chain's own deadline, not by the caller.
			return providers.NewCallError(name, providers.ErrTimeout, callErr.Err)
		}
		if callErr.Backend == name {
			return callErr
		}
		return providers.NewCallError(name, callErr.Kind, callErr.Err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || overran {
		return providers.NewCallError(name, providers.ErrTimeout, err)
	}
	return providers.NewCallError(name, providers.KindOf(err), err)
}

func statusOf(err error) Status {
	switch {
	case errors.Is(err, providers.ErrCancelled):
		return StatusCancelled
	case errors.Is(err, providers.ErrTimeout):
		return StatusTimeout
	case errors.Is(err, providers.ErrEmptyResponse):
		return StatusEmpty
	default:
		return StatusError
	}
}
