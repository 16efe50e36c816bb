package logging

import (
	"context"
	"strconv"
	"strings"

	"github.com/zoobzio/capitan"
)

// Model-call lifecycle signals emitted by the gateway.
var (
	CallStarted   = capitan.NewSignal("model.call.started", "Model backend call started")
	CallCompleted = capitan.NewSignal("model.call.completed", "Model backend returned text")
	CallFailed    = capitan.NewSignal("model.call.failed", "Model backend call failed")
)

// Keys carried by model-call signals.
var (
	RunIDKey      = capitan.NewStringKey("model.run.id")
	BackendKey    = capitan.NewStringKey("model.backend")
	StageKey      = capitan.NewStringKey("model.stage")
	StatusKey     = capitan.NewStringKey("model.status")
	ErrorKey      = capitan.NewStringKey("model.error")
	DurationMsKey = capitan.NewIntKey("model.duration.ms")
	OutputLenKey  = capitan.NewIntKey("model.output.chars")
)

// ObserveSignals logs every model-call signal until the returned func is called.
func ObserveSignals() func() {
	observer := capitan.Observe(func(_ context.Context, e *capitan.Event) {
		parts := []string{"[SIGNAL]", e.Signal().Name()}
		if v, ok := RunIDKey.From(e); ok && v != "" {
			parts = append(parts, "run="+v)
		}
		if v, ok := BackendKey.From(e); ok {
			parts = append(parts, "backend="+v)
		}
		if v, ok := StageKey.From(e); ok {
			parts = append(parts, "stage="+v)
		}
		if v, ok := StatusKey.From(e); ok {
			parts = append(parts, "status="+v)
		}
		if v, ok := DurationMsKey.From(e); ok {
			parts = append(parts, "duration_ms="+strconv.Itoa(v))
		}
		if v, ok := OutputLenKey.From(e); ok {
			parts = append(parts, "chars="+strconv.Itoa(v))
		}
		if v, ok := ErrorKey.From(e); ok && v != "" {
			parts = append(parts, "error="+v)
		}
		LogEvent("%s", strings.Join(parts, " "))
	})
	return func() {
		observer.Close()
	}
}
