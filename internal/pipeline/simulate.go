package pipeline

import (
	"github.com/mwiater/concilium/internal/events"
	"github.com/mwiater/concilium/internal/gateway"
	"github.com/mwiater/concilium/internal/markdown"
)

// DefaultMockText is used when a simulation request carries no text.
const DefaultMockText = "Este é um texto de simulação."

// Simulation is a test-mode request. No backend is called.
type Simulation struct {
	Mode     Mode
	MockText string
	Output   Output
}

// Simulate emits the events of a completed run filled with MockText. The
// first event is terminal; atomic mode follows it with the other two slots.
func Simulate(sim Simulation, sink events.Sink) error {
	text := sim.MockText
	if text == "" {
		text = DefaultMockText
	}
	content := text
	if sim.Output != OutputRaw {
		content = markdown.Render(text)
	}
	mode := ModeHierarchical
	if sim.Mode == ModeAtomic {
		mode = ModeAtomic
	}

	first := events.Progress(100, "Simulação concluída!").
		WithPartial(gateway.Grok.SlotID(), content).
		Finish(string(mode))
	if err := sink.Emit(first); err != nil {
		return err
	}
	if mode != ModeAtomic {
		return nil
	}
	for _, id := range gateway.Backends[1:] {
		if err := sink.Emit(events.PartialResult(id.SlotID(), content)); err != nil {
			return err
		}
	}
	return nil
}
