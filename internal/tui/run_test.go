package tui

import (
	"strings"
	"testing"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mwiater/concilium/internal/events"
	"github.com/mwiater/concilium/internal/pipeline"
)

var testNames = [3]string{"GROK", "Claude Sonnet", "Gemini"}

func TestHierarchicalEventsAdvanceOneColumnAtATime(t *testing.T) {
	m := newModel(pipeline.ModeHierarchical, testNames, nil)

	m.apply(events.Progress(0, "Processando arquivos e extraindo contexto..."))
	if m.columns[0].status != stagePending {
		t.Fatalf("no column should run before the first stage starts")
	}

	m.apply(events.Progress(15, "O GROK está processando sua solicitação..."))
	if m.columns[0].status != stageRunning || m.columns[1].status != stagePending {
		t.Fatalf("only the first column should run, got %v %v", m.columns[0].status, m.columns[1].status)
	}

	m.apply(events.Progress(33, "Claude Sonnet está processando...").WithPartial("grok-output", "rascunho"))
	if m.columns[0].status != stageDone || m.columns[0].text != "rascunho" {
		t.Fatalf("grok column should hold its draft, got %+v", m.columns[0])
	}
	if m.columns[1].status != stageRunning || m.columns[2].status != stagePending {
		t.Fatalf("sonnet should be running next")
	}
	if m.pct != 33 || m.message != "Claude Sonnet está processando..." {
		t.Fatalf("progress not tracked: %d %q", m.pct, m.message)
	}
}

func TestAtomicEventsRunAllColumns(t *testing.T) {
	m := newModel(pipeline.ModeAtomic, testNames, nil)
	m.apply(events.Progress(15, "Iniciando processamento paralelo..."))
	for i, c := range m.columns {
		if c.status != stageRunning {
			t.Fatalf("column %d should be running, got %v", i, c.status)
		}
	}

	m.apply(events.Failure("Erro ao processar Gemini: Tempo limite excedido."))
	for i, c := range m.columns {
		if c.status != stageFailed {
			t.Fatalf("column %d should be failed, got %v", i, c.status)
		}
	}
	if !strings.Contains(m.View(), "Tempo limite excedido") {
		t.Fatalf("view should show the error")
	}
}

func TestQuitCancelsRunningPipeline(t *testing.T) {
	cancelled := 0
	m := newModel(pipeline.ModeHierarchical, testNames, func() { cancelled++ })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cancelled != 1 {
		t.Fatalf("expected cancel on first ctrl+c, got %d", cancelled)
	}
	if cmd != nil {
		t.Fatalf("program should wait for the run to finish")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cancelled != 1 {
		t.Fatalf("cancel should fire once, got %d", cancelled)
	}

	_, cmd = m.Update(finishedMsg{outcome: pipeline.Outcome{State: pipeline.StateCancelled}})
	if cmd == nil || !m.done {
		t.Fatalf("finished run should quit the program")
	}
}

func TestPreviewStripsHTML(t *testing.T) {
	got := preview("<h1>Título</h1>\n<p>Texto &amp; mais</p>")
	if got != "Título Texto & mais" {
		t.Fatalf("unexpected preview %q", got)
	}
	long := preview(strings.Repeat("a", previewRunes+10))
	if !strings.HasSuffix(long, "…") {
		t.Fatalf("long previews should be truncated")
	}
}

func TestColumnPreviewFitsWidth(t *testing.T) {
	raw := "# Título longo demais para a coluna\n\n- item curto\n- outro item também comprido"
	for _, line := range strings.Split(columnPreview(raw, 12), "\n") {
		if n := utf8.RuneCountInString(line); n > 13 {
			t.Fatalf("line %q is %d runes wide", line, n)
		}
	}
	if got := strings.Split(columnPreview(raw, 12), "\n")[0]; got != "# Título lon…" {
		t.Fatalf("expected the first line clipped, got %q", got)
	}

	wrapped := columnPreview("<p>um dois três quatro cinco</p>", 10)
	if wrapped != "um dois\ntrês\nquatro\ncinco" {
		t.Fatalf("single paragraph should wrap, got %q", wrapped)
	}

	many := columnPreview(strings.Repeat("linha\n", 20), 10)
	lines := strings.Split(many, "\n")
	if len(lines) != previewLines+1 || lines[previewLines] != "…" {
		t.Fatalf("expected %d lines and an ellipsis, got %q", previewLines, many)
	}
}
