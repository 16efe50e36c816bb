// Package tui renders a pipeline run in the terminal.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/concilium/internal/events"
	"github.com/mwiater/concilium/internal/gateway"
	"github.com/mwiater/concilium/internal/markdown"
	"github.com/mwiater/concilium/internal/pipeline"
	"github.com/mwiater/concilium/internal/util"
)

const (
	previewRunes = 240
	previewLines = 8
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	messageStyle = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("160")).Bold(true)
	columnStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	statusStyles = map[stageStatus]lipgloss.Style{
		stagePending: lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Background(lipgloss.Color("238")).Padding(0, 1),
		stageRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("33")).Padding(0, 1),
		stageDone:    lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("34")).Padding(0, 1),
		stageFailed:  lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("160")).Padding(0, 1),
	}
)

type stageStatus int

const (
	stagePending stageStatus = iota
	stageRunning
	stageDone
	stageFailed
)

func (s stageStatus) String() string {
	switch s {
	case stageRunning:
		return "running"
	case stageDone:
		return "done"
	case stageFailed:
		return "failed"
	default:
		return "waiting"
	}
}

type column struct {
	id     gateway.BackendID
	name   string
	status stageStatus
	text   string
}

// eventMsg carries a pipeline event into the program.
type eventMsg struct{ event events.Event }

// finishedMsg is sent once the orchestrator returns.
type finishedMsg struct{ outcome pipeline.Outcome }

// model is the Bubble Tea model for a single run.
type model struct {
	mode     pipeline.Mode
	columns  [3]column
	pct      int
	message  string
	errText  string
	done     bool
	outcome  pipeline.Outcome
	spinner  spinner.Model
	bar      progress.Model
	detail   viewport.Model
	width    int
	cancel   context.CancelFunc
	quitting bool
}

func newModel(mode pipeline.Mode, names [3]string, cancel context.CancelFunc) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := &model{
		mode:    mode,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(60)),
		detail:  viewport.New(90, 12),
		cancel:  cancel,
	}
	for i, id := range gateway.Backends {
		m.columns[i] = column{id: id, name: names[i]}
	}
	return m
}

func (m *model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.done {
				return m, tea.Quit
			}
			if !m.quitting {
				m.quitting = true
				m.message = "Cancelando..."
				if m.cancel != nil {
					m.cancel()
				}
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, min(80, msg.Width-4))
		m.detail.Width = max(20, msg.Width-2)
		m.detail.Height = max(5, msg.Height/3)
	case eventMsg:
		m.apply(msg.event)
	case finishedMsg:
		m.done = true
		m.outcome = msg.outcome
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply folds one event into the column states.
func (m *model) apply(e events.Event) {
	if pct := e.Pct(); pct >= 0 {
		m.pct = pct
	}
	if e.Message != "" {
		m.message = e.Message
	}
	if p := e.PartialResult; p != nil {
		for i := range m.columns {
			if m.columns[i].id.SlotID() == p.ID {
				m.columns[i].status = stageDone
				m.columns[i].text = p.Content
				m.detail.SetContent(m.columns[i].name + "\n\n" + plain(p.Content))
				m.detail.GotoTop()
			}
		}
	}
	if e.IsError() {
		m.errText = e.Error
		for i := range m.columns {
			if m.columns[i].status == stageRunning {
				m.columns[i].status = stageFailed
			}
		}
		return
	}
	if e.Done || m.pct < 15 {
		return
	}
	// Atomic runs every backend at once; hierarchical runs the first
	// backend without output.
	for i := range m.columns {
		if m.columns[i].status != stagePending {
			continue
		}
		m.columns[i].status = stageRunning
		if m.mode != pipeline.ModeAtomic {
			break
		}
	}
}

func (m *model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Concilium · %s", m.mode)))
	b.WriteString("\n\n")
	b.WriteString(m.bar.ViewAs(float64(m.pct) / 100))
	b.WriteString("\n")
	if !m.done && m.errText == "" {
		b.WriteString(m.spinner.View() + " ")
	}
	b.WriteString(messageStyle.Render(m.message))
	b.WriteString("\n\n")

	width := 30
	if m.width > 0 {
		width = max(20, m.width/3-4)
	}
	cols := make([]string, len(m.columns))
	for i, c := range m.columns {
		header := lipgloss.JoinHorizontal(lipgloss.Top, c.name+" ", statusStyles[c.status].Render(c.status.String()))
		body := columnPreview(c.text, width-columnStyle.GetHorizontalPadding())
		cols[i] = columnStyle.Width(width).Render(header + "\n\n" + body)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cols...))
	b.WriteString("\n")

	if m.detail.TotalLineCount() > 0 {
		b.WriteString("\n" + m.detail.View() + "\n")
	}

	if m.errText != "" {
		b.WriteString("\n" + errorStyle.Render(m.errText) + "\n")
	}
	return b.String()
}

func preview(content string) string {
	text := content
	if strings.HasPrefix(strings.TrimSpace(content), "<") {
		text = markdown.VisibleText(content)
	}
	return util.TruncateRunes(strings.TrimSpace(text), previewRunes)
}

// columnPreview fits a preview into a column of the given width. A single
// paragraph is wrapped; multi-line text keeps its lines and clips each one.
func columnPreview(content string, width int) string {
	text := preview(content)
	if !strings.Contains(text, "\n") {
		text = util.WrapToWidth(text, width)
	}
	lines := strings.Split(util.TruncateToWidth(text, width), "\n")
	if len(lines) > previewLines {
		lines = append(lines[:previewLines], "…")
	}
	return strings.Join(lines, "\n")
}

// plain returns content as wrapped terminal text.
func plain(content string) string {
	if strings.HasPrefix(strings.TrimSpace(content), "<") {
		content = markdown.VisibleText(content)
	}
	return util.WrapToWidth(content, 88)
}

// programSink forwards pipeline events to a running program.
type programSink struct{ p *tea.Program }

func (s programSink) Emit(e events.Event) error {
	s.p.Send(eventMsg{event: e})
	return nil
}

// Run executes req on orch while rendering its progress. Quitting the
// program before the run ends cancels it.
func Run(ctx context.Context, orch *pipeline.Orchestrator, names [3]string, req pipeline.Request) (pipeline.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if req.Mode == "" {
		req.Mode = pipeline.ModeHierarchical
	}
	m := newModel(req.Mode, names, cancel)
	p := tea.NewProgram(m)

	go func() {
		out := orch.Run(ctx, req, programSink{p: p})
		p.Send(finishedMsg{outcome: out})
	}()

	final, err := p.Run()
	if err != nil {
		return pipeline.Outcome{}, fmt.Errorf("tui: %w", err)
	}
	return final.(*model).outcome, nil
}
