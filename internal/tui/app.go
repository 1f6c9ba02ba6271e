package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/autocoder/internal/coder"
	"github.com/ShayCichocki/autocoder/internal/orchestrator"
)

// EventMsg carries one orchestrator event into the program.
type EventMsg struct {
	Event orchestrator.Event
}

// BuildDoneMsg is sent when the top-level build returns.
type BuildDoneMsg struct {
	Result *coder.Result
	Err    error
}

// BuildApp is the bubbletea model of the build view.
type BuildApp struct {
	state    *BuildState
	spinner  spinner.Model
	onStop   func()
	stopping bool
	done     bool
	result   *coder.Result
	err      error
	width    int
	height   int

	headerStyle  lipgloss.Style
	labelStyle   lipgloss.Style
	valueStyle   lipgloss.Style
	okStyle      lipgloss.Style
	errorStyle   lipgloss.Style
	dimStyle     lipgloss.Style
	phaseStyle   lipgloss.Style
	progressFull lipgloss.Style
}

// NewBuildApp creates the model. onStop is called when the user asks for
// a graceful stop; it may be nil.
func NewBuildApp(onStop func()) *BuildApp {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &BuildApp{
		state:   NewBuildState(),
		spinner: sp,
		onStop:  onStop,

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),
		labelStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12),
		valueStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true),
		okStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		errorStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		dimStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		phaseStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("205")),
		progressFull: lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
	}
}

// NewBuildProgram creates a program running a new BuildApp.
func NewBuildProgram(onStop func()) (*tea.Program, *BuildApp) {
	app := NewBuildApp(onStop)
	return tea.NewProgram(app, tea.WithAltScreen()), app
}

// ForwardEvents sends every event from events to p until the channel is
// closed or ctx is done.
func ForwardEvents(ctx context.Context, events <-chan orchestrator.Event, p interface{ Send(tea.Msg) }) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Send(EventMsg{Event: ev})
		}
	}
}

// Init implements tea.Model.
func (a *BuildApp) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *BuildApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !a.done && a.onStop != nil && !a.stopping {
				a.requestStop()
			}
			return a, tea.Quit
		case "s":
			if !a.done && !a.stopping {
				a.requestStop()
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case EventMsg:
		a.state.Apply(msg.Event)

	case BuildDoneMsg:
		a.done = true
		a.result = msg.Result
		a.err = msg.Err

	case spinner.TickMsg:
		if a.done {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *BuildApp) requestStop() {
	a.stopping = true
	if a.onStop != nil {
		a.onStop()
	}
}

// Err returns the error the build finished with.
func (a *BuildApp) Err() error {
	return a.err
}

// Result returns the build result, nil until the build succeeded.
func (a *BuildApp) Result() *coder.Result {
	return a.result
}

// State returns the accumulated build state.
func (a *BuildApp) State() *BuildState {
	return a.state
}

// View implements tea.Model.
func (a *BuildApp) View() string {
	var b strings.Builder

	b.WriteString(a.headerStyle.Render("autocoder build"))
	b.WriteString("\n")

	root := a.state.Root()
	if root == nil {
		b.WriteString(a.spinner.View() + " starting...\n")
		return b.String()
	}

	b.WriteString(a.labelStyle.Render("Status:"))
	b.WriteString(a.statusLine())
	b.WriteString("\n")

	if root.Steps > 0 {
		b.WriteString(a.labelStyle.Render("Plan:"))
		b.WriteString(a.valueStyle.Render(fmt.Sprintf("step %d/%d", root.Step, root.Steps)))
		b.WriteString("\n")
		b.WriteString(a.renderProgressBar(float64(root.Step)/float64(root.Steps)*100, 30))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	for _, id := range a.state.Roots {
		a.renderNode(&b, id, 0)
	}

	b.WriteString("\n")
	b.WriteString(a.renderLogs())

	b.WriteString("\n")
	b.WriteString(a.dimStyle.Render("s: stop gracefully  q: quit"))
	return b.String()
}

func (a *BuildApp) statusLine() string {
	switch {
	case a.done && a.err == nil:
		files := 0
		if a.result != nil {
			files = a.result.Files.Len()
		}
		return a.okStyle.Render(fmt.Sprintf("done, %d files", files))
	case a.done:
		return a.errorStyle.Render(a.err.Error())
	case a.stopping:
		return a.spinner.View() + " stopping..."
	default:
		return a.spinner.View() + " " + a.phaseStyle.Render(a.state.Root().Phase)
	}
}

func (a *BuildApp) renderNode(b *strings.Builder, id string, indent int) {
	n, ok := a.state.Nodes[id]
	if !ok {
		return
	}
	icon := a.spinner.View()
	switch {
	case n.Failed:
		icon = a.errorStyle.Render("x")
	case n.Done:
		icon = a.okStyle.Render("✓")
	}

	line := fmt.Sprintf("%s%s %s %s", strings.Repeat("  ", indent), icon, a.valueStyle.Render(n.Coder), a.phaseStyle.Render(n.Phase))
	if n.Runs > 0 {
		run := a.errorStyle.Render("failing")
		if n.LastRunOK {
			run = a.okStyle.Render("passing")
		}
		line += fmt.Sprintf("  tests %s, %d refines", run, n.Iteration)
	}
	if n.Steps > 0 {
		line += a.dimStyle.Render(fmt.Sprintf("  step %d/%d", n.Step, n.Steps))
	}
	b.WriteString(line)
	b.WriteString("\n")

	for _, child := range n.Children {
		a.renderNode(b, child, indent+1)
	}
}

func (a *BuildApp) renderLogs() string {
	var b strings.Builder
	b.WriteString(a.labelStyle.Render("Activity:"))
	b.WriteString("\n")

	limit := 10
	if a.height > 0 {
		limit = max(3, a.height-len(a.state.Nodes)-12)
	}
	logs := a.state.Logs
	if len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	for _, entry := range logs {
		msg := entry.Message
		if entry.IsError {
			msg = a.errorStyle.Render(msg)
		}
		b.WriteString(fmt.Sprintf("  %s %s %s\n",
			a.dimStyle.Render(entry.Timestamp.Format(time.TimeOnly)),
			a.dimStyle.Render(shortID(entry.BuildID)),
			msg))
	}
	return b.String()
}

// renderProgressBar renders a progress bar.
func (a *BuildApp) renderProgressBar(pct float64, width int) string {
	pct = min(max(pct, 0), 100)
	filled := int(pct / 100 * float64(width))
	empty := width - filled

	bar := a.progressFull.Render(strings.Repeat("█", filled)) +
		a.dimStyle.Render(strings.Repeat("░", empty))
	return fmt.Sprintf("  %s %.0f%%", bar, pct)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
