package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ShayCichocki/autocoder/internal/coder"
	"github.com/ShayCichocki/autocoder/internal/orchestrator"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

func event(typ orchestrator.EventType, id, parent string) orchestrator.Event {
	return orchestrator.Event{Type: typ, BuildID: id, ParentID: parent, Coder: "python", Timestamp: time.Now()}
}

func TestBuildState_Tree(t *testing.T) {
	s := NewBuildState()
	s.Apply(event(orchestrator.EventBuildStarted, "root", ""))
	plan := event(orchestrator.EventPlanGenerated, "root", "")
	plan.Steps = 2
	s.Apply(plan)
	step := event(orchestrator.EventStepStarted, "root", "")
	step.Step, step.Steps = 1, 2
	s.Apply(step)
	child := event(orchestrator.EventBuildStarted, "child", "root")
	child.Depth = 1
	s.Apply(child)

	if len(s.Roots) != 1 || s.Roots[0] != "root" {
		t.Fatalf("Roots = %v, want [root]", s.Roots)
	}
	root := s.Root()
	if root.Step != 1 || root.Steps != 2 || root.Phase != "delegate" {
		t.Errorf("root = %+v", root)
	}
	if len(root.Children) != 1 || root.Children[0] != "child" {
		t.Errorf("root children = %v", root.Children)
	}
	if s.Nodes["child"].Depth != 1 {
		t.Errorf("child depth = %d, want 1", s.Nodes["child"].Depth)
	}
}

func TestBuildState_TestRunsAndOutcome(t *testing.T) {
	s := NewBuildState()
	s.Apply(event(orchestrator.EventBuildStarted, "b", ""))
	run := event(orchestrator.EventTestsRun, "b", "")
	s.Apply(run)
	refine := event(orchestrator.EventRefineStarted, "b", "")
	refine.Iteration = 1
	s.Apply(refine)
	run.Success = true
	run.Iteration = 1
	s.Apply(run)
	s.Apply(event(orchestrator.EventBuildCompleted, "b", ""))

	n := s.Nodes["b"]
	if n.Runs != 2 || !n.LastRunOK || n.Iteration != 1 {
		t.Errorf("node = %+v", n)
	}
	if !n.Done || n.Failed || n.Phase != "done" {
		t.Errorf("node outcome = %+v", n)
	}

	var errorLogs int
	for _, l := range s.Logs {
		if l.IsError {
			errorLogs++
		}
	}
	if errorLogs != 1 {
		t.Errorf("error log entries = %d, want 1", errorLogs)
	}
}

func TestBuildState_LogBounded(t *testing.T) {
	s := NewBuildState()
	for i := 0; i < maxLogEntries+50; i++ {
		s.Apply(event(orchestrator.EventTestsRun, "b", ""))
	}
	if len(s.Logs) != maxLogEntries {
		t.Errorf("log length = %d, want %d", len(s.Logs), maxLogEntries)
	}
}

func TestBuildApp_StopKey(t *testing.T) {
	stops := 0
	app := NewBuildApp(func() { stops++ })

	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if stops != 1 {
		t.Errorf("stop called %d times, want 1", stops)
	}

	app.Update(EventMsg{Event: event(orchestrator.EventBuildStarted, "b", "")})
	if !strings.Contains(app.View(), "stopping") {
		t.Error("view does not show stopping state")
	}
}

func TestBuildApp_QuitAfterDoneDoesNotStop(t *testing.T) {
	stops := 0
	app := NewBuildApp(func() { stops++ })
	app.Update(BuildDoneMsg{Result: &coder.Result{Files: models.NewFileSet("a.py")}})

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if stops != 0 {
		t.Errorf("stop called %d times after build finished", stops)
	}
}

func TestBuildApp_View(t *testing.T) {
	app := NewBuildApp(nil)
	if !strings.Contains(app.View(), "starting") {
		t.Error("empty view should show starting")
	}

	app.Update(EventMsg{Event: event(orchestrator.EventBuildStarted, "b", "")})
	failed := event(orchestrator.EventBuildFailed, "b", "")
	failed.Error = errors.New("convergence failed")
	app.Update(EventMsg{Event: failed})
	app.Update(BuildDoneMsg{Err: failed.Error})

	view := app.View()
	if !strings.Contains(view, "convergence failed") {
		t.Errorf("view missing failure:\n%s", view)
	}
	if app.Err() == nil {
		t.Error("Err() = nil after failed build")
	}
}
