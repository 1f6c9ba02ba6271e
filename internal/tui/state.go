package tui

import (
	"fmt"
	"time"

	"github.com/ShayCichocki/autocoder/internal/orchestrator"
)

// maxLogEntries bounds the activity log.
const maxLogEntries = 200

// BuildNode is the display state of one build or sub-build.
type BuildNode struct {
	ID        string
	ParentID  string
	Coder     string
	Depth     int
	Phase     string
	Step      int
	Steps     int
	Iteration int
	Runs      int
	LastRunOK bool
	Done      bool
	Failed    bool
	Children  []string
	StartedAt time.Time
}

// LogEntry is one line of the activity log.
type LogEntry struct {
	Timestamp time.Time
	BuildID   string
	Message   string
	IsError   bool
}

// BuildState accumulates orchestrator events into a build tree.
type BuildState struct {
	Nodes map[string]*BuildNode
	Roots []string
	Logs  []LogEntry
}

// NewBuildState creates an empty state.
func NewBuildState() *BuildState {
	return &BuildState{Nodes: make(map[string]*BuildNode)}
}

// Apply folds one event into the state.
func (s *BuildState) Apply(ev orchestrator.Event) {
	node := s.node(ev)

	switch ev.Type {
	case orchestrator.EventBuildStarted:
		node.Phase = "design"
		node.StartedAt = ev.Timestamp
	case orchestrator.EventDesignReady:
		node.Phase = "scaffold"
	case orchestrator.EventScaffolded:
		node.Phase = "decide"
	case orchestrator.EventPlanGenerated:
		node.Phase = "plan"
		node.Steps = ev.Steps
	case orchestrator.EventStepStarted:
		node.Phase = "delegate"
		node.Step = ev.Step
		node.Steps = ev.Steps
	case orchestrator.EventStepCompleted:
		node.Step = ev.Step
	case orchestrator.EventCodeWritten:
		node.Phase = "tests"
	case orchestrator.EventTestsGenerated:
		node.Phase = "run"
	case orchestrator.EventTestsRun:
		node.Runs++
		node.LastRunOK = ev.Success
		node.Iteration = ev.Iteration
	case orchestrator.EventRefineStarted:
		node.Phase = "refine"
		node.Iteration = ev.Iteration
	case orchestrator.EventBuildCompleted:
		node.Phase = "done"
		node.Done = true
	case orchestrator.EventBuildFailed:
		node.Phase = "failed"
		node.Done = true
		node.Failed = true
	}

	s.log(ev)
}

func (s *BuildState) node(ev orchestrator.Event) *BuildNode {
	if n, ok := s.Nodes[ev.BuildID]; ok {
		return n
	}
	n := &BuildNode{ID: ev.BuildID, ParentID: ev.ParentID, Coder: ev.Coder, Depth: ev.Depth}
	s.Nodes[ev.BuildID] = n
	if parent, ok := s.Nodes[ev.ParentID]; ok && ev.ParentID != "" {
		parent.Children = append(parent.Children, n.ID)
	} else {
		s.Roots = append(s.Roots, n.ID)
	}
	return n
}

func (s *BuildState) log(ev orchestrator.Event) {
	msg := Describe(ev)
	if msg == "" {
		return
	}
	s.Logs = append(s.Logs, LogEntry{
		Timestamp: ev.Timestamp,
		BuildID:   ev.BuildID,
		Message:   msg,
		IsError:   ev.Type == orchestrator.EventBuildFailed || (ev.Type == orchestrator.EventTestsRun && !ev.Success),
	})
	if len(s.Logs) > maxLogEntries {
		s.Logs = s.Logs[len(s.Logs)-maxLogEntries:]
	}
}

// Root returns the first top-level build, or nil before any event.
func (s *BuildState) Root() *BuildNode {
	if len(s.Roots) == 0 {
		return nil
	}
	return s.Nodes[s.Roots[0]]
}

// Describe renders an event as one activity line, or "" for events that
// are not shown.
func Describe(ev orchestrator.Event) string {
	switch ev.Type {
	case orchestrator.EventBuildStarted:
		return fmt.Sprintf("%s build started (depth %d)", ev.Coder, ev.Depth)
	case orchestrator.EventPlanGenerated:
		return fmt.Sprintf("dev plan with %d steps", ev.Steps)
	case orchestrator.EventStepStarted:
		return fmt.Sprintf("step %d/%d: %s", ev.Step, ev.Steps, ev.Message)
	case orchestrator.EventCodeWritten:
		return fmt.Sprintf("wrote %d files", ev.Files)
	case orchestrator.EventTestsGenerated:
		return fmt.Sprintf("generated tests (%d files)", ev.Files)
	case orchestrator.EventTestsRun:
		if ev.Success {
			return fmt.Sprintf("tests passed (iteration %d)", ev.Iteration)
		}
		return fmt.Sprintf("tests failed (iteration %d)", ev.Iteration)
	case orchestrator.EventRefineStarted:
		return fmt.Sprintf("refining (iteration %d)", ev.Iteration)
	case orchestrator.EventBuildCompleted:
		return fmt.Sprintf("build completed in %s", ev.Duration.Round(time.Second))
	case orchestrator.EventBuildFailed:
		if ev.Error != nil {
			return fmt.Sprintf("build failed: %v", ev.Error)
		}
		return "build failed"
	default:
		return ""
	}
}
