package orchestrator

import (
	"time"
)

// EventType represents the type of build event.
type EventType string

const (
	// EventBuildStarted indicates a build (or sub-build) has started.
	EventBuildStarted EventType = "build_started"
	// EventDesignReady indicates the design for the build was produced.
	EventDesignReady EventType = "design_ready"
	// EventScaffolded indicates the project home was scaffolded.
	EventScaffolded EventType = "scaffolded"
	// EventPlanGenerated indicates the design was split into a dev plan.
	EventPlanGenerated EventType = "plan_generated"
	// EventStepStarted indicates a dev step was delegated to a subcoder.
	EventStepStarted EventType = "step_started"
	// EventStepCompleted indicates a delegated dev step finished.
	EventStepCompleted EventType = "step_completed"
	// EventCodeWritten indicates an atomic design was coded.
	EventCodeWritten EventType = "code_written"
	// EventTestsGenerated indicates tests were written.
	EventTestsGenerated EventType = "tests_generated"
	// EventTestsRun indicates the suite was run.
	EventTestsRun EventType = "tests_run"
	// EventRefineStarted indicates a refine iteration has started.
	EventRefineStarted EventType = "refine_started"
	// EventBuildCompleted indicates every test passed.
	EventBuildCompleted EventType = "build_completed"
	// EventBuildFailed indicates the build aborted.
	EventBuildFailed EventType = "build_failed"
)

// Event represents an event emitted during a build.
// These events are used to update the TUI and track progress.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// BuildID is the ID of the build that emitted the event.
	BuildID string
	// ParentID is the ID of the delegating build, if any.
	ParentID string
	// Coder is the name of the coder running the build.
	Coder string
	// Depth is the recursion depth of the build.
	Depth int
	// Step is the 1-based dev step number for step events.
	Step int
	// Steps is the number of steps in the dev plan.
	Steps int
	// Iteration is the refine iteration for test and refine events.
	Iteration int
	// Success reports the outcome of a test run.
	Success bool
	// Files is the number of files involved in the event.
	Files int
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed build time for terminal events.
	Duration time.Duration
}
