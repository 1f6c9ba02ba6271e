package models

import "time"

// BuildStatus represents the lifecycle state of a build invocation.
type BuildStatus string

const (
	// BuildStatusRunning indicates the build is in progress.
	BuildStatusRunning BuildStatus = "running"
	// BuildStatusSucceeded indicates every test passed.
	BuildStatusSucceeded BuildStatus = "succeeded"
	// BuildStatusFailed indicates the build aborted with a fatal error.
	BuildStatusFailed BuildStatus = "failed"
	// BuildStatusCancelled indicates the build was stopped by a signal or deadline.
	BuildStatusCancelled BuildStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s BuildStatus) Valid() bool {
	switch s {
	case BuildStatusRunning, BuildStatusSucceeded, BuildStatusFailed, BuildStatusCancelled:
		return true
	default:
		return false
	}
}

// BuildRecord is the ledger entry for one build invocation. Sub-builds started
// for dev plan steps carry the ID of the build that delegated to them.
type BuildRecord struct {
	// ID is the unique identifier for this build.
	ID string `json:"id"`
	// ParentID is the ID of the delegating build, empty for top-level builds.
	ParentID string `json:"parent_id,omitempty"`
	// Coder is the registry name of the coder that ran the build.
	Coder string `json:"coder"`
	// Specification is the task the build was asked to satisfy.
	Specification Specification `json:"specification"`
	// ProjectHome is the directory the build wrote into.
	ProjectHome string `json:"project_home"`
	// Depth is the recursion depth, zero for top-level builds.
	Depth int `json:"depth"`
	// Status is the current state of the build.
	Status BuildStatus `json:"status"`
	// Iterations is the number of refine iterations performed.
	Iterations int `json:"iterations"`
	// FilesTouched is the number of files reported by the build.
	FilesTouched int `json:"files_touched"`
	// Error holds the failure message for failed builds.
	Error string `json:"error,omitempty"`
	// StartedAt is when the build began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the build ended, if it has.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// IterationRecord captures one run of the test suite inside a build.
// Iteration zero is the run that follows initial test generation.
type IterationRecord struct {
	BuildID      string    `json:"build_id"`
	Iteration    int       `json:"iteration"`
	Success      bool      `json:"success"`
	TestFiles    int       `json:"test_files"`
	LinesAdded   int       `json:"lines_added"`
	LinesRemoved int       `json:"lines_removed"`
	Diagnostics  string    `json:"diagnostics,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}
