package orchestrator

import (
	"errors"
	"fmt"

	"github.com/ShayCichocki/autocoder/pkg/models"
)

// ErrConvergenceFailed is returned when tests still fail after the
// configured number of refine iterations.
var ErrConvergenceFailed = errors.New("convergence failed")

// Stage names the build stage at which a build failed.
type Stage string

// Build stages, in the order a build visits them.
const (
	StageDesign        Stage = "design"
	StageScaffold      Stage = "scaffold"
	StageDecide        Stage = "decide"
	StagePlan          Stage = "plan"
	StageSelect        Stage = "select"
	StageDelegate      Stage = "delegate"
	StageCode          Stage = "code"
	StageGenerateTests Stage = "generate_tests"
	StageRunTests      Stage = "run_tests"
	StageRefine        Stage = "refine"
)

// BuildError is returned by Build for every fatal error. Files holds the
// files touched before the failure; they remain on disk.
type BuildError struct {
	Stage Stage
	Files models.FileSet
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed at %s: %v", e.Stage, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// PartialFiles returns the files touched by a failed build, or an empty set
// if err is not a BuildError.
func PartialFiles(err error) models.FileSet {
	var be *BuildError
	if errors.As(err, &be) && be.Files != nil {
		return be.Files.Clone()
	}
	return models.NewFileSet()
}
