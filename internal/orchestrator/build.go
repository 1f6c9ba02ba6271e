package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/autocoder/internal/coder"
	"github.com/ShayCichocki/autocoder/internal/suite"
	"github.com/ShayCichocki/autocoder/internal/workspace"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

// build holds the state of one Build invocation.
type build struct {
	o        *Orchestrator
	id       string
	parentID string
	depth    int
	spec     models.Specification
	home     string
	started  time.Time

	// projectFiles and testFiles only grow.
	projectFiles models.FileSet
	testFiles    models.FileSet
	iterations   int
}

func (b *build) run(ctx context.Context) (*coder.Result, error) {
	backend := b.o.backend

	if err := ctx.Err(); err != nil {
		return nil, b.fail(StageDesign, err)
	}
	design, err := backend.DesignSolution(ctx, b.spec)
	if err != nil {
		return nil, b.fail(StageDesign, err)
	}
	b.log("design ready (%d chars)", len(design))
	b.emit(Event{Type: EventDesignReady, Message: preview(design.String())})

	if err := ctx.Err(); err != nil {
		return nil, b.fail(StageScaffold, err)
	}
	scaffolded, err := backend.Scaffold(ctx, design, b.home)
	b.projectFiles.Update(scaffolded)
	if err != nil {
		return nil, b.fail(StageScaffold, err)
	}
	b.emit(Event{Type: EventScaffolded, Files: scaffolded.Len()})

	if err := ctx.Err(); err != nil {
		return nil, b.fail(StageDecide, err)
	}
	composite, err := b.o.policy.ShouldGenerateDevPlan(ctx, design)
	if err != nil {
		return nil, b.fail(StageDecide, fmt.Errorf("decide decomposition: %w", err))
	}

	var unitTests suite.TestSuite = suite.NoTests{}
	if composite {
		unitTests, err = b.delegate(ctx, design)
		if err != nil {
			return nil, err
		}
	} else {
		if err := ctx.Err(); err != nil {
			return nil, b.fail(StageCode, err)
		}
		// Files written before a failure stay on disk and are reported.
		files, err := backend.Code(ctx, design, b.home)
		b.projectFiles.Update(files)
		if err != nil {
			return nil, b.fail(StageCode, err)
		}
		b.log("coded %d files", files.Len())
		b.emit(Event{Type: EventCodeWritten, Files: files.Len()})
	}

	// Integration tests are needed exactly when delegation produced no
	// unit coverage.
	integration := suite.IsNoTests(unitTests)

	generated, err := b.generateTests(ctx, integration, models.NewFileSet(), "")
	if err != nil {
		return nil, b.fail(StageGenerateTests, err)
	}
	generated = suite.Merge(generated, unitTests)
	b.testFiles.Update(generated.TestFiles())

	result, err := b.runTests(ctx, generated, workspace.DiffStats{})
	if err != nil {
		return nil, b.fail(StageRunTests, err)
	}

	for !result.Success {
		if b.iterations >= b.o.config.Loop.MaxIterations {
			return nil, b.fail(StageRefine, fmt.Errorf("%w: tests still failing after %d refine iterations", ErrConvergenceFailed, b.iterations))
		}
		if err := ctx.Err(); err != nil {
			return nil, b.fail(StageRefine, err)
		}
		b.iterations++
		b.log("refine iteration %d/%d", b.iterations, b.o.config.Loop.MaxIterations)
		b.emit(Event{Type: EventRefineStarted, Iteration: b.iterations})

		feedback := b.o.feedback(result.Diagnostics)
		before := workspace.Snapshot(b.projectFiles)
		refined, err := backend.Refine(ctx, coder.RefineRequest{
			Spec:        b.spec,
			ProjectHome: b.home,
			Files:       b.projectFiles.Clone(),
			Feedback:    feedback,
		})
		b.projectFiles.Update(refined)
		if err != nil {
			return nil, b.fail(StageRefine, err)
		}
		stats := workspace.Diff(before, workspace.Snapshot(b.projectFiles))

		newTests, err := b.generateTests(ctx, integration, b.testFiles.Clone(), result.Diagnostics)
		if err != nil {
			return nil, b.fail(StageGenerateTests, err)
		}
		generated = suite.Merge(generated, newTests)
		b.testFiles.Update(newTests.TestFiles())

		result, err = b.runTests(ctx, generated, stats)
		if err != nil {
			return nil, b.fail(StageRunTests, err)
		}
	}

	return &coder.Result{Files: b.touched(), Tests: generated}, nil
}

// delegate generates a dev plan and builds each step, in order, with a
// chosen subcoder.
func (b *build) delegate(ctx context.Context, design models.CodeDesign) (suite.TestSuite, error) {
	plan, err := b.o.policy.GenerateDevPlan(ctx, design)
	if err != nil {
		return nil, b.fail(StagePlan, fmt.Errorf("generate dev plan: %w", err))
	}
	b.log("dev plan with %d steps", plan.Len())
	b.emit(Event{Type: EventPlanGenerated, Steps: plan.Len(), Message: fmt.Sprintf("%q", plan.Strings())})

	candidates := b.o.candidates()
	var unitTests suite.TestSuite = suite.NoTests{}

	for i, step := range plan {
		n := i + 1
		if err := ctx.Err(); err != nil {
			return nil, b.fail(StageDelegate, err)
		}

		name, err := coder.Choose(ctx, b.o.selector, step, candidates)
		if err != nil {
			return nil, b.fail(StageSelect, fmt.Errorf("step %d: %w", n, err))
		}
		sub, err := b.o.registry.New(name)
		if err != nil {
			return nil, b.fail(StageSelect, fmt.Errorf("step %d: %w", n, err))
		}

		b.log("step %d/%d -> %s: %s", n, plan.Len(), name, preview(step.String()))
		b.emit(Event{Type: EventStepStarted, Step: n, Steps: plan.Len(), Message: name + ": " + preview(step.String())})

		res, err := sub.Build(coder.WithDepth(ctx, b.depth+1), step, b.home)
		if err != nil {
			b.projectFiles.Update(PartialFiles(err))
			return nil, b.fail(StageDelegate, fmt.Errorf("step %d (%s): %w", n, name, err))
		}
		b.projectFiles.Update(res.Files)
		if res.Tests != nil {
			unitTests = suite.Merge(unitTests, res.Tests)
		}
		b.emit(Event{Type: EventStepCompleted, Step: n, Steps: plan.Len(), Files: res.Files.Len(), Message: name})
	}
	return unitTests, nil
}

func (b *build) generateTests(ctx context.Context, integration bool, existing models.FileSet, results string) (suite.TestSuite, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := coder.TestRequest{
		Spec:              b.spec,
		ProjectHome:       b.home,
		Files:             b.projectFiles.Clone(),
		ExistingTestFiles: existing,
		TestResults:       results,
	}

	var (
		tests suite.TestSuite
		err   error
		kind  = "unit"
	)
	if integration {
		kind = "integration"
		tests, err = b.o.backend.GenerateIntegrationTests(ctx, req)
	} else {
		tests, err = b.o.backend.GenerateUnitTests(ctx, req)
	}
	if tests != nil {
		b.testFiles.Update(tests.TestFiles())
	}
	if err != nil {
		return nil, fmt.Errorf("generate %s tests: %w", kind, err)
	}
	if tests == nil {
		tests = suite.NoTests{}
	}

	files := tests.TestFiles()
	b.log("generated %s tests: %d files", kind, files.Len())
	b.emit(Event{Type: EventTestsGenerated, Iteration: b.iterations, Files: files.Len(), Message: kind})
	return tests, nil
}

func (b *build) runTests(ctx context.Context, tests suite.TestSuite, stats workspace.DiffStats) (suite.Result, error) {
	if err := ctx.Err(); err != nil {
		return suite.Result{}, err
	}
	result, err := tests.Run(ctx)
	if err != nil {
		return suite.Result{}, fmt.Errorf("run tests: %w", err)
	}

	fileCount := tests.TestFiles().Len()
	b.log("iteration %d: success=%v test_files=%d +%d/-%d", b.iterations, result.Success, fileCount, stats.LinesAdded, stats.LinesRemoved)
	b.emit(Event{Type: EventTestsRun, Iteration: b.iterations, Success: result.Success, Files: fileCount})
	b.o.record(ctx, func(r Recorder, ctx context.Context) error {
		return r.RecordIteration(ctx, &models.IterationRecord{
			BuildID:      b.id,
			Iteration:    b.iterations,
			Success:      result.Success,
			TestFiles:    fileCount,
			LinesAdded:   stats.LinesAdded,
			LinesRemoved: stats.LinesRemoved,
			Diagnostics:  result.Diagnostics,
			RecordedAt:   time.Now(),
		})
	})
	return result, nil
}

// finish emits the terminal event and records the outcome.
func (b *build) finish(ctx context.Context, result *coder.Result, err error) {
	elapsed := time.Since(b.started)
	status := models.BuildStatusSucceeded
	switch {
	case err == nil:
		b.log("build completed in %s with %d files", elapsed.Round(time.Millisecond), result.Files.Len())
		b.emit(Event{Type: EventBuildCompleted, Files: result.Files.Len(), Duration: elapsed})
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		status = models.BuildStatusCancelled
	default:
		status = models.BuildStatusFailed
	}
	if err != nil {
		b.log("build %s: %v", status, err)
		b.emit(Event{Type: EventBuildFailed, Error: err, Files: b.touched().Len(), Duration: elapsed, Message: string(status)})
	}

	files := b.touched()
	if result != nil {
		files = result.Files
	}
	b.o.record(ctx, func(r Recorder, ctx context.Context) error {
		rec := b.record(status, err)
		rec.FilesTouched = files.Len()
		now := time.Now()
		rec.FinishedAt = &now
		return r.RecordBuildFinished(ctx, rec)
	})
}

func (b *build) touched() models.FileSet {
	return b.projectFiles.Union(b.testFiles)
}

func (b *build) fail(stage Stage, err error) error {
	return &BuildError{Stage: stage, Files: b.touched(), Err: err}
}

func (b *build) record(status models.BuildStatus, err error) *models.BuildRecord {
	rec := &models.BuildRecord{
		ID:            b.id,
		ParentID:      b.parentID,
		Coder:         b.o.name,
		Specification: b.spec,
		ProjectHome:   b.home,
		Depth:         b.depth,
		Status:        status,
		Iterations:    b.iterations,
		StartedAt:     b.started,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}

func (b *build) emit(ev Event) {
	if b.o.emitter == nil {
		return
	}
	ev.BuildID = b.id
	ev.ParentID = b.parentID
	ev.Coder = b.o.name
	ev.Depth = b.depth
	b.o.emitter.Emit(ev)
}

func (b *build) log(format string, args ...interface{}) {
	b.o.logger.Log("[%s %s] "+format, append([]interface{}{b.o.name, shortID(b.id)}, args...)...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
