package orchestrator

import (
	"context"
	"errors"

	"github.com/ShayCichocki/autocoder/pkg/models"
)

// Recorder observes build progress, for example to keep a ledger or export
// metrics. Recorder errors are logged and never fail a build.
type Recorder interface {
	RecordBuildStarted(ctx context.Context, build *models.BuildRecord) error
	RecordIteration(ctx context.Context, iteration *models.IterationRecord) error
	RecordBuildFinished(ctx context.Context, build *models.BuildRecord) error
}

// MultiRecorder fans records out to several recorders.
type MultiRecorder []Recorder

// RecordBuildStarted implements Recorder.
func (m MultiRecorder) RecordBuildStarted(ctx context.Context, build *models.BuildRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordBuildStarted(ctx, build))
	}
	return errors.Join(errs...)
}

// RecordIteration implements Recorder.
func (m MultiRecorder) RecordIteration(ctx context.Context, iteration *models.IterationRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordIteration(ctx, iteration))
	}
	return errors.Join(errs...)
}

// RecordBuildFinished implements Recorder.
func (m MultiRecorder) RecordBuildFinished(ctx context.Context, build *models.BuildRecord) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RecordBuildFinished(ctx, build))
	}
	return errors.Join(errs...)
}
