package state

import (
	"context"

	"github.com/ShayCichocki/autocoder/pkg/models"
)

// Recorder writes orchestrator build records into the ledger.
type Recorder struct {
	db *DB
}

// NewRecorder creates a recorder over db.
func NewRecorder(db *DB) *Recorder {
	return &Recorder{db: db}
}

// RecordBuildStarted inserts the build row.
func (r *Recorder) RecordBuildStarted(ctx context.Context, b *models.BuildRecord) error {
	return r.db.CreateBuild(ctx, b)
}

// RecordIteration inserts the iteration row.
func (r *Recorder) RecordIteration(ctx context.Context, it *models.IterationRecord) error {
	return r.db.RecordIteration(ctx, it)
}

// RecordBuildFinished stores the final state of the build row.
func (r *Recorder) RecordBuildFinished(ctx context.Context, b *models.BuildRecord) error {
	return r.db.UpdateBuild(ctx, b)
}
