package state

import (
	"context"
	"io"

	"github.com/ShayCichocki/autocoder/internal/orchestrator"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

// BuildStore handles build persistence operations.
type BuildStore interface {
	CreateBuild(ctx context.Context, b *models.BuildRecord) error
	UpdateBuild(ctx context.Context, b *models.BuildRecord) error
	GetBuild(ctx context.Context, id string) (*models.BuildRecord, error)
	ListBuilds(ctx context.Context, limit int) ([]models.BuildRecord, error)
	ListChildren(ctx context.Context, parentID string) ([]models.BuildRecord, error)
}

// IterationStore handles test run persistence operations.
type IterationStore interface {
	RecordIteration(ctx context.Context, it *models.IterationRecord) error
	ListIterations(ctx context.Context, buildID string) ([]models.IterationRecord, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore composes the ledger interfaces.
type StateStore interface {
	io.Closer
	Migrator
	BuildStore
	IterationStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore            = (*DB)(nil)
	_ orchestrator.Recorder = (*Recorder)(nil)
)
