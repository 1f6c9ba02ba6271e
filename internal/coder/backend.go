package coder

import (
	"context"

	"github.com/ShayCichocki/autocoder/internal/suite"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

// RefineRequest carries the inputs of a refine call.
type RefineRequest struct {
	Spec        models.Specification
	ProjectHome string
	Files       models.FileSet
	Feedback    string
}

// TestRequest carries the inputs of a test generation call.
type TestRequest struct {
	Spec        models.Specification
	ProjectHome string
	// Files are the project files the tests should exercise.
	Files models.FileSet
	// ExistingTestFiles are test files written by earlier iterations.
	ExistingTestFiles models.FileSet
	// TestResults holds the diagnostics of the last run, empty on the
	// first generation.
	TestResults string
}

// Backend is the generation collaborator a coder drives. Implementations
// retry their own transient failures and return an error only once retries
// are exhausted.
//
// Methods that write files may return the files already written together
// with an error; callers report them as partial output.
type Backend interface {
	// DesignSolution produces the design that guides one build.
	DesignSolution(ctx context.Context, spec models.Specification) (models.CodeDesign, error)
	// Scaffold prepares the project home. It is idempotent: an already
	// scaffolded home yields an empty set.
	Scaffold(ctx context.Context, design models.CodeDesign, projectHome string) (models.FileSet, error)
	// Code writes the implementation of an atomic design.
	Code(ctx context.Context, design models.CodeDesign, projectHome string) (models.FileSet, error)
	// Refine updates files using feedback from a failed test run.
	Refine(ctx context.Context, req RefineRequest) (models.FileSet, error)
	// GenerateUnitTests writes unit tests and returns them as a suite,
	// or NoTests if nothing was written.
	GenerateUnitTests(ctx context.Context, req TestRequest) (suite.TestSuite, error)
	// GenerateIntegrationTests writes integration tests and returns them
	// as a suite, or NoTests if nothing was written.
	GenerateIntegrationTests(ctx context.Context, req TestRequest) (suite.TestSuite, error)
}
