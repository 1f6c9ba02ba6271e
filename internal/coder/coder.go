// Package coder defines the polymorphic Coder contract, the generation
// backend a coder is built on, and the registry and selection strategy used
// to resolve subcoders by name during decomposition.
package coder

import (
	"context"

	"github.com/ShayCichocki/autocoder/internal/suite"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

// Result is what a build returns: every file it touched and the tests that
// must pass for the artifact.
type Result struct {
	Files models.FileSet
	Tests suite.TestSuite
}

// Coder turns a specification into code and tests under a project home.
type Coder interface {
	// Name returns the stable identifier the coder is registered under.
	Name() string
	// Build runs a complete build for spec inside projectHome.
	Build(ctx context.Context, spec models.Specification, projectHome string) (*Result, error)
}

// Factory constructs a Coder.
type Factory func() (Coder, error)

type depthKey struct{}

// WithDepth returns a context carrying the recursion depth of a build.
func WithDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}

// Depth returns the recursion depth carried by ctx, zero for a top-level
// build.
func Depth(ctx context.Context) int {
	if d, ok := ctx.Value(depthKey{}).(int); ok {
		return d
	}
	return 0
}
