// Package policy defines configurable policy parameters for build behavior.
// This centralizes the loop bounds and decomposition limits so they can be
// configured and tested.
package policy

import (
	"fmt"
	"time"
)

// Config contains all configurable policy parameters for a build.
type Config struct {
	// Loop policies
	Loop LoopPolicy

	// Decomposition policies
	Decomposition DecompositionPolicy

	// Test policies
	Tests TestsPolicy

	// Event policies
	Events EventsPolicy
}

// LoopPolicy controls the run/refine convergence loop.
type LoopPolicy struct {
	// MaxIterations is the number of refine iterations allowed before a
	// build fails with a convergence error.
	MaxIterations int

	// FeedbackLimit caps the diagnostics handed to refine, in bytes. Zero
	// passes diagnostics through unchanged.
	FeedbackLimit int
}

// DecompositionPolicy controls recursive delegation.
type DecompositionPolicy struct {
	// MaxDepth is the recursion depth at which designs are always coded
	// directly.
	MaxDepth int

	// MaxSteps is the maximum number of steps in a dev plan.
	MaxSteps int
}

// TestsPolicy controls where tests live and how long they may run.
type TestsPolicy struct {
	// Dir is the test directory relative to the project home.
	Dir string

	// Timeout bounds a single test run.
	Timeout time.Duration
}

// EventsPolicy controls event delivery.
type EventsPolicy struct {
	// BufferSize is the buffer size of the event channel.
	BufferSize int
}

// Default returns the default policy configuration.
func Default() *Config {
	return &Config{
		Loop: LoopPolicy{
			MaxIterations: 10,
		},
		Decomposition: DecompositionPolicy{
			MaxDepth: 3,
			MaxSteps: 12,
		},
		Tests: TestsPolicy{
			Dir:     "tests",
			Timeout: 10 * time.Minute,
		},
		Events: EventsPolicy{
			BufferSize: 100,
		},
	}
}

// Validate checks that policy values are within acceptable ranges. Unset
// values are replaced with defaults; negative bounds are rejected.
func (c *Config) Validate() error {
	if c.Loop.MaxIterations < 0 {
		return fmt.Errorf("loop.max_iterations must be >= 0, got %d", c.Loop.MaxIterations)
	}
	if c.Loop.FeedbackLimit < 0 {
		return fmt.Errorf("loop.feedback_limit must be >= 0, got %d", c.Loop.FeedbackLimit)
	}
	if c.Decomposition.MaxDepth < 0 {
		return fmt.Errorf("decomposition.max_depth must be >= 0, got %d", c.Decomposition.MaxDepth)
	}
	if c.Decomposition.MaxSteps < 1 {
		c.Decomposition.MaxSteps = 12
	}
	if c.Tests.Dir == "" {
		c.Tests.Dir = "tests"
	}
	if c.Tests.Timeout < time.Second {
		c.Tests.Timeout = 10 * time.Minute
	}
	if c.Events.BufferSize < 1 {
		c.Events.BufferSize = 100
	}
	return nil
}
