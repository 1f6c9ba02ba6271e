// Package orchestrator implements the recursive build loop.
//
// An Orchestrator is a coder.Coder. Build drives one specification through
// these stages:
//   - Design: the backend produces a CodeDesign for the specification
//   - Scaffold: the project home is prepared (idempotent)
//   - Decide: the decomposition policy chooses between coding the design
//     directly and splitting it into a dev plan
//   - Code or Delegate: atomic designs are coded; each dev plan step is
//     handed, in order, to a subcoder chosen from the registry, which runs
//     its own Build
//   - Generate tests: integration tests when no unit tests came back from
//     delegation, unit tests otherwise
//   - Run/Refine: the merged suite is run and the code refined until it
//     passes or the configured iteration bound is reached
//
// Example usage:
//
//	orch, err := orchestrator.New(orchestrator.RequiredConfig{
//		Name:    "python",
//		Backend: backend,
//	}, orchestrator.WithRegistry(registry))
//	result, err := orch.Build(ctx, "write function add(a, b)", "/path/to/project")
package orchestrator
