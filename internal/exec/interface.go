// Package exec provides an interface for running external commands such as
// test runners inside a project home.
package exec

import (
	"context"
)

// CommandRunner defines the interface for running external commands.
// This abstraction allows faking command execution in tests.
type CommandRunner interface {
	// Run executes a command and returns its combined stdout/stderr output
	// together with the process exit code. A non-zero exit code is reported
	// through exitCode, not err; err is reserved for commands that could not
	// be started or were interrupted by ctx.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, exitCode int, err error)
}
