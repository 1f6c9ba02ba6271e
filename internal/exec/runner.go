package exec

import (
	"context"
	"errors"
	"os/exec"
)

// ExecRunner implements CommandRunner using os/exec.
type ExecRunner struct {
	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	Env []string
}

// NewRunner creates a new ExecRunner.
func NewRunner(env ...string) *ExecRunner {
	return &ExecRunner{Env: env}
}

// Run executes a command and returns combined output and exit code.
func (r *ExecRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}

	out, err := cmd.CombinedOutput()
	if err == nil {
		return out, 0, nil
	}

	// A killed process also surfaces as an ExitError; report the context
	// error instead so callers can tell interruption from a failing command.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, -1, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, exitErr.ExitCode(), nil
	}
	return out, -1, err
}

// Verify ExecRunner implements CommandRunner at compile time.
var _ CommandRunner = (*ExecRunner)(nil)
