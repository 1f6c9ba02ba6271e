package suite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ShayCichocki/autocoder/internal/exec"
)

// DefaultTimeout bounds a single test run.
const DefaultTimeout = 10 * time.Minute

// DefaultStartAttempts is how many times a runner tries to start its
// command before giving up.
const DefaultStartAttempts = 3

// RunOutput is the raw outcome of executing a set of test files.
type RunOutput struct {
	ExitCode int
	Output   string
}

// Runner executes a set of test files.
type Runner interface {
	Run(ctx context.Context, paths []string) (RunOutput, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, paths []string) (RunOutput, error)

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, paths []string) (RunOutput, error) {
	return f(ctx, paths)
}

// CommandTestRunner runs test files through an external command.
//
// A run that exceeds Timeout is reported as a failed run whose output
// notes the timeout. Failures to start the command are retried with
// exponential backoff up to StartAttempts times and then returned as an
// error. Cancellation of the caller's context is returned as ctx.Err().
type CommandTestRunner struct {
	// Argv is the command and its leading arguments.
	Argv []string
	// WorkDir is the directory the command runs in.
	WorkDir string
	// Timeout bounds a single run. Zero means DefaultTimeout.
	Timeout time.Duration
	// StartAttempts bounds start retries. Zero means DefaultStartAttempts.
	StartAttempts int
	// Args maps test file paths to trailing command arguments.
	Args func(workDir string, paths []string) []string
	// BackOff overrides the retry schedule, mainly for tests.
	BackOff backoff.BackOff

	cmd exec.CommandRunner
}

// NewCommandRunner creates a runner that invokes argv followed by the test
// file paths, made relative to workDir where possible.
func NewCommandRunner(cmd exec.CommandRunner, workDir string, argv ...string) *CommandTestRunner {
	return &CommandTestRunner{
		Argv:    argv,
		WorkDir: workDir,
		Args:    relativeArgs,
		cmd:     cmd,
	}
}

// NewPytestRunner creates a runner for `python -m pytest -q <files>`.
func NewPytestRunner(cmd exec.CommandRunner, workDir string) *CommandTestRunner {
	return NewCommandRunner(cmd, workDir, "python", "-m", "pytest", "-q")
}

// NewGoTestRunner creates a runner for `go test <package dirs>`. Test files
// are mapped to the distinct packages that contain them.
func NewGoTestRunner(cmd exec.CommandRunner, workDir string) *CommandTestRunner {
	r := NewCommandRunner(cmd, workDir, "go", "test")
	r.Args = packageArgs
	return r
}

// Run implements Runner.
func (r *CommandTestRunner) Run(ctx context.Context, paths []string) (RunOutput, error) {
	if len(r.Argv) == 0 {
		return RunOutput{}, errors.New("test runner has no command")
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attempts := r.StartAttempts
	if attempts <= 0 {
		attempts = DefaultStartAttempts
	}
	var b backoff.BackOff = r.BackOff
	if b == nil {
		b = backoff.NewExponentialBackOff()
	}

	args := append([]string{}, r.Argv[1:]...)
	if r.Args != nil {
		args = append(args, r.Args(r.WorkDir, paths)...)
	}
	name := r.Argv[0]

	op := func() (RunOutput, error) {
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		out, code, err := r.cmd.Run(runCtx, r.WorkDir, name, args...)
		if err == nil {
			return RunOutput{ExitCode: code, Output: string(out)}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RunOutput{}, backoff.Permanent(ctxErr)
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			msg := fmt.Sprintf("%s timed out after %s", strings.Join(r.Argv, " "), timeout)
			output := string(out)
			if output != "" {
				output += "\n"
			}
			return RunOutput{ExitCode: -1, Output: output + msg}, nil
		}
		return RunOutput{}, fmt.Errorf("start %s: %w", name, err)
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
	)
}

// Verify CommandTestRunner implements Runner at compile time.
var _ Runner = (*CommandTestRunner)(nil)

func relativeArgs(workDir string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, relativeTo(workDir, p))
	}
	return out
}

func packageArgs(workDir string, paths []string) []string {
	seen := make(map[string]bool)
	var pkgs []string
	for _, p := range paths {
		dir := filepath.Dir(relativeTo(workDir, p))
		pkg := "./" + filepath.ToSlash(dir)
		if dir == "." {
			pkg = "."
		} else if filepath.IsAbs(dir) {
			pkg = dir
		}
		if !seen[pkg] {
			seen[pkg] = true
			pkgs = append(pkgs, pkg)
		}
	}
	sort.Strings(pkgs)
	return pkgs
}

func relativeTo(workDir, path string) string {
	if workDir == "" || !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(workDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
