// Package suite provides the composable representation of "the tests that
// must pass" for a build.
//
// A TestSuite is either NoTests, the empty identity element, or a *Suite
// holding a set of main test files of one Kind plus nested child suites of
// other kinds. Suites are combined with Merge:
//
//   - Merge(NoTests, s) and Merge(s, NoTests) return s unchanged.
//   - Suites of the same kind coalesce their main file sets.
//   - A suite of a different kind is nested as a child. Children stay flat
//     and unique per kind, so Merge is associative.
//
// Suites are values: Merge never mutates its arguments.
package suite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ShayCichocki/autocoder/pkg/models"
)

// ResultSeparator joins the diagnostics of a suite and its children.
const ResultSeparator = "\n\n"

// Kind identifies the concrete flavor of a suite, typically the test
// framework that executes it.
type Kind string

const (
	// KindNone is the kind reported by NoTests.
	KindNone Kind = "none"
	// KindPytest suites are executed with pytest.
	KindPytest Kind = "pytest"
	// KindGoTest suites are executed with go test.
	KindGoTest Kind = "gotest"
	// KindCommand suites are executed with a configured command line.
	KindCommand Kind = "command"
)

// ErrNoRunner is returned when a suite with test files has no runner.
var ErrNoRunner = errors.New("suite has no test runner")

// Result is the outcome of running a suite.
type Result struct {
	// Success is true only if the main files and every child passed.
	Success bool
	// Diagnostics is the main run output followed by each child's
	// diagnostics, joined with ResultSeparator.
	Diagnostics string
}

// TestSuite is the closed set of suite variants: NoTests and *Suite.
type TestSuite interface {
	// Kind returns the concrete kind of the suite.
	Kind() Kind
	// TestFiles returns the transitive union of main test files that exist
	// on disk at call time.
	TestFiles() models.FileSet
	// Run executes the suite. Failing tests are reported through the
	// Result; the error is reserved for runner failures and cancellation.
	Run(ctx context.Context) (Result, error)

	sealed()
}

// NoTests is the empty suite and the identity element of Merge.
type NoTests struct{}

// Kind implements TestSuite.
func (NoTests) Kind() Kind { return KindNone }

// TestFiles implements TestSuite.
func (NoTests) TestFiles() models.FileSet { return models.NewFileSet() }

// Run implements TestSuite. An empty suite has nothing that can fail.
func (NoTests) Run(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return Result{Success: true}, nil
}

func (NoTests) sealed() {}

// IsNoTests reports whether s is the empty suite. A nil suite counts as empty.
func IsNoTests(s TestSuite) bool {
	switch v := s.(type) {
	case nil:
		return true
	case NoTests, *NoTests:
		return true
	case *Suite:
		return v == nil
	default:
		return false
	}
}

// Suite is a set of main test files of one kind plus flat children of
// other kinds.
type Suite struct {
	kind     Kind
	runner   Runner
	main     models.FileSet
	children []*Suite
}

// New creates a suite of the given kind whose main files are executed by
// runner.
func New(kind Kind, runner Runner, files ...string) *Suite {
	return &Suite{
		kind:   kind,
		runner: runner,
		main:   models.NewFileSet(files...),
	}
}

// Kind implements TestSuite.
func (s *Suite) Kind() Kind { return s.kind }

func (s *Suite) sealed() {}

// MainFiles returns a copy of the main file set, including files that no
// longer exist.
func (s *Suite) MainFiles() models.FileSet {
	return s.main.Clone()
}

// Children returns the nested suites in the order they were merged in.
func (s *Suite) Children() []TestSuite {
	out := make([]TestSuite, len(s.children))
	for i, c := range s.children {
		out[i] = c
	}
	return out
}

// TestFiles implements TestSuite.
func (s *Suite) TestFiles() models.FileSet {
	all := s.main.Clone()
	for _, c := range s.children {
		all.Update(c.main)
	}
	return all.Filter(exists)
}

// Run implements TestSuite. Main files missing from disk are skipped; if
// none remain the main run is skipped and counts as passing.
func (s *Suite) Run(ctx context.Context) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	success := true
	var mainOutput string

	files := s.main.Filter(exists).Sorted()
	if len(files) > 0 {
		if s.runner == nil {
			return Result{}, fmt.Errorf("%s: %w", s.kind, ErrNoRunner)
		}
		out, err := s.runner.Run(ctx, files)
		if err != nil {
			return Result{}, fmt.Errorf("run %s tests: %w", s.kind, err)
		}
		success = out.ExitCode == 0
		mainOutput = out.Output
	}

	parts := []string{mainOutput}
	for _, c := range s.children {
		res, err := c.Run(ctx)
		if err != nil {
			return Result{}, err
		}
		success = success && res.Success
		parts = append(parts, res.Diagnostics)
	}

	return Result{
		Success:     success,
		Diagnostics: strings.Join(parts, ResultSeparator),
	}, nil
}

// Merge combines two suites. NoTests is the identity on both sides, same
// kind suites coalesce, and other kinds are nested as children.
func Merge(a, b TestSuite) TestSuite {
	if IsNoTests(b) {
		if IsNoTests(a) {
			return NoTests{}
		}
		return a
	}
	if IsNoTests(a) {
		return b
	}

	out := a.(*Suite).clone()
	for _, part := range b.(*Suite).flatten() {
		out.absorb(part)
	}
	return out
}

// MergeAll folds Merge over suites from left to right.
func MergeAll(suites ...TestSuite) TestSuite {
	var acc TestSuite = NoTests{}
	for _, s := range suites {
		acc = Merge(acc, s)
	}
	return acc
}

// Equal reports whether two suites have the same kind, main files and
// children in the same order.
func Equal(a, b TestSuite) bool {
	if IsNoTests(a) || IsNoTests(b) {
		return IsNoTests(a) && IsNoTests(b)
	}
	sa, sb := a.(*Suite), b.(*Suite)
	if sa.kind != sb.kind || !sa.main.Equal(sb.main) || len(sa.children) != len(sb.children) {
		return false
	}
	for i := range sa.children {
		if !Equal(sa.children[i], sb.children[i]) {
			return false
		}
	}
	return true
}

// clone copies the suite and its children so the result can be mutated.
func (s *Suite) clone() *Suite {
	out := &Suite{
		kind:     s.kind,
		runner:   s.runner,
		main:     s.main.Clone(),
		children: make([]*Suite, len(s.children)),
	}
	for i, c := range s.children {
		out.children[i] = c.clone()
	}
	return out
}

// flatten returns the suite without children followed by its children.
func (s *Suite) flatten() []*Suite {
	parts := make([]*Suite, 0, len(s.children)+1)
	parts = append(parts, &Suite{kind: s.kind, runner: s.runner, main: s.main})
	parts = append(parts, s.children...)
	return parts
}

// absorb merges a childless suite into s in place.
func (s *Suite) absorb(part *Suite) {
	if part.kind == s.kind {
		s.main.Update(part.main)
		if s.runner == nil {
			s.runner = part.runner
		}
		return
	}
	for _, c := range s.children {
		if c.kind == part.kind {
			c.main.Update(part.main)
			if c.runner == nil {
				c.runner = part.runner
			}
			return
		}
	}
	s.children = append(s.children, &Suite{
		kind:   part.kind,
		runner: part.runner,
		main:   part.main.Clone(),
	})
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
