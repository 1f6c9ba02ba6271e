package generate

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/ShayCichocki/autocoder/internal/exec"
	"github.com/ShayCichocki/autocoder/internal/suite"
)

// Profile describes the language a backend generates and how its tests run.
type Profile struct {
	// Language names the language in prompts.
	Language string
	// Kind is the kind of every suite the backend returns.
	Kind suite.Kind
	// TestsDir confines test files to a directory relative to the project
	// home. Empty allows tests anywhere in the home.
	TestsDir string
	// TestSuffix is required of every test file name when non-empty.
	TestSuffix string
	// Conventions is extra guidance for test generation prompts.
	Conventions string
	// NewRunner builds the runner that executes tests in a project home.
	NewRunner func(projectHome string) suite.Runner
}

// PythonProfile generates python code tested with pytest under testsDir.
func PythonProfile(cmd exec.CommandRunner, testsDir string, timeout time.Duration) Profile {
	if testsDir == "" {
		testsDir = "tests"
	}
	return Profile{
		Language:   "Python",
		Kind:       suite.KindPytest,
		TestsDir:   testsDir,
		TestSuffix: ".py",
		Conventions: "Write pytest tests. Test files live in the " + testsDir +
			"/ directory and are named test_<module>.py. Import project modules by their path from the project root.",
		NewRunner: func(home string) suite.Runner {
			r := suite.NewPytestRunner(cmd, home)
			r.Timeout = timeout
			return r
		},
	}
}

// GoProfile generates go code tested with go test. Test files sit next to
// the package they test.
func GoProfile(cmd exec.CommandRunner, timeout time.Duration) Profile {
	return Profile{
		Language:    "Go",
		Kind:        suite.KindGoTest,
		TestSuffix:  "_test.go",
		Conventions: "Write standard library go tests in <file>_test.go files in the same directory as the code under test.",
		NewRunner: func(home string) suite.Runner {
			r := suite.NewGoTestRunner(cmd, home)
			r.Timeout = timeout
			return r
		},
	}
}

// WithCommand returns a copy of p whose test runs invoke argv in place of
// the default command. An empty argv keeps the default.
func (p Profile) WithCommand(argv ...string) Profile {
	if len(argv) == 0 || p.NewRunner == nil {
		return p
	}
	base := p.NewRunner
	argv = append([]string(nil), argv...)
	p.NewRunner = func(home string) suite.Runner {
		r := base(home)
		if cr, ok := r.(*suite.CommandTestRunner); ok {
			cr.Argv = argv
		}
		return r
	}
	return p
}

// checkTestPath reports why rel, a slash-separated path relative to the
// project home, cannot hold a test, or "" if it can.
func (p Profile) checkTestPath(rel string) string {
	if p.TestsDir != "" {
		dir := strings.Trim(filepath.ToSlash(p.TestsDir), "/") + "/"
		if !strings.HasPrefix(rel, dir) {
			return "test files must be written under " + dir
		}
	}
	if p.TestSuffix != "" && !strings.HasSuffix(rel, p.TestSuffix) {
		return "test file names must end with " + p.TestSuffix
	}
	return ""
}
