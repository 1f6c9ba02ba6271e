// Package workspace provides helpers for reading and writing files inside a
// project home: ignore rules, path resolution, content snapshots and diffs.
package workspace

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// StateDir is the per-project directory holding build state, logs and
// signals. It is always ignored.
const StateDir = ".autocoder"

// defaultIgnoreRules are applied to every project home.
var defaultIgnoreRules = []string{
	StateDir + "/",
	".git/",
	".venv/",
	"**/__pycache__/",
	"**/.pytest_cache/",
	"**/node_modules/",
	"*.pyc",
}

// Ignore matches project paths against the project's ignore rules.
type Ignore struct {
	root    string
	matcher *ignore.GitIgnore
}

// LoadIgnore reads .gitignore and .autocoder/ignore under root and combines
// them with the default rules.
func LoadIgnore(root string) *Ignore {
	rules := append([]string{}, defaultIgnoreRules...)
	for _, p := range []string{
		filepath.Join(root, ".gitignore"),
		filepath.Join(root, StateDir, "ignore"),
	} {
		if lines, err := readIgnoreFile(p); err == nil {
			rules = append(rules, lines...)
		}
	}
	return &Ignore{
		root:    root,
		matcher: ignore.CompileIgnoreLines(rules...),
	}
}

// Ignored reports whether path, absolute or relative to the root, is
// excluded. Paths outside the root are never ignored.
func (i *Ignore) Ignored(path string) bool {
	if i == nil || i.matcher == nil {
		return false
	}
	rel := path
	if filepath.IsAbs(path) {
		r, err := filepath.Rel(i.root, path)
		if err != nil || strings.HasPrefix(r, "..") {
			return false
		}
		rel = r
	}
	return i.matcher.MatchesPath(filepath.ToSlash(rel))
}

func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
