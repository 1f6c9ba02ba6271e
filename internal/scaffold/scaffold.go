// Package scaffold prepares a project home for generated code. Scaffolding
// is idempotent per language: a marker under the state directory records
// which languages a home has been prepared for, and later calls for those
// languages leave it untouched.
package scaffold

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/autocoder/internal/workspace"
	"github.com/ShayCichocki/autocoder/pkg/models"
)

// MarkerFile is the marker path relative to the project home.
var MarkerFile = filepath.Join(workspace.StateDir, "scaffold.yaml")

// Language selects the skeleton to write.
type Language string

const (
	LanguagePython Language = "python"
	LanguageGo     Language = "go"
)

// Marker is the content of the scaffold marker file.
type Marker struct {
	Languages []LanguageMarker `yaml:"languages"`
}

// LanguageMarker records one scaffolded language.
type LanguageMarker struct {
	Language  Language  `yaml:"language"`
	CreatedAt time.Time `yaml:"created_at"`
	Files     []string  `yaml:"files,omitempty"`
}

// Lookup returns the entry for lang, or nil.
func (m *Marker) Lookup(lang Language) *LanguageMarker {
	if m == nil {
		return nil
	}
	for i := range m.Languages {
		if m.Languages[i].Language == lang {
			return &m.Languages[i]
		}
	}
	return nil
}

// Scaffolder writes a language skeleton into a project home.
type Scaffolder struct {
	Language Language
	// TestsDir is the test directory relative to the home, used by the
	// python skeleton.
	TestsDir string
	// ModulePath overrides the go module path. Empty derives it from the
	// home directory name.
	ModulePath string

	now func() time.Time
}

// New creates a scaffolder for lang.
func New(lang Language, testsDir string) (*Scaffolder, error) {
	switch lang {
	case LanguagePython, LanguageGo:
	default:
		return nil, fmt.Errorf("unsupported scaffold language %q", lang)
	}
	if testsDir == "" {
		testsDir = "tests"
	}
	return &Scaffolder{Language: lang, TestsDir: testsDir, now: time.Now}, nil
}

// Scaffold writes the skeleton for the configured language and returns the
// files it created or modified. Existing files are never overwritten. A home
// already scaffolded for the same language yields an empty set.
func (s *Scaffolder) Scaffold(ctx context.Context, _ models.CodeDesign, projectHome string) (models.FileSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	created := models.NewFileSet()

	marker, err := ReadMarker(projectHome)
	if err != nil {
		return nil, err
	}
	if marker.Lookup(s.Language) != nil {
		return created, nil
	}
	if marker == nil {
		marker = &Marker{}
	}

	if err := os.MkdirAll(projectHome, 0755); err != nil {
		return nil, fmt.Errorf("create project home: %w", err)
	}

	for rel, content := range s.skeleton(projectHome) {
		path := filepath.Join(projectHome, rel)
		wrote, err := writeIfMissing(path, content)
		if err != nil {
			return created, err
		}
		if wrote {
			created.Add(path)
		}
	}

	gitignore := filepath.Join(projectHome, ".gitignore")
	changed, err := ensureLine(gitignore, workspace.StateDir+"/")
	if err != nil {
		return created, err
	}
	if changed {
		created.Add(gitignore)
	}

	entry := LanguageMarker{Language: s.Language, CreatedAt: s.clock().UTC()}
	for _, p := range created.Sorted() {
		entry.Files = append(entry.Files, workspace.Rel(projectHome, p))
	}
	marker.Languages = append(marker.Languages, entry)
	if err := writeMarker(projectHome, marker); err != nil {
		return created, err
	}

	log.Printf("[scaffold] %s skeleton written to %s (%d files)", s.Language, projectHome, created.Len())
	return created, nil
}

// ReadMarker returns the marker of projectHome, or nil if the home has not
// been scaffolded for any language.
func ReadMarker(projectHome string) (*Marker, error) {
	data, err := os.ReadFile(filepath.Join(projectHome, MarkerFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scaffold marker: %w", err)
	}
	var m Marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse scaffold marker: %w", err)
	}
	return &m, nil
}

func writeMarker(projectHome string, m *Marker) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal scaffold marker: %w", err)
	}
	path := filepath.Join(projectHome, MarkerFile)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write scaffold marker: %w", err)
	}
	return nil
}

func (s *Scaffolder) clock() time.Time {
	if s.now == nil {
		return time.Now()
	}
	return s.now()
}

func (s *Scaffolder) skeleton(projectHome string) map[string]string {
	name := projectName(projectHome)
	switch s.Language {
	case LanguageGo:
		module := s.ModulePath
		if module == "" {
			module = name
		}
		return map[string]string{
			"go.mod": fmt.Sprintf("module %s\n\ngo 1.22\n", module),
		}
	default:
		testsDir := filepath.ToSlash(s.TestsDir)
		return map[string]string{
			"pyproject.toml": fmt.Sprintf(pyproject, strings.ReplaceAll(name, "_", "-"), testsDir),
			filepath.Join(s.TestsDir, "__init__.py"): "",
			filepath.Join(s.TestsDir, "conftest.py"): conftest,
		}
	}
}

const pyproject = `[project]
name = %q
version = "0.1.0"
requires-python = ">=3.10"

[tool.pytest.ini_options]
testpaths = [%q]
pythonpath = ["."]
`

const conftest = `import os
import sys

sys.path.insert(0, os.path.abspath(os.path.join(os.path.dirname(__file__), "..")))
`

var nonIdent = regexp.MustCompile(`[^a-z0-9_]+`)

// projectName derives a package-safe name from the home directory.
func projectName(projectHome string) string {
	base := strings.ToLower(filepath.Base(filepath.Clean(projectHome)))
	name := strings.Trim(nonIdent.ReplaceAllString(base, "_"), "_")
	if name == "" {
		return "project"
	}
	return name
}

func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// ensureLine appends line to the file at path unless an identical line is
// already present.
func ensureLine(path, line string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) == line {
			return false, nil
		}
	}
	content := string(data)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += line + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
