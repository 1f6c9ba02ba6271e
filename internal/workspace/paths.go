package workspace

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned for paths that resolve outside the project home.
var ErrPathEscape = errors.New("path escapes project home")

// Resolve turns a path proposed for writing into an absolute path inside
// home. Relative paths are joined to home; absolute paths must already lie
// inside it.
func Resolve(home, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("empty path")
	}
	absHome, err := filepath.Abs(home)
	if err != nil {
		return "", fmt.Errorf("resolve project home: %w", err)
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(absHome, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(absHome, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q: %w", path, ErrPathEscape)
	}
	return target, nil
}

// Rel returns path relative to home, or path unchanged if it is not inside
// home.
func Rel(home, path string) string {
	if !filepath.IsAbs(path) {
		return path
	}
	rel, err := filepath.Rel(home, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}
