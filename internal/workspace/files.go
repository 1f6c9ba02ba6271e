package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/ShayCichocki/autocoder/pkg/models"
)

// File is a project file with its content.
type File struct {
	// Path is relative to the project home when the file lies inside it.
	Path    string
	Content string
}

// ReadFiles reads the given files for inclusion in a prompt. Ignored,
// missing and non-regular files are skipped; content beyond maxBytes is
// cut. A maxBytes of zero disables the cut.
func ReadFiles(home string, files models.FileSet, maxBytes int) []File {
	ign := LoadIgnore(home)
	var out []File
	for _, p := range files.Sorted() {
		if ign.Ignored(p) {
			continue
		}
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		content := string(data)
		if maxBytes > 0 && len(content) > maxBytes {
			cut := maxBytes
			for cut > 0 && !utf8.RuneStart(content[cut]) {
				cut--
			}
			content = content[:cut] + "\n... (truncated)"
		}
		out = append(out, File{Path: Rel(home, p), Content: content})
	}
	return out
}

// Snapshot captures the current content of the given files, keyed by path.
// Missing files are recorded as absent.
func Snapshot(files models.FileSet) map[string]string {
	snap := make(map[string]string, len(files))
	for p := range files {
		if data, err := os.ReadFile(p); err == nil {
			snap[p] = string(data)
		}
	}
	return snap
}

var errListLimit = errors.New("list limit reached")

// ListFiles returns up to limit non-ignored regular files under home as
// slash-separated paths relative to home. A limit of zero lists everything.
func ListFiles(home string, limit int) ([]string, error) {
	ign := LoadIgnore(home)
	var out []string
	err := filepath.WalkDir(home, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == home {
			return nil
		}
		rel, err := filepath.Rel(home, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if ign.Ignored(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ign.Ignored(rel) {
			return nil
		}
		out = append(out, rel)
		if limit > 0 && len(out) >= limit {
			return errListLimit
		}
		return nil
	})
	if err != nil && !errors.Is(err, errListLimit) {
		return out, err
	}
	return out, nil
}
