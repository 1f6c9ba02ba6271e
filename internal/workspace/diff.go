package workspace

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffStats summarizes line changes between two snapshots.
type DiffStats struct {
	FilesChanged int
	LinesAdded   int
	LinesRemoved int
}

// Diff compares two snapshots taken with Snapshot. Files present only in
// after count as fully added, files only in before as fully removed.
func Diff(before, after map[string]string) DiffStats {
	var stats DiffStats
	seen := make(map[string]bool, len(after))

	for path, newContent := range after {
		seen[path] = true
		oldContent := before[path]
		if oldContent == newContent {
			continue
		}
		added, removed := lineChanges(oldContent, newContent)
		stats.FilesChanged++
		stats.LinesAdded += added
		stats.LinesRemoved += removed
	}
	for path, oldContent := range before {
		if seen[path] {
			continue
		}
		stats.FilesChanged++
		stats.LinesRemoved += countLines(oldContent)
	}
	return stats
}

func lineChanges(oldContent, newContent string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldContent, newContent)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(d.Text)
		}
	}
	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}
