package models

import (
	"path/filepath"
	"sort"
)

// FileSet is a set of file-system paths deduplicated by cleaned path identity.
// The zero value is not usable; create sets with NewFileSet.
type FileSet map[string]struct{}

// NewFileSet creates a set holding the given paths.
func NewFileSet(paths ...string) FileSet {
	fs := make(FileSet, len(paths))
	for _, p := range paths {
		fs.Add(p)
	}
	return fs
}

// Add inserts a path. Empty paths are ignored.
func (fs FileSet) Add(path string) {
	if path == "" {
		return
	}
	fs[filepath.Clean(path)] = struct{}{}
}

// Contains reports whether the set holds the path.
func (fs FileSet) Contains(path string) bool {
	_, ok := fs[filepath.Clean(path)]
	return ok
}

// Len returns the number of paths in the set.
func (fs FileSet) Len() int {
	return len(fs)
}

// Update adds every path of other to fs in place.
func (fs FileSet) Update(other FileSet) {
	for p := range other {
		fs[p] = struct{}{}
	}
}

// Union returns a new set holding the paths of fs and every other set.
func (fs FileSet) Union(others ...FileSet) FileSet {
	out := make(FileSet, len(fs))
	out.Update(fs)
	for _, o := range others {
		out.Update(o)
	}
	return out
}

// Clone returns a copy of the set.
func (fs FileSet) Clone() FileSet {
	return fs.Union()
}

// Filter returns the subset of paths for which keep returns true.
func (fs FileSet) Filter(keep func(path string) bool) FileSet {
	out := make(FileSet)
	for p := range fs {
		if keep(p) {
			out[p] = struct{}{}
		}
	}
	return out
}

// Sorted returns the paths in lexical order.
func (fs FileSet) Sorted() []string {
	out := make([]string, 0, len(fs))
	for p := range fs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether both sets hold the same paths.
func (fs FileSet) Equal(other FileSet) bool {
	if len(fs) != len(other) {
		return false
	}
	for p := range fs {
		if _, ok := other[p]; !ok {
			return false
		}
	}
	return true
}
