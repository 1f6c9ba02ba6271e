package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileSet_DedupByCleanPath(t *testing.T) {
	fs := NewFileSet("src/a.py", "src/./a.py", "src//a.py", "")

	assert.Equal(t, 1, fs.Len())
	assert.True(t, fs.Contains("src/a.py"))
	assert.True(t, fs.Contains("./src/a.py"))
}

func TestFileSet_UnionDoesNotMutateReceiver(t *testing.T) {
	a := NewFileSet("a.go")
	b := NewFileSet("b.go")

	u := a.Union(b)

	assert.Equal(t, []string{"a.go", "b.go"}, u.Sorted())
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

func TestFileSet_UpdateAndEqual(t *testing.T) {
	a := NewFileSet("x", "y")
	a.Update(NewFileSet("y", "z"))

	assert.True(t, a.Equal(NewFileSet("z", "y", "x")))
	assert.False(t, a.Equal(NewFileSet("x", "y")))
}

func TestFileSet_Filter(t *testing.T) {
	fs := NewFileSet("keep.py", "drop.txt")

	kept := fs.Filter(func(p string) bool { return p == "keep.py" })

	assert.Equal(t, []string{"keep.py"}, kept.Sorted())
}

func TestDevPlan_Strings(t *testing.T) {
	plan := DevPlan{"implement parser", "implement evaluator"}

	assert.Equal(t, 2, plan.Len())
	assert.Equal(t, []string{"implement parser", "implement evaluator"}, plan.Strings())
}

func TestSpecification_Empty(t *testing.T) {
	assert.True(t, Specification("  \n").Empty())
	assert.False(t, Specification("write add(a, b)").Empty())
}
