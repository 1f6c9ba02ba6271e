package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShayCichocki/autocoder/pkg/models"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIgnore(t *testing.T) {
	home := t.TempDir()
	write(t, filepath.Join(home, ".gitignore"), "*.log\nbuild/\n")
	write(t, filepath.Join(home, StateDir, "ignore"), "secrets.txt\n")

	ign := LoadIgnore(home)

	assert.True(t, ign.Ignored("debug.log"))
	assert.True(t, ign.Ignored(filepath.Join(home, "build", "out.bin")))
	assert.True(t, ign.Ignored("secrets.txt"))
	assert.True(t, ign.Ignored(filepath.Join(StateDir, "logs", "build.log")))
	assert.True(t, ign.Ignored("pkg/__pycache__/x.pyc"))
	assert.False(t, ign.Ignored("src/main.py"))
	assert.False(t, ign.Ignored("/elsewhere/debug.txt"))
}

func TestResolve(t *testing.T) {
	home := t.TempDir()

	got, err := Resolve(home, "src/app.py")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "src", "app.py"), got)

	got, err = Resolve(home, filepath.Join(home, "tests", "test_app.py"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "tests", "test_app.py"), got)

	for _, bad := range []string{"../outside.py", "src/../../x", "/etc/passwd", "."} {
		_, err := Resolve(home, bad)
		assert.ErrorIs(t, err, ErrPathEscape, bad)
	}
	_, err = Resolve(home, " ")
	assert.Error(t, err)
}

func TestReadFiles(t *testing.T) {
	home := t.TempDir()
	write(t, filepath.Join(home, ".gitignore"), "*.log\n")
	keep := filepath.Join(home, "app.py")
	long := filepath.Join(home, "long.py")
	write(t, keep, "print('hi')\n")
	write(t, long, "0123456789")
	write(t, filepath.Join(home, "run.log"), "noise")

	files := ReadFiles(home, models.NewFileSet(
		keep, long,
		filepath.Join(home, "run.log"),
		filepath.Join(home, "missing.py"),
		home,
	), 4)

	require.Len(t, files, 2)
	assert.Equal(t, File{Path: "app.py", Content: "prin\n... (truncated)"}, files[0])
	assert.Equal(t, "long.py", files[1].Path)
}

func TestSnapshotAndDiff(t *testing.T) {
	home := t.TempDir()
	a := filepath.Join(home, "a.py")
	b := filepath.Join(home, "b.py")
	c := filepath.Join(home, "c.py")
	write(t, a, "one\ntwo\nthree\n")
	write(t, b, "gone\n")

	set := models.NewFileSet(a, b, c)
	before := Snapshot(set)
	assert.Len(t, before, 2)

	write(t, a, "one\nTWO\nthree\nfour\n")
	require.NoError(t, os.Remove(b))
	write(t, c, "new\nfile")

	stats := Diff(before, Snapshot(set))
	assert.Equal(t, DiffStats{FilesChanged: 3, LinesAdded: 4, LinesRemoved: 2}, stats)
}

func TestDiff_NoChanges(t *testing.T) {
	snap := map[string]string{"a": "x\n"}
	assert.Equal(t, DiffStats{}, Diff(snap, snap))
}

func TestListFiles(t *testing.T) {
	home := t.TempDir()
	write(t, filepath.Join(home, "app.py"), "x")
	write(t, filepath.Join(home, "pkg", "util.py"), "y")
	write(t, filepath.Join(home, ".autocoder", "scaffold.yaml"), "language: python")
	write(t, filepath.Join(home, "pkg", "__pycache__", "util.cpython-311.pyc"), "z")

	files, err := ListFiles(home, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py", "pkg/util.py"}, files)

	limited, err := ListFiles(home, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
