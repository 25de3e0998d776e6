package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestFindFiles(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.yaml"))
	writeFile(t, filepath.Join(root, "nested", "b.hcl"))
	writeFile(t, filepath.Join(root, "nested", "deeper", "c.json"))
	writeFile(t, filepath.Join(root, "notes.txt"))

	// --- Act ---
	files, err := FindFiles(root, DefaultSpecPattern)

	// --- Assert ---
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, "a.yaml"),
		filepath.Join(root, "nested", "b.hcl"),
		filepath.Join(root, "nested", "deeper", "c.json"),
	}, files)
}

func TestFindFiles_SingleFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	spec := filepath.Join(root, "tutorial.yaml")
	other := filepath.Join(root, "readme.md")
	writeFile(t, spec)
	writeFile(t, other)

	files, err := FindFiles(spec, DefaultSpecPattern)
	require.NoError(t, err)
	require.Equal(t, []string{spec}, files)

	files, err = FindFiles(other, DefaultSpecPattern)
	require.NoError(t, err)
	require.Empty(t, files)
}

func TestFindFiles_Errors(t *testing.T) {
	t.Parallel()

	_, err := FindFiles(filepath.Join(t.TempDir(), "missing"), DefaultSpecPattern)
	require.Error(t, err)

	_, err = FindFiles(t.TempDir(), "[")
	require.ErrorContains(t, err, "invalid file pattern")
}
