// Package fsutil provides file system utility functions.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultSpecPattern matches every spec format the compiler understands.
const DefaultSpecPattern = "**/*.{yaml,yml,json,hcl}"

// FindFiles returns all files under rootPath whose slash-separated path
// relative to rootPath matches the doublestar pattern. If rootPath is a
// regular file, it is returned when its base name matches the pattern.
// Results are sorted for deterministic load order.
func FindFiles(rootPath string, pattern string) ([]string, error) {
	if pattern == "" {
		panic("pattern must not be empty")
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid file pattern %q", pattern)
	}

	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		ok, err := doublestar.Match(pattern, filepath.Base(rootPath))
		if err != nil {
			return nil, err
		}
		if ok {
			return []string{rootPath}, nil
		}
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(rootPath), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.Join(rootPath, filepath.FromSlash(m)))
	}
	sort.Strings(files)
	return files, nil
}
