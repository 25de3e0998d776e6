package compiler

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/stdattr/internal/config"
	"github.com/vk/stdattr/internal/convention"
	"github.com/vk/stdattr/internal/ctxlog"
	"github.com/vk/stdattr/internal/fsutil"
)

// Extensions lists the spec file extensions the compiler can read.
func (c *Compiler) Extensions() []string {
	exts := make([]string, 0, len(c.loaders))
	for ext := range c.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (c *Compiler) loaderFor(path string) (config.Loader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := c.loaders[ext]
	if !ok {
		return nil, &convention.SchemaLoadError{Source: path, Reason: fmt.Sprintf("unsupported spec format '%s'", ext)}
	}
	return l, nil
}

// Parse reads a spec file without compiling it.
func (c *Compiler) Parse(ctx context.Context, path string) (*config.Spec, error) {
	l, err := c.loaderFor(path)
	if err != nil {
		return nil, err
	}
	spec, err := l.Load(ctx, path)
	if err != nil {
		return nil, &convention.SchemaLoadError{Source: path, Reason: "malformed spec", Err: err}
	}
	return spec, nil
}

// CompileFile compiles the spec at path. When the cache holds an identical
// copy of the spec, the convention is rebuilt from the cache instead.
func (c *Compiler) CompileFile(ctx context.Context, path string, opts Options) (*convention.Convention, error) {
	spec, err := c.Parse(ctx, path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := convention.NormalizeName(spec.Meta.Name)
	if !opts.Overwrite && key != "" && c.cacheMatches(key, spec) {
		conv, err := c.loadCachedLocked(ctx, key)
		if err == nil {
			return conv, nil
		}
		ctxlog.FromContext(ctx).Warn("Cached convention is unusable, recompiling.", "convention", key, "error", err)
	}
	return c.compileLocked(ctx, spec, opts)
}

// CompileDir compiles every spec under dir matching pattern. An empty
// pattern matches all supported formats. Compilation stops at the first
// failing spec.
func (c *Compiler) CompileDir(ctx context.Context, dir, pattern string, opts Options) ([]*convention.Convention, error) {
	logger := ctxlog.FromContext(ctx)
	if pattern == "" {
		pattern = fsutil.DefaultSpecPattern
	}
	paths, err := fsutil.FindFiles(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to discover spec files in %s: %w", dir, err)
	}
	if len(paths) == 0 {
		logger.Warn("No spec files found in path", "path", dir, "pattern", pattern)
		return nil, nil
	}
	logger.Debug("Found spec files to compile", "files", paths)

	convs := make([]*convention.Convention, 0, len(paths))
	for _, path := range paths {
		if _, err := c.loaderFor(path); err != nil {
			logger.Debug("Skipping file with unsupported format.", "path", path)
			continue
		}
		conv, err := c.CompileFile(ctxlog.With(ctx, "path", path), path, opts)
		if err != nil {
			return convs, err
		}
		convs = append(convs, conv)
	}
	return convs, nil
}
