package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vk/stdattr/internal/config"
	"github.com/vk/stdattr/internal/convention"
	"github.com/vk/stdattr/internal/ctxlog"
	"github.com/vk/stdattr/internal/metrics"
	"github.com/vk/stdattr/internal/validator"
)

const (
	artifactFile    = "convention.yaml"
	artifactVersion = 1
	// defaultSourceName is used for specs that were not read from a file.
	defaultSourceName = "source.yaml"
)

// artifact is the serialized compiled form of a convention.
type artifact struct {
	Version     int                    `yaml:"version"`
	Name        string                 `yaml:"name"`
	Contact     string                 `yaml:"contact"`
	Institution string                 `yaml:"institution,omitempty"`
	Decoders    []string               `yaml:"decoders,omitempty"`
	Source      string                 `yaml:"source"`
	Types       []validator.Descriptor `yaml:"types,omitempty"`
	Attributes  []artifactAttribute    `yaml:"attributes"`
}

type artifactAttribute struct {
	Name         string               `yaml:"name"`
	Description  string               `yaml:"description,omitempty"`
	Validator    validator.Descriptor `yaml:"validator"`
	TargetMethod string               `yaml:"target_method"`
	Default      any                  `yaml:"default_value"`
	Requirements []string             `yaml:"requirements,omitempty"`
	Position     convention.Position  `yaml:"position,omitempty"`
	Alternative  string               `yaml:"alternative_standard_attribute,omitempty"`
}

func (c *Compiler) artifactDir(key string) string {
	return filepath.Join(c.cacheDir, key)
}

// sourceName is the file name under which the verbatim spec is kept.
func (c *Compiler) sourceName(spec *config.Spec) string {
	base := filepath.Base(spec.Source)
	if _, ok := c.loaders[filepath.Ext(base)]; ok {
		return base
	}
	return defaultSourceName
}

// persist writes the artifact directory of conv: the compiled form and a
// verbatim copy of the spec under conv.Source. It returns the directory and
// leaves conv untouched.
func (c *Compiler) persist(ctx context.Context, conv *convention.Convention, spec *config.Spec) (string, error) {
	dir := c.artifactDir(conv.Name)
	if err := os.MkdirAll(c.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", c.cacheDir, err)
	}
	// Another process may be compiling the same name.
	if err := os.Mkdir(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}

	a := artifact{
		Version:     artifactVersion,
		Name:        conv.Name,
		Contact:     conv.Contact,
		Institution: conv.Institution,
		Decoders:    conv.Decoders,
		Source:      conv.Source,
		Types:       conv.Types,
	}
	for _, attr := range conv.All() {
		a.Attributes = append(a.Attributes, artifactAttribute{
			Name:         attr.Name,
			Description:  attr.Description,
			Validator:    attr.Validator,
			TargetMethod: attr.Operation.String(),
			Default:      convention.FormatDefault(attr.Default),
			Requirements: attr.Requirements,
			Position:     attr.Position,
			Alternative:  attr.Alternative,
		})
	}
	data, err := yaml.Marshal(&a)
	if err != nil {
		return "", fmt.Errorf("failed to serialize convention '%s': %w", conv.Name, err)
	}

	if err := writeFileAtomic(dir, conv.Source, spec.Raw); err != nil {
		return "", err
	}
	if err := writeFileAtomic(dir, artifactFile, data); err != nil {
		return "", err
	}
	ctxlog.FromContext(ctx).Debug("Persisted compiled convention.", "convention", conv.Name, "dir", dir)
	return dir, nil
}

// writeFileAtomic writes data to dir/name through a temporary file so that
// readers never observe a partial file.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// deleteArtifact removes the artifact directory of key and reports whether
// one existed.
func (c *Compiler) deleteArtifact(ctx context.Context, key string) bool {
	if c.cacheDir == "" || key == "" {
		return false
	}
	dir := c.artifactDir(key)
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	if err := os.RemoveAll(dir); err != nil {
		ctxlog.FromContext(ctx).Warn("Failed to remove persisted convention.", "dir", dir, "error", err)
	}
	return true
}

// cacheMatches reports whether the artifact of key holds a source copy
// identical to spec.
func (c *Compiler) cacheMatches(key string, spec *config.Spec) bool {
	if c.cacheDir == "" {
		return false
	}
	dir := c.artifactDir(key)
	if _, err := os.Stat(filepath.Join(dir, artifactFile)); err != nil {
		return false
	}
	cached, err := os.ReadFile(filepath.Join(dir, c.sourceName(spec)))
	if err != nil {
		return false
	}
	return bytes.Equal(cached, spec.Raw)
}

// LoadCached rebuilds a convention from its persisted artifact and registers
// it. A convention already registered under name is returned unchanged.
func (c *Compiler) LoadCached(ctx context.Context, name string) (*convention.Convention, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadCachedLocked(ctx, convention.NormalizeName(name))
}

func (c *Compiler) loadCachedLocked(ctx context.Context, key string) (*convention.Convention, error) {
	if existing, err := c.registry.Get(key); err == nil {
		return existing, nil
	}
	if c.cacheDir == "" || key == "" {
		return nil, &convention.ConventionNotFoundError{Name: key}
	}

	dir := c.artifactDir(key)
	path := filepath.Join(dir, artifactFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &convention.ConventionNotFoundError{Name: key}
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var a artifact
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, &convention.SchemaLoadError{Source: path, Reason: "corrupt artifact", Err: err}
	}
	if a.Version != artifactVersion {
		return nil, &convention.SchemaLoadError{Source: path, Reason: fmt.Sprintf("unsupported artifact version %d", a.Version)}
	}

	s := newScope(c.lib)
	conv, err := c.rebuild(ctx, s, &a, path)
	if err != nil {
		s.rollback()
		return nil, err
	}
	conv.Source = a.Source
	conv.Dir = dir

	if _, added := c.registry.Register(conv); !added {
		s.rollback()
		return c.registry.Get(key)
	}
	c.generated[conv.Name] = s.minted
	c.metrics.Compiled(metrics.SourceCache)
	ctxlog.FromContext(ctx).Info("Convention loaded from cache.", "convention", conv.Name, "attributes", conv.Len())
	return conv, nil
}

func (c *Compiler) rebuild(ctx context.Context, s *scope, a *artifact, path string) (*convention.Convention, error) {
	fail := func(reason string, err error) error {
		return &convention.SchemaLoadError{Source: path, Reason: reason, Err: err}
	}
	for _, d := range a.Types {
		var err error
		switch d.Kind {
		case validator.KindEnum:
			err = s.addEnum(d.Name, d.Values)
		case validator.KindRecord:
			err = s.addRecord(ctx, d.Name, d.Fields)
		default:
			err = fmt.Errorf("type '%s' has unknown kind '%s'", d.Name, d.Kind)
		}
		if err != nil {
			return nil, fail("invalid type", err)
		}
	}

	specs := make([]*convention.AttributeSpec, 0, len(a.Attributes))
	for _, entry := range a.Attributes {
		op, err := convention.ParseOperation(entry.TargetMethod)
		if err != nil {
			return nil, fail(fmt.Sprintf("attribute '%s'", entry.Name), err)
		}
		desc, fn, err := s.resolveDescriptor(entry.Validator)
		if err != nil {
			return nil, fail(fmt.Sprintf("attribute '%s'", entry.Name), err)
		}
		specs = append(specs, &convention.AttributeSpec{
			Name:         entry.Name,
			Description:  entry.Description,
			Validator:    desc,
			Func:         fn,
			Operation:    op,
			Default:      convention.ParseDefault(entry.Default),
			Position:     entry.Position,
			Requirements: entry.Requirements,
			Alternative:  entry.Alternative,
		})
	}

	return assemble(convention.Meta{
		Name:        a.Name,
		Contact:     a.Contact,
		Institution: a.Institution,
		Decoders:    a.Decoders,
	}, s, specs, path)
}

// LoadAllCached registers every convention found in the cache directory.
// Unreadable artifacts are logged and skipped.
func (c *Compiler) LoadAllCached(ctx context.Context) ([]*convention.Convention, error) {
	if c.cacheDir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache directory %s: %w", c.cacheDir, err)
	}

	logger := ctxlog.FromContext(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()

	var loaded []*convention.Convention
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		conv, err := c.loadCachedLocked(ctx, e.Name())
		if err != nil {
			logger.Warn("Skipping unreadable cached convention.", "name", e.Name(), "error", err)
			continue
		}
		loaded = append(loaded, conv)
	}
	return loaded, nil
}
