// Package compiler builds conventions from specs.
//
// Compilation runs in a fixed order: meta keys, regex validators, enum
// types, record types, attributes, and finally construction and
// registration of the Convention. The in-memory result is authoritative;
// the persisted artifact under the cache directory is a derived cache used
// to skip recompiling unchanged specs.
package compiler

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/stdattr/internal/config"
	"github.com/vk/stdattr/internal/convention"
	"github.com/vk/stdattr/internal/ctxlog"
	"github.com/vk/stdattr/internal/hcl_adapter"
	"github.com/vk/stdattr/internal/metrics"
	"github.com/vk/stdattr/internal/validator"
	"github.com/vk/stdattr/internal/yaml_adapter"
)

// Options control a single compilation.
type Options struct {
	// Overwrite replaces a convention already registered under the same
	// name, deleting its persisted artifact first.
	Overwrite bool
}

// Compiler turns specs into registered conventions.
type Compiler struct {
	lib      *validator.Library
	registry *convention.Registry
	metrics  *metrics.Metrics
	cacheDir string
	loaders  map[string]config.Loader

	mu sync.Mutex
	// generated maps a convention name to the regex validators minted for it.
	generated map[string][]string
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithCacheDir enables the persisted artifact cache rooted at dir.
func WithCacheDir(dir string) Option {
	return func(c *Compiler) { c.cacheDir = dir }
}

// WithMetrics reports compilations to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Compiler) { c.metrics = m }
}

// WithLoader adds or replaces the loader for the extensions it declares.
func WithLoader(l config.Loader) Option {
	return func(c *Compiler) {
		for _, ext := range l.Extensions() {
			c.loaders[ext] = l
		}
	}
}

// New creates a compiler registering into registry. YAML, JSON and HCL
// loaders are installed by default.
func New(lib *validator.Library, registry *convention.Registry, opts ...Option) *Compiler {
	c := &Compiler{
		lib:       lib,
		registry:  registry,
		loaders:   make(map[string]config.Loader),
		generated: make(map[string][]string),
	}
	WithLoader(yaml_adapter.NewLoader())(c)
	WithLoader(hcl_adapter.NewLoader())(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile builds the convention described by spec and registers it. If a
// convention with the same normalized name is registered and opts.Overwrite
// is false, the registered convention is returned unchanged.
func (c *Compiler) Compile(ctx context.Context, spec *config.Spec, opts Options) (*convention.Convention, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compileLocked(ctx, spec, opts)
}

func (c *Compiler) compileLocked(ctx context.Context, spec *config.Spec, opts Options) (*convention.Convention, error) {
	logger := ctxlog.FromContext(ctx).With("source", spec.Source)

	// 1. Meta keys.
	if spec.Meta.Name == "" {
		return nil, &convention.SchemaLoadError{Source: spec.Source, Reason: "missing required meta key 'name'"}
	}
	if spec.Meta.Contact == "" {
		return nil, &convention.SchemaLoadError{Source: spec.Source, Reason: "missing required meta key 'contact'"}
	}
	key := convention.NormalizeName(spec.Meta.Name)
	if key == "" {
		return nil, &convention.SchemaLoadError{Source: spec.Source, Reason: fmt.Sprintf("invalid convention name '%s'", spec.Meta.Name)}
	}
	logger = logger.With("convention", key)

	existing, err := c.registry.Get(key)
	if err == nil && !opts.Overwrite {
		logger.Debug("Convention already registered, skipping compilation.")
		return existing, nil
	}

	s := newScope(c.lib)
	conv, err := c.build(ctx, s, spec, key)
	if err != nil {
		s.rollback()
		return nil, err
	}

	// Source and Dir are final once the convention is published.
	conv.Source = c.sourceName(spec)
	if existing != nil {
		c.deleteArtifact(ctx, key)
	}
	if c.cacheDir != "" {
		dir, err := c.persist(ctx, conv, spec)
		if err != nil {
			logger.Warn("Failed to persist compiled convention.", "error", err)
		} else {
			conv.Dir = dir
		}
	}

	// 6. Registration.
	if existing != nil {
		if _, err := c.registry.Replace(conv); err != nil {
			s.rollback()
			return nil, err
		}
		c.forgetGenerated(key)
		logger.Info("Convention recompiled.", "attributes", conv.Len())
	} else {
		if _, added := c.registry.Register(conv); !added {
			s.rollback()
			return c.registry.Get(key)
		}
		logger.Info("Convention compiled.", "attributes", conv.Len())
	}
	c.generated[key] = s.minted
	c.metrics.Compiled(metrics.SourceSpec)
	return conv, nil
}

// build runs steps 2 to 5 and constructs the convention without registering
// it.
func (c *Compiler) build(ctx context.Context, s *scope, spec *config.Spec, key string) (*convention.Convention, error) {
	fail := func(reason string, err error) error {
		return &convention.SchemaLoadError{Source: spec.Source, Reason: reason, Err: err}
	}

	// 2. Regex validators, keyed by attribute position since a name may
	// repeat across container kinds.
	regexes := make(map[int]validator.Descriptor)
	funcs := make(map[int]validator.Func)
	for i, a := range spec.Attributes {
		pattern, ok := regexPattern(a.Validator)
		if !ok {
			continue
		}
		d, fn, err := s.mintRegex(pattern)
		if err != nil {
			return nil, fail(fmt.Sprintf("attribute '%s'", a.Name), err)
		}
		regexes[i] = d
		funcs[i] = fn
	}

	// 3. Enum types.
	for _, e := range spec.Enums {
		if err := s.addEnum(e.Name, e.Values); err != nil {
			return nil, fail("invalid enum", err)
		}
	}

	// 4. Record types.
	for _, r := range spec.Records {
		fields := make([]validator.FieldDescriptor, 0, len(r.Fields))
		for _, f := range r.Fields {
			fields = append(fields, validator.FieldDescriptor{Name: f.Name, Type: f.Type, Optional: f.Optional})
		}
		if err := s.addRecord(ctx, r.Name, fields); err != nil {
			return nil, fail("invalid record", err)
		}
	}

	// 5. Attributes.
	specs := make([]*convention.AttributeSpec, 0, len(spec.Attributes))
	for i, a := range spec.Attributes {
		op, err := convention.ParseOperation(a.TargetMethod)
		if err != nil {
			return nil, fail(fmt.Sprintf("attribute '%s'", a.Name), err)
		}

		desc, fn := regexes[i], funcs[i]
		if fn == nil {
			desc, fn, err = s.resolve(a.Validator)
			if err != nil {
				return nil, fail(fmt.Sprintf("attribute '%s'", a.Name), err)
			}
		}

		def := any(convention.None)
		if a.HasDefault {
			def = convention.ParseDefault(a.Default)
		}

		specs = append(specs, &convention.AttributeSpec{
			Name:         a.Name,
			Description:  convention.NormalizeDescription(a.Description),
			Validator:    desc,
			Func:         fn,
			Operation:    op,
			Default:      def,
			Position:     convention.Position{Before: a.Position.Before, After: a.Position.After},
			Requirements: append([]string(nil), a.Requirements...),
			Alternative:  a.Alternative,
		})
	}

	return assemble(convention.Meta{
		Name:        key,
		Contact:     spec.Meta.Contact,
		Institution: spec.Meta.Institution,
		Decoders:    spec.Meta.Decoders,
	}, s, specs, spec.Source)
}

// assemble adds specs to a new convention in requirement order.
func assemble(meta convention.Meta, s *scope, specs []*convention.AttributeSpec, source string) (*convention.Convention, error) {
	ordered, err := addOrder(specs)
	if err != nil {
		return nil, &convention.SchemaLoadError{Source: source, Reason: "invalid requirements", Err: err}
	}
	conv := convention.New(meta)
	conv.Types = append(conv.Types, s.order...)
	for _, a := range ordered {
		if err := conv.Add(a); err != nil {
			return nil, err
		}
	}
	return conv, nil
}

// Delete unregisters the convention and removes its persisted artifact.
func (c *Compiler) Delete(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := convention.NormalizeName(name)
	if key == "" {
		return convention.ErrNoneImmutable
	}
	_, err := c.registry.Delete(key)
	hadArtifact := c.deleteArtifact(ctx, key)
	if err != nil && !hadArtifact {
		return err
	}
	c.forgetGenerated(key)
	ctxlog.FromContext(ctx).Info("Convention deleted.", "convention", key)
	return nil
}

func (c *Compiler) forgetGenerated(key string) {
	for _, name := range c.generated[key] {
		c.lib.Unregister(name)
	}
	delete(c.generated, key)
}
