// Package pipeline validates standard attribute values on their way into
// and out of a container's attribute store.
//
// Writes run the attribute's validator in Encode mode and persist the
// result directly into the store. Reads run it in Decode mode. A rejected
// value is a StandardAttributeError unless errors are ignored, in which case
// the failure is logged and the raw value passes through.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/vk/stdattr/internal/activation"
	"github.com/vk/stdattr/internal/convention"
	"github.com/vk/stdattr/internal/ctxlog"
	"github.com/vk/stdattr/internal/metrics"
	"github.com/vk/stdattr/internal/validator"
)

// Pipeline routes attribute reads and writes through the active convention.
type Pipeline struct {
	manager      *activation.Manager
	metrics      *metrics.Metrics
	ignoreErrors atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics reports rejected values to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithIgnoreErrors sets the initial tolerance flag.
func WithIgnoreErrors(ignore bool) Option {
	return func(p *Pipeline) { p.ignoreErrors.Store(ignore) }
}

// New creates a pipeline reading the active convention from manager.
func New(manager *activation.Manager, opts ...Option) *Pipeline {
	p := &Pipeline{manager: manager}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Manager returns the activation manager the pipeline reads from.
func (p *Pipeline) Manager() *activation.Manager { return p.manager }

// SetIgnoreErrors toggles the tolerance flag for subsequent calls.
func (p *Pipeline) SetIgnoreErrors(ignore bool) { p.ignoreErrors.Store(ignore) }

// IgnoreErrors reports the tolerance flag.
func (p *Pipeline) IgnoreErrors() bool { return p.ignoreErrors.Load() }

// Set validates value and stores it under attr on node. A nil value for an
// attribute whose default is None stores nothing.
func (p *Pipeline) Set(ctx context.Context, node convention.Node, attr *convention.AttributeSpec, value any) error {
	return p.set(ctx, node, attr, value, nil)
}

func (p *Pipeline) set(ctx context.Context, node convention.Node, attr *convention.AttributeSpec, value any, pending map[string]any) error {
	if value == nil && attr.IsOptional() {
		return nil
	}
	store := node.Attributes()
	vc := &validator.Context{
		Attribute: attr.Name,
		Path:      node.Path(),
		Mode:      validator.Encode,
		Container: store,
		Pending:   pending,
	}
	v, err := attr.Validate(ctx, value, vc)
	if err != nil {
		if ferr := p.fail(ctx, node, attr, value, validator.Encode, err); ferr != nil {
			return ferr
		}
		v = value
	}
	if err := store.Store(attr.Name, v); err != nil {
		return fmt.Errorf("failed to store attribute '%s' on %s: %w", attr.Name, node.Path(), err)
	}
	return nil
}

// Get reads attr from node and decodes it. An absent attribute yields its
// literal default, or nil for the sentinels.
func (p *Pipeline) Get(ctx context.Context, node convention.Node, attr *convention.AttributeSpec) (any, error) {
	store := node.Attributes()
	raw, ok := store.Lookup(attr.Name)
	if !ok {
		raw = attr.DefaultValue()
	}
	if raw == nil {
		return nil, nil
	}
	vc := &validator.Context{
		Attribute: attr.Name,
		Path:      node.Path(),
		Mode:      validator.Decode,
		Container: store,
	}
	v, err := attr.Validate(ctx, raw, vc)
	if err != nil {
		if ferr := p.fail(ctx, node, attr, raw, validator.Decode, err); ferr != nil {
			return nil, ferr
		}
		return raw, nil
	}
	return v, nil
}

// fail applies the tolerance policy to a rejected value. It returns nil
// when the failure is tolerated.
func (p *Pipeline) fail(ctx context.Context, node convention.Node, attr *convention.AttributeSpec, value any, mode validator.Mode, err error) error {
	tolerated := p.IgnoreErrors()
	p.metrics.ValidationFailed(attr.Name, mode.String(), tolerated)
	if !tolerated {
		return &convention.StandardAttributeError{Name: attr.Name, Value: value, Message: err.Error(), Err: err}
	}
	ctxlog.FromContext(ctx).Warn("Ignoring invalid standard attribute value.",
		"attribute", attr.Name, "path", node.Path(), "mode", mode.String(), "error", err)
	return nil
}

// spec resolves name against the active convention for the kind of node.
func (p *Pipeline) spec(node convention.Node, name string) (*convention.AttributeSpec, bool) {
	conv, ok := p.manager.Active()
	if !ok {
		return nil, false
	}
	return conv.Lookup(node.Kind(), name)
}

// SetByName writes name on node, validating it when the active convention
// defines it for the node's kind.
func (p *Pipeline) SetByName(ctx context.Context, node convention.Node, name string, value any) error {
	if attr, ok := p.spec(node, name); ok {
		return p.Set(ctx, node, attr, value)
	}
	return node.Attributes().Store(name, value)
}

// GetByName reads name from node, decoding it when the active convention
// defines it for the node's kind. Absent plain attributes read as nil.
func (p *Pipeline) GetByName(ctx context.Context, node convention.Node, name string) (any, error) {
	if attr, ok := p.spec(node, name); ok {
		return p.Get(ctx, node, attr)
	}
	v, _ := node.Attributes().Lookup(name)
	return v, nil
}

// Apply binds args to the live surface of op and writes every attribute of
// the binding to node.
func (p *Pipeline) Apply(ctx context.Context, node convention.Node, op convention.Operation, args *activation.Args) (*activation.Bound, error) {
	bound, err := p.manager.Bind(op, args)
	if err != nil {
		return nil, err
	}
	if err := p.ApplyBound(ctx, node, bound); err != nil {
		return nil, err
	}
	return bound, nil
}

// ApplyBound writes the attributes of an existing binding to node. Values
// supplied in the same call are visible to cross-field validators before
// they are persisted. Unsupplied attributes receive their literal default.
func (p *Pipeline) ApplyBound(ctx context.Context, node convention.Node, bound *activation.Bound) error {
	if node.Kind() != bound.Operation.Kind() {
		return fmt.Errorf("%s cannot apply to a %s container", bound.Operation, node.Kind())
	}
	attrs := bound.Attributes()
	pending := make(map[string]any, len(attrs))
	for _, b := range attrs {
		if b.Supplied && b.Value != nil {
			pending[b.Name] = b.Value
		}
	}
	for _, b := range attrs {
		value := b.Value
		if !b.Supplied {
			value = b.Attribute.DefaultValue()
		}
		if err := p.set(ctx, node, b.Attribute, value, pending); err != nil {
			return err
		}
	}
	ctxlog.FromContext(ctx).Debug("Applied standard attributes.", "operation", bound.Operation.String(), "path", node.Path(), "count", len(attrs))
	return nil
}
