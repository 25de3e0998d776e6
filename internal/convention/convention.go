package convention

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vk/stdattr/internal/ctxlog"
	"github.com/vk/stdattr/internal/validator"
)

// Meta is the descriptive part of a convention.
type Meta struct {
	Name        string
	Contact     string
	Institution string
	// Decoders are the names of the decoder chain, in order.
	Decoders []string
}

// index keeps attribute specs by name in insertion order.
type index struct {
	order  []string
	byName map[string]*AttributeSpec
}

func newIndex() *index {
	return &index{byName: make(map[string]*AttributeSpec)}
}

func (x *index) get(name string) (*AttributeSpec, bool) {
	a, ok := x.byName[name]
	return a, ok
}

func (x *index) put(a *AttributeSpec) {
	if _, ok := x.byName[a.Name]; !ok {
		x.order = append(x.order, a.Name)
	}
	x.byName[a.Name] = a
}

func (x *index) remove(name string) bool {
	if _, ok := x.byName[name]; !ok {
		return false
	}
	delete(x.byName, name)
	for i, n := range x.order {
		if n == name {
			x.order = append(x.order[:i:i], x.order[i+1:]...)
			break
		}
	}
	return true
}

func (x *index) list() []*AttributeSpec {
	out := make([]*AttributeSpec, 0, len(x.order))
	for _, n := range x.order {
		out = append(out, x.byName[n])
	}
	return out
}

// Convention is a named set of standard attributes.
//
// The methods index maps kind -> operation -> name -> spec; the properties
// index maps kind -> name -> spec. Both reference the same spec values.
type Convention struct {
	Meta

	// Source is the base name of the spec the convention was compiled from.
	Source string
	// Dir is the persisted artifact directory, empty when not persisted.
	Dir string
	// Types are the enum and record types the convention's spec declared.
	Types []validator.Descriptor

	methods    map[Kind]map[Operation]*index
	properties map[Kind]*index
}

// New creates an empty convention.
func New(meta Meta) *Convention {
	meta.Decoders = append([]string(nil), meta.Decoders...)
	return &Convention{
		Meta:       meta,
		methods:    make(map[Kind]map[Operation]*index),
		properties: make(map[Kind]*index),
	}
}

// Add registers attr. It fails with an AttributeConflictError when the name
// is already defined for the attribute's container kind, or when any of its
// requirements is not registered yet; in the latter case every missing name
// is reported.
func (c *Convention) Add(attr *AttributeSpec) error {
	if attr == nil || attr.Name == "" {
		return fmt.Errorf("convention '%s': attribute requires a name", c.Name)
	}
	kind := attr.Kind()

	if props, ok := c.properties[kind]; ok {
		if _, exists := props.get(attr.Name); exists {
			return &AttributeConflictError{Convention: c.Name, Attribute: attr.Name, Kind: kind, Duplicate: true}
		}
	}

	if len(attr.Requirements) > 0 {
		registered := make(map[string]bool)
		for _, n := range c.Names() {
			registered[n] = true
		}
		seen := make(map[string]bool)
		var missing []string
		for _, req := range attr.Requirements {
			if !registered[req] && !seen[req] {
				seen[req] = true
				missing = append(missing, req)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return &AttributeConflictError{Convention: c.Name, Attribute: attr.Name, Kind: kind, Missing: missing}
		}
	}

	if c.properties[kind] == nil {
		c.properties[kind] = newIndex()
	}
	c.properties[kind].put(attr)

	if c.methods[kind] == nil {
		c.methods[kind] = make(map[Operation]*index)
	}
	if c.methods[kind][attr.Operation] == nil {
		c.methods[kind][attr.Operation] = newIndex()
	}
	c.methods[kind][attr.Operation].put(attr)
	return nil
}

// Pop returns a deep copy of c without the named attributes. Names that are
// not registered are ignored. c itself is not modified.
func (c *Convention) Pop(names ...string) *Convention {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	out := New(c.Meta)
	out.Source = c.Source
	out.Dir = c.Dir
	for _, d := range c.Types {
		d.Values = append([]string(nil), d.Values...)
		d.Fields = append([]validator.FieldDescriptor(nil), d.Fields...)
		out.Types = append(out.Types, d)
	}

	for _, kind := range Kinds() {
		props, ok := c.properties[kind]
		if !ok {
			continue
		}
		for _, a := range props.list() {
			if drop[a.Name] {
				continue
			}
			cp := a.Clone()
			if out.properties[kind] == nil {
				out.properties[kind] = newIndex()
			}
			out.properties[kind].put(cp)
			if out.methods[kind] == nil {
				out.methods[kind] = make(map[Operation]*index)
			}
			if out.methods[kind][cp.Operation] == nil {
				out.methods[kind][cp.Operation] = newIndex()
			}
			out.methods[kind][cp.Operation].put(cp)
		}
	}
	return out
}

// Lookup returns the attribute registered under name for kind.
func (c *Convention) Lookup(kind Kind, name string) (*AttributeSpec, bool) {
	props, ok := c.properties[kind]
	if !ok {
		return nil, false
	}
	return props.get(name)
}

// Attributes returns the attributes of kind in insertion order.
func (c *Convention) Attributes(kind Kind) []*AttributeSpec {
	props, ok := c.properties[kind]
	if !ok {
		return nil
	}
	return props.list()
}

// Methods returns the attributes injected into op, in insertion order.
func (c *Convention) Methods(kind Kind, op Operation) []*AttributeSpec {
	ops, ok := c.methods[kind]
	if !ok {
		return nil
	}
	x, ok := ops[op]
	if !ok {
		return nil
	}
	return x.list()
}

// All returns every attribute, grouped by kind in Kinds order.
func (c *Convention) All() []*AttributeSpec {
	var out []*AttributeSpec
	for _, kind := range Kinds() {
		out = append(out, c.Attributes(kind)...)
	}
	return out
}

// Names returns the distinct attribute names across all kinds, sorted.
func (c *Convention) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, x := range c.properties {
		for _, n := range x.order {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered attributes.
func (c *Convention) Len() int {
	n := 0
	for _, x := range c.properties {
		n += len(x.order)
	}
	return n
}

// IsNone reports whether c is the no-schema convention.
func (c *Convention) IsNone() bool { return c != nil && c.Name == "" }

// Validate audits the tree rooted at root in a single walk. Every obligatory
// attribute that is absent (and whose alternative is absent too) yields a
// MissingAttribute issue; every present attribute is re-validated in decode
// mode and a failure yields an InvalidAttribute issue.
func (c *Convention) Validate(ctx context.Context, root Node) Report {
	logger := ctxlog.FromContext(ctx)
	var report Report
	var walk func(n Node)
	walk = func(n Node) {
		if n == nil {
			return
		}
		store := n.Attributes()
		for _, spec := range c.Attributes(n.Kind()) {
			value, ok := store.Lookup(spec.Name)
			if !ok {
				if !spec.IsPositional() {
					continue
				}
				if spec.Alternative != "" {
					if _, alt := store.Lookup(spec.Alternative); alt {
						continue
					}
				}
				report = append(report, Issue{Kind: MissingAttribute, Path: n.Path(), Attribute: spec.Name})
				continue
			}
			vc := &validator.Context{Attribute: spec.Name, Path: n.Path(), Mode: validator.Decode, Container: store}
			if _, err := spec.Validate(ctx, value, vc); err != nil {
				report = append(report, Issue{
					Kind:      InvalidAttribute,
					Path:      n.Path(),
					Attribute: spec.Name,
					Value:     value,
					Message:   err.Error(),
				})
			}
		}
		for _, child := range n.Children() {
			walk(child)
		}
	}
	walk(root)
	logger.Debug("Convention validation finished.", "convention", c.Name, "issues", len(report))
	return report
}

// Describe renders the attributes of every operation as plain text. It is
// the documentation surface consulted by help generators.
func (c *Convention) Describe() string {
	var b strings.Builder
	title := c.Name
	if c.IsNone() {
		title = "(none)"
	}
	fmt.Fprintf(&b, "Convention %s\n", title)
	if c.Contact != "" {
		fmt.Fprintf(&b, "Contact: %s\n", c.Contact)
	}
	if c.Institution != "" {
		fmt.Fprintf(&b, "Institution: %s\n", c.Institution)
	}
	for _, op := range Operations() {
		specs := c.Methods(op.Kind(), op)
		if len(specs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", op)
		for _, a := range specs {
			req := "optional"
			if a.IsPositional() {
				req = "obligatory"
			} else if !a.IsOptional() {
				req = fmt.Sprintf("default %v", a.Default)
			}
			fmt.Fprintf(&b, "  %s (%s, %s): %s\n", a.Name, a.Validator, req, a.Description)
		}
	}
	return b.String()
}
