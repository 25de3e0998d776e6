// Package tree is an in-memory container tree: one root, nested groups and
// leaf records carrying data. Every creation call binds its attribute bag
// against the live surface of its operation and writes the bound
// attributes through the validation pipeline before the new container
// becomes visible.
package tree

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/stdattr/internal/activation"
	"github.com/vk/stdattr/internal/convention"
	"github.com/vk/stdattr/internal/ctxlog"
	"github.com/vk/stdattr/internal/inmemorystore"
	"github.com/vk/stdattr/internal/pipeline"
)

// Base parameter names of the creation operations.
const (
	ParamName = "name"
	ParamData = "data"
)

// RegisterOperations installs the base parameters of group and leaf
// creation on m.
func RegisterOperations(m *activation.Manager) error {
	if err := m.RegisterOperation(convention.GroupCreate,
		activation.Param{Name: ParamName, Positional: true},
	); err != nil {
		return err
	}
	return m.RegisterOperation(convention.LeafCreate,
		activation.Param{Name: ParamName, Positional: true},
		activation.Param{Name: ParamData},
	)
}

// Node is a container of the tree.
type Node struct {
	kind   convention.Kind
	name   string
	parent *Node
	p      *pipeline.Pipeline
	attrs  *inmemorystore.Store
	data   any

	mu       sync.RWMutex
	children []*Node
}

var _ convention.Node = (*Node)(nil)

// NewRoot creates a root container with the attributes in args.
func NewRoot(ctx context.Context, p *pipeline.Pipeline, args *activation.Args) (*Node, error) {
	root := &Node{kind: convention.KindRoot, p: p, attrs: inmemorystore.New()}
	if _, err := p.Apply(ctx, root, convention.RootCreate, args); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Root container created.")
	return root, nil
}

// CreateGroup adds a sub-container. args must carry its name.
func (n *Node) CreateGroup(ctx context.Context, args *activation.Args) (*Node, error) {
	if n.kind == convention.KindLeaf {
		return nil, fmt.Errorf("%s: a leaf cannot hold groups", n.Path())
	}
	return n.create(ctx, convention.GroupCreate, args)
}

// CreateLeaf adds a leaf record. args must carry its name and may carry
// its data.
func (n *Node) CreateLeaf(ctx context.Context, args *activation.Args) (*Node, error) {
	if n.kind == convention.KindLeaf {
		return nil, fmt.Errorf("%s: a leaf cannot hold leaves", n.Path())
	}
	return n.create(ctx, convention.LeafCreate, args)
}

func (n *Node) create(ctx context.Context, op convention.Operation, args *activation.Args) (*Node, error) {
	bound, err := n.p.Manager().Bind(op, args)
	if err != nil {
		return nil, err
	}
	name, err := childName(bound)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, exists := n.Child(name); exists {
		return nil, fmt.Errorf("%s: '%s' already exists", n.Path(), name)
	}

	child := &Node{kind: op.Kind(), name: name, parent: n, p: n.p, attrs: inmemorystore.New()}
	if data, ok := bound.Lookup(ParamData); ok {
		child.data = data.Value
	}
	if err := n.p.ApplyBound(ctx, child, bound); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	for _, c := range n.children {
		if c.name == name {
			return nil, fmt.Errorf("%s: '%s' already exists", n.Path(), name)
		}
	}
	n.children = append(n.children, child)
	ctxlog.FromContext(ctx).Debug("Container created.", "path", child.Path(), "kind", child.kind.String())
	return child, nil
}

func childName(bound *activation.Bound) (string, error) {
	v, _ := bound.Lookup(ParamName)
	name, ok := v.Value.(string)
	if !ok || name == "" {
		return "", fmt.Errorf("name must be a non-empty string, got %v", v.Value)
	}
	if strings.Contains(name, "/") {
		return "", fmt.Errorf("name '%s' must not contain '/'", name)
	}
	return name, nil
}

func (n *Node) Name() string { return n.name }

// Path returns "/" for the root and the slash separated names otherwise.
func (n *Node) Path() string {
	if n.parent == nil {
		return "/"
	}
	if n.parent.parent == nil {
		return "/" + n.name
	}
	return n.parent.Path() + "/" + n.name
}

func (n *Node) Kind() convention.Kind { return n.kind }

func (n *Node) Attributes() convention.AttributeStore { return n.attrs }

// Children returns the direct children in creation order.
func (n *Node) Children() []convention.Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]convention.Node, len(n.children))
	for i, c := range n.children {
		out[i] = c
	}
	return out
}

// Child returns the direct child called name.
func (n *Node) Child(name string) (*Node, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, c := range n.children {
		if c.name == name {
			return c, true
		}
	}
	return nil, false
}

// Get reads an attribute through the pipeline.
func (n *Node) Get(ctx context.Context, name string) (any, error) {
	return n.p.GetByName(ctx, n, name)
}

// Set writes an attribute through the pipeline.
func (n *Node) Set(ctx context.Context, name string, value any) error {
	return n.p.SetByName(ctx, n, name, value)
}

// Data returns the leaf's data passed through the live decoder chain.
func (n *Node) Data(ctx context.Context) (any, error) {
	return n.p.Manager().Decode(ctx, n, n.data)
}

// Validate audits the subtree rooted at n against the active convention.
func (n *Node) Validate(ctx context.Context) (convention.Report, error) {
	conv, ok := n.p.Manager().Active()
	if !ok {
		return nil, fmt.Errorf("no convention is active")
	}
	return conv.Validate(ctx, n), nil
}
