package activation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vk/stdattr/internal/convention"
	"github.com/vk/stdattr/internal/ctxlog"
	"github.com/vk/stdattr/internal/metrics"
)

// state is an immutable snapshot of the activation. Every activation builds
// a new one.
type state struct {
	// conv is nil while no convention is active.
	conv     *convention.Convention
	surfaces map[convention.Operation][]Param
	chain    []string
	decoders []Decoder
}

func (s *state) surface(op convention.Operation) []Param {
	return append([]Param(nil), s.surfaces[op]...)
}

// Manager owns the active convention, the operation surfaces and the
// decoder chain.
type Manager struct {
	registry *convention.Registry
	metrics  *metrics.Metrics

	// mu serialises activations and surface registration.
	mu    sync.Mutex
	state atomic.Pointer[state]

	decMu    sync.RWMutex
	decoders map[string]Decoder
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics reports activations to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

// NewManager creates an inactive manager resolving names in registry. The
// scale_and_offset decoder is registered.
func NewManager(registry *convention.Registry, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		decoders: make(map[string]Decoder),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(&state{surfaces: make(map[convention.Operation][]Param)})
	m.RegisterDecoder(ScaleAndOffset, decodeScaleAndOffset)
	return m
}

// RegisterDecoder adds a named decoder. It panics if the name is taken.
func (m *Manager) RegisterDecoder(name string, d Decoder) {
	m.decMu.Lock()
	defer m.decMu.Unlock()
	if _, exists := m.decoders[name]; exists {
		panic(fmt.Sprintf("decoder with name '%s' already registered", name))
	}
	m.decoders[name] = d
}

// RegisterOperation adds the base parameters of op. Each lands at the end
// of its group.
func (m *Manager) RegisterOperation(op convention.Operation, params ...Param) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.state.Load()
	surface := cur.surface(op)
	for _, p := range params {
		if p.Name == "" {
			return fmt.Errorf("%s: base parameter without a name", op)
		}
		if indexOf(surface, p.Name) >= 0 {
			return fmt.Errorf("%s: parameter '%s' is already defined", op, p.Name)
		}
		p.Attribute = nil
		surface = appendToGroup(surface, p)
	}
	next := cur.clone()
	next.surfaces[op] = surface
	m.state.Store(next)
	return nil
}

func (s *state) clone() *state {
	next := &state{
		conv:     s.conv,
		surfaces: make(map[convention.Operation][]Param, len(s.surfaces)),
		chain:    s.chain,
		decoders: s.decoders,
	}
	for op, params := range s.surfaces {
		next.surfaces[op] = append([]Param(nil), params...)
	}
	return next
}

// Active returns the active convention. ok is false while inactive.
func (m *Manager) Active() (conv *convention.Convention, ok bool) {
	s := m.state.Load()
	return s.conv, s.conv != nil
}

// Surface returns a snapshot of the live parameters of op.
func (m *Manager) Surface(op convention.Operation) Surface {
	return Surface{Operation: op, Params: m.state.Load().surface(op)}
}

// DecoderChain returns the names of the live decoders in order.
func (m *Manager) DecoderChain() []string {
	return append([]string(nil), m.state.Load().chain...)
}

// Use activates the convention registered under name. The empty name
// selects the no-schema convention.
func (m *Manager) Use(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, err := m.registry.Get(name)
	if err != nil {
		return err
	}
	return m.useLocked(ctx, target)
}

// UseConvention activates c, which need not be registered.
func (m *Manager) UseConvention(ctx context.Context, c *convention.Convention) error {
	if c == nil {
		return fmt.Errorf("cannot activate a nil convention")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.useLocked(ctx, c)
}

// Deactivate removes the injected parameters and decoders of the active
// convention and returns to the inactive state.
func (m *Manager) Deactivate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivateLocked(ctx)
}

func (m *Manager) deactivateLocked(ctx context.Context) {
	cur := m.state.Load()
	if cur.conv == nil {
		return
	}
	next := cur.clone()
	removeInjected(next, cur.conv)
	next.conv, next.chain, next.decoders = nil, nil, nil
	m.state.Store(next)
	ctxlog.FromContext(ctx).Debug("Convention deactivated.", "convention", cur.conv.Name)
}

func (m *Manager) useLocked(ctx context.Context, target *convention.Convention) error {
	logger := ctxlog.FromContext(ctx).With("convention", target.Name)
	cur := m.state.Load()
	if cur.conv == target {
		logger.Debug("Convention is already active.")
		return nil
	}

	// Everything that can fail is checked before the state changes.
	decoders, err := m.resolveDecoders(target)
	if err != nil {
		return err
	}
	for _, op := range convention.Operations() {
		for _, a := range target.Methods(op.Kind(), op) {
			for _, p := range cur.surfaces[op] {
				if p.Name == a.Name && !p.Injected() {
					return fmt.Errorf("convention '%s': attribute '%s' collides with a base parameter of %s", target.Name, a.Name, op)
				}
			}
		}
	}

	next := cur.clone()
	if cur.conv != nil {
		removeInjected(next, cur.conv)
	}
	next.chain, next.decoders = nil, nil

	for _, op := range convention.Operations() {
		next.surfaces[op] = inject(next.surfaces[op], target.Methods(op.Kind(), op))
	}

	next.chain = append([]string(nil), target.Decoders...)
	next.decoders = decoders
	next.conv = target
	m.state.Store(next)

	m.metrics.Activated(target.Name)
	if target.IsNone() {
		logger.Info("No-schema convention activated.")
	} else {
		logger.Info("Convention activated.", "attributes", target.Len(), "decoders", next.chain)
	}
	return nil
}

func (m *Manager) resolveDecoders(c *convention.Convention) ([]Decoder, error) {
	m.decMu.RLock()
	defer m.decMu.RUnlock()
	out := make([]Decoder, 0, len(c.Decoders))
	for _, name := range c.Decoders {
		d, ok := m.decoders[name]
		if !ok {
			return nil, fmt.Errorf("convention '%s' declares unknown decoder '%s'", c.Name, name)
		}
		out = append(out, d)
	}
	return out, nil
}

// removeInjected drops the parameters injected for c. Parameters that are
// already gone are ignored.
func removeInjected(s *state, c *convention.Convention) {
	for _, op := range convention.Operations() {
		params := s.surfaces[op]
		for _, a := range c.Methods(op.Kind(), op) {
			if i := indexOf(params, a.Name); i >= 0 && params[i].Injected() {
				params = removeAt(params, i)
			}
		}
		s.surfaces[op] = params
	}
}

// inject appends one parameter per attribute at the end of its group, then
// moves the ones carrying a position hint.
func inject(params []Param, attrs []*convention.AttributeSpec) []Param {
	for _, a := range attrs {
		params = appendToGroup(params, Param{
			Name:       a.Name,
			Positional: a.IsPositional(),
			Default:    a.Default,
			Attribute:  a,
		})
	}
	for _, a := range attrs {
		if a.Position.IsZero() {
			continue
		}
		params, _ = place(params, indexOf(params, a.Name))
	}
	return params
}

// Enter activates name and returns a guard restoring the previously active
// convention.
func (m *Manager) Enter(ctx context.Context, name string) (*Guard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, err := m.registry.Get(name)
	if err != nil {
		return nil, err
	}
	prev := m.state.Load().conv
	if err := m.useLocked(ctx, target); err != nil {
		return nil, err
	}
	return &Guard{m: m, ctx: ctx, prev: prev}, nil
}

// Scoped runs fn with name active. The previously active convention is
// restored when fn returns, fails or panics.
func (m *Manager) Scoped(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	g, err := m.Enter(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := g.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn(ctx)
}

// Guard restores the convention that was active when it was created.
type Guard struct {
	m    *Manager
	ctx  context.Context
	prev *convention.Convention
	once sync.Once
	err  error
}

// Release restores the previous convention. Calls after the first return
// the first result.
func (g *Guard) Release() error {
	g.once.Do(func() {
		g.m.mu.Lock()
		defer g.m.mu.Unlock()
		if g.prev == nil {
			g.m.deactivateLocked(g.ctx)
			return
		}
		g.err = g.m.useLocked(g.ctx, g.prev)
	})
	return g.err
}

// Bound is the result of binding an attribute bag to a surface.
type Bound struct {
	Operation convention.Operation
	// Convention is the convention whose surface was bound, nil if none was
	// active.
	Convention *convention.Convention
	Values     []BoundValue
}

// BoundValue is one parameter with the value it received.
type BoundValue struct {
	Param
	Value any
	// Supplied is false when Value is the parameter's default.
	Supplied bool
}

// Lookup returns the bound parameter called name.
func (b *Bound) Lookup(name string) (BoundValue, bool) {
	for _, v := range b.Values {
		if v.Name == name {
			return v, true
		}
	}
	return BoundValue{}, false
}

// Attributes returns the injected parameters in surface order.
func (b *Bound) Attributes() []BoundValue {
	var out []BoundValue
	for _, v := range b.Values {
		if v.Injected() {
			out = append(out, v)
		}
	}
	return out
}

// Bind checks args against the live surface of op. Every missing
// positional parameter and every unknown name is reported.
func (m *Manager) Bind(op convention.Operation, args *Args) (*Bound, error) {
	s := m.state.Load()
	params := s.surfaces[op]
	b := &Bound{Operation: op, Convention: s.conv, Values: make([]BoundValue, 0, len(params))}

	var missing []string
	for _, p := range params {
		v, ok := args.Lookup(p.Name)
		switch {
		case ok:
			b.Values = append(b.Values, BoundValue{Param: p, Value: v, Supplied: true})
		case p.Positional:
			missing = append(missing, p.Name)
		default:
			b.Values = append(b.Values, BoundValue{Param: p, Value: p.Default})
		}
	}
	var unknown []string
	for _, name := range args.Names() {
		if indexOf(params, name) < 0 {
			unknown = append(unknown, name)
		}
	}
	if len(missing) > 0 || len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &BindError{Operation: op, Missing: missing, Unknown: unknown}
	}
	return b, nil
}

// Decode runs the live decoder chain over a value read from node.
func (m *Manager) Decode(ctx context.Context, node convention.Node, value any) (any, error) {
	s := m.state.Load()
	var attrs convention.AttributeStore
	if node != nil {
		attrs = node.Attributes()
	}
	for i, d := range s.decoders {
		var err error
		if value, err = d(ctx, attrs, value); err != nil {
			return nil, fmt.Errorf("decoder '%s': %w", s.chain[i], err)
		}
	}
	return value, nil
}
