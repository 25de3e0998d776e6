package activation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stdattr/internal/convention"
	"github.com/vk/stdattr/internal/metrics"
)

func spec(name string, op convention.Operation, def any) *convention.AttributeSpec {
	return &convention.AttributeSpec{Name: name, Operation: op, Default: def}
}

func newConvention(t *testing.T, name string, decoders []string, attrs ...*convention.AttributeSpec) *convention.Convention {
	t.Helper()
	c := convention.New(convention.Meta{Name: name, Contact: "me", Decoders: decoders})
	for _, a := range attrs {
		require.NoError(t, c.Add(a))
	}
	return c
}

type fixture struct {
	registry *convention.Registry
	manager  *Manager
	metrics  *prometheus.Registry
	a, b     *convention.Convention
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	f := &fixture{
		registry: convention.NewRegistry(),
		metrics:  reg,
	}
	f.manager = NewManager(f.registry, WithMetrics(metrics.New(reg)))
	require.NoError(t, f.manager.RegisterOperation(convention.GroupCreate, Param{Name: "name", Positional: true}))
	require.NoError(t, f.manager.RegisterOperation(convention.LeafCreate,
		Param{Name: "name", Positional: true},
		Param{Name: "data"},
	))

	f.a = newConvention(t, "a", []string{ScaleAndOffset},
		spec("title", convention.RootCreate, convention.Empty),
		spec("comment", convention.RootCreate, convention.None),
		spec("units", convention.LeafCreate, convention.Empty),
	)
	f.b = newConvention(t, "b", nil,
		spec("title", convention.RootCreate, convention.None),
		spec("version", convention.GroupCreate, "1.0"),
	)
	_, ok := f.registry.Register(f.a)
	require.True(t, ok)
	_, ok = f.registry.Register(f.b)
	require.True(t, ok)
	return f
}

func names(s Surface) []string {
	out := make([]string, len(s.Params))
	for i, p := range s.Params {
		out[i] = p.Name
	}
	return out
}

// identity compares attribute specs and sentinels by pointer.
var identity = cmp.Options{
	cmp.Comparer(func(x, y *convention.AttributeSpec) bool { return x == y }),
	cmp.Comparer(func(x, y *convention.Sentinel) bool { return x == y }),
}

func TestUse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	_, ok := f.manager.Active()
	assert.False(t, ok, "a new manager is inactive")

	// Act
	require.NoError(t, f.manager.Use(ctx, "a"))

	// Assert
	active, ok := f.manager.Active()
	require.True(t, ok)
	assert.Same(t, f.a, active)
	assert.Equal(t, []string{"title", "comment"}, names(f.manager.Surface(convention.RootCreate)))
	assert.Equal(t, []string{"name", "units", "data"}, names(f.manager.Surface(convention.LeafCreate)))
	assert.Equal(t, "root_create(title, comment=$NONE)", f.manager.Surface(convention.RootCreate).String())
	assert.Equal(t, []string{ScaleAndOffset}, f.manager.DecoderChain())

	require.NoError(t, f.manager.Use(ctx, "b"))
	assert.Equal(t, []string{"title"}, names(f.manager.Surface(convention.RootCreate)))
	assert.Equal(t, []string{"name", "data"}, names(f.manager.Surface(convention.LeafCreate)))
	assert.Equal(t, []string{"name", "version"}, names(f.manager.Surface(convention.GroupCreate)))
	assert.Empty(t, f.manager.DecoderChain())

	require.NoError(t, f.manager.Use(ctx, ""))
	active, _ = f.manager.Active()
	assert.True(t, active.IsNone())
	assert.Empty(t, f.manager.Surface(convention.RootCreate).Params)
	assert.Equal(t, float64(1), f.activations(t, "none"))
}

// activations returns the activation count recorded for conv.
func (f *fixture) activations(t *testing.T, conv string) float64 {
	t.Helper()
	mfs, err := f.metrics.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "stdattr_activations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			if m.GetLabel()[0].GetValue() == conv {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestUse_SameConventionIsNoop(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.manager.Use(ctx, "a"))
	require.NoError(t, f.manager.Use(ctx, "A"))

	assert.Equal(t, float64(1), f.activations(t, "a"))
}

func TestUse_Reversible(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	snapshot := func() map[convention.Operation]Surface {
		out := make(map[convention.Operation]Surface)
		for _, op := range convention.Operations() {
			out[op] = f.manager.Surface(op)
		}
		return out
	}

	require.NoError(t, f.manager.Use(ctx, "a"))
	first, firstChain := snapshot(), f.manager.DecoderChain()

	require.NoError(t, f.manager.Use(ctx, "b"))
	require.NoError(t, f.manager.Use(ctx, "a"))

	if diff := cmp.Diff(first, snapshot(), identity); diff != "" {
		t.Errorf("surfaces differ after use(a), use(b), use(a) (-first +now):\n%s", diff)
	}
	assert.Equal(t, firstChain, f.manager.DecoderChain())
}

func TestUse_Errors(t *testing.T) {
	t.Parallel()

	t.Run("unknown convention", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		err := f.manager.Use(context.Background(), "missing")

		var notFound *convention.ConventionNotFoundError
		require.True(t, errors.As(err, &notFound))
		_, ok := f.manager.Active()
		assert.False(t, ok)
	})

	t.Run("unknown decoder leaves the state untouched", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.manager.Use(ctx, "a"))
		before := f.manager.Surface(convention.RootCreate)

		bad := newConvention(t, "bad", []string{"nope"}, spec("other", convention.RootCreate, convention.None))
		err := f.manager.UseConvention(ctx, bad)

		assert.ErrorContains(t, err, "unknown decoder 'nope'")
		active, _ := f.manager.Active()
		assert.Same(t, f.a, active)
		if diff := cmp.Diff(before, f.manager.Surface(convention.RootCreate), identity); diff != "" {
			t.Errorf("surface changed (-before +after):\n%s", diff)
		}
	})

	t.Run("attribute shadowing a base parameter", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		bad := newConvention(t, "bad", nil, spec("name", convention.GroupCreate, convention.None))

		err := f.manager.UseConvention(context.Background(), bad)

		assert.ErrorContains(t, err, "collides with a base parameter of group_create")
	})
}

func TestUse_PositionHints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	value := spec("value", convention.LeafCreate, convention.Empty)
	units := spec("units", convention.LeafCreate, convention.Empty)
	units.Position = convention.Position{Before: "value"}
	scale := spec("scale_factor", convention.LeafCreate, 1.0)
	scale.Position = convention.Position{After: "name"}
	c := newConvention(t, "hints", nil, units, value, scale)

	require.NoError(t, f.manager.UseConvention(context.Background(), c))

	assert.Equal(t, []string{"name", "units", "value", "scale_factor", "data"},
		names(f.manager.Surface(convention.LeafCreate)),
		"a keyword parameter never moves into the positional group")
}

func TestUse_BestEffortRemoval(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Use(ctx, "a"))

	// Simulate a parameter that disappeared between activations.
	f.manager.mu.Lock()
	cur := f.manager.state.Load().clone()
	cur.surfaces[convention.RootCreate] = removeAt(cur.surfaces[convention.RootCreate], 0)
	f.manager.state.Store(cur)
	f.manager.mu.Unlock()

	require.NoError(t, f.manager.Use(ctx, "b"))
	assert.Equal(t, []string{"title"}, names(f.manager.Surface(convention.RootCreate)))
}

func TestScoped(t *testing.T) {
	t.Parallel()

	t.Run("restores on normal return", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.manager.Use(ctx, "a"))

		err := f.manager.Scoped(ctx, "b", func(context.Context) error {
			active, _ := f.manager.Active()
			assert.Same(t, f.b, active)
			return nil
		})

		require.NoError(t, err)
		active, _ := f.manager.Active()
		assert.Same(t, f.a, active)
	})

	t.Run("restores on error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.manager.Use(ctx, "a"))
		boom := errors.New("boom")

		err := f.manager.Scoped(ctx, "b", func(context.Context) error { return boom })

		assert.ErrorIs(t, err, boom)
		active, _ := f.manager.Active()
		assert.Same(t, f.a, active)
		assert.Equal(t, []string{ScaleAndOffset}, f.manager.DecoderChain())
	})

	t.Run("restores on panic", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		ctx := context.Background()
		require.NoError(t, f.manager.Use(ctx, "a"))

		assert.PanicsWithValue(t, "boom", func() {
			_ = f.manager.Scoped(ctx, "b", func(context.Context) error { panic("boom") })
		})

		active, _ := f.manager.Active()
		assert.Same(t, f.a, active)
	})

	t.Run("restores the inactive state", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		require.NoError(t, f.manager.Scoped(context.Background(), "a", func(context.Context) error { return nil }))

		_, ok := f.manager.Active()
		assert.False(t, ok)
		assert.Empty(t, f.manager.Surface(convention.RootCreate).Params)
		assert.Equal(t, []string{"name", "data"}, names(f.manager.Surface(convention.LeafCreate)))
	})

	t.Run("unknown name does not run fn", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		called := false

		err := f.manager.Scoped(context.Background(), "missing", func(context.Context) error {
			called = true
			return nil
		})

		assert.Error(t, err)
		assert.False(t, called)
	})
}

func TestGuard_ReleaseIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Use(ctx, "a"))

	g, err := f.manager.Enter(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, g.Release())
	require.NoError(t, f.manager.Use(ctx, "b"))
	require.NoError(t, g.Release())

	active, _ := f.manager.Active()
	assert.Same(t, f.b, active, "a second release does nothing")
}

func TestBind(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.manager.Use(context.Background(), "a"))

	t.Run("missing obligatory attribute", func(t *testing.T) {
		t.Parallel()
		_, err := f.manager.Bind(convention.RootCreate, NewArgs("comment", "A long enough comment"))

		var bindErr *BindError
		require.True(t, errors.As(err, &bindErr))
		assert.Equal(t, []string{"title"}, bindErr.Missing)
		assert.Equal(t, "root_create: missing required arguments: title", err.Error())
	})

	t.Run("unknown names", func(t *testing.T) {
		t.Parallel()
		_, err := f.manager.Bind(convention.LeafCreate, NewArgs("name", "x", "units", "m", "zeta", 1, "alpha", 2))

		var bindErr *BindError
		require.True(t, errors.As(err, &bindErr))
		assert.Empty(t, bindErr.Missing)
		assert.Equal(t, []string{"alpha", "zeta"}, bindErr.Unknown)
	})

	t.Run("defaults fill keyword parameters", func(t *testing.T) {
		t.Parallel()
		b, err := f.manager.Bind(convention.RootCreate, NewArgs("title", "T"))
		require.NoError(t, err)

		assert.Same(t, f.a, b.Convention)
		title, ok := b.Lookup("title")
		require.True(t, ok)
		assert.True(t, title.Supplied)
		assert.Equal(t, "T", title.Value)
		comment, ok := b.Lookup("comment")
		require.True(t, ok)
		assert.False(t, comment.Supplied)
		assert.Same(t, convention.None, comment.Value)
		assert.Len(t, b.Attributes(), 2)
	})

	t.Run("explicit nil is supplied", func(t *testing.T) {
		t.Parallel()
		b, err := f.manager.Bind(convention.RootCreate, NewArgs("title", "T", "comment", nil))
		require.NoError(t, err)
		comment, _ := b.Lookup("comment")
		assert.True(t, comment.Supplied)
		assert.Nil(t, comment.Value)
	})
}

func TestRegisterOperation_Errors(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	assert.ErrorContains(t, f.manager.RegisterOperation(convention.LeafCreate, Param{Name: "data"}), "already defined")
	assert.Error(t, f.manager.RegisterOperation(convention.LeafCreate, Param{}))
	assert.Panics(t, func() { f.manager.RegisterDecoder(ScaleAndOffset, decodeScaleAndOffset) })
}

func TestArgs(t *testing.T) {
	t.Parallel()
	a := NewArgs("b", 1, "a", nil)
	a.Set("b", 2)

	assert.Equal(t, []string{"b", "a"}, a.Names())
	v, ok := a.Lookup("a")
	assert.True(t, ok)
	assert.Nil(t, v)
	_, ok = a.Lookup("c")
	assert.False(t, ok)
	assert.Equal(t, 2, a.Len())

	var empty *Args
	assert.Zero(t, empty.Len())
	assert.Panics(t, func() { NewArgs("odd") })
}
