package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stdattr/internal/activation"
	"github.com/vk/stdattr/internal/compiler"
	"github.com/vk/stdattr/internal/convention"
	"github.com/vk/stdattr/internal/inmemorystore"
	"github.com/vk/stdattr/internal/metrics"
	stdtestutil "github.com/vk/stdattr/internal/testutil"
	"github.com/vk/stdattr/internal/validator"
	"github.com/vk/stdattr/internal/yaml_adapter"
)

type node struct {
	path  string
	kind  convention.Kind
	attrs *inmemorystore.Store
}

func newNode(path string, kind convention.Kind) *node {
	return &node{path: path, kind: kind, attrs: inmemorystore.New()}
}

func (n *node) Path() string { return n.path }

func (n *node) Kind() convention.Kind { return n.kind }

func (n *node) Attributes() convention.AttributeStore { return n.attrs }

func (n *node) Children() []convention.Node { return nil }

type fixture struct {
	manager  *activation.Manager
	pipeline *Pipeline
	metrics  *prometheus.Registry
}

// newFixture compiles the given specs and activates the first one.
func newFixture(t *testing.T, ctx context.Context, specs ...string) *fixture {
	t.Helper()
	registry := convention.NewRegistry()
	comp := compiler.New(validator.NewLibrary(), registry)
	var first string
	for _, src := range specs {
		spec, err := yaml_adapter.NewLoader().Parse(ctx, "spec.yaml", []byte(src))
		require.NoError(t, err)
		conv, err := comp.Compile(ctx, spec, compiler.Options{})
		require.NoError(t, err)
		if first == "" {
			first = conv.Name
		}
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	f := &fixture{
		manager: activation.NewManager(registry, activation.WithMetrics(m)),
		metrics: reg,
	}
	require.NoError(t, f.manager.RegisterOperation(convention.LeafCreate, activation.Param{Name: "name", Positional: true}))
	f.pipeline = New(f.manager, WithMetrics(m))
	require.NoError(t, f.manager.Use(ctx, first))
	return f
}

func (f *fixture) attr(t *testing.T, kind convention.Kind, name string) *convention.AttributeSpec {
	t.Helper()
	conv, ok := f.manager.Active()
	require.True(t, ok)
	a, ok := conv.Lookup(kind, name)
	require.True(t, ok, "attribute %s", name)
	return a
}

func TestApply_TitleComment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, ctx, stdtestutil.TitleCommentSpec)

	t.Run("omitting the obligatory title fails at call time", func(t *testing.T) {
		t.Parallel()
		root := newNode("/", convention.KindRoot)

		_, err := f.pipeline.Apply(ctx, root, convention.RootCreate, activation.NewArgs("comment", "A valid comment"))

		var bindErr *activation.BindError
		require.True(t, errors.As(err, &bindErr))
		assert.Equal(t, []string{"title"}, bindErr.Missing)
		assert.Empty(t, root.attrs.Names(), "nothing is written")
	})

	t.Run("a comment violating the regex is rejected", func(t *testing.T) {
		t.Parallel()
		root := newNode("/", convention.KindRoot)

		_, err := f.pipeline.Apply(ctx, root, convention.RootCreate, activation.NewArgs("title", "T", "comment", "1 invalid"))

		var attrErr *convention.StandardAttributeError
		require.True(t, errors.As(err, &attrErr))
		assert.Equal(t, "comment", attrErr.Name)
		assert.Equal(t, "1 invalid", attrErr.Value)
		assert.Contains(t, attrErr.Message, "does not match the regular expression")
	})

	t.Run("a nil comment persists nothing", func(t *testing.T) {
		t.Parallel()
		root := newNode("/", convention.KindRoot)

		bound, err := f.pipeline.Apply(ctx, root, convention.RootCreate, activation.NewArgs("title", "T", "comment", nil))

		require.NoError(t, err)
		assert.Equal(t, []string{"title"}, root.attrs.Names())
		assert.Len(t, bound.Attributes(), 2)
	})

	t.Run("wrong container kind", func(t *testing.T) {
		t.Parallel()
		leaf := newNode("/x", convention.KindLeaf)

		_, err := f.pipeline.Apply(ctx, leaf, convention.RootCreate, activation.NewArgs("title", "T"))

		assert.ErrorContains(t, err, "root_create cannot apply to a leaf container")
	})
}

func TestApply_CrossFieldAndDefaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, ctx, stdtestutil.MeasurementSpec)

	t.Run("units supplied in the same call satisfy value", func(t *testing.T) {
		t.Parallel()
		leaf := newNode("/v", convention.KindLeaf)

		_, err := f.pipeline.Apply(ctx, leaf, convention.LeafCreate, activation.NewArgs("name", "v", "value", "1.5", "units", "m"))

		require.NoError(t, err)
		v, _ := leaf.attrs.Lookup("value")
		assert.Equal(t, 1.5, v)
		u, _ := leaf.attrs.Lookup("units")
		assert.Equal(t, "m", u)
	})

	t.Run("invalid units", func(t *testing.T) {
		t.Parallel()
		leaf := newNode("/v", convention.KindLeaf)

		_, err := f.pipeline.Apply(ctx, leaf, convention.LeafCreate, activation.NewArgs("name", "v", "value", 1, "units", "kg"))

		var attrErr *convention.StandardAttributeError
		require.True(t, errors.As(err, &attrErr))
		assert.Equal(t, "units", attrErr.Name)
	})

	t.Run("literal defaults are written", func(t *testing.T) {
		t.Parallel()
		group := newNode("/g", convention.KindGroup)

		_, err := f.pipeline.Apply(ctx, group, convention.GroupCreate, nil)

		require.NoError(t, err)
		v, ok := group.attrs.Lookup("version")
		require.True(t, ok)
		assert.Equal(t, "1.0.0", v)
		_, ok = group.attrs.Lookup("operator")
		assert.False(t, ok)
	})
}

func TestSetGet_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, ctx, stdtestutil.MeasurementSpec)

	testCases := []struct {
		name  string
		kind  convention.Kind
		attr  string
		value any
		want  any
	}{
		{name: "semver is normalized", kind: convention.KindGroup, attr: "version", value: "v2.1.0", want: "2.1.0"},
		{name: "enum", kind: convention.KindLeaf, attr: "units", value: "degC", want: "degC"},
		{
			name:  "record",
			kind:  convention.KindGroup,
			attr:  "operator",
			value: map[string]any{"name": "Jane", "orcid": "0000-0002-1825-0097"},
			want:  map[string]any{"name": "Jane", "orcid": "https://orcid.org/0000-0002-1825-0097"},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			n := newNode("/n", tc.kind)
			a := f.attr(t, tc.kind, tc.attr)

			require.NoError(t, f.pipeline.Set(ctx, n, a, tc.value))
			got, err := f.pipeline.Get(ctx, n, a)

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGet_Defaults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, ctx, stdtestutil.MeasurementSpec)
	group := newNode("/g", convention.KindGroup)

	got, err := f.pipeline.Get(ctx, group, f.attr(t, convention.KindGroup, "version"))
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", got)

	got, err = f.pipeline.Get(ctx, group, f.attr(t, convention.KindGroup, "operator"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestIgnoreErrors(t *testing.T) {
	t.Parallel()
	ctx, logs := stdtestutil.LogContext(t)
	f := newFixture(t, ctx, stdtestutil.TitleCommentSpec)
	comment := f.attr(t, convention.KindRoot, "comment")
	root := newNode("/", convention.KindRoot)

	// Strict by default.
	err := f.pipeline.Set(ctx, root, comment, "1 invalid")
	var attrErr *convention.StandardAttributeError
	require.True(t, errors.As(err, &attrErr))
	_, ok := root.attrs.Lookup("comment")
	assert.False(t, ok)

	// Tolerant writes persist the raw value.
	f.pipeline.SetIgnoreErrors(true)
	require.NoError(t, f.pipeline.Set(ctx, root, comment, "1 invalid"))
	v, _ := root.attrs.Lookup("comment")
	assert.Equal(t, "1 invalid", v)
	assert.Contains(t, logs.String(), "Ignoring invalid standard attribute value.")

	// Tolerant reads return the raw value.
	got, err := f.pipeline.Get(ctx, root, comment)
	require.NoError(t, err)
	assert.Equal(t, "1 invalid", got)

	// Strict reads of data written under the old rules fail.
	f.pipeline.SetIgnoreErrors(false)
	_, err = f.pipeline.Get(ctx, root, comment)
	assert.True(t, errors.As(err, &attrErr))

	expected := `
# HELP stdattr_validation_failures_total Standard attribute values rejected by their validator.
# TYPE stdattr_validation_failures_total counter
stdattr_validation_failures_total{attribute="comment",mode="decode",tolerated="false"} 1
stdattr_validation_failures_total{attribute="comment",mode="decode",tolerated="true"} 1
stdattr_validation_failures_total{attribute="comment",mode="encode",tolerated="false"} 1
stdattr_validation_failures_total{attribute="comment",mode="encode",tolerated="true"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(f.metrics, strings.NewReader(expected), "stdattr_validation_failures_total"))
}

func TestByName(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, ctx, stdtestutil.TitleCommentSpec)
	root := newNode("/", convention.KindRoot)

	require.NoError(t, f.pipeline.SetByName(ctx, root, "history", 42))
	got, err := f.pipeline.GetByName(ctx, root, "history")
	require.NoError(t, err)
	assert.Equal(t, 42, got, "attributes outside the convention pass through")

	err = f.pipeline.SetByName(ctx, root, "comment", "1 invalid")
	assert.Error(t, err)

	got, err = f.pipeline.GetByName(ctx, root, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}
