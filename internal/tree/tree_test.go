package tree

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stdattr/internal/activation"
	"github.com/vk/stdattr/internal/compiler"
	"github.com/vk/stdattr/internal/convention"
	"github.com/vk/stdattr/internal/pipeline"
	"github.com/vk/stdattr/internal/testutil"
	"github.com/vk/stdattr/internal/validator"
	"github.com/vk/stdattr/internal/yaml_adapter"
)

// newPipeline compiles both fixture specs and returns an inactive pipeline.
func newPipeline(t *testing.T) *pipeline.Pipeline {
	t.Helper()
	ctx := context.Background()
	registry := convention.NewRegistry()
	comp := compiler.New(validator.NewLibrary(), registry)
	for _, src := range []string{testutil.TitleCommentSpec, testutil.MeasurementSpec} {
		spec, err := yaml_adapter.NewLoader().Parse(ctx, "spec.yaml", []byte(src))
		require.NoError(t, err)
		_, err = comp.Compile(ctx, spec, compiler.Options{})
		require.NoError(t, err)
	}
	m := activation.NewManager(registry)
	require.NoError(t, RegisterOperations(m))
	return pipeline.New(m)
}

func TestTree_TitleComment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newPipeline(t)
	require.NoError(t, p.Manager().Use(ctx, "title_comment"))

	_, err := NewRoot(ctx, p, nil)
	var bindErr *activation.BindError
	require.True(t, errors.As(err, &bindErr), "title is obligatory")

	_, err = NewRoot(ctx, p, activation.NewArgs("title", "T", "comment", "1 invalid"))
	var attrErr *convention.StandardAttributeError
	require.True(t, errors.As(err, &attrErr))

	root, err := NewRoot(ctx, p, activation.NewArgs("title", "T", "comment", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, root.Attributes().Names())
	title, err := root.Get(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, "T", title)
}

func TestTree_Measurement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newPipeline(t)
	require.NoError(t, p.Manager().Use(ctx, "measurement"))

	// Arrange
	root, err := NewRoot(ctx, p, nil)
	require.NoError(t, err)
	grp, err := root.CreateGroup(ctx, activation.NewArgs("name", "run1"))
	require.NoError(t, err)
	leaf, err := grp.CreateLeaf(ctx, activation.NewArgs(
		"name", "temperature",
		"value", 21.5,
		"units", "degC",
		"data", []int{10, 20},
	))
	require.NoError(t, err)
	require.NoError(t, leaf.Set(ctx, "scale_factor", 0.1))
	require.NoError(t, leaf.Set(ctx, "add_offset", 1))

	// Act
	data, err := leaf.Data(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, data)
	assert.Equal(t, "/run1/temperature", leaf.Path())
	assert.Equal(t, "/run1", grp.Path())
	got, ok := root.Child("run1")
	require.True(t, ok)
	assert.Same(t, grp, got)

	report, err := root.Validate(ctx)
	require.NoError(t, err)
	assert.True(t, report.Empty(), "report: %v", report)

	// Deleting one obligatory attribute yields exactly one missing issue.
	require.NoError(t, leaf.Attributes().Delete("value"))
	report, err = root.Validate(ctx)
	require.NoError(t, err)
	want := convention.Report{{Kind: convention.MissingAttribute, Path: "/run1/temperature", Attribute: "value"}}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestTree_CreateErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := newPipeline(t)
	require.NoError(t, p.Manager().Use(ctx, ""))
	root, err := NewRoot(ctx, p, nil)
	require.NoError(t, err)
	leaf, err := root.CreateLeaf(ctx, activation.NewArgs("name", "x"))
	require.NoError(t, err)

	testCases := []struct {
		name    string
		create  func() (*Node, error)
		wantErr string
	}{
		{name: "duplicate", create: func() (*Node, error) { return root.CreateGroup(ctx, activation.NewArgs("name", "x")) }, wantErr: "'x' already exists"},
		{name: "empty name", create: func() (*Node, error) { return root.CreateGroup(ctx, activation.NewArgs("name", "")) }, wantErr: "non-empty string"},
		{name: "slash", create: func() (*Node, error) { return root.CreateGroup(ctx, activation.NewArgs("name", "a/b")) }, wantErr: "must not contain '/'"},
		{name: "missing name", create: func() (*Node, error) { return root.CreateLeaf(ctx, nil) }, wantErr: "missing required arguments: name"},
		{name: "leaf under leaf", create: func() (*Node, error) { return leaf.CreateLeaf(ctx, activation.NewArgs("name", "y")) }, wantErr: "cannot hold leaves"},
		{name: "unknown attribute", create: func() (*Node, error) { return root.CreateGroup(ctx, activation.NewArgs("name", "g", "title", "T")) }, wantErr: "unexpected arguments: title"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.create()
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
	assert.Len(t, root.Children(), 1)
}

func TestTree_ValidateRequiresActiveConvention(t *testing.T) {
	t.Parallel()
	p := newPipeline(t)
	root := &Node{kind: convention.KindRoot, p: p}

	_, err := root.Validate(context.Background())

	assert.ErrorContains(t, err, "no convention is active")
}
