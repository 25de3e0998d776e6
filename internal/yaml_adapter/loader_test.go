package yaml_adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/stdattr/internal/config"
)

const fullSpec = `
__name__: My Convention
__contact__: https://orcid.org/0000-0002-1825-0097
__institution__: https://ror.org/05dxps055
__decoders__: [scale_and_offset]

$Units: [m, s, kg]
$Person:
  name: str
  orcid?: orcid
  tags?: list(string)

title:
  validator: str
  description: Title of the file
  target_method: root_create
  default_value: $EMPTY
comment:
  validator: regex(^[^\d\s].{9,299}$)
  description: A free text comment.
  target_method: root_create
units:
  validator: $Units
  target_method: leaf_create
  default_value: m
  position:
    before: data
value:
  validator: float_with_units
  target_method: leaf_create
  requirements: units
  alternative_standard_attribute: long_value
`

func TestParse_FullSpec(t *testing.T) {
	t.Parallel()

	// Act
	spec, err := NewLoader().Parse(context.Background(), "spec.yaml", []byte(fullSpec))

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "spec.yaml", spec.Source)
	assert.Equal(t, fullSpec, string(spec.Raw))

	wantMeta := config.Meta{
		Name:        "My Convention",
		Contact:     "https://orcid.org/0000-0002-1825-0097",
		Institution: "https://ror.org/05dxps055",
		Decoders:    []string{"scale_and_offset"},
	}
	if diff := cmp.Diff(wantMeta, spec.Meta); diff != "" {
		t.Errorf("meta mismatch (-want +got):\n%s", diff)
	}

	wantEnums := []*config.EnumEntry{{Name: "Units", Values: []string{"m", "s", "kg"}}}
	if diff := cmp.Diff(wantEnums, spec.Enums); diff != "" {
		t.Errorf("enums mismatch (-want +got):\n%s", diff)
	}

	wantRecords := []*config.RecordEntry{{Name: "Person", Fields: []*config.FieldEntry{
		{Name: "name", Type: "str"},
		{Name: "orcid", Type: "orcid", Optional: true},
		{Name: "tags", Type: "list(string)", Optional: true},
	}}}
	if diff := cmp.Diff(wantRecords, spec.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	wantAttrs := []*config.AttributeEntry{
		{Name: "title", Validator: "str", Description: "Title of the file", TargetMethod: "root_create", Default: "$EMPTY", HasDefault: true},
		{Name: "comment", Validator: `regex(^[^\d\s].{9,299}$)`, Description: "A free text comment.", TargetMethod: "root_create"},
		{Name: "units", Validator: "$Units", TargetMethod: "leaf_create", Default: "m", HasDefault: true, Position: config.Position{Before: "data"}},
		{Name: "value", Validator: "float_with_units", TargetMethod: "leaf_create", Requirements: []string{"units"}, Alternative: "long_value"},
	}
	if diff := cmp.Diff(wantAttrs, spec.Attributes); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_JSON(t *testing.T) {
	t.Parallel()
	src := `{"__name__": "j", "__contact__": "me", "size": {"validator": "int", "target_method": "group_create", "default_value": 3, "requirements": ["a", "b"]}}`

	spec, err := NewLoader().Parse(context.Background(), "spec.json", []byte(src))

	require.NoError(t, err)
	require.Len(t, spec.Attributes, 1)
	a := spec.Attributes[0]
	assert.Equal(t, 3, a.Default)
	assert.True(t, a.HasDefault)
	assert.Equal(t, []string{"a", "b"}, a.Requirements)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "empty", src: "", wantErr: "spec is empty"},
		{name: "not a mapping", src: "- a\n- b\n", wantErr: "spec must be a mapping"},
		{name: "malformed", src: "a: [", wantErr: "failed to parse"},
		{name: "unknown meta key", src: "__version__: 1\n", wantErr: "unknown meta key"},
		{name: "unknown attribute key", src: "title:\n  validator: str\n  colour: red\n", wantErr: "unknown attribute key 'colour'"},
		{name: "attribute not a mapping", src: "title: str\n", wantErr: "attribute must be a mapping"},
		{name: "bad type entry", src: "$X: 3\n", wantErr: "type entry must be a list"},
		{name: "bad position key", src: "t:\n  position: {under: x}\n", wantErr: "unknown key 'under'"},
		{name: "both positions", src: "t:\n  position: {before: x, after: y}\n", wantErr: "only one of"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewLoader().Parse(context.Background(), "spec.yaml", []byte(tc.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "conv.yml")
	require.NoError(t, os.WriteFile(path, []byte("__name__: a\n__contact__: b\n"), 0o644))

	spec, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, spec.Source)
	assert.Equal(t, "a", spec.Meta.Name)

	_, err = NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read spec file")
}
