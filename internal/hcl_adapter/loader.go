package hcl_adapter

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/vk/stdattr/internal/config"
	"github.com/vk/stdattr/internal/ctxlog"
	"github.com/vk/stdattr/internal/ctyconv"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL spec loader.
func NewLoader() *Loader {
	return &Loader{}
}

// fileRoot is the top-level schema of an HCL spec file.
type fileRoot struct {
	Name        string            `hcl:"name,optional"`
	Contact     string            `hcl:"contact,optional"`
	Institution string            `hcl:"institution,optional"`
	Decoders    []string          `hcl:"decoders,optional"`
	Enums       []*enumBlock      `hcl:"enum,block"`
	Records     []*recordBlock    `hcl:"record,block"`
	Attributes  []*attributeBlock `hcl:"attribute,block"`
}

type enumBlock struct {
	Name   string   `hcl:"name,label"`
	Values []string `hcl:"values"`
}

type recordBlock struct {
	Name string   `hcl:"name,label"`
	Body hcl.Body `hcl:",remain"`
}

type attributeBlock struct {
	Name         string         `hcl:"name,label"`
	Validator    string         `hcl:"validator,optional"`
	Description  string         `hcl:"description,optional"`
	TargetMethod string         `hcl:"target_method,optional"`
	Default      hcl.Expression `hcl:"default_value,optional"`
	Requirements []string       `hcl:"requirements,optional"`
	Position     *positionBlock `hcl:"position,block"`
	Alternative  string         `hcl:"alternative_standard_attribute,optional"`
}

type positionBlock struct {
	Before string `hcl:"before,optional"`
	After  string `hcl:"after,optional"`
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string {
	return []string{".hcl"}
}

// Load implements config.Loader.
func (l *Loader) Load(ctx context.Context, path string) (*config.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file %s: %w", path, err)
	}
	return l.Parse(ctx, path, data)
}

// Parse implements config.Loader.
func (l *Loader) Parse(ctx context.Context, source string, src []byte) (*config.Spec, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "source", source)

	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, source)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", source, diags)
	}

	var root fileRoot
	if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", source, diags)
	}

	spec := &config.Spec{
		Source: source,
		Raw:    append([]byte(nil), src...),
		Meta: config.Meta{
			Name:        root.Name,
			Contact:     root.Contact,
			Institution: root.Institution,
			Decoders:    root.Decoders,
		},
	}

	for _, e := range root.Enums {
		spec.Enums = append(spec.Enums, &config.EnumEntry{Name: e.Name, Values: e.Values})
	}
	for _, r := range root.Records {
		rec, err := translateRecord(r, src)
		if err != nil {
			return nil, fmt.Errorf("in record '%s' of %s: %w", r.Name, source, err)
		}
		spec.Records = append(spec.Records, rec)
	}
	for _, a := range root.Attributes {
		entry, err := translateAttribute(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("in attribute '%s' of %s: %w", a.Name, source, err)
		}
		spec.Attributes = append(spec.Attributes, entry)
	}

	logger.Debug("HCL loading complete.", "source", source, "attributes", len(spec.Attributes), "records", len(spec.Records), "enums", len(spec.Enums))
	return spec, nil
}

// translateRecord reads each field as either a quoted validator reference or
// a bare type expression, optionally wrapped in optional(...).
func translateRecord(r *recordBlock, src []byte) (*config.RecordEntry, error) {
	attrs, diags := orderedAttributes(r.Body)
	if diags.HasErrors() {
		return nil, diags
	}
	rec := &config.RecordEntry{Name: r.Name}
	for _, attr := range attrs {
		field := &config.FieldEntry{Name: attr.Name}
		expr := attr.Expr
		if call, ok := expr.(*hclsyntax.FunctionCallExpr); ok && call.Name == "optional" {
			if len(call.Args) != 1 {
				return nil, fmt.Errorf("field '%s': optional() requires exactly one argument", attr.Name)
			}
			field.Optional = true
			expr = call.Args[0]
		}

		if tmpl, ok := expr.(*hclsyntax.TemplateExpr); ok && tmpl.IsStringLiteral() {
			v, diags := tmpl.Value(nil)
			if diags.HasErrors() {
				return nil, diags
			}
			field.Type = v.AsString()
		} else {
			field.Type = string(expr.Range().SliceBytes(src))
		}
		rec.Fields = append(rec.Fields, field)
	}
	return rec, nil
}

func translateAttribute(ctx context.Context, a *attributeBlock) (*config.AttributeEntry, error) {
	entry := &config.AttributeEntry{
		Name:         a.Name,
		Validator:    a.Validator,
		Description:  a.Description,
		TargetMethod: a.TargetMethod,
		Requirements: a.Requirements,
		Alternative:  a.Alternative,
	}
	if a.Position != nil {
		if a.Position.Before != "" && a.Position.After != "" {
			return nil, fmt.Errorf("position: only one of 'before' and 'after' may be set")
		}
		entry.Position = config.Position{Before: a.Position.Before, After: a.Position.After}
	}
	if isExprDefined(ctx, a.Default, "default_value") {
		val, diags := a.Default.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid default_value: %w", diags)
		}
		native, err := ctyconv.ToNative(val)
		if err != nil {
			return nil, fmt.Errorf("invalid default_value: %w", err)
		}
		entry.Default = native
		entry.HasDefault = true
	}
	return entry, nil
}
