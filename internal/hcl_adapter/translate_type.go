// Record field types that are not validators are written as HCL type
// expressions, e.g. `list(number)` or `object({name = string})`, in every
// spec format. This file turns them into cty types.

package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/stdattr/internal/ctxlog"
)

var primitiveTypes = map[string]cty.Type{
	"string": cty.String,
	"number": cty.Number,
	"bool":   cty.Bool,
	"any":    cty.DynamicPseudoType,
}

var collectionTypes = map[string]func(cty.Type) cty.Type{
	"list": cty.List,
	"map":  cty.Map,
	"set":  cty.Set,
}

// ParseTypeString parses a record field type such as "list(string)" or
// "object({name = string})".
func ParseTypeString(ctx context.Context, s string) (cty.Type, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(s), "field type", hcl.InitialPos)
	if diags.HasErrors() {
		return cty.DynamicPseudoType, fmt.Errorf("invalid type expression %q: %w", s, diags)
	}
	ty, err := fieldType(expr)
	if err != nil {
		return cty.DynamicPseudoType, err
	}
	ctxlog.FromContext(ctx).Debug("Parsed record field type.", "expr", s, "type", ty.FriendlyName())
	return ty, nil
}

func fieldType(expr hcl.Expression) (cty.Type, error) {
	switch e := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(e.Traversal) != 1 {
			return cty.DynamicPseudoType, fmt.Errorf("invalid type keyword: traversal path is not a single identifier")
		}
		if ty, ok := primitiveTypes[e.Traversal.RootName()]; ok {
			return ty, nil
		}
		return cty.DynamicPseudoType, fmt.Errorf("unknown primitive type %q", e.Traversal.RootName())
	case *hclsyntax.FunctionCallExpr:
		if len(e.Args) != 1 {
			return cty.DynamicPseudoType, fmt.Errorf("%s() takes exactly one argument, got %d", e.Name, len(e.Args))
		}
		if e.Name == "object" {
			return objectType(e.Args[0])
		}
		wrap, ok := collectionTypes[e.Name]
		if !ok {
			return cty.DynamicPseudoType, fmt.Errorf("unknown type constructor function %q", e.Name)
		}
		elem, err := fieldType(e.Args[0])
		if err != nil {
			return cty.DynamicPseudoType, err
		}
		if elem == cty.DynamicPseudoType {
			return cty.DynamicPseudoType, fmt.Errorf("collection types cannot contain type 'any'")
		}
		return wrap(elem), nil
	default:
		return cty.DynamicPseudoType, fmt.Errorf("unsupported expression for type definition: %T", expr)
	}
}

func objectType(arg hcl.Expression) (cty.Type, error) {
	cons, ok := arg.(*hclsyntax.ObjectConsExpr)
	if !ok {
		return cty.DynamicPseudoType, fmt.Errorf("the argument to object() must be an object literal like { key = type, ... }, got %T", arg)
	}
	attrs := make(map[string]cty.Type, len(cons.Items))
	for _, item := range cons.Items {
		key := objectKey(item.KeyExpr)
		if key == "" {
			return cty.DynamicPseudoType, fmt.Errorf("invalid key in object type definition: keys must be simple identifiers or quoted strings")
		}
		ty, err := fieldType(item.ValueExpr)
		if err != nil {
			return cty.DynamicPseudoType, fmt.Errorf("in object attribute '%s': %w", key, err)
		}
		attrs[key] = ty
	}
	return cty.Object(attrs), nil
}

// objectKey returns the literal name of an object key, or "" if the key is
// computed.
func objectKey(expr hcl.Expression) string {
	wrapper, ok := expr.(*hclsyntax.ObjectConsKeyExpr)
	if !ok {
		return ""
	}
	switch k := wrapper.Wrapped.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		if len(k.Traversal) == 1 {
			return k.Traversal.RootName()
		}
	case *hclsyntax.TemplateExpr:
		if len(k.Parts) == 1 {
			if lit, ok := k.Parts[0].(*hclsyntax.LiteralValueExpr); ok && lit.Val.Type().Equals(cty.String) {
				return lit.Val.AsString()
			}
		}
	}
	return ""
}
