package convention

import (
	"context"
	"strings"

	"github.com/vk/stdattr/internal/validator"
)

// Position places an injected parameter relative to an existing one. At most
// one of Before and After is set; the zero value means "default placement".
type Position struct {
	Before string `yaml:"before,omitempty"`
	After  string `yaml:"after,omitempty"`
}

// IsZero reports whether no placement hint is given.
func (p Position) IsZero() bool { return p.Before == "" && p.After == "" }

// AttributeSpec defines one standard attribute.
type AttributeSpec struct {
	Name        string
	Description string
	// Validator identifies the validator; Func is its resolved function.
	Validator validator.Descriptor
	Func      validator.Func
	Operation Operation
	// Default is Empty, None or a literal value.
	Default      any
	Position     Position
	Requirements []string
	// Alternative names an attribute that satisfies this one when present.
	Alternative string
}

// Kind is the container kind the attribute is attached to.
func (a *AttributeSpec) Kind() Kind { return a.Operation.Kind() }

// IsPositional reports whether the attribute is obligatory.
func (a *AttributeSpec) IsPositional() bool { return a.Default == Empty }

// IsOptional reports whether a nil write to the attribute persists nothing.
func (a *AttributeSpec) IsOptional() bool { return a.Default == None }

// Validate runs the attribute's validator. An attribute without a resolved
// validator accepts any value unchanged.
func (a *AttributeSpec) Validate(ctx context.Context, value any, vc *validator.Context) (any, error) {
	if a.Func == nil {
		return value, nil
	}
	if vc != nil && vc.Attribute == "" {
		vc.Attribute = a.Name
	}
	return a.Func(ctx, value, vc)
}

// DefaultValue returns the value a read yields when nothing is stored: nil
// for both sentinels, the literal otherwise.
func (a *AttributeSpec) DefaultValue() any {
	if IsSentinel(a.Default) {
		return nil
	}
	return cloneValue(a.Default)
}

// Clone returns a copy that shares no mutable state with a.
func (a *AttributeSpec) Clone() *AttributeSpec {
	c := *a
	c.Requirements = append([]string(nil), a.Requirements...)
	c.Validator.Values = append([]string(nil), a.Validator.Values...)
	c.Validator.Fields = append([]validator.FieldDescriptor(nil), a.Validator.Fields...)
	if !IsSentinel(a.Default) {
		c.Default = cloneValue(a.Default)
	}
	return &c
}

// NormalizeDescription ensures a description ends with a period.
func NormalizeDescription(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, ".") {
		return s
	}
	return s + "."
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return append([]string(nil), tv...)
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, e := range tv {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
