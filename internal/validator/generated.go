package validator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/stdattr/internal/ctyconv"
)

// Descriptor kinds.
const (
	KindBuiltin = "builtin"
	KindRegex   = "regex"
	KindEnum    = "enum"
	KindRecord  = "record"
)

// Descriptor is the serializable identity of a validator: a builtin name, a
// minted regex name plus its pattern, or a compiled enum/record type.
type Descriptor struct {
	Kind    string            `yaml:"kind"`
	Name    string            `yaml:"name"`
	Pattern string            `yaml:"pattern,omitempty"`
	Values  []string          `yaml:"values,omitempty"`
	Fields  []FieldDescriptor `yaml:"fields,omitempty"`
}

// FieldDescriptor describes one field of a record type. Type is either a
// validator reference ("str", "$Units") or an HCL type expression.
type FieldDescriptor struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Optional bool   `yaml:"optional,omitempty"`
}

// String renders the descriptor the way it is written in a spec.
func (d Descriptor) String() string {
	switch d.Kind {
	case KindRegex:
		return fmt.Sprintf("regex(%s)", d.Pattern)
	case KindEnum, KindRecord:
		return "$" + d.Name
	default:
		return d.Name
	}
}

// NewEnum returns a validator accepting only the given string literals.
func NewEnum(name string, values []string) Func {
	allowed := make(map[string]struct{}, len(values))
	for _, v := range values {
		allowed[v] = struct{}{}
	}
	listing := strings.Join(values, ", ")
	return func(_ context.Context, value any, _ *Context) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected one of %s [%s], got %T", name, listing, value)
		}
		if _, ok := allowed[s]; !ok {
			return nil, fmt.Errorf("%q is not a valid %s: expected one of [%s]", s, name, listing)
		}
		return s, nil
	}
}

// Field is one resolved field of a record validator. Exactly one of
// Validator and Type is set.
type Field struct {
	Name      string
	Optional  bool
	Validator Func
	Type      cty.Type
}

// NewRecord returns a validator for mappings whose keys are the given
// fields. Unknown keys are rejected and every failing field is reported.
func NewRecord(name string, fields []Field) Func {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
	}
	return func(ctx context.Context, value any, vc *Context) (any, error) {
		m, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected a %s mapping, got %T", name, value)
		}

		var problems []string
		for _, k := range sortedNames(m) {
			if !known[k] {
				problems = append(problems, fmt.Sprintf("unknown field '%s'", k))
			}
		}

		out := make(map[string]any, len(m))
		for _, f := range fields {
			raw, present := m[f.Name]
			if !present || raw == nil {
				if !f.Optional {
					problems = append(problems, fmt.Sprintf("missing field '%s'", f.Name))
				}
				continue
			}
			var (
				v   any
				err error
			)
			if f.Validator != nil {
				v, err = f.Validator(ctx, raw, vc)
			} else {
				v, err = ctyconv.Coerce(raw, f.Type)
			}
			if err != nil {
				problems = append(problems, fmt.Sprintf("field '%s': %v", f.Name, err))
				continue
			}
			out[f.Name] = v
		}

		if len(problems) > 0 {
			return nil, fmt.Errorf("invalid %s:\n- %s", name, strings.Join(problems, "\n- "))
		}
		return out, nil
	}
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
