package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/stdattr/internal/config"
	"github.com/vk/stdattr/internal/hcl_adapter"
	"github.com/vk/stdattr/internal/validator"
)

type typeDef struct {
	desc validator.Descriptor
	fn   validator.Func
}

// scope resolves validator references while one convention is built. Regex
// validators minted in the scope are unregistered again by rollback.
type scope struct {
	lib    *validator.Library
	types  map[string]typeDef
	order  []validator.Descriptor
	minted []string
}

func newScope(lib *validator.Library) *scope {
	return &scope{lib: lib, types: make(map[string]typeDef)}
}

func (s *scope) rollback() {
	for _, name := range s.minted {
		s.lib.Unregister(name)
	}
	s.minted = nil
}

func (s *scope) mintRegex(pattern string) (validator.Descriptor, validator.Func, error) {
	r, err := s.lib.Regex(pattern)
	if err != nil {
		return validator.Descriptor{}, nil, err
	}
	s.minted = append(s.minted, r.Name)
	return validator.Descriptor{Kind: validator.KindRegex, Name: r.Name, Pattern: pattern}, r.Func, nil
}

func (s *scope) addEnum(name string, values []string) error {
	if _, exists := s.types[name]; exists {
		return fmt.Errorf("type '%s' is declared more than once", name)
	}
	if len(values) == 0 {
		return fmt.Errorf("enum '%s' has no values", name)
	}
	d := validator.Descriptor{Kind: validator.KindEnum, Name: name, Values: append([]string(nil), values...)}
	s.types[name] = typeDef{desc: d, fn: validator.NewEnum(name, d.Values)}
	s.order = append(s.order, d)
	return nil
}

func (s *scope) addRecord(ctx context.Context, name string, fields []validator.FieldDescriptor) error {
	if _, exists := s.types[name]; exists {
		return fmt.Errorf("type '%s' is declared more than once", name)
	}
	resolved := make([]validator.Field, 0, len(fields))
	for _, f := range fields {
		field, err := s.resolveField(ctx, f)
		if err != nil {
			return fmt.Errorf("record '%s': %w", name, err)
		}
		resolved = append(resolved, field)
	}
	d := validator.Descriptor{Kind: validator.KindRecord, Name: name, Fields: append([]validator.FieldDescriptor(nil), fields...)}
	s.types[name] = typeDef{desc: d, fn: validator.NewRecord(name, resolved)}
	s.order = append(s.order, d)
	return nil
}

// resolveField resolves a field type: "$Type" refers to an earlier enum or
// record, a builtin validator name is used as is, and anything else must be
// an HCL type expression.
func (s *scope) resolveField(ctx context.Context, f validator.FieldDescriptor) (validator.Field, error) {
	field := validator.Field{Name: f.Name, Optional: f.Optional}
	ref := strings.TrimSpace(f.Type)
	if name, ok := strings.CutPrefix(ref, config.TypePrefix); ok {
		if def, ok := s.types[name]; ok {
			field.Validator = def.fn
			return field, nil
		}
		if r, ok := s.lib.Lookup(name); ok && !r.Generated {
			field.Validator = r.Func
			return field, nil
		}
		return field, fmt.Errorf("field '%s': unknown type '%s'", f.Name, ref)
	}
	if r, ok := s.lib.Lookup(ref); ok && !r.Generated {
		field.Validator = r.Func
		return field, nil
	}
	ty, err := hcl_adapter.ParseTypeString(ctx, ref)
	if err != nil {
		return field, fmt.Errorf("field '%s': %w", f.Name, err)
	}
	field.Type = ty
	return field, nil
}

// resolve turns an attribute's validator expression into a descriptor and
// its function.
func (s *scope) resolve(expr string) (validator.Descriptor, validator.Func, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return validator.Descriptor{}, nil, fmt.Errorf("no validator given")
	}
	if pattern, ok := regexPattern(expr); ok {
		return s.mintRegex(pattern)
	}
	if name, ok := strings.CutPrefix(expr, config.TypePrefix); ok {
		if def, ok := s.types[name]; ok {
			return def.desc, def.fn, nil
		}
	}
	if r, ok := s.lib.Lookup(expr); ok && !r.Generated {
		return validator.Descriptor{Kind: validator.KindBuiltin, Name: r.Name}, r.Func, nil
	}
	return validator.Descriptor{}, nil, fmt.Errorf("unknown validator '%s'", expr)
}

// resolveDescriptor rebuilds the function of a persisted descriptor.
func (s *scope) resolveDescriptor(d validator.Descriptor) (validator.Descriptor, validator.Func, error) {
	switch d.Kind {
	case validator.KindRegex:
		return s.mintRegex(d.Pattern)
	case validator.KindEnum, validator.KindRecord:
		def, ok := s.types[d.Name]
		if !ok {
			return d, nil, fmt.Errorf("unknown type '%s'", d.Name)
		}
		return def.desc, def.fn, nil
	default:
		r, ok := s.lib.Lookup(d.Name)
		if !ok || r.Generated {
			return d, nil, fmt.Errorf("unknown validator '%s'", d.Name)
		}
		return validator.Descriptor{Kind: validator.KindBuiltin, Name: r.Name}, r.Func, nil
	}
}

// regexPattern extracts the pattern of a "regex(<pattern>)" expression.
func regexPattern(expr string) (string, bool) {
	if !strings.HasPrefix(expr, config.RegexPrefix) || !strings.HasSuffix(expr, ")") {
		return "", false
	}
	return expr[len(config.RegexPrefix) : len(expr)-1], true
}
