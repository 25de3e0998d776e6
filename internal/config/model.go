package config

// Reserved spelling used by the mapping-based spec formats.
const (
	// TypePrefix marks record and enum entries.
	TypePrefix = "$"
	// RegexPrefix opens a parameterized regex validator expression.
	RegexPrefix = "regex("
	// EmptyToken and NoneToken are the default_value sentinels.
	EmptyToken = "$EMPTY"
	NoneToken  = "$NONE"
)

// Spec is the format-agnostic representation of a convention spec.
type Spec struct {
	// Source is the path the spec was read from, or a label.
	Source string
	// Raw is the verbatim source.
	Raw  []byte
	Meta Meta
	// Attributes, Records and Enums keep their source order.
	Attributes []*AttributeEntry
	Records    []*RecordEntry
	Enums      []*EnumEntry
}

// Meta holds the convention-level keys.
type Meta struct {
	Name        string
	Contact     string
	Institution string
	Decoders    []string
}

// AttributeEntry is one standard attribute as written in a spec.
type AttributeEntry struct {
	Name string
	// Validator is a builtin name, "regex(<pattern>)" or "$<Type>".
	Validator    string
	Description  string
	TargetMethod string
	// Default holds the default_value as written; HasDefault is false when
	// the key is absent.
	Default      any
	HasDefault   bool
	Requirements []string
	Position     Position
	Alternative  string
}

// Position is a placement hint relative to another parameter.
type Position struct {
	Before string
	After  string
}

// RecordEntry declares a structured type.
type RecordEntry struct {
	Name   string
	Fields []*FieldEntry
}

// FieldEntry is one record field. Type is a validator reference or an HCL
// type expression.
type FieldEntry struct {
	Name     string
	Type     string
	Optional bool
}

// EnumEntry declares a closed set of string literals.
type EnumEntry struct {
	Name   string
	Values []string
}

// Attribute returns the entry named name.
func (s *Spec) Attribute(name string) (*AttributeEntry, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}
