package convention

import (
	"fmt"
	"strings"
)

// SchemaLoadError reports a malformed or incomplete spec: a missing meta
// key, an unresolvable validator reference, an unknown target method.
type SchemaLoadError struct {
	// Source is the spec file, or the convention name for in-memory specs.
	Source string
	Reason string
	Err    error
}

func (e *SchemaLoadError) Error() string {
	msg := e.Reason
	if e.Source != "" {
		msg = fmt.Sprintf("failed to load convention from %s: %s", e.Source, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaLoadError) Unwrap() error { return e.Err }

// AttributeConflictError reports an attribute that cannot be added to a
// convention: either its name is already taken for the same container kind,
// or some of its requirements are not registered yet.
type AttributeConflictError struct {
	Convention string
	Attribute  string
	Kind       Kind
	Duplicate  bool
	// Missing lists every unregistered requirement, sorted.
	Missing []string
}

func (e *AttributeConflictError) Error() string {
	if e.Duplicate {
		return fmt.Sprintf("convention '%s': attribute '%s' is already defined for %s containers", e.Convention, e.Attribute, e.Kind)
	}
	return fmt.Sprintf("convention '%s': attribute '%s' requires attributes that are not registered: %s",
		e.Convention, e.Attribute, strings.Join(e.Missing, ", "))
}

// ConventionNotFoundError is returned when a name does not resolve to a
// registered convention.
type ConventionNotFoundError struct {
	Name string
}

func (e *ConventionNotFoundError) Error() string {
	return fmt.Sprintf("convention '%s' is not registered", e.Name)
}

// StandardAttributeError reports a single value rejected by its attribute's
// validator while being written or read.
type StandardAttributeError struct {
	Name    string
	Value   any
	Message string
	Err     error
}

func (e *StandardAttributeError) Error() string {
	return fmt.Sprintf("standard attribute '%s' rejected value %v: %s", e.Name, e.Value, e.Message)
}

func (e *StandardAttributeError) Unwrap() error { return e.Err }
