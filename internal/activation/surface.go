package activation

import (
	"fmt"
	"strings"

	"github.com/vk/stdattr/internal/convention"
)

// Param is one named parameter of a creation operation.
type Param struct {
	Name string
	// Positional parameters must be supplied by the caller.
	Positional bool
	// Default is used when a keyword parameter is not supplied. For injected
	// parameters it is the attribute's default, sentinels included.
	Default any
	// Attribute is set for parameters injected from the active convention.
	Attribute *convention.AttributeSpec
}

// Injected reports whether p comes from a convention attribute.
func (p Param) Injected() bool { return p.Attribute != nil }

func (p Param) String() string {
	if p.Positional {
		return p.Name
	}
	return fmt.Sprintf("%s=%v", p.Name, p.Default)
}

// Surface is a snapshot of the parameters of one creation operation. The
// positional group always precedes the keyword group.
type Surface struct {
	Operation convention.Operation
	Params    []Param
}

// Lookup returns the parameter called name.
func (s Surface) Lookup(name string) (Param, bool) {
	if i := indexOf(s.Params, name); i >= 0 {
		return s.Params[i], true
	}
	return Param{}, false
}

// Injected returns the parameters contributed by the active convention.
func (s Surface) Injected() []Param {
	var out []Param
	for _, p := range s.Params {
		if p.Injected() {
			out = append(out, p)
		}
	}
	return out
}

// String renders the surface as a call signature, for help output.
func (s Surface) String() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s(%s)", s.Operation, strings.Join(parts, ", "))
}

func indexOf(params []Param, name string) int {
	for i, p := range params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// groupEnd returns the index of the first keyword parameter.
func groupEnd(params []Param) int {
	for i, p := range params {
		if !p.Positional {
			return i
		}
	}
	return len(params)
}

func insertAt(params []Param, i int, p Param) []Param {
	params = append(params, Param{})
	copy(params[i+1:], params[i:])
	params[i] = p
	return params
}

func removeAt(params []Param, i int) []Param {
	return append(params[:i], params[i+1:]...)
}

// appendToGroup places p at the end of its group.
func appendToGroup(params []Param, p Param) []Param {
	if p.Positional {
		return insertAt(params, groupEnd(params), p)
	}
	return append(params, p)
}

// clamp keeps index i inside the group p belongs to.
func clamp(params []Param, p Param, i int) int {
	end := groupEnd(params)
	if p.Positional && i > end {
		return end
	}
	if !p.Positional && i < end {
		return end
	}
	return i
}

// place moves the parameter at index i next to the parameter named by its
// attribute's position hint. A hint naming an absent parameter leaves it
// where it is.
func place(params []Param, i int) ([]Param, bool) {
	p := params[i]
	pos := p.Attribute.Position
	target, after := pos.Before, false
	if pos.After != "" {
		target, after = pos.After, true
	}
	if target == "" || target == p.Name || indexOf(params, target) < 0 {
		return params, false
	}
	params = removeAt(params, i)
	j := indexOf(params, target)
	if after {
		j++
	}
	return insertAt(params, clamp(params, p, j), p), true
}
