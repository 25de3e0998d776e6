package activation

import "fmt"

// Args is the ordered attribute bag passed to a creation operation. A name
// bound to nil is distinct from an absent name.
type Args struct {
	order  []string
	values map[string]any
}

// NewArgs builds a bag from alternating name/value pairs. It panics on an
// odd count or a non-string name.
func NewArgs(pairs ...any) *Args {
	if len(pairs)%2 != 0 {
		panic("activation.NewArgs: odd number of arguments")
	}
	a := &Args{}
	for i := 0; i < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("activation.NewArgs: argument %d is %T, not a name", i, pairs[i]))
		}
		a.Set(name, pairs[i+1])
	}
	return a
}

// Set binds name to value. Re-binding keeps the original position.
func (a *Args) Set(name string, value any) *Args {
	if a.values == nil {
		a.values = make(map[string]any)
	}
	if _, exists := a.values[name]; !exists {
		a.order = append(a.order, name)
	}
	a.values[name] = value
	return a
}

// Lookup returns the value bound to name.
func (a *Args) Lookup(name string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a.values[name]
	return v, ok
}

// Names returns the bound names in insertion order.
func (a *Args) Names() []string {
	if a == nil {
		return nil
	}
	return append([]string(nil), a.order...)
}

func (a *Args) Len() int {
	if a == nil {
		return 0
	}
	return len(a.order)
}
