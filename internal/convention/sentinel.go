package convention

// Sentinel marks a default value that is not a value. Sentinels are compared
// by identity; no literal, including nil, is ever equal to one.
type Sentinel struct {
	name string
}

func (s *Sentinel) String() string { return "$" + s.name }

var (
	// Empty marks an obligatory attribute that has no default. Such an
	// attribute is positional.
	Empty = &Sentinel{name: "EMPTY"}
	// None marks an optional attribute. Writing nil to it persists nothing.
	None = &Sentinel{name: "NONE"}
)

// IsSentinel reports whether v is Empty or None.
func IsSentinel(v any) bool {
	s, ok := v.(*Sentinel)
	return ok && (s == Empty || s == None)
}

// ParseDefault resolves a default_value token from a spec. "$EMPTY" and
// "$NONE" map to the sentinels, as does a null default to None. Anything
// else is a literal.
func ParseDefault(v any) any {
	if v == nil {
		return None
	}
	switch v {
	case "$EMPTY":
		return Empty
	case "$NONE":
		return None
	}
	return v
}

// FormatDefault is the inverse of ParseDefault.
func FormatDefault(v any) any {
	switch v {
	case Empty:
		return "$EMPTY"
	case None:
		return "$NONE"
	}
	return v
}
