package convention

// AttributeStore is the string-keyed attribute surface of a container.
type AttributeStore interface {
	Lookup(name string) (any, bool)
	Store(name string, value any) error
	Delete(name string) error
	Names() []string
}

// Node is a container in a tree that a convention can audit.
type Node interface {
	// Path identifies the node, for example "/group/leaf".
	Path() string
	Kind() Kind
	Attributes() AttributeStore
	Children() []Node
}
