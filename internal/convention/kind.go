package convention

import "fmt"

// Kind is the type of container an attribute is attached to.
type Kind int

const (
	KindRoot Kind = iota
	KindGroup
	KindLeaf
)

var kindNames = [...]string{"root", "group", "leaf"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Kinds lists every container kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindRoot, KindGroup, KindLeaf}
}

// Operation is one of the container-creation operations whose parameters a
// convention extends.
type Operation int

const (
	RootCreate Operation = iota
	GroupCreate
	LeafCreate
)

var operationNames = [...]string{"root_create", "group_create", "leaf_create"}

func (o Operation) String() string {
	if o < 0 || int(o) >= len(operationNames) {
		return fmt.Sprintf("Operation(%d)", int(o))
	}
	return operationNames[o]
}

// Kind returns the kind of container the operation creates.
func (o Operation) Kind() Kind {
	switch o {
	case GroupCreate:
		return KindGroup
	case LeafCreate:
		return KindLeaf
	default:
		return KindRoot
	}
}

// Operations lists every creation operation in a stable order.
func Operations() []Operation {
	return []Operation{RootCreate, GroupCreate, LeafCreate}
}

// ParseOperation resolves a target_method value. Unknown values are an error.
func ParseOperation(s string) (Operation, error) {
	for i, name := range operationNames {
		if name == s {
			return Operation(i), nil
		}
	}
	return 0, fmt.Errorf("unknown target method '%s', expected one of %v", s, operationNames)
}
