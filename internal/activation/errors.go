package activation

import (
	"fmt"
	"strings"

	"github.com/vk/stdattr/internal/convention"
)

// BindError reports an attribute bag that does not fit the live surface of
// an operation.
type BindError struct {
	Operation convention.Operation
	// Missing lists positional parameters that were not supplied.
	Missing []string
	// Unknown lists supplied names the surface does not accept.
	Unknown []string
}

func (e *BindError) Error() string {
	var problems []string
	if len(e.Missing) > 0 {
		problems = append(problems, fmt.Sprintf("missing required arguments: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Unknown) > 0 {
		problems = append(problems, fmt.Sprintf("unexpected arguments: %s", strings.Join(e.Unknown, ", ")))
	}
	return fmt.Sprintf("%s: %s", e.Operation, strings.Join(problems, "; "))
}
