package convention

import (
	"fmt"
	"strings"
)

// IssueKind classifies a compliance violation.
type IssueKind int

const (
	MissingAttribute IssueKind = iota
	InvalidAttribute
)

func (k IssueKind) String() string {
	if k == InvalidAttribute {
		return "invalid"
	}
	return "missing"
}

// Issue is a single violation found by Validate.
type Issue struct {
	Kind      IssueKind
	Path      string
	Attribute string
	// Value is the offending stored value; nil for missing attributes.
	Value   any
	Message string
}

func (i Issue) String() string {
	if i.Kind == MissingAttribute {
		return fmt.Sprintf("%s: missing obligatory attribute '%s'", i.Path, i.Attribute)
	}
	return fmt.Sprintf("%s: invalid attribute '%s': %s", i.Path, i.Attribute, i.Message)
}

// Report is the ordered result of a compliance scan. It is not an error.
type Report []Issue

// Empty reports whether no violation was found.
func (r Report) Empty() bool { return len(r) == 0 }

// Missing returns the missing-attribute issues.
func (r Report) Missing() Report { return r.filter(MissingAttribute) }

// Invalid returns the invalid-attribute issues.
func (r Report) Invalid() Report { return r.filter(InvalidAttribute) }

func (r Report) filter(k IssueKind) Report {
	var out Report
	for _, i := range r {
		if i.Kind == k {
			out = append(out, i)
		}
	}
	return out
}

// AsError returns nil for an empty report, otherwise a ComplianceError.
func (r Report) AsError() error {
	if r.Empty() {
		return nil
	}
	return &ComplianceError{Report: r}
}

// ComplianceError wraps a non-empty Report for callers that want to fail.
type ComplianceError struct {
	Report Report
}

func (e *ComplianceError) Error() string {
	if len(e.Report) == 1 {
		return e.Report[0].String()
	}
	msgs := make([]string, 0, len(e.Report))
	for _, i := range e.Report {
		msgs = append(msgs, i.String())
	}
	return fmt.Sprintf("%d convention violations:\n  - %s", len(e.Report), strings.Join(msgs, "\n  - "))
}
