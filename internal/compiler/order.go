package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vk/stdattr/internal/convention"
)

// addOrder returns attrs ordered so that every attribute follows the
// attributes it requires. Among attributes whose requirements are met the
// original order is kept. Requirements naming no attribute in attrs are left
// for Convention.Add to report. A requirement cycle is an error naming every
// attribute that cannot be ordered.
func addOrder(attrs []*convention.AttributeSpec) ([]*convention.AttributeSpec, error) {
	byName := make(map[string][]int)
	for i, a := range attrs {
		byName[a.Name] = append(byName[a.Name], i)
	}

	pending := make([]int, len(attrs))
	dependents := make([][]int, len(attrs))
	for i, a := range attrs {
		seen := make(map[int]bool)
		for _, req := range a.Requirements {
			for _, j := range byName[req] {
				if j == i || seen[j] {
					continue
				}
				seen[j] = true
				pending[i]++
				dependents[j] = append(dependents[j], i)
			}
		}
	}

	done := make([]bool, len(attrs))
	out := make([]*convention.AttributeSpec, 0, len(attrs))
	for len(out) < len(attrs) {
		progressed := false
		for i := range attrs {
			if done[i] || pending[i] > 0 {
				continue
			}
			done[i] = true
			progressed = true
			out = append(out, attrs[i])
			for _, d := range dependents[i] {
				pending[d]--
			}
			// Restart so that earlier attributes unblocked by i keep their
			// original relative order.
			break
		}
		if !progressed {
			var cycle []string
			for i, a := range attrs {
				if !done[i] {
					cycle = append(cycle, a.Name)
				}
			}
			sort.Strings(cycle)
			return nil, fmt.Errorf("requirement cycle between attributes: %s", strings.Join(cycle, ", "))
		}
	}
	return out, nil
}
