// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the convention.AttributeStore interface.
//
// # Concurrency Model
//
// Each container owns one Store. Attributes of a container are independent
// keys written by the validation pipeline and read concurrently by getters
// and by compliance walks, so values live in a sync.Map rather than behind
// a container-wide lock.
package inmemorystore

import (
	"sort"
	"sync"

	"github.com/vk/stdattr/internal/convention"
)

// Store is an in-memory attribute store. The zero value is ready to use.
type Store struct {
	values sync.Map // Key: attribute name, Value: any (the stored value)
}

var _ convention.AttributeStore = (*Store)(nil)

// New creates a new, empty attribute store.
func New() *Store {
	return &Store{}
}

// Lookup returns the value stored under name. A stored nil is reported as
// present.
func (s *Store) Lookup(name string) (any, bool) {
	return s.values.Load(name)
}

// Store records value under name, replacing any previous value.
func (s *Store) Store(name string, value any) error {
	s.values.Store(name, value)
	return nil
}

// Delete removes name. Deleting an absent name is not an error.
func (s *Store) Delete(name string) error {
	s.values.Delete(name)
	return nil
}

// Names returns the stored attribute names, sorted.
func (s *Store) Names() []string {
	var names []string
	s.values.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Snapshot copies the stored attributes into a plain map.
func (s *Store) Snapshot() map[string]any {
	out := make(map[string]any)
	s.values.Range(func(k, v any) bool {
		out[k.(string)] = v
		return true
	})
	return out
}
