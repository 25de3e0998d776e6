package convention

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ErrNoneImmutable is returned when the no-schema convention would be
// replaced or deleted.
var ErrNoneImmutable = errors.New("the no-schema convention cannot be replaced or deleted")

// NormalizeName lower-cases a convention name and maps '-', ' ' and '.' to
// '_'.
func NormalizeName(name string) string {
	return strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(strings.ToLower(strings.TrimSpace(name)))
}

// Registry maps normalized names to conventions. The no-schema convention is
// always registered under the empty name.
type Registry struct {
	mu    sync.RWMutex
	none  *Convention
	byKey map[string]*Convention
}

// NewRegistry creates a registry holding only the no-schema convention.
func NewRegistry() *Registry {
	return &Registry{
		none:  New(Meta{}),
		byKey: make(map[string]*Convention),
	}
}

// None returns the no-schema convention.
func (r *Registry) None() *Convention { return r.none }

// Register adds c under its normalized name. If the name is taken, the
// registered convention is returned unchanged together with false.
func (r *Registry) Register(c *Convention) (*Convention, bool) {
	key := NormalizeName(c.Name)
	if key == "" {
		return r.none, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byKey[key]; ok {
		return existing, false
	}
	c.Name = key
	r.byKey[key] = c
	slog.Debug("Registered convention.", "name", key, "attributes", c.Len())
	return c, true
}

// Replace registers c, returning the convention it displaced, if any.
func (r *Registry) Replace(c *Convention) (*Convention, error) {
	key := NormalizeName(c.Name)
	if key == "" {
		return nil, ErrNoneImmutable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.byKey[key]
	c.Name = key
	r.byKey[key] = c
	slog.Debug("Replaced convention.", "name", key, "attributes", c.Len())
	return old, nil
}

// Get resolves name. The empty name resolves to the no-schema convention.
func (r *Registry) Get(name string) (*Convention, error) {
	key := NormalizeName(name)
	if key == "" {
		return r.none, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[key]
	if !ok {
		return nil, &ConventionNotFoundError{Name: name}
	}
	return c, nil
}

// Names returns the registered names, sorted, excluding the no-schema
// convention.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byKey))
	for n := range r.byKey {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Delete unregisters name and returns the removed convention.
func (r *Registry) Delete(name string) (*Convention, error) {
	key := NormalizeName(name)
	if key == "" {
		return nil, ErrNoneImmutable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byKey[key]
	if !ok {
		return nil, &ConventionNotFoundError{Name: name}
	}
	delete(r.byKey, key)
	slog.Debug("Deleted convention.", "name", key)
	return c, nil
}
