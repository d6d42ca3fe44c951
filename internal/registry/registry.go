// Package registry provides name-keyed registries for late-bound types.
//
// Implementations register themselves under a stable identifier, usually
// from an init() function, and consumers resolve them by the name a remote
// service reports instead of by a compiled-in reference.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps stable names to entries of type T.
type Registry[T any] struct {
	kind    string
	mu      sync.RWMutex
	entries map[string]T
}

// New creates an empty registry. kind names what is registered and is
// used in error messages ("mapping schema", "sql builder", ...).
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:    kind,
		entries: make(map[string]T),
	}
}

// Register stores entry under name, replacing any previous registration.
func (r *Registry[T]) Register(name string, entry T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[normalize(name)] = entry
}

// Unregister removes name from the registry.
func (r *Registry[T]) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, normalize(name))
}

// Get returns the entry registered under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[normalize(name)]
	return e, ok
}

// Lookup is Get returning an *UnknownTypeError on a miss.
func (r *Registry[T]) Lookup(name string) (T, error) {
	e, ok := r.Get(name)
	if !ok {
		return e, &UnknownTypeError{
			Kind:      r.kind,
			Name:      name,
			Available: r.Names(),
		}
	}
	return e, nil
}

// IsRegistered checks if a name is registered.
func (r *Registry[T]) IsRegistered(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all registered names (sorted).
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kind returns what this registry holds.
func (r *Registry[T]) Kind() string {
	return r.kind
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// UnknownTypeError is returned when a name has no registration.
type UnknownTypeError struct {
	Kind      string
	Name      string
	Available []string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown %s type %q (available: %s)", e.Kind, e.Name, strings.Join(e.Available, ", "))
}
