// Package registry maps names to factories for swappable pipeline strategies
// such as trackers and regression modules.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is returned when a name is not registered.
var ErrNotFound = errors.New("registry: not found")

// Factory builds a fresh instance of a strategy.
type Factory[T any] func() (T, error)

// NotFoundError describes a lookup miss and lists the valid options.
type NotFoundError struct {
	Kind    string
	Name    string
	Options []string
	kindErr error
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found, options are: %s", e.Kind, e.Name, strings.Join(e.Options, ", "))
}

// Unwrap exposes ErrNotFound and, when set, the registry's own sentinel.
func (e *NotFoundError) Unwrap() []error {
	if e.kindErr == nil {
		return []error{ErrNotFound}
	}
	return []error{ErrNotFound, e.kindErr}
}

// Registry is a concurrency-safe name to factory map.
type Registry[T any] struct {
	mu        sync.RWMutex
	kind      string
	kindErr   error
	factories map[string]Factory[T]
}

// New creates an empty registry. kind names the strategy family in errors;
// missing, if non-nil, is additionally matched by errors.Is on lookup misses.
func New[T any](kind string, missing error) *Registry[T] {
	return &Registry[T]{
		kind:      kind,
		kindErr:   missing,
		factories: make(map[string]Factory[T]),
	}
}

// Register adds or replaces a factory.
func (r *Registry[T]) Register(name string, f Factory[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Unregister removes a factory.
func (r *Registry[T]) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, name)
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// New builds a fresh instance of name.
func (r *Registry[T]) New(name string) (T, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, &NotFoundError{Kind: r.kind, Name: name, Options: r.List(), kindErr: r.kindErr}
	}
	v, err := f()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("build %s %q: %w", r.kind, name, err)
	}
	return v, nil
}

// List returns all registered names, sorted alphabetically.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered factories.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}
