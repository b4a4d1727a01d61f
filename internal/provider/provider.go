// Package provider implements the registry of upstream text generators.
package provider

import (
	"fmt"
	"slices"
	"sync"

	gencache "github.com/eugener/gencache/internal"
)

// Registry maps provider names to gencache.Generator instances.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]gencache.Generator
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{generators: make(map[string]gencache.Generator)}
}

// Register adds a generator under the given name.
// It overwrites any previously registered generator with the same name.
func (r *Registry) Register(name string, g gencache.Generator) {
	r.mu.Lock()
	r.generators[name] = g
	r.mu.Unlock()
}

// Get returns the generator registered under name.
func (r *Registry) Get(name string) (gencache.Generator, error) {
	r.mu.RLock()
	g, ok := r.generators[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, gencache.ErrGeneratorNotFound)
	}
	return g, nil
}

// List returns a sorted slice of all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := slices.Collect(func(yield func(string) bool) {
		for name := range r.generators {
			if !yield(name) {
				return
			}
		}
	})
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}
