package provider

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry maps gateway names to driver factories. It is filled during
// startup and frozen; lookups after Freeze take no lock.
type Registry struct {
	factories map[string]DriverFactory
	mu        sync.RWMutex
	frozen    atomic.Bool
}

// NewRegistry creates an empty registry, optionally pre-populated.
func NewRegistry(factories ...DriverFactory) (*Registry, error) {
	r := &Registry{
		factories: make(map[string]DriverFactory),
	}
	for _, f := range factories {
		if err := r.Register(f.Name(), f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a driver factory under name
func (r *Registry) Register(name string, factory DriverFactory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("gateway registry: name and factory are required")
	}
	if r.frozen.Load() {
		return fmt.Errorf("gateway registry: cannot register '%s' after freeze", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return fmt.Errorf("gateway registry: cannot register '%s' after freeze", name)
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("gateway registry: '%s' is already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
}

// Resolve retrieves a driver factory by name
func (r *Registry) Resolve(name string) (DriverFactory, error) {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	factory, exists := r.factories[name]
	if !exists {
		return nil, fmt.Errorf("%w: '%s' is not registered", ErrUnknownGateway, name)
	}

	return factory, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Names returns the registered gateway names, sorted
func (r *Registry) Names() []string {
	if !r.frozen.Load() {
		r.mu.RLock()
		defer r.mu.RUnlock()
	}

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
