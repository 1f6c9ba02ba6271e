package coder

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrDuplicateCoder is returned when a name is registered twice.
var ErrDuplicateCoder = errors.New("coder already registered")

// Registry maps stable coder identifiers to constructors. Registration
// order is preserved and used as the candidate order.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	order     []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("coder name is empty")
	}
	if f == nil {
		return fmt.Errorf("coder %q: nil factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%q: %w", name, ErrDuplicateCoder)
	}
	r.factories[name] = f
	r.order = append(r.order, name)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// New constructs the coder registered under name.
func (r *Registry) New(name string) (Coder, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownSubcoder)
	}
	c, err := f()
	if err != nil {
		return nil, fmt.Errorf("construct coder %q: %w", name, err)
	}
	return c, nil
}
