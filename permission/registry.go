package permission

import (
	"errors"
	"sort"
	"sync"
)

// Registry holds the set of role names the engine accepts on a
// principal. Roles are registered during initialization and the
// registry is frozen before first use.
type Registry struct {
	mu     sync.RWMutex
	roles  map[string]struct{}
	frozen bool
}

// NewRegistry creates an empty role [Registry].
func NewRegistry() *Registry {
	return &Registry{roles: make(map[string]struct{})}
}

// Register adds a role name. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return errors.New("registry frozen")
	}

	if name == "" {
		return errors.New("role name cannot be empty")
	}

	if _, exists := r.roles[name]; exists {
		return errors.New("role already registered")
	}

	r.roles[name] = struct{}{}
	return nil
}

// Known reports whether the role name was registered.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roles[name]
	return ok
}

// Freeze prevents further registrations. Must be called before the
// registry is used for validation.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Names returns the registered role names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.roles))
	for name := range r.roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
