package feature

import (
	"fmt"
	"sync"
)

// Registry maps every catalog feature to its current state. The key set never changes.
type Registry struct {
	catalog Catalog
	states  map[Name]State
	mutex   sync.RWMutex
}

// NewRegistry builds a registry populated with the catalog defaults. A catalog whose
// defaults do not validate is a configuration error.
func NewRegistry(catalog Catalog) (*Registry, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &Registry{
		catalog: catalog,
		states:  catalog.defaults(),
	}, nil
}

func (c Catalog) defaults() map[Name]State {
	states := make(map[Name]State, len(c))
	for _, d := range c {
		states[d.Name] = d.Default.clone()
	}
	return states
}

// Catalog returns the definitions backing the registry.
func (r *Registry) Catalog() Catalog {
	return r.catalog
}

// All returns a copy of the full name to state mapping.
func (r *Registry) All() map[Name]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make(map[Name]State, len(r.states))
	for name, s := range r.states {
		out[name] = s.clone()
	}
	return out
}

// Get returns the state of name, or false when name is not a known feature.
func (r *Registry) Get(name Name) (State, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	s, ok := r.states[name]
	if !ok {
		return State{}, false
	}
	return s.clone(), true
}

// Change validates proposed against the feature's rules and stores its canonical form.
func (r *Registry) Change(name Name, proposed State) (State, error) {
	def, ok := r.catalog.Lookup(name)
	if !ok {
		return State{}, fmt.Errorf("%w: %q", ErrUnknownFeature, name)
	}
	norm, err := def.Normalize(proposed)
	if err != nil {
		return State{}, err
	}

	r.mutex.Lock()
	r.states[name] = norm
	r.mutex.Unlock()
	return norm.clone(), nil
}

// Reset restores every feature to its default in one step.
func (r *Registry) Reset() {
	defaults := r.catalog.defaults()

	r.mutex.Lock()
	r.states = defaults
	r.mutex.Unlock()
}

// Restore applies persisted states on top of the defaults. Unknown names are dropped,
// states that no longer validate fall back to the default, and missing names keep
// their default. It returns how many entries were applied and how many were dropped.
func (r *Registry) Restore(persisted map[string]State) (applied, dropped int) {
	states := r.catalog.defaults()
	for key, s := range persisted {
		def, ok := r.catalog.Lookup(Name(key))
		if !ok {
			dropped++
			continue
		}
		norm, err := def.Normalize(s)
		if err != nil {
			dropped++
			continue
		}
		states[def.Name] = norm
		applied++
	}

	r.mutex.Lock()
	r.states = states
	r.mutex.Unlock()
	return applied, dropped
}
