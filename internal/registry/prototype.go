// Package registry holds the simulation-wide lookup tables that agents
// and the kernel consult by name rather than by direct reference:
// prototypes, recipes, and packaging/transport rules (spec §4.2, §4.3).
// Grounded on the teacher's registry/with-mutex pattern (e.g.
// trader/internal/modules/sequences/patterns/registry.go).
package registry

import (
	"sync"

	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/rs/zerolog"
)

// Prototype is a named, uncloned agent template awaiting registration
// (spec §4.2 lifecycle: Template -> Registered).
type Prototype interface {
	Clone() Prototype
	Spec() string // archetype identifier, e.g. "source", "sink"
}

// PrototypeRegistry maps prototype names to Template-state agent specs.
type PrototypeRegistry struct {
	mu    sync.RWMutex
	byName map[string]Prototype
	log   zerolog.Logger
}

func NewPrototypeRegistry(log zerolog.Logger) *PrototypeRegistry {
	return &PrototypeRegistry{
		byName: make(map[string]Prototype),
		log:    log.With().Str("component", "prototype_registry").Logger(),
	}
}

// Add registers a prototype under name. Re-registering a name already
// in use, with any template, is a ValueError (spec §4.2).
func (r *PrototypeRegistry) Add(name string, p Prototype) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return kernerr.Newf(kernerr.ValueError, "prototype %q already registered", name)
	}
	r.byName[name] = p
	r.log.Debug().Str("prototype", name).Msg("prototype registered")
	return nil
}

// Clone returns a fresh, unregistered agent cloned from the named
// prototype (spec §4.2 "name_life_N" aliasing happens one layer up, in
// internal/agent, whose Tree.Register calls this once per Register).
func (r *PrototypeRegistry) Clone(name string) (Prototype, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	if !ok {
		return nil, kernerr.Newf(kernerr.KeyError, "no such prototype %q", name)
	}
	return p.Clone(), nil
}

// Has reports whether name is a registered prototype.
func (r *PrototypeRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// Names returns every registered prototype name.
func (r *PrototypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	return names
}
