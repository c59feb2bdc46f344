package registry

import (
	"sync"

	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/aristath/simkernel/internal/resource"
	"github.com/rs/zerolog"
)

// RecipeRegistry maps recipe names to fixed Compositions, letting
// archetypes request material by name ("natural_uranium") instead of
// inlining a nuclide map (spec §4.3).
type RecipeRegistry struct {
	mu   sync.RWMutex
	byName map[string]resource.Composition
	log  zerolog.Logger
}

func NewRecipeRegistry(log zerolog.Logger) *RecipeRegistry {
	return &RecipeRegistry{
		byName: make(map[string]resource.Composition),
		log:    log.With().Str("component", "recipe_registry").Logger(),
	}
}

// Add registers comp under name. Recipes are immutable once added.
func (r *RecipeRegistry) Add(name string, comp resource.Composition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return kernerr.Newf(kernerr.ValueError, "recipe %q already registered", name)
	}
	r.byName[name] = comp
	r.log.Debug().Str("recipe", name).Msg("recipe registered")
	return nil
}

// Get returns the named recipe's composition.
func (r *RecipeRegistry) Get(name string) (resource.Composition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	if !ok {
		return resource.Composition{}, kernerr.Newf(kernerr.KeyError, "no such recipe %q", name)
	}
	return c, nil
}

// Has reports whether name is a registered recipe.
func (r *RecipeRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}
