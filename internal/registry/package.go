package registry

import (
	"sync"

	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/aristath/simkernel/internal/resource"
	"github.com/rs/zerolog"
)

// PackageRegistry maps names to Package fill rules and TransportUnit
// shipping rules (spec §3). Both the Unpackaged and Unrestricted
// singletons are pre-registered.
type PackageRegistry struct {
	mu        sync.RWMutex
	packages  map[string]resource.Package
	transport map[string]resource.TransportUnit
	log       zerolog.Logger
}

func NewPackageRegistry(log zerolog.Logger) *PackageRegistry {
	reg := &PackageRegistry{
		packages:  make(map[string]resource.Package),
		transport: make(map[string]resource.TransportUnit),
		log:       log.With().Str("component", "package_registry").Logger(),
	}
	reg.packages[resource.UnpackagedName] = resource.Unpackaged
	reg.transport[resource.UnrestrictedName] = resource.Unrestricted
	return reg
}

func (r *PackageRegistry) AddPackage(p resource.Package) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.packages[p.Name]; exists {
		return kernerr.Newf(kernerr.ValueError, "package %q already registered", p.Name)
	}
	r.packages[p.Name] = p
	r.log.Debug().Str("package", p.Name).Msg("package registered")
	return nil
}

func (r *PackageRegistry) Package(name string) (resource.Package, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.packages[name]
	if !ok {
		return resource.Package{}, kernerr.Newf(kernerr.KeyError, "no such package %q", name)
	}
	return p, nil
}

func (r *PackageRegistry) AddTransportUnit(t resource.TransportUnit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transport[t.Name]; exists {
		return kernerr.Newf(kernerr.ValueError, "transport unit %q already registered", t.Name)
	}
	r.transport[t.Name] = t
	r.log.Debug().Str("transport_unit", t.Name).Msg("transport unit registered")
	return nil
}

func (r *PackageRegistry) TransportUnit(name string) (resource.TransportUnit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transport[name]
	if !ok {
		return resource.TransportUnit{}, kernerr.Newf(kernerr.KeyError, "no such transport unit %q", name)
	}
	return t, nil
}
