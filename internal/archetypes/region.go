package archetypes

import (
	"github.com/aristath/simkernel/internal/agent"
	simctx "github.com/aristath/simkernel/internal/context"
	"github.com/aristath/simkernel/internal/registry"
)

// Region is the passive tree-root archetype: it hosts institutions but
// carries no logic of its own beyond the lifecycle hooks every agent
// needs, mirroring cyclus's bare NullRegion used whenever a scenario's
// growth behavior is delegated entirely to its institutions.
type Region struct {
	base *agent.Base
	ctx  *simctx.Context
}

var _ agent.Region = (*Region)(nil)

// NewRegion constructs a Template-state Region prototype.
func NewRegion(ctx *simctx.Context) *Region {
	r := &Region{ctx: ctx}
	r.base = agent.NewBase("region", "", r)
	return r
}

func (r *Region) Base() *agent.Base { return r.base }
func (r *Region) Spec() string      { return r.base.Spec() }

func (r *Region) Clone() registry.Prototype { return NewRegion(r.ctx) }

func (r *Region) EnterNotify() error { return nil }
func (r *Region) DecomNotify() error { return nil }
