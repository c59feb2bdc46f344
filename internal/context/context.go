// Package context implements the kernel Context (spec §9): the single
// process-wide service locator that owns every piece of state a
// simulation run needs — the clock, id counters, composition/quality
// interning, the agent tree, the registries, and the recorder — so no
// other package reaches for a package-level global.
package context

import (
	"math/rand"

	"github.com/aristath/simkernel/internal/agent"
	"github.com/aristath/simkernel/internal/recorder"
	"github.com/aristath/simkernel/internal/registry"
	"github.com/aristath/simkernel/internal/resource"
	"github.com/rs/zerolog"
)

var (
	_ resource.Env   = (*Context)(nil)
	_ agent.IDSource = (*Context)(nil)
)

// Context is the kernel's central service locator (spec §9). It
// implements resource.Env and agent.IDSource so the lower-level
// packages can depend on narrow interfaces instead of this concrete
// type.
type Context struct {
	log zerolog.Logger

	now      int
	dt       int
	duration int

	nextObjID   resource.ObjID
	nextStateID resource.StateID
	nextQualID  resource.QualID
	nextAgentID agent.ID

	comps *resource.CompositionRegistry
	quals *resource.QualityRegistry
	track bool

	Prototypes *registry.PrototypeRegistry
	Recipes    *registry.RecipeRegistry
	Packages   *registry.PackageRegistry
	Tree       *agent.Tree
	Rec        *recorder.Recorder

	RNG *rand.Rand

	traders map[agent.ID]agent.Tradable

	decomSched DecomScheduler
}

// DecomScheduler is the narrow seam Context uses to enforce Agent.lifetime
// generically (spec §3, §4.2): given the absolute time step at which an
// agent's lifetime runs out (EnterTime + Lifetime), schedule its
// auto-decommission. Satisfied by
// *scheduler.Scheduler's SchedDecom without Context importing scheduler,
// which already imports Context.
type DecomScheduler interface {
	SchedDecom(t int, fn func() error)
}

// Config seeds the simulation-wide constants a Context needs at
// construction (spec §4.1 sim_info).
type Config struct {
	Duration  int
	DT        int
	Seed      int64
	DumpCount int
	Tracking  bool
}

// New builds a Context with every registry empty and the clock parked
// at t=0.
func New(cfg Config, log zerolog.Logger) *Context {
	ctx := &Context{
		log:        log.With().Str("component", "context").Logger(),
		dt:         cfg.DT,
		duration:   cfg.Duration,
		track:      cfg.Tracking,
		comps:      resource.NewCompositionRegistry(),
		quals:      resource.NewQualityRegistry(),
		Prototypes: registry.NewPrototypeRegistry(log),
		Recipes:    registry.NewRecipeRegistry(log),
		Packages:   registry.NewPackageRegistry(log),
		Rec:        recorder.New(cfg.DumpCount, log),
		RNG:        rand.New(rand.NewSource(cfg.Seed)),
		traders:    make(map[agent.ID]agent.Tradable),
	}
	ctx.Tree = agent.NewTree(ctx)
	return ctx
}

// --- sim_info / clock -------------------------------------------------

func (c *Context) Now() int      { return c.now }
func (c *Context) DT() int       { return c.dt }
func (c *Context) Duration() int { return c.duration }

// Advance moves the clock forward by dt, called once per step by the
// scheduler between phases (spec §4.5).
func (c *Context) Advance() {
	c.now += c.dt
}

// --- resource.Env ------------------------------------------------------

func (c *Context) NextObjID() resource.ObjID {
	c.nextObjID++
	return c.nextObjID
}

func (c *Context) NextStateID() resource.StateID {
	c.nextStateID++
	return c.nextStateID
}

func (c *Context) InternComposition(frac map[int64]float64) resource.QualID {
	comp, err := resource.NewComposition(frac)
	if err != nil {
		// Callers are expected to validate before interning; an invalid
		// composition here indicates a kernel bug, not bad scenario
		// input, so surface it loudly rather than silently drop rows.
		c.log.Error().Err(err).Msg("InternComposition received an invalid fraction map")
		return 0
	}
	id, isNew := c.comps.Intern(comp, c.nextQual)
	if isNew {
		comp.Each(func(nucID int64, massFrac float64) {
			c.Rec.NewDatum("Compositions").
				AddVal("QualId", int64(id)).
				AddVal("NucId", nucID).
				AddVal("MassFrac", massFrac).
				Record()
		})
	}
	return id
}

func (c *Context) InternQuality(quality string) resource.QualID {
	id, isNew := c.quals.Intern(quality, c.nextQual)
	if isNew {
		c.Rec.NewDatum("Products").
			AddVal("QualId", int64(id)).
			AddVal("Quality", quality).
			Record()
	}
	return id
}

func (c *Context) nextQual() resource.QualID {
	c.nextQualID++
	return c.nextQualID
}

func (c *Context) RecordResourceRow(row resource.Row) {
	c.Rec.NewDatum("Resources").
		AddVal("ResourceId", int64(row.StateID)).
		AddVal("ObjId", int64(row.ObjID)).
		AddVal("Type", row.Type.String()).
		AddVal("TimeCreated", row.TimeCreated).
		AddVal("Quantity", row.Quantity).
		AddVal("Units", row.Units).
		AddVal("QualId", int64(row.QualID)).
		AddVal("Package", row.PackageName).
		AddVal("Parent1", int64(row.Parent1)).
		AddVal("Parent2", int64(row.Parent2)).
		Record()
}

func (c *Context) TrackingEnabled() bool { return c.track }

// --- agent.IDSource ------------------------------------------------------

func (c *Context) NextAgentID() agent.ID {
	c.nextAgentID++
	return c.nextAgentID
}

// --- trader registry (spec §4.6) ---------------------------------------

// RegisterTrader makes a built facility/institution visible to the
// Dynamic Resource Exchange for the current step.
func (c *Context) RegisterTrader(id agent.ID, t agent.Tradable) {
	c.traders[id] = t
}

// UnregisterTrader removes a decommissioned agent from exchange
// participation.
func (c *Context) UnregisterTrader(id agent.ID) {
	delete(c.traders, id)
}

// Traders returns every currently registered exchange participant.
func (c *Context) Traders() map[agent.ID]agent.Tradable {
	return c.traders
}

// NewDatum exposes the recorder's row builder to archetypes without
// requiring them to import internal/recorder directly.
func (c *Context) NewDatum(table string) *recorder.Datum {
	return c.Rec.NewDatum(table)
}

// --- agent lifecycle recording (spec §6 AgentEntry/AgentExit) ----------

// BuildAgent transitions a to Built/Alive via the Tree and records an
// AgentEntry row, the output-schema counterpart of the Build phase
// (spec §4.2, §4.5, §6).
func (c *Context) BuildAgent(a agent.Agent, now int) error {
	if err := c.Tree.Build(a, now); err != nil {
		return err
	}
	b := a.Base()
	var parentID int64
	if p := b.Parent(); p != nil {
		parentID = int64(p.ID())
	}
	c.Rec.NewDatum("AgentEntry").
		AddVal("AgentId", int64(b.ID())).
		AddVal("Kind", b.Kind()).
		AddVal("Spec", a.Spec()).
		AddVal("Prototype", b.PrototypeName()).
		AddVal("ParentId", parentID).
		AddVal("EnterTime", b.EnterTime()).
		AddVal("Lifetime", b.Lifetime()).
		Record()

	if b.Lifetime() >= 0 && c.decomSched != nil {
		exitAt := b.EnterTime() + b.Lifetime()
		c.decomSched.SchedDecom(exitAt, func() error {
			if a.Base().State() != agent.StateAlive {
				return nil
			}
			return c.DecommissionAgent(a, exitAt)
		})
	}
	return nil
}

// DecommissionAgent first decommissions a's live children, depth-first,
// then transitions a to Decommissioned via the Tree and records an
// AgentExit row for each agent it decommissions.
func (c *Context) DecommissionAgent(a agent.Agent, now int) error {
	for _, cb := range append([]*agent.Base(nil), a.Base().Children()...) {
		child, ok := c.Tree.Get(cb.ID())
		if !ok || cb.State() != agent.StateAlive {
			continue
		}
		if err := c.DecommissionAgent(child, now); err != nil {
			return err
		}
	}
	if err := c.Tree.Decommission(a, now); err != nil {
		return err
	}
	c.Rec.NewDatum("AgentExit").
		AddVal("AgentId", int64(a.Base().ID())).
		AddVal("ExitTime", a.Base().ExitTime()).
		Record()
	return nil
}

// SeedCounters advances the id counters to at least the given
// watermarks, used by simrestart to avoid colliding with ids already
// present in a prior run's database.
func (c *Context) SeedCounters(nextObjID, nextStateID, nextAgentID int64) {
	if v := resource.ObjID(nextObjID); v > c.nextObjID {
		c.nextObjID = v
	}
	if v := resource.StateID(nextStateID); v > c.nextStateID {
		c.nextStateID = v
	}
	if v := agent.ID(nextAgentID); v > c.nextAgentID {
		c.nextAgentID = v
	}
}

// FastForward jumps the clock directly to t, used by simrestart to
// resume at a prior run's checkpoint time without replaying the
// elapsed steps.
func (c *Context) FastForward(t int) {
	c.now = t
}

// SetScheduler wires the Scheduler seam BuildAgent uses to auto-schedule
// decommission of finite-lifetime agents. Must be called before any
// agent with a finite lifetime is built; tests that never build such an
// agent may leave it nil.
func (c *Context) SetScheduler(s DecomScheduler) {
	c.decomSched = s
}
