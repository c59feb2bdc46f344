// Package agent implements the hierarchical agent tree (spec §4.2):
// the lifecycle state machine shared by every region, institution, and
// facility, and the capability interfaces the scheduler and exchange
// query against instead of relying on type assertions or inheritance.
package agent

import (
	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/aristath/simkernel/internal/registry"
)

// LifecycleState tracks an agent's position in the Template -> ...
// -> Decommissioned state machine (spec §4.2).
type LifecycleState int

const (
	StateTemplate LifecycleState = iota
	StateRegistered
	StateBuilt
	StateAlive
	StateDecommissioned
)

func (s LifecycleState) String() string {
	switch s {
	case StateTemplate:
		return "Template"
	case StateRegistered:
		return "Registered"
	case StateBuilt:
		return "Built"
	case StateAlive:
		return "Alive"
	case StateDecommissioned:
		return "Decommissioned"
	default:
		return "Unknown"
	}
}

// ID uniquely identifies a built agent instance, distinct from its
// prototype name.
type ID int64

// Base is the embeddable core every concrete archetype carries: tree
// links, lifecycle state, and identity. Archetypes hold a *Base, return
// it from their Base method, and implement whichever capability interfaces (Tickable, Tradable,
// Producer, Region, Institution, Facility) apply to them (spec §4.2).
type Base struct {
	id         ID
	kind       string // archetype name, e.g. "source", "sink"
	protoName  string
	state      LifecycleState
	enterTime  int
	exitTime   int
	lifetime   int // steps until auto-decommission; -1 means infinite
	parent     *Base
	children   []*Base
	self       registry.Prototype // the concrete archetype, for Clone
}

// NewBase constructs the tree-link/lifecycle portion of a new agent. It
// is called by archetype constructors, never directly by kernel code.
// Lifetime defaults to -1 (infinite), matching spec's sentinel
// convention; archetypes that accept a configured lifetime call
// SetLifetime before Build.
func NewBase(kind, protoName string, self registry.Prototype) *Base {
	return &Base{
		kind:      kind,
		protoName: protoName,
		state:     StateTemplate,
		lifetime:  -1,
		self:      self,
	}
}

func (b *Base) ID() ID                     { return b.id }
func (b *Base) Kind() string                { return b.kind }
func (b *Base) PrototypeName() string       { return b.protoName }
func (b *Base) State() LifecycleState       { return b.state }
func (b *Base) EnterTime() int              { return b.enterTime }
func (b *Base) ExitTime() int               { return b.exitTime }
func (b *Base) Lifetime() int               { return b.lifetime }
func (b *Base) SetLifetime(l int)           { b.lifetime = l }
func (b *Base) Parent() *Base               { return b.parent }
func (b *Base) Children() []*Base           { return b.children }

// Clone returns a fresh Template-state copy of the underlying
// archetype, satisfying registry.Prototype.
func (b *Base) Clone() registry.Prototype {
	return b.self.Clone()
}

// Spec satisfies registry.Prototype.
func (b *Base) Spec() string { return b.kind }

// register transitions Template -> Registered and assigns tree links.
// Called once by Tree.Register.
func (b *Base) register(id ID, parent *Base) error {
	if b.state != StateTemplate {
		return kernerr.Newf(kernerr.StateError, "agent %d: register called in state %s", id, b.state)
	}
	b.id = id
	b.parent = parent
	b.state = StateRegistered
	if parent != nil {
		parent.children = append(parent.children, b)
	}
	return nil
}

// build transitions Registered -> Built and stamps enter_time. Called
// once by Tree.Build just before EnterNotify fires.
func (b *Base) build(now int) error {
	if b.state != StateRegistered {
		return kernerr.Newf(kernerr.StateError, "agent %d: build called in state %s", b.id, b.state)
	}
	b.enterTime = now
	b.state = StateBuilt
	return nil
}

// activate transitions Built -> Alive, after EnterNotify returns
// without error.
func (b *Base) activate() error {
	if b.state != StateBuilt {
		return kernerr.Newf(kernerr.StateError, "agent %d: activate called in state %s", b.id, b.state)
	}
	b.state = StateAlive
	return nil
}

// decommission transitions Alive -> Decommissioned and stamps
// exit_time. Called by Tree.Decommission just before DecomNotify fires.
func (b *Base) decommission(now int) error {
	if b.state != StateAlive {
		return kernerr.Newf(kernerr.StateError, "agent %d: decommission called in state %s", b.id, b.state)
	}
	b.exitTime = now
	b.state = StateDecommissioned
	return nil
}

// Agent is the minimal surface the Tree operates on; every concrete
// archetype implements it via the *Base it holds plus lifecycle hooks.
type Agent interface {
	registry.Prototype
	Base() *Base

	// EnterNotify runs once, after the agent transitions to Built, and
	// before it is first ticked (spec §4.2). Archetypes use it to
	// register recipes, schedule their own children, etc.
	EnterNotify() error

	// DecomNotify runs once, when the agent is decommissioned, before
	// it is removed from the tree (spec §4.2). Archetypes use it to
	// flush inventories or notify their parent.
	DecomNotify() error
}

// Tickable agents run logic once per time step during the Tick phase
// (spec §4.5).
type Tickable interface {
	Agent
	Tick() error
}

// Tradable agents participate in the Dynamic Resource Exchange during
// the Exchange phase (spec §4.6). The concrete request/bid/trade types
// (internal/exchange.RequestPortfolio, BidPortfolio, Trade) are passed
// through as interface{} to avoid an import cycle (exchange depends on
// agent, not the reverse); internal/exchange is the only package that
// type-asserts these values back to their concrete forms.
type Tradable interface {
	Agent

	// RequestsForStep returns this step's []*exchange.RequestPortfolio
	// (nil or empty if the agent has nothing to request).
	RequestsForStep() interface{}

	// BidsForRequests receives every []*exchange.Request active this
	// step and returns this agent's []*exchange.BidPortfolio in
	// response.
	BidsForRequests(requests interface{}) interface{}

	// AcceptTrades receives this agent's matched []*exchange.Trade for
	// the step, both as a requester and as a bidder.
	AcceptTrades(trades interface{})
}

// Producer agents manufacture or consume resources during Tock,
// independent of any exchange trade (spec §4.5, e.g. a reactor burning
// fuel already on hand).
type Producer interface {
	Agent
	Tock() error
}

// Region is the tree-root capability: regions host institutions and
// typically drive population-level growth curves (spec §4.2).
type Region interface {
	Agent
}

// Institution hosts facilities and mediates their deployment (spec
// §4.2, e.g. deployinst).
type Institution interface {
	Agent
}

// Facility is the leaf capability: the agents that actually hold and
// transact resources.
type Facility interface {
	Agent
}
