package archetypes

import (
	"fmt"

	"github.com/aristath/simkernel/internal/agent"
	simctx "github.com/aristath/simkernel/internal/context"
	"github.com/aristath/simkernel/internal/exchange"
	"github.com/aristath/simkernel/internal/registry"
	"github.com/aristath/simkernel/internal/resource"
)

// Sink accepts one or more input commodities up to a per-step
// throughput and a lifetime inventory capacity (spec §8 scenario: bulk
// demand facility). Grounded on cycamore's sink.h.
type Sink struct {
	base *agent.Base
	ctx  *simctx.Context

	InCommods     []string
	InCommodPrefs []float64 // parallel to InCommods; defaults to 1 when unset
	RecipeName    string    // empty: accept any composition
	MaxInvSize    float64
	Capacity      float64

	inventoryQty float64
	received     []*resource.Material
}

var (
	_ agent.Facility = (*Sink)(nil)
	_ agent.Tradable = (*Sink)(nil)
)

// NewSink constructs a Template-state Sink prototype.
func NewSink(ctx *simctx.Context, inCommods []string, recipeName string, maxInvSize, capacity float64) *Sink {
	s := &Sink{ctx: ctx, InCommods: inCommods, RecipeName: recipeName, MaxInvSize: maxInvSize, Capacity: capacity}
	s.base = agent.NewBase("sink", "", s)
	return s
}

func (s *Sink) Base() *agent.Base { return s.base }
func (s *Sink) Spec() string      { return s.base.Spec() }

func (s *Sink) Clone() registry.Prototype {
	return NewSink(s.ctx, append([]string(nil), s.InCommods...), s.RecipeName, s.MaxInvSize, s.Capacity)
}

func (s *Sink) EnterNotify() error {
	s.ctx.RegisterTrader(s.base.ID(), s)
	return nil
}

func (s *Sink) DecomNotify() error {
	s.ctx.UnregisterTrader(s.base.ID())
	return nil
}

// requestAmt mirrors cycamore's RequestAmt(): the lesser of this
// step's throughput capacity and remaining inventory space.
func (s *Sink) requestAmt() float64 {
	space := s.MaxInvSize - s.inventoryQty
	if space < 0 {
		space = 0
	}
	amt := s.Capacity
	if space < amt {
		amt = space
	}
	return amt
}

// RequestsForStep asks for up to requestAmt() of every input commodity,
// all under one mutual-exclusion group so the matching algorithm fills
// at most one of them: requestAmt() is the sink's entire remaining
// space for the step, and accepting that amount from every commodity
// independently would let the sink absorb InCommods-many multiples of
// its own capacity.
func (s *Sink) RequestsForStep() interface{} {
	amt := s.requestAmt()
	if amt <= resource.EpsRsrc {
		return nil
	}
	group := fmt.Sprintf("sink-%d", s.base.ID())
	var requests []*exchange.Request
	for i, commod := range s.InCommods {
		pref := 1.0
		if i < len(s.InCommodPrefs) {
			pref = s.InCommodPrefs[i]
		}
		requests = append(requests, &exchange.Request{
			Requester:  s,
			Commodity:  commod,
			Quantity:   amt,
			Group:      group,
			Preference: pref,
		})
	}
	return []*exchange.RequestPortfolio{{Requester: s, Requests: requests}}
}

// BidsForRequests: a sink never supplies anything.
func (s *Sink) BidsForRequests(raw interface{}) interface{} { return nil }

// AcceptTrades: place accepted material in inventory (spec: "place
// accepted trade Materials in their Inventory").
func (s *Sink) AcceptTrades(raw interface{}) {
	trades, _ := raw.([]*exchange.Trade)
	for _, t := range trades {
		if t.Request.Requester != s {
			continue
		}
		if m, ok := t.Resource.(*resource.Material); ok && m != nil {
			s.received = append(s.received, m)
		}
		s.inventoryQty += t.Quantity
	}
}

// InventorySize returns the sink's current held quantity.
func (s *Sink) InventorySize() float64 { return s.inventoryQty }

// Received returns every real resource object the sink has taken
// ownership of through a matched trade.
func (s *Sink) Received() []*resource.Material { return s.received }
