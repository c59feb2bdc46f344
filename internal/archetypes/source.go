// Package archetypes provides a minimal but complete set of concrete
// agents exercising every kernel phase: Source and Sink (bulk material
// supply/demand), Enrichment (a facility that both requests and bids,
// transforming what it receives), and DeployInst (an institution that
// builds facilities on a schedule). Grounded on cycamore's source.h,
// sink.h, enrichment.h, and deploy_inst.h.
package archetypes

import (
	"github.com/aristath/simkernel/internal/agent"
	simctx "github.com/aristath/simkernel/internal/context"
	"github.com/aristath/simkernel/internal/exchange"
	"github.com/aristath/simkernel/internal/registry"
	"github.com/aristath/simkernel/internal/resource"
)

// Source offers a single output commodity, optionally fixed to one
// recipe, up to a per-step throughput and a lifetime inventory budget
// (spec §8 scenario: bulk supply facility).
type Source struct {
	base *agent.Base
	ctx  *simctx.Context

	OutCommod     string
	OutRecipe     string // empty or unknown: pure U-235 (922350000)
	InventorySize float64
	Throughput    float64

	inventory *resource.Material // the single owned resource backing every bid
}

var (
	_ agent.Facility            = (*Source)(nil)
	_ agent.Tradable            = (*Source)(nil)
	_ exchange.ResourceSupplier = (*Source)(nil)
)

// NewSource constructs a Template-state Source prototype.
func NewSource(ctx *simctx.Context, outCommod, outRecipe string, inventorySize, throughput float64) *Source {
	s := &Source{ctx: ctx, OutCommod: outCommod, OutRecipe: outRecipe, InventorySize: inventorySize, Throughput: throughput}
	s.base = agent.NewBase("source", "", s)
	return s
}

func (s *Source) Base() *agent.Base { return s.base }
func (s *Source) Spec() string      { return s.base.Spec() }

func (s *Source) Clone() registry.Prototype {
	clone := NewSource(s.ctx, s.OutCommod, s.OutRecipe, s.InventorySize, s.Throughput)
	return clone
}

// EnterNotify registers the source as a trader and stocks its single
// owned inventory object up to InventorySize (spec §3: "every live
// resource has exactly one owner at any instant" — the source owns this
// Material outright and only ever hands out pieces split from it).
func (s *Source) EnterNotify() error {
	s.ctx.RegisterTrader(s.base.ID(), s)
	m, err := resource.CreateMaterial(s.ctx, s.InventorySize, "kg", s.recipeOrDefault())
	if err != nil {
		return err
	}
	s.inventory = m
	return nil
}

func (s *Source) DecomNotify() error {
	s.ctx.UnregisterTrader(s.base.ID())
	return nil
}

// RequestsForStep: a pure supplier issues no requests.
func (s *Source) RequestsForStep() interface{} { return nil }

// BidsForRequests offers up to min(Throughput, remaining inventory) of
// OutCommod against every matching request, at the fixed recipe if
// configured (spec: "provides that single material composition to
// requesters"); a "throughput" capacity constraint on the portfolio
// caps the combined matched total at that same amount. Offer exposes the real owned inventory object so a
// requester's AdjustMatlPrefs can inspect its actual composition; no
// resource is extracted (and no Resources row minted) until a bid
// actually wins at ExtractForTrade time.
func (s *Source) BidsForRequests(raw interface{}) interface{} {
	requests, _ := raw.([]*exchange.Request)
	if s.inventory == nil {
		return nil
	}
	cap := s.Throughput
	if s.inventory.Quantity() < cap {
		cap = s.inventory.Quantity()
	}
	if cap <= resource.EpsRsrc {
		return nil
	}

	var bids []*exchange.Bid
	for _, r := range requests {
		if r.Commodity != s.OutCommod {
			continue
		}
		qty := r.Quantity
		if qty > cap {
			qty = cap
		}
		bids = append(bids, &exchange.Bid{
			Request:    r,
			Bidder:     s,
			Offer:      s.inventory,
			Quantity:   qty,
			Preference: 1.0,
		})
	}
	if len(bids) == 0 {
		return nil
	}
	return []*exchange.BidPortfolio{{
		Bidder:      s,
		Bids:        bids,
		Constraints: []exchange.CapacityConstraint{{Name: "throughput", Capacity: cap}},
	}}
}

// AcceptTrades is a no-op: the resource hand-off already happened in
// ExtractForTrade at match-execution time, before AcceptTrades fires.
func (s *Source) AcceptTrades(raw interface{}) {}

// ExtractForTrade splits t.Quantity out of the source's owned inventory
// and hands the piece to the Market for delivery to the requester (spec
// §4.6 Execution, §3: the extracted piece is a distinct, singly-owned
// resource from the moment it's split off).
func (s *Source) ExtractForTrade(t *exchange.Trade) (resource.Resource, error) {
	return s.inventory.ExtractQty(t.Quantity)
}

func (s *Source) recipeOrDefault() resource.Composition {
	if s.OutRecipe == "" {
		comp, _ := resource.NewComposition(map[int64]float64{922350000: 1})
		return comp
	}
	comp, err := s.ctx.Recipes.Get(s.OutRecipe)
	if err != nil {
		comp, _ = resource.NewComposition(map[int64]float64{922350000: 1})
	}
	return comp
}
