// Package exchange implements the Dynamic Resource Exchange (spec
// §4.6): facilities advertise what they want (requests) and what they
// can supply (bids) once per time step, and a deterministic greedy
// matching algorithm pairs them into executed trades.
package exchange

import (
	"github.com/aristath/simkernel/internal/agent"
	"github.com/aristath/simkernel/internal/resource"
)

// Request names a commodity and a quantity a Tradable wants to receive.
// Preference is mutable: AdjustMatlPrefs/AdjustGenRsrcPrefs let a
// requester re-rank its own bids after seeing them, before matching
// runs (spec §4.6).
type Request struct {
	ID         int64
	Requester  agent.Tradable
	Commodity  string
	Quantity   float64
	Exclusive  bool // all-or-nothing: a partial match is rejected
	Group      string // mutual-exclusion group; empty means ungrouped
	Preference float64

	// constraints is populated by Market.Run from the owning
	// RequestPortfolio so the matching algorithm can enforce a shared
	// capacity budget across every request that portfolio issued (spec
	// §4.6 bullet 4: "the requester portfolio's remaining capacity").
	constraints []CapacityConstraint
}

// RequestPortfolio is everything one Tradable wants this step. A
// mutual-exclusion Group spans only requests issued by the same
// requester; the matcher keys groups by requester and Group string.
type RequestPortfolio struct {
	Requester   agent.Tradable
	Requests    []*Request
	Constraints []CapacityConstraint
}

// Bid offers a quantity of a commodity against a specific Request.
type Bid struct {
	ID         int64
	Bidder     agent.Tradable
	Request    *Request
	Offer      resource.Resource
	Quantity   float64
	Price      float64 // money per unit, recorded on the Transactions row
	Exclusive  bool
	Preference float64

	// constraints is populated by Market.Run from the owning
	// BidPortfolio so the matching algorithm can enforce a shared
	// capacity budget across every bid that portfolio issued.
	constraints []CapacityConstraint
}

// BidPortfolio is everything one Tradable is willing to supply this
// step, along with the capacity constraints shared across every bid in
// it (e.g. a single enrichment SWU budget backing several bids).
type BidPortfolio struct {
	Bidder      agent.Tradable
	Bids        []*Bid
	Constraints []CapacityConstraint
}

// CapacityConstraint caps the total Converter-weighted quantity a
// portfolio may commit across all of its matched bids (spec §4.6, e.g.
// an enrichment facility's monthly SWU budget).
type CapacityConstraint struct {
	Name      string
	Capacity  float64
	Converter func(qty float64) float64
}

// converted applies the constraint's converter, defaulting to identity
// when none was supplied.
func (c CapacityConstraint) converted(qty float64) float64 {
	if c.Converter == nil {
		return qty
	}
	return c.Converter(qty)
}

// Trade is one matched (request, bid, quantity) triple produced by the
// matching algorithm and handed to both sides via AcceptTrades (spec
// §4.6).
type Trade struct {
	Request  *Request
	Bid      *Bid
	Quantity float64

	// Resource is the actual resource.Resource handed over by the bidder
	// at execution time, set by Market.deliver via ResourceSupplier
	// (spec §4.6 Execution: "the state_id recorded is the state_id of
	// the resource after any split necessary to honor the trade").
	Resource resource.Resource
}

// ResourceSupplier lets a bidder hand over a real, owned resource at
// trade-execution time instead of the Market minting one out of thin
// air. Archetypes that bid (Source, Enrichment) implement this;
// Market.deliver type-asserts a winning Bid.Bidder against it.
type ResourceSupplier interface {
	ExtractForTrade(t *Trade) (resource.Resource, error)
}

// MatlPrefAdjuster is the hook a requester can implement (beyond the
// base Tradable interface) to re-rank bids against its own requests, by
// material composition, before matching runs; Market.Run calls
// AdjustMatlPrefs on every requester that implements it. Market.Run
// does not call AdjustGenRsrcPrefs: a requester implementing only
// GenRsrcPrefAdjuster keeps its bids' preferences unchanged.
type MatlPrefAdjuster interface {
	AdjustMatlPrefs(bids []*Bid) []*Bid
}

type GenRsrcPrefAdjuster interface {
	AdjustGenRsrcPrefs(bids []*Bid) []*Bid
}
