package exchange

import (
	"testing"

	"github.com/aristath/simkernel/internal/agent"
	"github.com/aristath/simkernel/internal/registry"
	"github.com/aristath/simkernel/internal/resource"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// traderStub is a minimal agent.Tradable whose requests/bids/trades are
// configured directly by each test rather than computed.
type traderStub struct {
	base *agent.Base

	requests []*RequestPortfolio
	bids     []*BidPortfolio
	accepted []*Trade
}

func newTraderStub(kind string) *traderStub {
	s := &traderStub{}
	s.base = agent.NewBase(kind, "", s)
	return s
}

func (s *traderStub) Base() *agent.Base   { return s.base }
func (s *traderStub) Spec() string        { return s.base.Spec() }
func (s *traderStub) Clone() registry.Prototype { return s }
func (s *traderStub) EnterNotify() error  { return nil }
func (s *traderStub) DecomNotify() error  { return nil }

func (s *traderStub) RequestsForStep() interface{} {
	if s.requests == nil {
		return nil
	}
	return s.requests
}

func (s *traderStub) BidsForRequests(raw interface{}) interface{} {
	if s.bids == nil {
		return nil
	}
	return s.bids
}

func (s *traderStub) AcceptTrades(raw interface{}) {
	trades, _ := raw.([]*Trade)
	s.accepted = append(s.accepted, trades...)
}

// ExtractForTrade satisfies ResourceSupplier so Market.deliver can
// execute trades bid by a stub without a real resource backing them;
// it hands over a nil resource, and these tests check matched
// quantities rather than delivered resources.
func (s *traderStub) ExtractForTrade(t *Trade) (resource.Resource, error) {
	return nil, nil
}

// buildTrader registers s in a fresh tree so Base().ID() is a real,
// comparable id the matching algorithm can sort on.
func buildTrader(t *testing.T, tree *agent.Tree, reg *registry.PrototypeRegistry, name string, s *traderStub) agent.Agent {
	t.Helper()
	require.NoError(t, reg.Add(name, s))
	a, err := tree.Register(name, reg, nil)
	require.NoError(t, err)
	require.NoError(t, tree.Build(a, 0))
	return a
}

type seqIDs struct{ next agent.ID }

func (s *seqIDs) NextAgentID() agent.ID { s.next++; return s.next }

func newHarness() (*agent.Tree, *registry.PrototypeRegistry) {
	return agent.NewTree(&seqIDs{}), registry.NewPrototypeRegistry(zerolog.Nop())
}

func TestMarketMatchesHighestPreferenceBidFirst(t *testing.T) {
	tree, reg := newHarness()

	requester := newTraderStub("requester")
	req := &Request{Requester: requester, Commodity: "u", Quantity: 10}
	requester.requests = []*RequestPortfolio{{Requester: requester, Requests: []*Request{req}}}
	buildTrader(t, tree, reg, "requester", requester)

	lowPref := newTraderStub("low")
	lowPref.bids = []*BidPortfolio{{Bidder: lowPref, Bids: []*Bid{{Request: req, Bidder: lowPref, Quantity: 10, Preference: 0.1}}}}
	buildTrader(t, tree, reg, "low", lowPref)

	highPref := newTraderStub("high")
	highPref.bids = []*BidPortfolio{{Bidder: highPref, Bids: []*Bid{{Request: req, Bidder: highPref, Quantity: 10, Preference: 0.9}}}}
	buildTrader(t, tree, reg, "high", highPref)

	m := New(nil, zerolog.Nop())
	require.NoError(t, m.Run(tradersOf(tree)))

	require.Len(t, highPref.accepted, 1)
	assert.Empty(t, lowPref.accepted, "the lower-preference bidder should not have been matched")
	assert.InDelta(t, 10, highPref.accepted[0].Quantity, 1e-9)
}

func TestMarketSplitsAcrossBiddersWhenOneCannotCoverTheWholeRequest(t *testing.T) {
	tree, reg := newHarness()

	requester := newTraderStub("requester")
	req := &Request{Requester: requester, Commodity: "u", Quantity: 10}
	requester.requests = []*RequestPortfolio{{Requester: requester, Requests: []*Request{req}}}
	buildTrader(t, tree, reg, "requester", requester)

	first := newTraderStub("first")
	first.bids = []*BidPortfolio{{Bidder: first, Bids: []*Bid{{Request: req, Bidder: first, Quantity: 4, Preference: 1}}}}
	buildTrader(t, tree, reg, "first", first)

	second := newTraderStub("second")
	second.bids = []*BidPortfolio{{Bidder: second, Bids: []*Bid{{Request: req, Bidder: second, Quantity: 10, Preference: 1}}}}
	buildTrader(t, tree, reg, "second", second)

	m := New(nil, zerolog.Nop())
	require.NoError(t, m.Run(tradersOf(tree)))

	// equal preference: tie-break on ascending bidder id, so "first"
	// (registered, hence built, before "second") is filled first.
	require.Len(t, first.accepted, 1)
	require.Len(t, second.accepted, 1)
	assert.InDelta(t, 4, first.accepted[0].Quantity, 1e-9)
	assert.InDelta(t, 6, second.accepted[0].Quantity, 1e-9)
}

func TestMarketExclusiveBidRejectsPartialFill(t *testing.T) {
	tree, reg := newHarness()

	// the request only wants 3, so a 5-unit exclusive bid can't be taken
	// in full and must be skipped rather than partially consumed.
	requester := newTraderStub("requester")
	req := &Request{Requester: requester, Commodity: "u", Quantity: 3}
	requester.requests = []*RequestPortfolio{{Requester: requester, Requests: []*Request{req}}}
	buildTrader(t, tree, reg, "requester", requester)

	bidder := newTraderStub("bidder")
	bidder.bids = []*BidPortfolio{{Bidder: bidder, Bids: []*Bid{{Request: req, Bidder: bidder, Quantity: 5, Preference: 1, Exclusive: true}}}}
	buildTrader(t, tree, reg, "bidder", bidder)

	m := New(nil, zerolog.Nop())
	require.NoError(t, m.Run(tradersOf(tree)))

	assert.Empty(t, bidder.accepted, "an exclusive bid larger than the request must not be partially filled")
}

func TestMarketCapacityConstraintCapsTotalAcrossBids(t *testing.T) {
	tree, reg := newHarness()

	requesterA := newTraderStub("reqA")
	reqA := &Request{Requester: requesterA, Commodity: "swu-product", Quantity: 6}
	requesterA.requests = []*RequestPortfolio{{Requester: requesterA, Requests: []*Request{reqA}}}
	buildTrader(t, tree, reg, "reqA", requesterA)

	requesterB := newTraderStub("reqB")
	reqB := &Request{Requester: requesterB, Commodity: "swu-product", Quantity: 6}
	requesterB.requests = []*RequestPortfolio{{Requester: requesterB, Requests: []*Request{reqB}}}
	buildTrader(t, tree, reg, "reqB", requesterB)

	enrich := newTraderStub("enrich")
	constraint := CapacityConstraint{Name: "swu", Capacity: 8}
	enrich.bids = []*BidPortfolio{{
		Bidder: enrich,
		Bids: []*Bid{
			{Request: reqA, Bidder: enrich, Quantity: 6, Preference: 1},
			{Request: reqB, Bidder: enrich, Quantity: 6, Preference: 1},
		},
		Constraints: []CapacityConstraint{constraint},
	}}
	buildTrader(t, tree, reg, "enrich", enrich)

	m := New(nil, zerolog.Nop())
	require.NoError(t, m.Run(tradersOf(tree)))

	var total float64
	for _, tr := range enrich.accepted {
		total += tr.Quantity
	}
	assert.LessOrEqual(t, total, 8.0+1e-9, "shared capacity constraint must cap combined trade quantity")
}

func TestMarketEnforcesRequesterSideCapacityAcrossRequests(t *testing.T) {
	tree, reg := newHarness()

	requester := newTraderStub("requester")
	reqX := &Request{Requester: requester, Commodity: "x", Quantity: 6}
	reqY := &Request{Requester: requester, Commodity: "y", Quantity: 6}
	requester.requests = []*RequestPortfolio{{
		Requester:   requester,
		Requests:    []*Request{reqX, reqY},
		Constraints: []CapacityConstraint{{Name: "budget", Capacity: 8}},
	}}
	buildTrader(t, tree, reg, "requester", requester)

	bidderX := newTraderStub("bidderX")
	bidderX.bids = []*BidPortfolio{{Bidder: bidderX, Bids: []*Bid{{Request: reqX, Bidder: bidderX, Quantity: 6, Preference: 1}}}}
	buildTrader(t, tree, reg, "bidderX", bidderX)

	bidderY := newTraderStub("bidderY")
	bidderY.bids = []*BidPortfolio{{Bidder: bidderY, Bids: []*Bid{{Request: reqY, Bidder: bidderY, Quantity: 6, Preference: 1}}}}
	buildTrader(t, tree, reg, "bidderY", bidderY)

	m := New(nil, zerolog.Nop())
	require.NoError(t, m.Run(tradersOf(tree)))

	var total float64
	total += sumQty(bidderX.accepted)
	total += sumQty(bidderY.accepted)
	assert.LessOrEqual(t, total, 8.0+1e-9, "requester portfolio's shared capacity must cap combined received quantity across requests")
}

func sumQty(trades []*Trade) float64 {
	var total float64
	for _, tr := range trades {
		total += tr.Quantity
	}
	return total
}

func tradersOf(tree *agent.Tree) map[agent.ID]agent.Tradable {
	out := make(map[agent.ID]agent.Tradable)
	for _, a := range tree.Alive() {
		if tr, ok := a.(agent.Tradable); ok {
			out[a.Base().ID()] = tr
		}
	}
	return out
}
