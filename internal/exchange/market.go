package exchange

import (
	"sort"

	"github.com/aristath/simkernel/internal/agent"
	"github.com/aristath/simkernel/internal/recorder"
	"github.com/rs/zerolog"
)

// Recorder is the narrow seam Market uses to record Transactions and
// TransactedResources rows (spec §4.6 Execution, §6); *context.Context
// satisfies it, so exchange never imports internal/context.
type Recorder interface {
	NewDatum(table string) *recorder.Datum
	Now() int
}

// Market runs one round of the Dynamic Resource Exchange per time step
// (spec §4.6): collect requests, collect bids against those requests,
// match deterministically, and execute the resulting trades.
type Market struct {
	rec       Recorder
	log       zerolog.Logger
	nextID    int64
	nextTxnID int64
}

// New constructs a Market. rec may be nil in tests that never expect a
// trade to execute to completion (deliver then skips transaction
// recording instead of panicking).
func New(rec Recorder, log zerolog.Logger) *Market {
	return &Market{rec: rec, log: log.With().Str("component", "exchange").Logger()}
}

func (m *Market) id() int64 {
	m.nextID++
	return m.nextID
}

// Run collects every trader's requests and bids, matches them, and
// delivers trades back to both sides. traders is iterated in ascending
// agent.ID order so the match is reproducible across runs with
// identical input (spec §4.1 determinism requirement).
func (m *Market) Run(traders map[agent.ID]agent.Tradable) error {
	ids := sortedIDs(traders)

	var requests []*Request
	reqPortfolios := make(map[agent.ID][]*RequestPortfolio)
	for _, id := range ids {
		t := traders[id]
		raw := t.RequestsForStep()
		portfolios, _ := raw.([]*RequestPortfolio)
		reqPortfolios[id] = portfolios
		for _, rp := range portfolios {
			for _, r := range rp.Requests {
				r.ID = m.id()
				requests = append(requests, r)
			}
		}
	}
	if len(requests) == 0 {
		return nil
	}

	for _, id := range ids {
		for _, rp := range reqPortfolios[id] {
			for _, r := range rp.Requests {
				r.constraints = rp.Constraints
			}
		}
	}

	var bids []*Bid
	bidPortfolios := make(map[agent.ID][]*BidPortfolio)
	for _, id := range ids {
		t := traders[id]
		raw := t.BidsForRequests(requests)
		portfolios, _ := raw.([]*BidPortfolio)
		bidPortfolios[id] = portfolios
		for _, bp := range portfolios {
			for _, b := range bp.Bids {
				b.ID = m.id()
				b.constraints = bp.Constraints
				bids = append(bids, b)
			}
		}
	}
	if len(bids) == 0 {
		return nil
	}

	// Requesters implementing MatlPrefAdjuster may re-rank the bids
	// against their own requests before matching; bids left with a
	// negative preference are refused and dropped.
	bids = applyPreferenceAdjustments(ids, traders, reqPortfolios, bids)

	trades := match(requests, bids)

	m.deliver(ids, traders, trades)
	return nil
}

func sortedIDs(traders map[agent.ID]agent.Tradable) []agent.ID {
	ids := make([]agent.ID, 0, len(traders))
	for id := range traders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func applyPreferenceAdjustments(ids []agent.ID, traders map[agent.ID]agent.Tradable, reqPortfolios map[agent.ID][]*RequestPortfolio, bids []*Bid) []*Bid {
	byRequester := make(map[*Request][]*Bid)
	for _, b := range bids {
		byRequester[b.Request] = append(byRequester[b.Request], b)
	}
	for _, id := range ids {
		for _, rp := range reqPortfolios[id] {
			adjuster, ok := traders[id].(MatlPrefAdjuster)
			if !ok {
				continue
			}
			for _, r := range rp.Requests {
				if group := byRequester[r]; len(group) > 0 {
					adjusted := adjuster.AdjustMatlPrefs(group)
					byRequester[r] = adjusted
				}
			}
		}
	}
	out := bids[:0:0]
	seen := make(map[int64]bool)
	for _, group := range byRequester {
		for _, b := range group {
			if !seen[b.ID] && b.Preference >= 0 {
				seen[b.ID] = true
				out = append(out, b)
			}
		}
	}
	return out
}

// match implements the greedy deterministic algorithm (spec §4.6):
// requests are processed in id order; each request's candidate bids are
// sorted by (preference desc, bidder id asc); bids are consumed
// greedily until the request is filled, skipping bidders or requesters
// who have exhausted a shared capacity constraint, or an exclusive-bid
// all-or-nothing mismatch; mutual-exclusion groups drop every other
// request the same requester put in the group once one member is (even
// partially) matched.
func match(requests []*Request, bids []*Bid) []*Trade {
	byRequest := make(map[*Request][]*Bid)
	for _, b := range bids {
		byRequest[b.Request] = append(byRequest[b.Request], b)
	}

	sortedReqs := make([]*Request, len(requests))
	copy(sortedReqs, requests)
	sort.Slice(sortedReqs, func(i, j int) bool { return sortedReqs[i].ID < sortedReqs[j].ID })

	bidderRemaining := make(map[agent.ID]map[string]float64)    // bidder -> constraint name -> committed capacity
	requesterRemaining := make(map[agent.ID]map[string]float64) // requester -> constraint name -> committed capacity
	type groupKey struct {
		requester agent.ID
		group     string
	}
	groupSettled := make(map[groupKey]bool)

	var trades []*Trade
	for _, req := range sortedReqs {
		requesterID := req.Requester.Base().ID()
		if req.Group != "" && groupSettled[groupKey{requesterID, req.Group}] {
			continue
		}
		candidates := byRequest[req]
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Preference != candidates[j].Preference {
				return candidates[i].Preference > candidates[j].Preference
			}
			return candidates[i].Bidder.Base().ID() < candidates[j].Bidder.Base().ID()
		})

		remaining := req.Quantity
		var reqTrades []*Trade
		for _, bid := range candidates {
			if remaining <= 0 {
				break
			}
			bidderID := bid.Bidder.Base().ID()
			avail := bid.Quantity
			if room := capacityRoom(bidderRemaining, bidderID, bid.constraints, bid.Quantity); room < avail {
				avail = room
			}
			if room := capacityRoom(requesterRemaining, requesterID, req.constraints, avail); room < avail {
				avail = room
			}
			if avail <= 0 {
				continue
			}

			qty := avail
			if qty > remaining {
				qty = remaining
			}
			if bid.Exclusive && qty < bid.Quantity {
				// all-or-nothing: can't partially fill an exclusive bid
				continue
			}
			if req.Exclusive && qty < req.Quantity {
				// this candidate alone can't fill an exclusive request,
				// and an exclusive request is never filled by
				// accumulating several bids, so skip it
				continue
			}

			reqTrades = append(reqTrades, &Trade{Request: req, Bid: bid, Quantity: qty})
			remaining -= qty
			commitCapacity(bidderRemaining, bidderID, bid.constraints, qty)
			commitCapacity(requesterRemaining, requesterID, req.constraints, qty)
		}

		if req.Exclusive && remaining > 0 {
			// could not fully satisfy an exclusive request: reject all
			// tentative trades for it and release committed capacity
			for _, t := range reqTrades {
				releaseCapacity(bidderRemaining, t.Bid.Bidder.Base().ID(), t.Bid.constraints, t.Quantity)
				releaseCapacity(requesterRemaining, requesterID, req.constraints, t.Quantity)
			}
			continue
		}

		if len(reqTrades) > 0 {
			trades = append(trades, reqTrades...)
			if req.Group != "" {
				groupSettled[groupKey{requesterID, req.Group}] = true
			}
		}
	}
	return trades
}

func capacityRoom(rem map[agent.ID]map[string]float64, ownerID agent.ID, constraints []CapacityConstraint, cap float64) float64 {
	room := cap
	for _, c := range constraints {
		used := rem[ownerID][c.Name]
		headroom := c.Capacity - used
		if headroom < 0 {
			headroom = 0
		}
		allowedQty := headroom
		if c.Converter != nil {
			// invert: find max qty whose converted usage <= headroom by
			// scaling proportionally (converter assumed near-linear over
			// a single bid's range, consistent with mass/SWU budgets).
			unit := c.converted(1)
			if unit > 0 {
				allowedQty = headroom / unit
			}
		}
		if allowedQty < room {
			room = allowedQty
		}
	}
	if room < 0 {
		room = 0
	}
	return room
}

func commitCapacity(rem map[agent.ID]map[string]float64, ownerID agent.ID, constraints []CapacityConstraint, qty float64) {
	for _, c := range constraints {
		if rem[ownerID] == nil {
			rem[ownerID] = make(map[string]float64)
		}
		rem[ownerID][c.Name] += c.converted(qty)
	}
}

func releaseCapacity(rem map[agent.ID]map[string]float64, ownerID agent.ID, constraints []CapacityConstraint, qty float64) {
	for _, c := range constraints {
		if rem[ownerID] == nil {
			continue
		}
		rem[ownerID][c.Name] -= c.converted(qty)
	}
}

// deliver executes each matched trade by pulling a real resource out of
// the winning bidder's inventory (spec §4.6 Execution: "a resource
// object changes ownership"), then hands every trader its matched
// trades via AcceptTrades. A bidder that cannot supply a real resource
// for its trade (ResourceSupplier returns an error, or doesn't
// implement the interface at all) has that trade dropped with a
// warning and the requester is never notified of it (spec §4.6 Failure
// model).
func (m *Market) deliver(ids []agent.ID, traders map[agent.ID]agent.Tradable, trades []*Trade) {
	byTrader := make(map[agent.ID][]*Trade)
	for _, t := range trades {
		supplier, ok := t.Bid.Bidder.(ResourceSupplier)
		if !ok {
			m.log.Warn().Int64("bid_id", t.Bid.ID).Msg("bidder cannot supply a real resource, dropping trade")
			continue
		}
		res, err := supplier.ExtractForTrade(t)
		if err != nil {
			m.log.Warn().Err(err).Int64("bid_id", t.Bid.ID).Msg("trade execution failed, dropping trade")
			continue
		}
		t.Resource = res
		m.recordTransaction(t)

		reqID := t.Request.Requester.Base().ID()
		bidID := t.Bid.Bidder.Base().ID()
		byTrader[reqID] = append(byTrader[reqID], t)
		byTrader[bidID] = append(byTrader[bidID], t)
	}
	for _, id := range ids {
		ts := byTrader[id]
		if len(ts) == 0 {
			continue
		}
		traders[id].AcceptTrades(ts)
	}
}

// recordTransaction emits the Transactions and TransactedResources rows
// for one executed trade (spec §6 schema, §8 scenario 5).
func (m *Market) recordTransaction(t *Trade) {
	if m.rec == nil {
		return
	}
	m.nextTxnID++
	txnID := m.nextTxnID

	m.rec.NewDatum("Transactions").
		AddVal("Id", txnID).
		AddVal("SenderId", int64(t.Bid.Bidder.Base().ID())).
		AddVal("ReceiverId", int64(t.Request.Requester.Base().ID())).
		AddVal("Commodity", t.Request.Commodity).
		AddVal("Time", m.rec.Now()).
		AddVal("Price", t.Bid.Price).
		Record()

	var resID int64
	if t.Resource != nil {
		resID = int64(t.Resource.StateID())
	}
	m.rec.NewDatum("TransactedResources").
		AddVal("TransactionId", txnID).
		AddVal("Position", 0).
		AddVal("ResourceId", resID).
		AddVal("Quantity", t.Quantity).
		Record()
}
