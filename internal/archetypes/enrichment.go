package archetypes

import (
	"math"

	"github.com/aristath/simkernel/internal/agent"
	simctx "github.com/aristath/simkernel/internal/context"
	"github.com/aristath/simkernel/internal/exchange"
	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/aristath/simkernel/internal/registry"
	"github.com/aristath/simkernel/internal/resource"
)

const (
	nucU235 = 922350000
	nucU238 = 922380000
)

// swuRequired computes the separative work required to enrich feed at
// feedAssay into productQty of product at productAssay with tailsAssay
// left in the tails stream, using the standard value-function form
// V(x) = (2x-1)*ln(x/(1-x)).
func swuRequired(productQty, productAssay, feedAssay, tailsAssay float64) float64 {
	feedQty, tailsQty := feedTailsQty(productQty, productAssay, feedAssay, tailsAssay)
	return vFunc(productAssay)*productQty + vFunc(tailsAssay)*tailsQty - vFunc(feedAssay)*feedQty
}

func vFunc(x float64) float64 {
	if x <= 0 || x >= 1 {
		return 0
	}
	return (2*x - 1) * logit(x)
}

func logit(x float64) float64 {
	// ln(x/(1-x)); guarded against domain errors by vFunc's bounds check.
	return math.Log(x / (1 - x))
}

// feedTailsQty solves the standard mass-balance: feed = product*(product-tails)/(feed-tails).
func feedTailsQty(productQty, productAssay, feedAssay, tailsAssay float64) (feedQty, tailsQty float64) {
	if feedAssay == tailsAssay {
		return 0, 0
	}
	feedQty = productQty * (productAssay - tailsAssay) / (feedAssay - tailsAssay)
	tailsQty = feedQty - productQty
	return feedQty, tailsQty
}

// Enrichment converts natural-uranium feed into an enriched product
// commodity plus a depleted-tails byproduct, constrained by both its
// feed inventory and its per-step SWU capacity. Grounded on cycamore's
// enrichment.h/.cc.
type Enrichment struct {
	base *agent.Base
	ctx  *simctx.Context

	FeedCommod    string
	ProductCommod string
	TailsCommod   string
	TailsAssay    float64
	MaxFeedInv    float64
	MaxEnrich     float64
	SWUCapacity   float64

	feedInv        *resource.Material // pooled received feed; nil when empty
	tailsInv       *resource.Material // pooled depleted tails; nil when empty
	swuUsedThisTck float64
}

var (
	_ agent.Facility            = (*Enrichment)(nil)
	_ agent.Tradable            = (*Enrichment)(nil)
	_ exchange.MatlPrefAdjuster = (*Enrichment)(nil)
	_ exchange.ResourceSupplier = (*Enrichment)(nil)
)

// NewEnrichment constructs a Template-state Enrichment prototype.
func NewEnrichment(ctx *simctx.Context, feedCommod, productCommod, tailsCommod string, tailsAssay, maxFeedInv, maxEnrich, swuCapacity float64) *Enrichment {
	e := &Enrichment{
		ctx: ctx, FeedCommod: feedCommod, ProductCommod: productCommod, TailsCommod: tailsCommod,
		TailsAssay: tailsAssay, MaxFeedInv: maxFeedInv, MaxEnrich: maxEnrich, SWUCapacity: swuCapacity,
	}
	e.base = agent.NewBase("enrichment", "", e)
	return e
}

func (e *Enrichment) Base() *agent.Base { return e.base }
func (e *Enrichment) Spec() string      { return e.base.Spec() }

func (e *Enrichment) Clone() registry.Prototype {
	return NewEnrichment(e.ctx, e.FeedCommod, e.ProductCommod, e.TailsCommod, e.TailsAssay, e.MaxFeedInv, e.MaxEnrich, e.SWUCapacity)
}

func (e *Enrichment) EnterNotify() error {
	e.ctx.RegisterTrader(e.base.ID(), e)
	return nil
}

func (e *Enrichment) DecomNotify() error {
	e.ctx.UnregisterTrader(e.base.ID())
	return nil
}

// Tick resets the per-step SWU budget (spec §4.5: Tick is where an
// agent refreshes per-step resources before trading occurs this step).
func (e *Enrichment) Tick() error {
	e.swuUsedThisTck = 0
	return nil
}

// RequestsForStep asks for feed up to remaining inventory space.
func (e *Enrichment) RequestsForStep() interface{} {
	feedQtyOnHand := 0.0
	if e.feedInv != nil {
		feedQtyOnHand = e.feedInv.Quantity()
	}
	space := e.MaxFeedInv - feedQtyOnHand
	if space <= resource.EpsRsrc {
		return nil
	}
	req := &exchange.Request{
		Requester: e,
		Commodity: e.FeedCommod,
		Quantity:  space,
	}
	return []*exchange.RequestPortfolio{{Requester: e, Requests: []*exchange.Request{req}}}
}

// AdjustMatlPrefs ranks offered feed bids by U235 content, rejecting
// (preference -1) anything with no fissile content at all.
func (e *Enrichment) AdjustMatlPrefs(bids []*exchange.Bid) []*exchange.Bid {
	for _, b := range bids {
		m, ok := b.Offer.(*resource.Material)
		if !ok {
			continue
		}
		assay := u235MassFrac(m.Composition())
		if assay <= 0 {
			b.Preference = -1
			continue
		}
		b.Preference = assay
	}
	return bids
}

func u235MassFrac(c resource.Composition) float64 {
	u235 := c.MassFrac(nucU235)
	u238 := c.MassFrac(nucU238)
	if u235+u238 <= 0 {
		return 0
	}
	return u235 / (u235 + u238)
}

// BidsForRequests offers enriched product up to SWU/inventory limits,
// plus unconstrained tails.
func (e *Enrichment) BidsForRequests(raw interface{}) interface{} {
	requests, _ := raw.([]*exchange.Request)
	var bids []*exchange.Bid
	feedAssay := e.feedAssay()
	for _, r := range requests {
		switch r.Commodity {
		case e.ProductCommod:
			qty := e.maxProductQty(r.Quantity, feedAssay)
			if qty <= resource.EpsRsrc {
				continue
			}
			bids = append(bids, &exchange.Bid{Request: r, Bidder: e, Quantity: qty, Preference: 1.0})
		case e.TailsCommod:
			if e.tailsInv == nil {
				continue
			}
			qty := r.Quantity
			if qty > e.tailsInv.Quantity() {
				qty = e.tailsInv.Quantity()
			}
			if qty <= resource.EpsRsrc {
				continue
			}
			bids = append(bids, &exchange.Bid{Request: r, Bidder: e, Quantity: qty, Preference: 1.0})
		}
	}
	if len(bids) == 0 {
		return nil
	}
	return []*exchange.BidPortfolio{{Bidder: e, Bids: bids}}
}

// feedAssay reads the U235 mass fraction actually held in the pooled
// feed inventory; 0 when no feed has been received yet.
func (e *Enrichment) feedAssay() float64 {
	if e.feedInv == nil || e.feedInv.Quantity() <= resource.EpsRsrc {
		return 0
	}
	return u235MassFrac(e.feedInv.Composition())
}

func (e *Enrichment) maxProductQty(requested, feedAssay float64) float64 {
	if feedAssay <= e.TailsAssay {
		return 0
	}
	productAssay := e.MaxEnrich
	if productAssay <= 0 {
		productAssay = 1.0
	}

	bySwu := requested
	if e.SWUCapacity > 0 {
		remainingSwu := e.SWUCapacity - e.swuUsedThisTck
		if remainingSwu < 0 {
			remainingSwu = 0
		}
		perUnitSwu := swuRequired(1, productAssay, feedAssay, e.TailsAssay)
		if perUnitSwu > 0 {
			bySwu = remainingSwu / perUnitSwu
		}
	}
	feedQtyOnHand := 0.0
	if e.feedInv != nil {
		feedQtyOnHand = e.feedInv.Quantity()
	}
	byFeed := requested
	feedQty, _ := feedTailsQty(requested, productAssay, feedAssay, e.TailsAssay)
	if feedQty > feedQtyOnHand {
		fq, _ := feedTailsQty(1, productAssay, feedAssay, e.TailsAssay)
		if fq > 0 {
			byFeed = feedQtyOnHand / fq
		}
	}

	qty := requested
	if bySwu < qty {
		qty = bySwu
	}
	if byFeed < qty {
		qty = byFeed
	}
	return qty
}

// AcceptTrades absorbs received feed (a real resource handed over by
// the Source) into the pooled feed inventory; product/tails bids this
// facility won were already extracted in ExtractForTrade.
func (e *Enrichment) AcceptTrades(raw interface{}) {
	trades, _ := raw.([]*exchange.Trade)
	for _, t := range trades {
		if t.Request.Requester != e {
			continue
		}
		m, ok := t.Resource.(*resource.Material)
		if !ok || m == nil {
			continue
		}
		if e.feedInv == nil {
			e.feedInv = m
		} else {
			_ = e.feedInv.Absorb(m)
		}
	}
}

// ExtractForTrade produces the resource this facility owes a winning
// bid: depleted tails split straight from the pooled tails inventory,
// or enriched product synthesized by consuming feed out of the pooled
// feed inventory and banking the resulting tails byproduct (spec §4.6
// Execution, §3 mass-balance).
func (e *Enrichment) ExtractForTrade(t *exchange.Trade) (resource.Resource, error) {
	switch t.Request.Commodity {
	case e.TailsCommod:
		if e.tailsInv == nil {
			return nil, kernerr.Newf(kernerr.StateError, "enrichment: no tails inventory to deliver")
		}
		out, err := e.tailsInv.ExtractQty(t.Quantity)
		if err != nil {
			return nil, err
		}
		if e.tailsInv.Quantity() <= resource.EpsRsrc {
			e.tailsInv = nil
		}
		return out, nil

	case e.ProductCommod:
		feedAssay := e.feedAssay()
		productAssay := e.MaxEnrich
		if productAssay <= 0 {
			productAssay = 1.0
		}
		feedQty, tailsQty := feedTailsQty(t.Quantity, productAssay, feedAssay, e.TailsAssay)
		if e.feedInv == nil || feedQty > e.feedInv.Quantity()+resource.EpsRsrc {
			return nil, kernerr.Newf(kernerr.StateError, "enrichment: insufficient feed inventory for requested product")
		}
		if _, err := e.feedInv.ExtractQty(feedQty); err != nil {
			return nil, err
		}
		if e.feedInv.Quantity() <= resource.EpsRsrc {
			e.feedInv = nil
		}

		productComp, err := resource.NewComposition(map[int64]float64{nucU235: productAssay, nucU238: 1 - productAssay})
		if err != nil {
			return nil, err
		}
		product, err := resource.CreateMaterial(e.ctx, t.Quantity, "kg", productComp)
		if err != nil {
			return nil, err
		}

		tailsComp, err := resource.NewComposition(map[int64]float64{nucU235: e.TailsAssay, nucU238: 1 - e.TailsAssay})
		if err != nil {
			return nil, err
		}
		tails, err := resource.CreateMaterial(e.ctx, tailsQty, "kg", tailsComp)
		if err != nil {
			return nil, err
		}
		if e.tailsInv == nil {
			e.tailsInv = tails
		} else {
			_ = e.tailsInv.Absorb(tails)
		}

		e.swuUsedThisTck += swuRequired(t.Quantity, productAssay, feedAssay, e.TailsAssay)
		return product, nil

	default:
		return nil, kernerr.Newf(kernerr.ValidationError, "enrichment: unknown commodity %q", t.Request.Commodity)
	}
}
