package archetypes

import (
	"testing"

	simctx "github.com/aristath/simkernel/internal/context"
	"github.com/aristath/simkernel/internal/exchange"
	"github.com/aristath/simkernel/internal/recorder"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() *simctx.Context {
	return simctx.New(simctx.Config{Duration: 10, DT: 1, DumpCount: 1, Tracking: true}, zerolog.Nop())
}

// memBackend is a minimal in-memory recorder.BackendContract so tests
// can read back recorded rows without standing up sqlitebackend.
type memBackend struct {
	rows map[string][]recorder.Row
}

func newMemBackend() *memBackend { return &memBackend{rows: make(map[string][]recorder.Row)} }

func (b *memBackend) Name() string { return "mem" }
func (b *memBackend) Notify(rows []recorder.Row) error {
	for _, r := range rows {
		b.rows[r.Table] = append(b.rows[r.Table], r)
	}
	return nil
}
func (b *memBackend) Flush() error { return nil }
func (b *memBackend) Close() error { return nil }
func (b *memBackend) Query(table string) ([]recorder.Row, error) { return b.rows[table], nil }

func TestFeedTailsQtyIsZeroWhenFeedEqualsTailsAssay(t *testing.T) {
	feed, tails := feedTailsQty(10, 0.04, 0.0071, 0.0071)
	assert.Zero(t, feed)
	assert.Zero(t, tails)
}

func TestFeedTailsQtyConservesMass(t *testing.T) {
	productQty := 10.0
	feedQty, tailsQty := feedTailsQty(productQty, 0.04, 0.0071, 0.003)
	assert.InDelta(t, feedQty, productQty+tailsQty, 1e-9, "feed must equal product plus tails")
}

func TestSwuRequiredIncreasesWithEnrichmentLevel(t *testing.T) {
	low := swuRequired(10, 0.03, 0.0071, 0.003)
	high := swuRequired(10, 0.05, 0.0071, 0.003)
	assert.Greater(t, high, low, "enriching further should cost more separative work")
}

func TestVFuncIsZeroOutsideUnitInterval(t *testing.T) {
	assert.Zero(t, vFunc(0))
	assert.Zero(t, vFunc(1))
	assert.Zero(t, vFunc(-0.1))
}

func TestSourceSinkTradeConservesQuantityAndDrainsInventory(t *testing.T) {
	ctx := newTestContext()
	ctx.Rec.RegisterBackend(newMemBackend())

	src := NewSource(ctx, "natu", "", 1000, 50)
	require.NoError(t, ctx.Prototypes.Add("src", src))
	srcAgent, err := ctx.Tree.Register("src", ctx.Prototypes, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.BuildAgent(srcAgent, 0))

	sink := NewSink(ctx, []string{"natu"}, "", 200, 30)
	require.NoError(t, ctx.Prototypes.Add("sink", sink))
	sinkAgent, err := ctx.Tree.Register("sink", ctx.Prototypes, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.BuildAgent(sinkAgent, 0))

	mkt := exchange.New(ctx, zerolog.Nop())
	require.NoError(t, mkt.Run(ctx.Traders()))

	builtSrc := srcAgent.(*Source)
	builtSink := sinkAgent.(*Sink)

	// throughput caps the source at 50/step; the sink only asked for 30.
	assert.InDelta(t, 30, builtSink.InventorySize(), 1e-9)
	assert.InDelta(t, 1000-30, builtSrc.inventory.Quantity(), 1e-9)

	// the sink must own a real, distinctly-identified resource object,
	// not just an accumulated counter.
	require.Len(t, builtSink.Received(), 1)
	assert.InDelta(t, 30, builtSink.Received()[0].Quantity(), 1e-9)
	assert.NotZero(t, builtSink.Received()[0].StateID())

	rows, err := ctx.Rec.Query("Transactions")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "natu", rows[0].Fields["Commodity"])

	resRows, err := ctx.Rec.Query("TransactedResources")
	require.NoError(t, err)
	require.Len(t, resRows, 1)
	assert.Equal(t, 30.0, resRows[0].Fields["Quantity"])
}

func TestEnrichmentRefusesProductWhenFeedAssayAtOrBelowTails(t *testing.T) {
	e := NewEnrichment(newTestContext(), "feed", "product", "tails", 0.01, 100, 0.2, 50)
	// no feed received yet, so feedAssay() is 0, at or below tails assay.
	assert.Zero(t, e.maxProductQty(10, e.feedAssay()))
}
