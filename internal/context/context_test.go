package context

import (
	"testing"

	"github.com/aristath/simkernel/internal/agent"
	"github.com/aristath/simkernel/internal/registry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAgent struct {
	base *agent.Base
}

func newStubAgent() *stubAgent {
	s := &stubAgent{}
	s.base = agent.NewBase("stub", "", s)
	return s
}

func (s *stubAgent) Base() *agent.Base          { return s.base }
func (s *stubAgent) Spec() string               { return s.base.Spec() }
func (s *stubAgent) Clone() registry.Prototype { return newStubAgent() }
func (s *stubAgent) EnterNotify() error         { return nil }
func (s *stubAgent) DecomNotify() error         { return nil }

func newTestContext() *Context {
	return New(Config{Duration: 10, DT: 1, DumpCount: 1}, zerolog.Nop())
}

func TestBuildAgentMakesAgentAliveAtEnterTime(t *testing.T) {
	ctx := newTestContext()
	require.NoError(t, ctx.Prototypes.Add("stub", newStubAgent()))

	a, err := ctx.Tree.Register("stub", ctx.Prototypes, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.BuildAgent(a, 3))

	assert.Equal(t, agent.StateAlive, a.Base().State())
	assert.Equal(t, 3, a.Base().EnterTime())
}

func TestDecommissionAgentStampsExitTime(t *testing.T) {
	ctx := newTestContext()
	require.NoError(t, ctx.Prototypes.Add("stub", newStubAgent()))

	a, err := ctx.Tree.Register("stub", ctx.Prototypes, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.BuildAgent(a, 0))
	require.NoError(t, ctx.DecommissionAgent(a, 7))

	assert.Equal(t, agent.StateDecommissioned, a.Base().State())
	assert.Equal(t, 7, a.Base().ExitTime())
}

func TestSeedCountersOnlyAdvancesForward(t *testing.T) {
	ctx := newTestContext()

	ctx.SeedCounters(100, 200, 300)
	assert.EqualValues(t, 101, ctx.NextObjID())
	assert.EqualValues(t, 201, ctx.NextStateID())
	assert.EqualValues(t, 301, ctx.NextAgentID())

	// seeding with a lower watermark must not roll the counters back.
	ctx.SeedCounters(1, 1, 1)
	assert.EqualValues(t, 102, ctx.NextObjID())
}

func TestFastForwardSetsClockDirectly(t *testing.T) {
	ctx := newTestContext()
	ctx.FastForward(42)
	assert.Equal(t, 42, ctx.Now())
}

func TestRegisterTraderMakesAgentVisibleToExchange(t *testing.T) {
	ctx := newTestContext()
	tr := &tradableStub{stubAgent: newStubAgent()}
	ctx.RegisterTrader(agent.ID(9), tr)
	assert.Len(t, ctx.Traders(), 1)

	ctx.UnregisterTrader(agent.ID(9))
	assert.Empty(t, ctx.Traders())
}

// tradableStub satisfies agent.Tradable for the registry test above.
type tradableStub struct{ *stubAgent }

func (t *tradableStub) RequestsForStep() interface{}              { return nil }
func (t *tradableStub) BidsForRequests(interface{}) interface{}   { return nil }
func (t *tradableStub) AcceptTrades(interface{})                  {}
