package scheduler

import (
	"testing"

	"github.com/aristath/simkernel/internal/agent"
	simctx "github.com/aristath/simkernel/internal/context"
	"github.com/aristath/simkernel/internal/registry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// phaseSpy records which phase callbacks fired, in order, across every
// step it lives through.
type phaseSpy struct {
	base  *agent.Base
	calls *[]string
}

func newPhaseSpy(calls *[]string) *phaseSpy {
	s := &phaseSpy{calls: calls}
	s.base = agent.NewBase("spy", "", s)
	return s
}

func (s *phaseSpy) Base() *agent.Base         { return s.base }
func (s *phaseSpy) Spec() string              { return s.base.Spec() }
func (s *phaseSpy) Clone() registry.Prototype { return newPhaseSpy(s.calls) }
func (s *phaseSpy) EnterNotify() error        { *s.calls = append(*s.calls, "enter"); return nil }
func (s *phaseSpy) DecomNotify() error        { *s.calls = append(*s.calls, "decom"); return nil }
func (s *phaseSpy) Tick() error               { *s.calls = append(*s.calls, "tick"); return nil }
func (s *phaseSpy) Tock() error               { *s.calls = append(*s.calls, "tock"); return nil }

var (
	_ agent.Tickable = (*phaseSpy)(nil)
	_ agent.Producer = (*phaseSpy)(nil)
)

func newTestContext(duration, dt int) *simctx.Context {
	return simctx.New(simctx.Config{Duration: duration, DT: dt, DumpCount: 1}, zerolog.Nop())
}

func TestStepRunsPhasesInFixedOrder(t *testing.T) {
	ctx := newTestContext(2, 1)
	var calls []string
	spy := newPhaseSpy(&calls)

	require.NoError(t, ctx.Prototypes.Add("spy", spy))
	a, err := ctx.Tree.Register("spy", ctx.Prototypes, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.BuildAgent(a, ctx.Now()))
	calls = nil // ignore the enter notification fired by BuildAgent itself

	sched := New(ctx, nil, zerolog.Nop())
	require.NoError(t, sched.Run())

	// two steps of dt=1 over a duration of 2: tick then tock, twice.
	assert.Equal(t, []string{"tick", "tock", "tick", "tock"}, calls)
}

func TestSchedBuildFiresAtOrAfterRequestedTime(t *testing.T) {
	ctx := newTestContext(5, 1)
	sched := New(ctx, nil, zerolog.Nop())

	var firedAt []int
	sched.SchedBuild(3, func() error {
		firedAt = append(firedAt, ctx.Now())
		return nil
	})

	require.NoError(t, sched.Run())
	assert.Equal(t, []int{3}, firedAt)
}

func TestSchedDecomFiresAtRequestedTime(t *testing.T) {
	ctx := newTestContext(5, 1)
	sched := New(ctx, nil, zerolog.Nop())

	var firedAt []int
	sched.SchedDecom(2, func() error {
		firedAt = append(firedAt, ctx.Now())
		return nil
	})

	require.NoError(t, sched.Run())
	assert.Equal(t, []int{2}, firedAt)
}

func TestStopHaltsBeforeNextStep(t *testing.T) {
	ctx := newTestContext(100, 1)
	sched := New(ctx, nil, zerolog.Nop())

	var steps int
	for i := 0; i < 10; i++ {
		at := i
		sched.SchedBuild(at, func() error {
			steps++
			if steps == 3 {
				sched.Stop()
			}
			return nil
		})
	}

	require.NoError(t, sched.Run())
	assert.Equal(t, 3, steps, "Stop should prevent any build scheduled after the 3rd from ever firing")
}
