package agent

import (
	"errors"
	"testing"

	"github.com/aristath/simkernel/internal/registry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAgent is the minimal Agent a Tree can register/build/decommission.
type stubAgent struct {
	base        *Base
	enterCalls  int
	decomCalls  int
	failEnter   bool
	failDecom   bool
}

func newStubAgent(kind string) *stubAgent {
	s := &stubAgent{}
	s.base = NewBase(kind, "", s)
	return s
}

func (s *stubAgent) Base() *Base { return s.base }
func (s *stubAgent) Spec() string { return s.base.Spec() }
func (s *stubAgent) Clone() registry.Prototype {
	return newStubAgent(s.base.Kind())
}
func (s *stubAgent) EnterNotify() error {
	s.enterCalls++
	if s.failEnter {
		return errStub
	}
	return nil
}
func (s *stubAgent) DecomNotify() error {
	s.decomCalls++
	if s.failDecom {
		return errStub
	}
	return nil
}

var errStub = errors.New("stub failure")

type seqIDSource struct{ next ID }

func (s *seqIDSource) NextAgentID() ID { s.next++; return s.next }

func newTestTree() (*Tree, *registry.PrototypeRegistry) {
	ids := &seqIDSource{}
	return NewTree(ids), registry.NewPrototypeRegistry(zerolog.Nop())
}

func TestRegisterBuildActivatesAgent(t *testing.T) {
	tree, reg := newTestTree()
	proto := newStubAgent("widget")
	require.NoError(t, reg.Add("widget", proto))

	a, err := tree.Register("widget", reg, nil)
	require.NoError(t, err)
	assert.Equal(t, StateRegistered, a.Base().State())

	require.NoError(t, tree.Build(a, 5))
	assert.Equal(t, StateAlive, a.Base().State())
	assert.Equal(t, 5, a.Base().EnterTime())
	assert.Equal(t, 1, a.(*stubAgent).enterCalls)
}

func TestRegisterTwiceAliasesName(t *testing.T) {
	tree, reg := newTestTree()
	require.NoError(t, reg.Add("widget", newStubAgent("widget")))

	a1, err := tree.Register("widget", reg, nil)
	require.NoError(t, err)
	a2, err := tree.Register("widget", reg, nil)
	require.NoError(t, err)

	assert.Equal(t, "widget", a1.Base().PrototypeName())
	assert.Equal(t, "widget_life_1", a2.Base().PrototypeName())
}

func TestDecommissionRemovesFromTreeAndParent(t *testing.T) {
	tree, reg := newTestTree()
	require.NoError(t, reg.Add("parent", newStubAgent("parent")))
	require.NoError(t, reg.Add("child", newStubAgent("child")))

	parent, err := tree.Register("parent", reg, nil)
	require.NoError(t, err)
	require.NoError(t, tree.Build(parent, 0))

	child, err := tree.Register("child", reg, parent)
	require.NoError(t, err)
	require.NoError(t, tree.Build(child, 0))
	assert.Len(t, parent.Base().Children(), 1)

	require.NoError(t, tree.Decommission(child, 10))
	assert.Equal(t, StateDecommissioned, child.Base().State())
	assert.Equal(t, 10, child.Base().ExitTime())
	assert.Empty(t, parent.Base().Children())

	_, ok := tree.Get(child.Base().ID())
	assert.False(t, ok)
}

func TestBuildBeforeRegisterIsStateError(t *testing.T) {
	tree, _ := newTestTree()
	a := newStubAgent("widget")
	err := tree.Build(a, 0)
	assert.Error(t, err)
}

func TestAliveOrdersByEnterTimeThenID(t *testing.T) {
	tree, reg := newTestTree()
	require.NoError(t, reg.Add("widget", newStubAgent("widget")))

	var built []Agent
	for i, enterAt := range []int{5, 0, 5, 2} {
		a, err := tree.Register("widget", reg, nil)
		require.NoError(t, err)
		require.NoError(t, tree.Build(a, enterAt))
		built = append(built, a)
		_ = i
	}

	alive := tree.Alive()
	require.Len(t, alive, 4)
	var times []int
	for _, a := range alive {
		times = append(times, a.Base().EnterTime())
	}
	assert.Equal(t, []int{0, 2, 5, 5}, times)
	assert.Less(t, int64(alive[2].Base().ID()), int64(alive[3].Base().ID()))
}
