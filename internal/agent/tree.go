package agent

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/simkernel/internal/kernerr"
	"github.com/aristath/simkernel/internal/registry"
)

// IDSource allocates globally unique agent ids; implemented by
// internal/context so Tree itself holds no simulation-wide counters
// (spec §9 design note).
type IDSource interface {
	NextAgentID() ID
}

// Tree owns the live agent population: tree links, the Registered set
// awaiting Build, and the alias-on-clone bookkeeping required by the
// "name_life_N" rule (spec §4.2: a prototype built more than once in a
// run is suffixed with an incrementing life counter so agent names stay
// unique in recorded output).
type Tree struct {
	mu        sync.RWMutex
	ids       IDSource
	byID      map[ID]Agent
	aliasSeq  map[string]int
	roots     []Agent
}

func NewTree(ids IDSource) *Tree {
	return &Tree{
		ids:      ids,
		byID:     make(map[ID]Agent),
		aliasSeq: make(map[string]int),
	}
}

// Register clones protoName from reg, assigns it a fresh id and an
// aliased display name if this prototype has been built before, links
// it under parent (nil for a new region root), and transitions it
// Template -> Registered.
func (t *Tree) Register(protoName string, reg *registry.PrototypeRegistry, parent Agent) (Agent, error) {
	cloned, err := reg.Clone(protoName)
	if err != nil {
		return nil, err
	}
	a, ok := cloned.(Agent)
	if !ok {
		return nil, kernerr.Newf(kernerr.CastError, "prototype %q did not clone into an Agent", protoName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.ids.NextAgentID()
	alias := t.aliasName(protoName)
	var parentBase *Base
	if parent != nil {
		parentBase = parent.Base()
	}
	if err := a.Base().register(id, parentBase); err != nil {
		return nil, err
	}
	a.Base().protoName = alias
	t.byID[id] = a
	if parent == nil {
		t.roots = append(t.roots, a)
	}
	return a, nil
}

// aliasName implements "name_life_N": the first build of a prototype
// keeps its bare name; subsequent builds append _life_N starting at 1.
func (t *Tree) aliasName(protoName string) string {
	n := t.aliasSeq[protoName]
	t.aliasSeq[protoName] = n + 1
	if n == 0 {
		return protoName
	}
	return fmt.Sprintf("%s_life_%d", protoName, n)
}

// Build transitions a to Built, stamps enter_time, fires EnterNotify,
// and on success transitions it to Alive (spec §4.2, §4.5 Build phase).
func (t *Tree) Build(a Agent, now int) error {
	if err := a.Base().build(now); err != nil {
		return err
	}
	if err := a.EnterNotify(); err != nil {
		return err
	}
	return a.Base().activate()
}

// Decommission fires DecomNotify, transitions a to Decommissioned,
// stamps exit_time, and unlinks it from its parent and the live index
// (spec §4.2, §4.5 Decommission phase). Children are not recursively
// decommissioned here; Context.DecommissionAgent decommissions a
// parent's live children, depth-first, before calling this for it.
func (t *Tree) Decommission(a Agent, now int) error {
	if err := a.DecomNotify(); err != nil {
		return err
	}
	if err := a.Base().decommission(now); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, a.Base().ID())
	if p := a.Base().Parent(); p != nil {
		siblings := p.children
		for i, c := range siblings {
			if c == a.Base() {
				p.children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	} else {
		for i, r := range t.roots {
			if r.Base().ID() == a.Base().ID() {
				t.roots = append(t.roots[:i], t.roots[i+1:]...)
				break
			}
		}
	}
	return nil
}

// Get looks up a live agent by id.
func (t *Tree) Get(id ID) (Agent, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.byID[id]
	return a, ok
}

// Alive returns every currently Alive agent, ordered deterministically
// by (enter_time, id) — the fixed traversal order the scheduler and
// exchange rely on (spec §4.5).
func (t *Tree) Alive() []Agent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Agent, 0, len(t.byID))
	for _, a := range t.byID {
		if a.Base().State() == StateAlive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		bi, bj := out[i].Base(), out[j].Base()
		if bi.EnterTime() != bj.EnterTime() {
			return bi.EnterTime() < bj.EnterTime()
		}
		return bi.ID() < bj.ID()
	})
	return out
}

// Roots returns the top-level (region) agents in the tree.
func (t *Tree) Roots() []Agent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Agent, len(t.roots))
	copy(out, t.roots)
	return out
}
