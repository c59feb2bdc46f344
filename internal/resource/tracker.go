package resource

// Tracker maintains an in-memory parent/child lineage index alongside
// the row stream that Env.RecordResourceRow persists, so a running
// simulation can answer "what did this resource come from" queries
// without going back through a backend (grounded on res_tracker.h's
// ancestor bookkeeping).
type Tracker struct {
	parents  map[StateID][2]StateID
	children map[StateID][]StateID
}

// NewTracker returns an empty lineage index.
func NewTracker() *Tracker {
	return &Tracker{
		parents:  make(map[StateID][2]StateID),
		children: make(map[StateID][]StateID),
	}
}

// Observe records that state child descended from parent1 (and
// optionally parent2, on a merge). A parent of 0 means none.
func (t *Tracker) Observe(child, parent1, parent2 StateID) {
	t.parents[child] = [2]StateID{parent1, parent2}
	if parent1 != 0 {
		t.children[parent1] = append(t.children[parent1], child)
	}
	if parent2 != 0 {
		t.children[parent2] = append(t.children[parent2], child)
	}
}

// Parents returns the recorded parent state ids of child (zero value
// entries mean no parent on that side).
func (t *Tracker) Parents(child StateID) (StateID, StateID) {
	p := t.parents[child]
	return p[0], p[1]
}

// Children returns every state directly descended from parent.
func (t *Tracker) Children(parent StateID) []StateID {
	return t.children[parent]
}

// Lineage walks parent pointers from state back to its root ancestor,
// returning states in root-first order.
func (t *Tracker) Lineage(state StateID) []StateID {
	var chain []StateID
	cur := state
	seen := make(map[StateID]bool)
	for cur != 0 && !seen[cur] {
		chain = append(chain, cur)
		seen[cur] = true
		cur = t.parents[cur][0]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
