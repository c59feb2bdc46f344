package scheduler

import "container/heap"

// event is a single scheduled build or decommission action, ordered by
// (time, seq) so that actions scheduled for the same time step execute
// in the order they were scheduled — a deterministic tie-break (spec
// §4.2, §4.5).
type event struct {
	time int
	seq  int64
	fn   func() error
}

// eventHeap is a min-heap of events ordered by (time, seq).
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].time != h[j].time {
		return h[i].time < h[j].time
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(*event))
}
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// eventQueue wraps eventHeap with the container/heap plumbing and a
// monotonically increasing sequence counter for the tie-break.
type eventQueue struct {
	h       eventHeap
	nextSeq int64
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	heap.Init(&q.h)
	return q
}

func (q *eventQueue) schedule(t int, fn func() error) {
	q.nextSeq++
	heap.Push(&q.h, &event{time: t, seq: q.nextSeq, fn: fn})
}

// due pops and returns every event with time <= now, in (time, seq)
// order.
func (q *eventQueue) due(now int) []*event {
	var out []*event
	for q.h.Len() > 0 && q.h[0].time <= now {
		out = append(out, heap.Pop(&q.h).(*event))
	}
	return out
}

func (q *eventQueue) empty() bool { return q.h.Len() == 0 }
