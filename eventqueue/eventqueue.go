// Package eventqueue implements the priority structure holding every
// currently valid scheduled event, ordered purely by ExtendedTime (spec
// §4.5). It is deliberately not a hash-keyed structure: lookups by
// Handle walk a small index, but the heap itself orders strictly on
// ExtendedTime.Compare.
package eventqueue

import (
	"container/heap"

	"github.com/example/timesteward/extendedtime"
)

// Handle identifies one entry so a predictor that changes its mind can
// delete its previously-scheduled event without a linear scan by value.
type Handle uint64

// Entry is one scheduled event: its ordering key and an opaque payload
// the driver interprets (normally a driver.pendingEvent value, but the
// queue itself never inspects Payload).
type Entry struct {
	Time    extendedtime.ExtendedTime
	Payload any

	handle Handle
	index  int // heap index, maintained by container/heap callbacks
}

func (e *Entry) Handle() Handle { return e.handle }

// innerHeap implements container/heap.Interface over *Entry, ordered by
// ExtendedTime only.
type innerHeap []*Entry

func (h innerHeap) Len() int { return len(h) }
func (h innerHeap) Less(i, j int) bool {
	return extendedtime.Less(h[i].Time, h[j].Time)
}
func (h innerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *innerHeap) Push(x any) {
	e := x.(*Entry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Queue is the event queue: insert, delete-by-handle, extract-min, peek.
type Queue struct {
	h      innerHeap
	byHand map[Handle]*Entry
	nextID Handle
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{
		byHand: make(map[Handle]*Entry),
	}
}

// Insert adds an event at the given ExtendedTime with an opaque payload
// and returns a Handle that can later be used with Delete.
func (q *Queue) Insert(t extendedtime.ExtendedTime, payload any) Handle {
	q.nextID++
	e := &Entry{Time: t, Payload: payload, handle: q.nextID}
	heap.Push(&q.h, e)
	q.byHand[e.handle] = e
	return e.handle
}

// Delete removes the entry identified by handle, used when a predictor
// changes its mind about a previously-scheduled event. Reports whether
// an entry was found.
func (q *Queue) Delete(handle Handle) bool {
	e, ok := q.byHand[handle]
	if !ok {
		return false
	}
	heap.Remove(&q.h, e.index)
	delete(q.byHand, handle)
	return true
}

// ExtractMin removes and returns the entry with the smallest
// ExtendedTime. Reports false if the queue is empty.
func (q *Queue) ExtractMin() (*Entry, bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	e := heap.Pop(&q.h).(*Entry)
	delete(q.byHand, e.handle)
	return e, true
}

// Peek returns the entry with the smallest ExtendedTime without
// removing it.
func (q *Queue) Peek() (*Entry, bool) {
	if q.h.Len() == 0 {
		return nil, false
	}
	return q.h[0], true
}

// Len returns the number of entries currently queued.
func (q *Queue) Len() int {
	return q.h.Len()
}

// Lookup returns the entry for handle without removing it.
func (q *Queue) Lookup(handle Handle) (*Entry, bool) {
	e, ok := q.byHand[handle]
	return e, ok
}
