// Package depgraph implements the bipartite dependency graph between
// accessors (predictor invocations, event bodies) and the
// (timeline, query-key) fields they read, plus the write records that
// attribute every write to exactly one event (spec §3, §4.3).
package depgraph

import (
	"sync"

	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/timeline"
	"github.com/example/timesteward/typeid"
)

// AccessorID identifies one accessor: a single predictor invocation or
// a single event body execution. It is minted by the driver, never by
// user code.
type AccessorID uint64

// FieldRef identifies one (timeline, query-key) pair — spec §3's
// "Field" — generalized with the timeline's column TypeID standing in
// for "which DataTimeline".
type FieldRef struct {
	Column typeid.TypeID
	Key    rowid.RowID
}

// ReadEdge is one recorded read: accessor A read Field at ReadAt (the
// `at` argument the accessor passed to the timeline's Query), tagged
// by the accessor's own execution ExtendedTime for diagnostics.
type ReadEdge struct {
	Accessor   AccessorID
	Field      FieldRef
	ReadAt     extendedtime.ExtendedTime
	ExecutedAt extendedtime.ExtendedTime
}

// Graph is the dependency graph: two inverted indices (accessor→edges)
// and (field→accessors), grounded on the teacher's TransactionManager
// dependency bookkeeping (transaction_manager.go's
// `dependencies map[int64][]*TransactionDependency`, generalized from
// transaction IDs to accessor handles and field regions).
type Graph struct {
	mu sync.Mutex

	// reads holds each accessor's current read edge set, replaced
	// atomically on re-run so stale edges are never left behind
	// (spec §4.3 "Edge dedup").
	reads map[AccessorID][]ReadEdge

	// dependents is the reverse index: for each field, every accessor
	// currently depending on it, and the time it read at.
	dependents map[FieldRef]map[AccessorID]extendedtime.ExtendedTime

	// writes holds each event's current write records, so that
	// removing an event also removes its write records (spec §4.3).
	writes map[AccessorID][]FieldRef

	nextAccessor AccessorID
}

// New creates an empty dependency graph.
func New() *Graph {
	return &Graph{
		reads:      make(map[AccessorID][]ReadEdge),
		dependents: make(map[FieldRef]map[AccessorID]extendedtime.ExtendedTime),
		writes:     make(map[AccessorID][]FieldRef),
	}
}

// NextAccessor mints a fresh AccessorID. Predictor instances and
// committed events share this one allocator so their handles can never
// collide inside the same Graph's indices.
func (g *Graph) NextAccessor() AccessorID {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextAccessor++
	return g.nextAccessor
}

// RecordReads replaces accessor's entire read edge set atomically. Call
// this once per accessor invocation (predictor run or event body
// execution) with every edge it produced.
func (g *Graph) RecordReads(accessor AccessorID, edges []ReadEdge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearReadsLocked(accessor)
	if len(edges) == 0 {
		return
	}
	stored := make([]ReadEdge, len(edges))
	copy(stored, edges)
	g.reads[accessor] = stored
	for _, e := range edges {
		byAccessor, ok := g.dependents[e.Field]
		if !ok {
			byAccessor = make(map[AccessorID]extendedtime.ExtendedTime)
			g.dependents[e.Field] = byAccessor
		}
		byAccessor[accessor] = e.ReadAt
	}
}

func (g *Graph) clearReadsLocked(accessor AccessorID) {
	old, ok := g.reads[accessor]
	if !ok {
		return
	}
	for _, e := range old {
		if byAccessor, ok := g.dependents[e.Field]; ok {
			delete(byAccessor, accessor)
			if len(byAccessor) == 0 {
				delete(g.dependents, e.Field)
			}
		}
	}
	delete(g.reads, accessor)
}

// RemoveAccessor clears every read edge belonging to accessor, e.g.
// when a predictor instance is destroyed or an event is permanently
// discarded.
func (g *Graph) RemoveAccessor(accessor AccessorID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearReadsLocked(accessor)
}

// RecordWrite attributes a write on field to event. An event's write
// set grows across its execution and is cleared wholesale by
// RemoveWrites when the event is undone.
func (g *Graph) RecordWrite(event AccessorID, field FieldRef) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes[event] = append(g.writes[event], field)
}

// RemoveWrites clears event's write records (called when the event is
// undone during rewind) and returns the fields it had written, so the
// caller can also undo them on the underlying timelines.
func (g *Graph) RemoveWrites(event AccessorID) []FieldRef {
	g.mu.Lock()
	defer g.mu.Unlock()
	fields := g.writes[event]
	delete(g.writes, event)
	return fields
}

// Invalidate returns every accessor currently depending on field whose
// recorded ReadAt falls inside region: at or after region.From and, if
// region.To is set, before region.To. The returned handles are not removed from the graph; the
// caller (the driver) re-runs them, which re-establishes their edges
// via RecordReads.
func (g *Graph) Invalidate(field FieldRef, region timeline.ChangedRegion) []AccessorID {
	g.mu.Lock()
	defer g.mu.Unlock()
	byAccessor, ok := g.dependents[field]
	if !ok {
		return nil
	}
	var hit []AccessorID
	for accessor, readAt := range byAccessor {
		if region.Contains(field.Key, readAt) {
			hit = append(hit, accessor)
		}
	}
	return hit
}

// Edges returns a copy of accessor's current read edges, primarily for
// diagnostics and tests.
func (g *Graph) Edges(accessor AccessorID) []ReadEdge {
	g.mu.Lock()
	defer g.mu.Unlock()
	edges := g.reads[accessor]
	out := make([]ReadEdge, len(edges))
	copy(out, edges)
	return out
}

// DependentCount reports how many accessors currently depend on field,
// used by tests verifying P3 (minimality).
func (g *Graph) DependentCount(field FieldRef) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.dependents[field])
}
