package depgraph

import (
	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/prng"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/timeline"
)

// Accessor is the read-only façade handed to a predictor invocation or
// an event body (spec §4.3 glossary). It is the only legal channel for
// reading simulation state; every call records a ReadEdge as a side
// effect, accumulated locally and committed to the Graph once the
// invocation finishes (so a predictor that reads three fields and then
// panics never leaves half-updated edges behind).
type Accessor struct {
	id       AccessorID
	executed extendedtime.ExtendedTime
	graph    *Graph
	edges    []ReadEdge
	rng      *prng.Stream
}

// NewAccessor creates a façade for one invocation. executedAt is the
// accessor's own ExtendedTime context: for an event body this is the
// event's ExtendedTime; for a predictor invocation it is the
// ExtendedTime the driver is re-running the predictor as-of.
func NewAccessor(id AccessorID, executedAt extendedtime.ExtendedTime, graph *Graph, rng *prng.Stream) *Accessor {
	return &Accessor{id: id, executed: executedAt, graph: graph, rng: rng}
}

// ID returns the accessor's handle.
func (a *Accessor) ID() AccessorID { return a.id }

// ExecutedAt returns the accessor's own ExtendedTime context.
func (a *Accessor) ExecutedAt() extendedtime.ExtendedTime { return a.executed }

// RNG returns the accessor's deterministic random stream.
func (a *Accessor) RNG() *prng.Stream { return a.rng }

// Commit flushes every read recorded during this invocation into the
// Graph, replacing the accessor's previous edge set atomically.
func (a *Accessor) Commit() {
	a.graph.RecordReads(a.id, a.edges)
}

// Read queries tl for key at `at` through the façade, recording the
// read as a dependency edge. Generic free function because Go methods
// cannot carry their own type parameters.
func Read[V any](a *Accessor, tl timeline.ValueTimeline[V], key rowid.RowID, at extendedtime.ExtendedTime) (V, bool) {
	value, ok := tl.Query(key, at)
	a.edges = append(a.edges, ReadEdge{
		Accessor:   a.id,
		Field:      FieldRef{Column: tl.ColumnType(), Key: key},
		ReadAt:     at,
		ExecutedAt: a.executed,
	})
	return value, ok
}

// WrittenField pairs a field with the changed regions its write
// produced, so the driver can invalidate exactly the accessors that
// depend on the affected range.
type WrittenField struct {
	Field   FieldRef
	Regions []timeline.ChangedRegion
	// Undo reverses this write, the exact inverse Insert/Remove pair
	// spec §4.2 requires. The driver calls it during rewind; nothing
	// else should.
	Undo func() []timeline.ChangedRegion
}

// Mutator is the façade handed to an event body: the only legal
// channel for writing simulation state. Every write is attributed to
// exactly one event (the Mutator's own accessor id) and recorded in
// the Graph immediately.
type Mutator struct {
	event   AccessorID
	at      extendedtime.ExtendedTime
	graph   *Graph
	rng     *prng.Stream
	written []WrittenField
}

// NewMutator creates a façade for the event identified by event,
// executing at ExtendedTime at.
func NewMutator(event AccessorID, at extendedtime.ExtendedTime, graph *Graph, rng *prng.Stream) *Mutator {
	return &Mutator{event: event, at: at, graph: graph, rng: rng}
}

// ID returns the owning event's accessor handle.
func (m *Mutator) ID() AccessorID { return m.event }

// At returns the ExtendedTime this mutator writes at — always the
// owning event's own ExtendedTime (spec §4.3: writes are attributed to
// exactly one event at exactly one time).
func (m *Mutator) At() extendedtime.ExtendedTime { return m.at }

// RNG returns the event's deterministic random stream.
func (m *Mutator) RNG() *prng.Stream { return m.rng }

// Write performs a retroactive insert on tl at the mutator's time and
// records the write against the Graph.
func Write[V any](m *Mutator, tl timeline.ValueTimeline[V], key rowid.RowID, value V) []timeline.ChangedRegion {
	op := timeline.Operation[V]{Key: key, Time: m.at, Value: value}
	regions := tl.Insert(op)
	field := FieldRef{Column: tl.ColumnType(), Key: key}
	m.graph.RecordWrite(m.event, field)
	m.written = append(m.written, WrittenField{
		Field:   field,
		Regions: regions,
		Undo:    func() []timeline.ChangedRegion { return tl.Remove(op) },
	})
	return regions
}

// Written returns every field this mutator wrote, with their changed
// regions, so the driver can drive invalidation without re-deriving it.
func (m *Mutator) Written() []WrittenField { return m.written }
