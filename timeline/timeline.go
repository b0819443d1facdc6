// Package timeline implements the engine's DataTimeline contract (spec
// §4.2): retroactive, time-indexed containers that are the sole
// authoritative store for one column type across every RowId. Built-in
// containers here (FieldMap, TrajectoryStore, IntervalSet) are thin
// reference implementations; production simulations are expected to
// supply their own via the same interface (spec §1 "external
// collaborators").
package timeline

import (
	"fmt"

	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/typeid"
)

// EdgeGranularity is the coarseness a DataTimeline declares for the
// dependency edges it hands back to the graph. Coarser edges increase
// false-positive invalidations but shrink the graph; correctness never
// depends on the choice (spec §4.2). The declared value is not
// consulted: depgraph.Graph.Invalidate always selects accessors whose
// read time falls within the changed region, the PerKeyRange behaviour.
type EdgeGranularity int

const (
	// PerKey edges invalidate every accessor that ever read this Key,
	// regardless of the ExtendedTime it read at.
	PerKey EdgeGranularity = iota
	// PerKeyRange edges invalidate only accessors whose read time falls
	// within the changed region. This is the default for every
	// built-in timeline (DESIGN.md Open Question 1).
	PerKeyRange
	// WholeTimeline edges invalidate every accessor that ever read
	// anything from this timeline, the coarsest and cheapest-to-track
	// option.
	WholeTimeline
)

// ChangedRegion describes the set of (key, time) query results a write
// may have altered. From is inclusive; To is exclusive and nil means
// "unbounded forward" (e.g. a last-write-wins insert with no later
// write yet superseding it).
type ChangedRegion struct {
	Key  rowid.RowID
	From extendedtime.ExtendedTime
	To   *extendedtime.ExtendedTime
}

// Contains reports whether t falls inside the region's time range for
// the given key.
func (r ChangedRegion) Contains(key rowid.RowID, t extendedtime.ExtendedTime) bool {
	if key != r.Key {
		return false
	}
	if extendedtime.Less(t, r.From) {
		return false
	}
	if r.To != nil && !extendedtime.Less(t, *r.To) {
		return false
	}
	return true
}

// Timeline is the type-erased half of the DataTimeline contract: the
// parts the engine needs without knowing the column's Go value type, so
// the snapshot manager and the GC horizon logic can walk every
// registered timeline uniformly.
type Timeline interface {
	// ColumnType returns the TypeID this timeline is the authoritative
	// store for.
	ColumnType() typeid.TypeID
	// EdgeGranularity reports the coarseness this timeline commits to.
	EdgeGranularity() EdgeGranularity
	// EarliestRetained returns the oldest ExtendedTime this timeline can
	// currently answer a query for, or ok == false if it holds nothing.
	EarliestRetained() (t extendedtime.ExtendedTime, ok bool)
	// DiscardBefore drops history strictly before horizon. It is a
	// fatal error (per spec §9 Open Question 2) to discard a region any
	// live accessor still references; still-pinned callers must release
	// their snapshots or advance the horizon more conservatively first.
	DiscardBefore(horizon extendedtime.ExtendedTime, liveBelow func(key rowid.RowID) bool) error
	// Keys returns every RowID this timeline currently holds operations
	// for, in ascending byte order — deterministic regardless of
	// insertion order, used by the snapshot manager to walk rows in
	// canonical (TypeID, RowID) order.
	Keys() []rowid.RowID
	// SnapshotRaw returns this timeline's state at `at` as type-erased
	// (key, value) pairs in ascending key order, so the snapshot manager
	// can walk every registered timeline — regardless of its value type
	// V — without a type parameter of its own.
	SnapshotRaw(at extendedtime.ExtendedTime) []RawEntry
}

// RawEntry is one (key, value) pair from a timeline's snapshot, with
// the value erased to any.
type RawEntry struct {
	Key   rowid.RowID
	Value any
}

// ErrLiveReference is returned by DiscardBefore when a live accessor
// still references history inside the region being discarded.
type ErrLiveReference struct {
	Column typeid.TypeID
	Key    rowid.RowID
	Before extendedtime.ExtendedTime
}

func (e *ErrLiveReference) Error() string {
	return fmt.Sprintf("timeline: cannot discard column %d key %s before %s: a live accessor still references it",
		uint64(e.Column), e.Key, e.Before)
}

// ValueTimeline is the typed half of the contract: query, retroactive
// insert/remove, and a stable snapshot view, for one concrete value
// type V (spec §4.2).
type ValueTimeline[V any] interface {
	Timeline

	// Query returns the value effective at `at`, i.e. the value written
	// by the latest operation with ExtendedTime <= at. ok is false if no
	// operation at or before `at` exists for key.
	Query(key rowid.RowID, at extendedtime.ExtendedTime) (value V, ok bool)

	// Insert performs a retroactive write. It returns the coarsest set
	// of changed regions whose query results may now differ from
	// before the insert.
	Insert(op Operation[V]) []ChangedRegion

	// Remove is the exact inverse of Insert, used by the driver to
	// undo an invalidated event's writes during rewind.
	Remove(op Operation[V]) []ChangedRegion

	// Snapshot returns an immutable view stable even as later
	// operations are inserted (spec §4.2, §4.7).
	Snapshot(at extendedtime.ExtendedTime) Snapshot[V]
}

// Operation is one retroactive write against a ValueTimeline.
type Operation[V any] struct {
	Key   rowid.RowID
	Time  extendedtime.ExtendedTime
	Value V
}

// Snapshot is a read-only, time-pinned view over a ValueTimeline. It
// must keep returning the same answers even after later calls to
// Insert/Remove on the timeline it was taken from (spec §4.7, P5).
type Snapshot[V any] interface {
	Query(key rowid.RowID) (value V, ok bool)
	Keys() []rowid.RowID
	Time() extendedtime.ExtendedTime
}
