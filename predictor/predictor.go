// Package predictor implements the predictor table (spec §4.4): the set
// of predictor instances bound to subject rows, each a pure reactive
// rule that, given current state, emits at most one future candidate
// event. Grounded on the teacher's policy.Manager (policy/manager.go) —
// named policies bound to subjects, invoked to decide behavior —
// generalized to "predictor instances bound to rows, invoked to emit
// candidate events."
package predictor

import (
	"sync"

	"github.com/example/timesteward/depgraph"
	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/typeid"
)

// EventPayload is an opaque, registered-typed event body a predictor
// hands to the driver. The core never inspects it beyond the TypeID
// carried alongside it (spec §9 "Dynamic typed payloads").
type EventPayload any

// Candidate is the event a predictor fn proposes, or Found == false for
// "no event from me until my reads change" (spec §4.4). TypeID
// identifies the registered event type Payload belongs to, so the
// driver can dispatch it without inspecting Payload itself.
type Candidate struct {
	Time    extendedtime.ExtendedTime
	TypeID  typeid.TypeID
	Payload EventPayload
	Found   bool
}

// Fn is a predictor body: a pure function of whatever it reads through
// acc about subject. It must read exclusively through acc — direct
// access to timelines bypasses dependency tracking and breaks the
// invalidation contract.
type Fn func(acc *depgraph.Accessor, subject rowid.RowID) Candidate

// Instance is one registered predictor binding (spec §3 "Predictor
// instance"): a type, a subject row, the function to invoke, and the
// ExtendedTime of its last predicted event, if any.
type Instance struct {
	TypeID     typeid.TypeID
	Subject    rowid.RowID
	Accessor   depgraph.AccessorID
	fn         Fn
	lastResult *extendedtime.ExtendedTime
}

// LastResult returns the ExtendedTime of this instance's last
// successfully predicted event, or ok == false if its last run
// produced no event.
func (in *Instance) LastResult() (extendedtime.ExtendedTime, bool) {
	if in.lastResult == nil {
		var zero extendedtime.ExtendedTime
		return zero, false
	}
	return *in.lastResult, true
}

type instanceKey struct {
	typeID  typeid.TypeID
	subject rowid.RowID
}

// Table is the set of live predictor instances plus the re-run
// work-list: accessors whose edges were invalidated and that must be
// re-invoked before the driver advances past the point they could
// affect (spec §4.4).
type Table struct {
	mu         sync.Mutex
	graph      *depgraph.Graph
	byAccessor map[depgraph.AccessorID]*Instance
	byKey      map[instanceKey]*Instance
	dirty      map[depgraph.AccessorID]bool
}

// New creates an empty predictor table. graph is the shared dependency
// graph whose AccessorID allocator mints every predictor instance's
// handle — the same allocator the driver uses for committed events, so
// the two handle spaces can never collide (see depgraph.Graph.NextAccessor).
func New(graph *depgraph.Graph) *Table {
	return &Table{
		graph:      graph,
		byAccessor: make(map[depgraph.AccessorID]*Instance),
		byKey:      make(map[instanceKey]*Instance),
		dirty:      make(map[depgraph.AccessorID]bool),
	}
}

// Register creates (or returns the existing) predictor instance bound
// to (typeID, subject). A freshly created instance is marked dirty so
// the driver runs it at least once.
func (t *Table) Register(typeID typeid.TypeID, subject rowid.RowID, fn Fn) *Instance {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := instanceKey{typeID: typeID, subject: subject}
	if existing, ok := t.byKey[key]; ok {
		return existing
	}
	accessor := t.graph.NextAccessor()
	in := &Instance{TypeID: typeID, Subject: subject, Accessor: accessor, fn: fn}
	t.byKey[key] = in
	t.byAccessor[in.Accessor] = in
	t.dirty[in.Accessor] = true
	return in
}

// Destroy removes a predictor instance, e.g. when its subject row is
// removed. The caller is responsible for also calling
// graph.RemoveAccessor(instance.Accessor).
func (t *Table) Destroy(accessor depgraph.AccessorID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	in, ok := t.byAccessor[accessor]
	if !ok {
		return
	}
	delete(t.byAccessor, accessor)
	delete(t.byKey, instanceKey{typeID: in.TypeID, subject: in.Subject})
	delete(t.dirty, accessor)
}

// MarkDirty places accessor on the re-run work-list. Called by the
// driver whenever depgraph.Invalidate reports this predictor as a
// dependent of a write.
func (t *Table) MarkDirty(accessor depgraph.AccessorID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byAccessor[accessor]; ok {
		t.dirty[accessor] = true
	}
}

// Get returns the instance for accessor, if it still exists.
func (t *Table) Get(accessor depgraph.AccessorID) (*Instance, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	in, ok := t.byAccessor[accessor]
	return in, ok
}

// DueBy returns every dirty predictor instance whose last-predicted
// time is unknown or <= t — due for re-run no later than the driver
// advancing to t (spec §4.4). Returned instances are cleared from the
// work-list; if Invoke fails to settle them they must be re-marked
// dirty by the caller.
func (t *Table) DueBy(t2 extendedtime.ExtendedTime) []*Instance {
	t.mu.Lock()
	defer t.mu.Unlock()
	var due []*Instance
	for accessor := range t.dirty {
		in := t.byAccessor[accessor]
		if in == nil {
			delete(t.dirty, accessor)
			continue
		}
		if in.lastResult == nil || !extendedtime.Less(t2, *in.lastResult) {
			due = append(due, in)
			delete(t.dirty, accessor)
		}
	}
	return due
}

// AnyDirty reports whether the work-list is non-empty, used by the
// driver to decide whether another repair pass is needed.
func (t *Table) AnyDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dirty) > 0
}

// Invoke runs instance's fn through acc and records its outcome as the
// new LastResult. The caller is responsible for committing acc's reads
// to the dependency graph (acc.Commit()) and for reconciling the
// returned Candidate against the event queue.
func Invoke(in *Instance, acc *depgraph.Accessor) Candidate {
	c := in.fn(acc, in.Subject)
	if c.Found {
		t := c.Time
		in.lastResult = &t
	} else {
		in.lastResult = nil
	}
	return c
}
