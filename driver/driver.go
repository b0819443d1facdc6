// Package driver implements the invalidation/repair driver (spec §4.6):
// the present cursor P, the execution step, rewind, same-instant causal
// resolution, and the iteration-limit guard. It is grounded on the
// teacher's CycleCoordinator (cycle_coordinator.go) — target-cycle
// advancement with per-component done-tracking and stall detection —
// generalized from "wait for every component to finish a cycle" to
// "pop the minimum-ExtendedTime event, execute it, invalidate
// dependents, repeat."
package driver

import (
	"errors"
	"fmt"
	"sort"

	"github.com/example/timesteward/depgraph"
	"github.com/example/timesteward/eventqueue"
	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/internal/tslog"
	"github.com/example/timesteward/predictor"
	"github.com/example/timesteward/prng"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/typeid"
)

// ErrDuplicateFiatID is returned by InsertFiat when id was already
// inserted and not yet removed (spec §6, §7).
var ErrDuplicateFiatID = errors.New("driver: duplicate fiat event id")

// ErrNoSuchFiatEvent is returned by RemoveFiat when no live fiat event
// with the given time and id exists (spec §6, §7).
var ErrNoSuchFiatEvent = errors.New("driver: no such fiat event")

// ErrIterationLimitExceeded is raised when a single base time's
// invalidation cascade exceeds the configured bound (spec §4.6, §7).
type ErrIterationLimitExceeded struct {
	At extendedtime.ExtendedTime
}

func (e *ErrIterationLimitExceeded) Error() string {
	return fmt.Sprintf("driver: iteration limit exceeded at %s", e.At)
}

// Run is the event body: the only thing the driver knows how to
// execute. It reads through acc and writes through mut; both façades
// attribute every access to the event identified by acc.ID()/mut.ID().
type Run func(acc *depgraph.Accessor, mut *depgraph.Mutator)

// Dispatch resolves a (TypeID, Payload) pair — produced either by a
// fiat insertion or by a predictor candidate — into the Run closure
// that actually executes it. The driver never interprets TypeID or
// Payload itself (spec §9 "Dynamic typed payloads"); engine.Engine
// supplies this function, built from its type registry, keeping the
// driver package free of any engine-level dispatch machinery.
type Dispatch func(typeID typeid.TypeID, payload any) (Run, error)

// originKind distinguishes a fiat input from a predictor-produced event
// (spec §3 "Event record").
type originKind int

const (
	originFiat originKind = iota
	originPredicted
)

type origin struct {
	kind      originKind
	predictor depgraph.AccessorID // valid iff kind == originPredicted
}

// pendingEvent is what the driver stores in the eventqueue; it carries
// everything needed to execute the event once popped.
type pendingEvent struct {
	time    extendedtime.ExtendedTime
	id      rowid.RowID
	typeID  typeid.TypeID
	payload any
	origin  origin
}

// committedEvent is what the driver keeps for an already-executed
// event so it can be undone during rewind.
type committedEvent struct {
	pending  pendingEvent
	accessor depgraph.AccessorID
	written  []depgraph.WrittenField
}

// Config bounds the driver's invalidation cascade (spec §4.6).
type Config struct {
	IterationLimit int
}

// Driver is the invalidation/repair driver.
type Driver struct {
	cfg        Config
	graph      *depgraph.Graph
	predictors *predictor.Table
	queue      *eventqueue.Queue
	dispatch   Dispatch
	log        *tslog.Logger

	present extendedtime.ExtendedTime
	hasRun  bool

	queuedHandle    map[rowid.RowID]eventqueue.Handle
	committed       map[rowid.RowID]*committedEvent
	accessorForID   map[rowid.RowID]depgraph.AccessorID
	idForAccessor   map[depgraph.AccessorID]rowid.RowID
	removedFiat     map[rowid.RowID]bool
	predictorOutput map[depgraph.AccessorID]rowid.RowID

	// runningPredictor is the AccessorID of the predictor instance
	// currently mid-invocation in runPredictor, or 0 if none. rewind
	// consults this to avoid re-marking a predictor dirty on account of
	// retracting its own just-superseded output (see rewind's doc
	// comment): without this guard a predictor that changes its
	// candidate every run would dirty itself forever within one
	// AdvanceTo call.
	runningPredictor depgraph.AccessorID
}

// New creates a driver over an existing dependency graph and predictor
// table (both typically owned by engine.Engine), dispatching resolved
// events through dispatch.
func New(cfg Config, graph *depgraph.Graph, predictors *predictor.Table, dispatch Dispatch, log *tslog.Logger) *Driver {
	if log == nil {
		log = tslog.Default()
	}
	return &Driver{
		cfg:             cfg,
		graph:           graph,
		predictors:      predictors,
		queue:           eventqueue.New(),
		dispatch:        dispatch,
		log:             log,
		queuedHandle:    make(map[rowid.RowID]eventqueue.Handle),
		committed:       make(map[rowid.RowID]*committedEvent),
		accessorForID:   make(map[rowid.RowID]depgraph.AccessorID),
		idForAccessor:   make(map[depgraph.AccessorID]rowid.RowID),
		removedFiat:     make(map[rowid.RowID]bool),
		predictorOutput: make(map[depgraph.AccessorID]rowid.RowID),
	}
}

// Present returns the driver's current present cursor P. Before the
// first successful AdvanceTo/Repair call, ok is false.
func (d *Driver) Present() (extendedtime.ExtendedTime, bool) {
	return d.present, d.hasRun
}

func (d *Driver) accessorFor(id rowid.RowID) depgraph.AccessorID {
	if a, ok := d.accessorForID[id]; ok {
		return a
	}
	a := d.graph.NextAccessor()
	d.accessorForID[id] = a
	d.idForAccessor[a] = id
	return a
}

// InsertFiat registers a fiat input event (spec §6). If time is in the
// past relative to the driver's present cursor, the caller should
// follow this with Repair to restore consistency immediately (spec §8
// scenario 4's "live state reflects the edit").
func (d *Driver) InsertFiat(time extendedtime.ExtendedTime, typeID typeid.TypeID, payload any) error {
	id := time.ID
	if d.queuedHandle[id] != 0 || d.committed[id] != nil {
		return ErrDuplicateFiatID
	}
	delete(d.removedFiat, id)
	pe := pendingEvent{time: time, id: id, typeID: typeID, payload: payload, origin: origin{kind: originFiat}}
	handle := d.queue.Insert(time, pe)
	d.queuedHandle[id] = handle
	return nil
}

// RemoveFiat undoes a previously inserted fiat event identified by its
// ExtendedTime and id (spec §6). The caller should follow this with
// Repair to restore consistency immediately.
func (d *Driver) RemoveFiat(time extendedtime.ExtendedTime) error {
	id := time.ID
	if handle, ok := d.queuedHandle[id]; ok {
		d.queue.Delete(handle)
		delete(d.queuedHandle, id)
		d.removedFiat[id] = true
		return nil
	}
	if _, ok := d.committed[id]; ok {
		d.removedFiat[id] = true
		d.rewind(time)
		return nil
	}
	return ErrNoSuchFiatEvent
}

// WorkBudget caps the number of event executions a single AdvanceTo
// call performs before returning control (spec §5 "Cancellation/
// timeouts"). A nil budget means unlimited.
type WorkBudget struct {
	MaxSteps int
}

func (b *WorkBudget) exhausted(steps int) bool {
	return b != nil && b.MaxSteps > 0 && steps >= b.MaxSteps
}

// AdvanceOutcome reports where AdvanceTo actually left the present
// cursor.
type AdvanceOutcome struct {
	Present         extendedtime.ExtendedTime
	BudgetExhausted bool
}

// Repair re-settles the driver at its current present cursor without
// moving it forward — used after a retroactive InsertFiat/RemoveFiat so
// the live state reflects the edit immediately (spec §8 scenario 4).
func (d *Driver) Repair() (AdvanceOutcome, error) {
	if !d.hasRun {
		return AdvanceOutcome{}, nil
	}
	return d.AdvanceTo(d.present, nil)
}

// AdvanceTo is the driver's execution loop (spec §4.6). It pops events
// in ExtendedTime order, rewinding first whenever the next event is
// earlier than the present cursor (retroactive editing), and runs
// predictors lazily as their last-predicted time comes due.
func (d *Driver) AdvanceTo(target extendedtime.ExtendedTime, budget *WorkBudget) (AdvanceOutcome, error) {
	safePresent := d.present
	safeHasRun := d.hasRun
	steps := 0

	for {
		if budget.exhausted(steps) {
			return AdvanceOutcome{Present: d.present, BudgetExhausted: true}, nil
		}

		ranPredictor := d.runDuePredictors(target)

		entry, ok := d.queue.Peek()
		if !ok || extendedtime.Less(target, entry.Time) {
			if ranPredictor {
				continue
			}
			if !d.hasRun || extendedtime.Less(d.present, target) {
				d.present = target
				d.hasRun = true
			}
			return AdvanceOutcome{Present: d.present}, nil
		}

		if d.hasRun && extendedtime.Less(entry.Time, d.present) {
			d.rewind(entry.Time)
			continue
		}

		if err := d.executeNext(); err != nil {
			d.rewind(safePresentOrZero(safePresent, safeHasRun))
			if !safeHasRun {
				d.hasRun = false
			}
			return AdvanceOutcome{Present: d.present}, err
		}
		steps++
	}
}

func safePresentOrZero(t extendedtime.ExtendedTime, hasRun bool) extendedtime.ExtendedTime {
	if !hasRun {
		return extendedtime.ExtendedTime{}
	}
	return t
}

// runDuePredictors runs every predictor whose last-predicted time is
// unknown or <= target, reconciling the queue with their outputs.
// Returns whether any predictor actually ran.
func (d *Driver) runDuePredictors(target extendedtime.ExtendedTime) bool {
	ran := false
	for {
		due := d.predictors.DueBy(target)
		if len(due) == 0 {
			return ran
		}
		for _, inst := range due {
			ran = true
			d.runPredictor(inst)
		}
	}
}

func (d *Driver) runPredictor(inst *predictor.Instance) {
	context := d.present
	if !d.hasRun {
		context = extendedtime.Min(0)
	}
	stream := prng.ForPredictor(uint64(inst.TypeID), inst.Subject, context.ID)
	acc := depgraph.NewAccessor(inst.Accessor, context, d.graph, stream)
	cand := predictor.Invoke(inst, acc)
	acc.Commit()

	d.runningPredictor = inst.Accessor
	if prevID, had := d.predictorOutput[inst.Accessor]; had {
		d.retractPredicted(prevID)
		delete(d.predictorOutput, inst.Accessor)
	}
	d.runningPredictor = 0

	if !cand.Found {
		return
	}

	et := d.promote(cand.Time)
	id := et.ID
	d.predictorOutput[inst.Accessor] = id

	typeID, payload := decodeCandidate(cand)
	pe := pendingEvent{
		time:    et,
		id:      id,
		typeID:  typeID,
		payload: payload,
		origin:  origin{kind: originPredicted, predictor: inst.Accessor},
	}
	handle := d.queue.Insert(et, pe)
	d.queuedHandle[id] = handle
}

// decodeCandidate extracts the TypeID/payload pair a predictor.Candidate
// carries. Kept as a function (rather than inlined) so the boundary
// between the predictor package's public Candidate shape and the
// driver's internal pendingEvent is explicit and easy to re-target if
// Candidate's shape changes.
func decodeCandidate(c predictor.Candidate) (typeid.TypeID, any) {
	return c.TypeID, c.Payload
}

// retractPredicted removes a predictor's previously-produced event,
// whether it is still sitting in the queue or has already been
// committed (in which case it must be rewound first).
func (d *Driver) retractPredicted(id rowid.RowID) {
	if handle, ok := d.queuedHandle[id]; ok {
		d.queue.Delete(handle)
		delete(d.queuedHandle, id)
		return
	}
	if _, ok := d.committed[id]; ok {
		d.rewind(d.committed[id].pending.time)
		// rewind restores-or-drops the event; since its predictor no
		// longer predicts it, drop it outright if it came back.
		if handle, ok := d.queuedHandle[id]; ok {
			d.queue.Delete(handle)
			delete(d.queuedHandle, id)
		}
	}
}

// promote implements spec §4.6's same-instant causal resolution: if et
// would not sort strictly after the driver's current present cursor at
// the same base time, bump its Iteration so it does, breaking the
// causal cycle while keeping numerical time coincident.
func (d *Driver) promote(et extendedtime.ExtendedTime) extendedtime.ExtendedTime {
	if !d.hasRun || et.Base != d.present.Base {
		return et
	}
	if extendedtime.Compare(et, d.present) > 0 {
		return et
	}
	return extendedtime.ExtendedTime{Base: et.Base, Iteration: d.present.Iteration + 1, ID: et.ID}
}

func (d *Driver) executeNext() error {
	entry, ok := d.queue.ExtractMin()
	if !ok {
		return nil
	}
	delete(d.queuedHandle, entry.Payload.(pendingEvent).id)
	pe := entry.Payload.(pendingEvent)

	if d.cfg.IterationLimit > 0 && int(pe.time.Iteration) >= d.cfg.IterationLimit {
		return &ErrIterationLimitExceeded{At: pe.time}
	}

	run, err := d.dispatch(pe.typeID, pe.payload)
	if err != nil {
		return err
	}

	accessor := d.accessorFor(pe.id)
	stream := prng.ForEvent(pe.id)
	acc := depgraph.NewAccessor(accessor, pe.time, d.graph, stream)
	mut := depgraph.NewMutator(accessor, pe.time, d.graph, stream)

	run(acc, mut)
	acc.Commit()

	d.present = pe.time
	d.hasRun = true
	d.committed[pe.id] = &committedEvent{pending: pe, accessor: accessor, written: mut.Written()}

	for _, wf := range mut.Written() {
		for _, region := range wf.Regions {
			for _, dep := range d.graph.Invalidate(wf.Field, region) {
				if dep == accessor {
					// The event's own reads happened before its own writes.
					continue
				}
				d.onInvalidated(dep)
			}
		}
	}
	return nil
}

func (d *Driver) onInvalidated(accessor depgraph.AccessorID) {
	if _, ok := d.predictors.Get(accessor); ok {
		d.predictors.MarkDirty(accessor)
		return
	}
	if id, ok := d.idForAccessor[accessor]; ok {
		if ce, ok := d.committed[id]; ok {
			d.rewind(ce.pending.time)
		}
	}
}

// rewind undoes every committed event with ExtendedTime >= tau, in
// reverse ExtendedTime order. An undone fiat event goes back on the
// queue unless it was explicitly removed; an undone predicted event
// always goes back on the queue. Sets P := tau.
//
// This driver treats tau as inclusive (">= tau" rather than spec
// §4.6's "> tau"): onInvalidated, RemoveFiat and retractPredicted
// rewind to an already-committed event's own time and need that event
// itself undone, not just everything after it. Callers
// rewinding to a brand-new or not-yet-committed event's time (the
// retroactive-insertion path in AdvanceTo) are unaffected, since that
// event was never in d.committed to begin with.
func (d *Driver) rewind(tau extendedtime.ExtendedTime) {
	toUndo := d.collectCommittedFrom(tau)
	for _, ce := range toUndo {
		for i := len(ce.written) - 1; i >= 0; i-- {
			ce.written[i].Undo()
		}
		d.graph.RemoveWrites(ce.accessor)
		d.graph.RemoveAccessor(ce.accessor)
		delete(d.committed, ce.pending.id)

		if ce.pending.origin.kind == originFiat {
			if d.removedFiat[ce.pending.id] {
				continue
			}
			handle := d.queue.Insert(ce.pending.time, ce.pending)
			d.queuedHandle[ce.pending.id] = handle
			continue
		}

		// Predicted: restore tentatively; the owning predictor is
		// marked dirty so forward execution re-checks whether it still
		// predicts this event (spec §4.6 "to be re-checked during
		// forward execution") — unless that predictor is the one
		// currently mid-invocation retracting its own stale output,
		// in which case it is about to be reconsidered this same call
		// and marking it dirty again would loop forever.
		if ce.pending.origin.predictor != d.runningPredictor {
			d.predictors.MarkDirty(ce.pending.origin.predictor)
		}
		handle := d.queue.Insert(ce.pending.time, ce.pending)
		d.queuedHandle[ce.pending.id] = handle
		d.predictorOutput[ce.pending.origin.predictor] = ce.pending.id
	}
	d.present = tau
	d.hasRun = true
}

func (d *Driver) collectCommittedFrom(tau extendedtime.ExtendedTime) []*committedEvent {
	var out []*committedEvent
	for _, ce := range d.committed {
		if extendedtime.Compare(ce.pending.time, tau) >= 0 {
			out = append(out, ce)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return extendedtime.Compare(out[i].pending.time, out[j].pending.time) > 0
	})
	return out
}

// QueueLen exposes the number of events currently queued, for tests and
// diagnostics.
func (d *Driver) QueueLen() int {
	return d.queue.Len()
}
