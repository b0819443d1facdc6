// Package engine implements the top-level Engine façade (spec §6): the
// single entry point that owns the type registry, the dependency
// graph, every registered DataTimeline, the predictor table, the
// invalidation/repair driver, and the snapshot manager, and wires them
// together behind the abstract Engine API. Grounded on the teacher's
// simulator.go/Simulator — the top-level orchestration object that owns
// config, queues, and the cycle coordinator — generalized from "build a
// fixed flow-control topology" to "host whatever timelines, events, and
// predictors the caller registers."
package engine

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/example/timesteward/depgraph"
	"github.com/example/timesteward/driver"
	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/internal/tsconfig"
	"github.com/example/timesteward/internal/tslog"
	"github.com/example/timesteward/predictor"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/snapshot"
	"github.com/example/timesteward/timeline"
	"github.com/example/timesteward/typeid"
)

// EventPayload pairs an event's registered TypeID with its opaque data,
// the shape spec.md §6 calls TypedEventData.
type EventPayload struct {
	TypeID typeid.TypeID
	Data   any
}

// EventBody is a typed event body: it reads through acc and writes
// through mut, exactly like driver.Run, but receives its payload
// already asserted to its registered Go type.
type EventBody[P any] func(acc *depgraph.Accessor, mut *depgraph.Mutator, payload P)

// PredictorFn is a typed predictor rule bound to a subject row. ok ==
// false means "no event from me until my reads change" (spec §4.4).
type PredictorFn[P any] func(acc *depgraph.Accessor, subject rowid.RowID) (at extendedtime.ExtendedTime, eventType typeid.TypeID, payload P, ok bool)

// Engine is the top-level façade implementing spec §6's abstract API.
type Engine struct {
	cfg        tsconfig.EngineConfig
	registry   *typeid.Registry
	graph      *depgraph.Graph
	predictors *predictor.Table
	drv        *driver.Driver
	timelines  map[typeid.TypeID]timeline.Timeline
	snapshots  *snapshot.Manager
	log        *tslog.Logger

	eventBodies map[typeid.TypeID]func(payload any) driver.Run
	// rawLoaders lets Deserialize write type-erased snapshot.Column rows
	// back into the right ValueTimeline[V], captured with V bound at the
	// RegisterTimeline call site where it is still known.
	rawLoaders map[typeid.TypeID]func(mut *depgraph.Mutator, rows []timeline.RawEntry)
}

// genesisBase is the sentinel Base SeedTimeline writes at: lower than
// any Base a caller can legally schedule a fiat event at, so seeded
// state is always "since the beginning of time" (spec §6
// `new(initial_globals)`).
const genesisBase = extendedtime.Time(math.MinInt64)

// New creates an empty Engine (spec §6 `new`). Callers register
// timelines, event types, and predictors (RegisterTimeline,
// RegisterEventType, RegisterPredictor) and then seed initial state
// with SeedTimeline before inserting the first fiat event.
func New(cfg tsconfig.EngineConfig, log *tslog.Logger) (*Engine, error) {
	if err := tsconfig.Validate(&cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = tslog.Default()
	}
	graph := depgraph.New()
	e := &Engine{
		cfg:         cfg,
		registry:    typeid.NewRegistry(),
		graph:       graph,
		predictors:  predictor.New(graph),
		timelines:   make(map[typeid.TypeID]timeline.Timeline),
		log:         log,
		eventBodies: make(map[typeid.TypeID]func(payload any) driver.Run),
		rawLoaders:  make(map[typeid.TypeID]func(mut *depgraph.Mutator, rows []timeline.RawEntry)),
	}
	e.drv = driver.New(driver.Config{IterationLimit: cfg.IterationLimit}, graph, e.predictors, e.dispatch, log)
	e.snapshots = snapshot.NewManager(e.timelines)
	return e, nil
}

// Registry exposes the engine's type registry, e.g. for a CLI that
// needs to call snapshot.Deserialize against a freshly built Engine.
func (e *Engine) Registry() *typeid.Registry { return e.registry }

// RegisterTimeline registers tl as the authoritative store for column
// id (spec §4.2: exactly one DataTimeline instance per column type).
// V is also registered in the type registry so snapshot.Deserialize
// can resolve the column's wire values back to concrete Go values.
func RegisterTimeline[V any](e *Engine, id typeid.TypeID, name string, tl timeline.ValueTimeline[V]) error {
	if err := typeid.Register[V](e.registry, id, name); err != nil {
		return err
	}
	e.timelines[id] = tl
	e.rawLoaders[id] = func(mut *depgraph.Mutator, rows []timeline.RawEntry) {
		for _, r := range rows {
			v, ok := r.Value.(V)
			if !ok {
				continue
			}
			depgraph.Write[V](mut, tl, r.Key, v)
		}
	}
	return nil
}

// RegisterEventType binds id to a typed event body, so the driver can
// dispatch a committed (TypeID, payload) pair to it without the driver
// package ever seeing P.
func RegisterEventType[P any](e *Engine, id typeid.TypeID, name string, body EventBody[P]) error {
	if err := typeid.Register[P](e.registry, id, name); err != nil {
		return err
	}
	e.eventBodies[id] = func(payload any) driver.Run {
		p, _ := payload.(P)
		return func(acc *depgraph.Accessor, mut *depgraph.Mutator) { body(acc, mut, p) }
	}
	return nil
}

// RegisterPredictor binds a predictor instance to subject (spec §4.4).
// predictorType identifies this predictor's slot in the shared 64-bit
// type space: it is checked for collisions in the registry and, as the
// instance's TypeID, seeds the PRNG stream of each invocation. fn
// returns the TypeID of the event it predicts.
func RegisterPredictor[P any](e *Engine, predictorType typeid.TypeID, name string, subject rowid.RowID, fn PredictorFn[P]) (*predictor.Instance, error) {
	if err := typeid.Register[PredictorFn[P]](e.registry, predictorType, name); err != nil {
		return nil, err
	}
	wrapped := func(acc *depgraph.Accessor, s rowid.RowID) predictor.Candidate {
		at, eventType, payload, ok := fn(acc, s)
		if !ok {
			return predictor.Candidate{Found: false}
		}
		return predictor.Candidate{Time: at, TypeID: eventType, Payload: payload, Found: true}
	}
	return e.predictors.Register(predictorType, subject, wrapped), nil
}

// SeedTimeline writes value into tl at the genesis instant, bypassing
// the driver entirely — ground truth that predates any event and is
// never rewound. Call it after
// RegisterTimeline, before the first InsertFiatEvent.
func SeedTimeline[V any](e *Engine, tl timeline.ValueTimeline[V], key rowid.RowID, value V) {
	accessor := e.graph.NextAccessor()
	mut := depgraph.NewMutator(accessor, extendedtime.Min(genesisBase), e.graph, nil)
	depgraph.Write[V](mut, tl, key, value)
}

func (e *Engine) dispatch(typeID typeid.TypeID, payload any) (driver.Run, error) {
	body, ok := e.eventBodies[typeID]
	if !ok {
		return nil, fmt.Errorf("engine: no event handler registered for type %d", uint64(typeID))
	}
	return body(payload), nil
}

// InsertFiatEvent registers a user-supplied event (spec §6
// insert_fiat_event). id must be produced by rowid.Derive over
// caller-chosen, deterministic seed bytes — never from a platform
// clock or RNG (spec §3, §9).
func (e *Engine) InsertFiatEvent(t extendedtime.Time, id rowid.RowID, payload EventPayload) error {
	return e.drv.InsertFiat(extendedtime.New(t, id), payload.TypeID, payload.Data)
}

// RemoveFiatEvent undoes a previously inserted fiat event (spec §6
// remove_fiat_event).
func (e *Engine) RemoveFiatEvent(t extendedtime.Time, id rowid.RowID) error {
	return e.drv.RemoveFiat(extendedtime.New(t, id))
}

// AdvanceTo drives the engine forward through every event up to and
// including Base t (spec §6 advance_to). ctx is consulted only before
// starting the call; budget is the supported in-flight cancellation
// mechanism (spec §5 "Cancellation/timeouts") since an event is always
// executed atomically.
func (e *Engine) AdvanceTo(ctx context.Context, t extendedtime.Time, budget *driver.WorkBudget) (driver.AdvanceOutcome, error) {
	if err := ctx.Err(); err != nil {
		return driver.AdvanceOutcome{}, err
	}
	return e.drv.AdvanceTo(extendedtime.Max(t), budget)
}

// Snapshot pins an immutable view of every registered timeline at
// Base t (spec §6 snapshot). Release it with ReleaseSnapshot once done.
func (e *Engine) Snapshot(t extendedtime.Time) *snapshot.Handle {
	return e.snapshots.Take(extendedtime.Max(t))
}

// ReleaseSnapshot unpins h (spec §6 release_snapshot).
func (e *Engine) ReleaseSnapshot(h *snapshot.Handle) {
	e.snapshots.Release(h)
}

// Present returns the engine's current present cursor, if AdvanceTo or
// Repair has ever run.
func (e *Engine) Present() (extendedtime.ExtendedTime, bool) {
	return e.drv.Present()
}

// RunSpeculative advances a second, independently built engine fed the
// same fiat history in parallel with the caller's own AdvanceTo call
// (spec §5 "Parallelism that IS allowed (b)": speculative forward
// simulation as a second engine instance; the core itself offers no
// intra-engine parallelism). The caller supplies speculative already
// seeded with whatever fiat events real should also see.
func RunSpeculative(ctx context.Context, real, speculative *Engine, to extendedtime.Time, budget *driver.WorkBudget) (driver.AdvanceOutcome, driver.AdvanceOutcome, error) {
	var g errgroup.Group
	var realOutcome, specOutcome driver.AdvanceOutcome
	g.Go(func() error {
		var err error
		realOutcome, err = real.AdvanceTo(ctx, to, budget)
		return err
	})
	g.Go(func() error {
		var err error
		specOutcome, err = speculative.AdvanceTo(ctx, to, budget)
		return err
	})
	err := g.Wait()
	return realOutcome, specOutcome, err
}

// Deserialize rebuilds an Engine from previously serialized snapshot
// bytes (spec §6 deserialize_snapshot). The returned Engine's
// timelines, event handlers, and predictors must still be registered
// by the caller exactly as they were at serialization time — the
// decoded rows are written back in at the snapshot's ExtendedTime
// rather than replayed as history, so no dependency graph or predictor
// work-list state survives a round trip (documented in DESIGN.md as an
// accepted simplification: a deserialized Engine has no present cursor
// until its first AdvanceTo, and is not a byte-identical internal
// replica).
func Deserialize(cfg tsconfig.EngineConfig, log *tslog.Logger, data []byte, register func(*Engine) error) (*Engine, error) {
	e, err := New(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := register(e); err != nil {
		return nil, err
	}
	h, err := snapshot.Deserialize(data, e.registry)
	if err != nil {
		return nil, err
	}
	accessor := e.graph.NextAccessor()
	mut := depgraph.NewMutator(accessor, h.Time(), e.graph, nil)
	for _, col := range h.Columns() {
		load, ok := e.rawLoaders[col.TypeID]
		if !ok {
			continue
		}
		load(mut, col.Rows)
	}
	e.drv = driver.New(driver.Config{IterationLimit: cfg.IterationLimit}, e.graph, e.predictors, e.dispatch, log)
	return e, nil
}
