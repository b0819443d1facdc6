// Package typeid implements the 64-bit stable type identifiers used to
// tag every registered DataTimeline, Event, and Predictor type (spec
// §3). Registration replaces run-time reflection with an explicit,
// author-chosen table (spec §9 "Dynamic typed payloads"), in the spirit
// of the original Rust implementation's compile-time list-of-types
// macro (see SPEC_FULL.md §3).
package typeid

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// TypeID is a 64-bit constant chosen by the author of each registered
// type. The core treats it as opaque; it must be stable across runs and
// unique among registered types.
type TypeID uint64

// ErrCollision is returned when a caller tries to register two distinct
// entries under the same TypeID.
type ErrCollision struct {
	ID TypeID
}

func (e *ErrCollision) Error() string {
	return fmt.Sprintf("typeid: collision registering TypeID %d", uint64(e.ID))
}

// ErrUnregistered is returned by Lookup when no entry is registered for
// the requested TypeID.
type ErrUnregistered struct {
	ID TypeID
}

func (e *ErrUnregistered) Error() string {
	return fmt.Sprintf("typeid: %d is not a registered type", uint64(e.ID))
}

// entry is the registry's internal bookkeeping for one registered type.
type entry struct {
	id     TypeID
	name   string
	newPtr func() any
}

// Registry is a populated-at-construction table mapping TypeIDs to the
// Go types they represent, mirroring the shape of the teacher's
// hooks.PluginBroker descriptor index (name-keyed registry with
// duplicate-registration detection), generalized to numeric TypeIds.
type Registry struct {
	mu      sync.RWMutex
	entries map[TypeID]*entry
	// tieBreak indexes entries by their xxhash-scrambled id. Register
	// fills it; nothing reads it.
	tieBreak map[uint64]TypeID
}

// NewRegistry creates an empty type registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[TypeID]*entry),
		tieBreak: make(map[uint64]TypeID),
	}
}

// Register associates id with name and a zero-value constructor for T.
// Registering an id again under the same name is a no-op (the type is
// not compared); registering it under a different name is a fatal
// configuration error (ErrCollision).
func Register[T any](r *Registry, id TypeID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[id]; ok {
		if existing.name == name {
			return nil
		}
		return &ErrCollision{ID: id}
	}
	r.entries[id] = &entry{
		id:     id,
		name:   name,
		newPtr: func() any { return new(T) },
	}
	r.tieBreak[xxhash.Sum64(id.hashKey())] = id
	return nil
}

func (id TypeID) hashKey() []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(id >> (8 * i))
	}
	return b
}

// Lookup returns the registered name for id, or ErrUnregistered.
func (r *Registry) Lookup(id TypeID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return "", &ErrUnregistered{ID: id}
	}
	return e.name, nil
}

// MustZero returns a fresh *T (T the type registered under id) as an
// any, suitable as a cbor.Unmarshal target, panicking if id is
// unregistered — used only at snapshot decode time where an
// unregistered TypeID is already a fatal SnapshotDeserializationMismatch
// the caller has checked for.
func (r *Registry) MustZero(id TypeID) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		panic(fmt.Sprintf("typeid: MustZero called on unregistered id %d", uint64(id)))
	}
	return e.newPtr()
}

// Registered reports whether id has been registered.
func (r *Registry) Registered(id TypeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// IDs returns every registered TypeID in ascending numeric order —
// deterministic regardless of registration order or Go's map iteration,
// satisfying spec §9's no-platform-hash-map-iteration requirement for
// anything observable (e.g. schema dumps, snapshot headers).
func (r *Registry) IDs() []TypeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]TypeID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
