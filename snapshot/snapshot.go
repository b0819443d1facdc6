// Package snapshot implements the engine's immutable, pinned
// point-in-time views (spec §4.7, §6) and their canonical wire format.
// Grounded on the teacher's visualization snapshot plumbing
// (web_api_timeline.go, visualization.go), which already builds
// ordered, serializable point-in-time views for external consumers —
// generalized here from ad hoc JSON/HTTP views to canonical CBOR
// snapshots with a pin/release lifecycle.
package snapshot

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/sync/errgroup"

	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/timeline"
	"github.com/example/timesteward/typeid"
)

// ErrSnapshotDeserializationMismatch is returned by Deserialize when
// the wire data names a TypeID the caller's registry doesn't know
// about (spec §7).
type ErrSnapshotDeserializationMismatch struct {
	TypeID typeid.TypeID
}

func (e *ErrSnapshotDeserializationMismatch) Error() string {
	return fmt.Sprintf("snapshot: column TypeID %d in wire data is not registered", uint64(e.TypeID))
}

// Column is a column's frozen rows, in ascending RowID order — the
// canonical (TypeID, RowID, value) ordering spec §6 requires for two
// snapshots of identical state to serialize byte-identically.
type Column struct {
	TypeID typeid.TypeID
	Rows   []timeline.RawEntry
}

// Handle is a pinned, immutable view of every registered column as of
// one ExtendedTime. Its rows are copied out when it is taken, so later
// writes do not change it; the owning Manager counts it as pinned until
// the caller calls Release. Pinning does not hold back any discard of
// timeline history: the Manager discards none.
type Handle struct {
	at      extendedtime.ExtendedTime
	columns []Column
}

// Time returns the ExtendedTime this handle is pinned at.
func (h *Handle) Time() extendedtime.ExtendedTime { return h.at }

// Columns returns the handle's frozen column data, in ascending
// TypeID order.
func (h *Handle) Columns() []Column { return h.columns }

// Query looks up one value by (column, key) inside the pinned view.
func (h *Handle) Query(column typeid.TypeID, key rowid.RowID) (any, bool) {
	for _, c := range h.columns {
		if c.TypeID != column {
			continue
		}
		idx := sort.Search(len(c.Rows), func(i int) bool {
			return rowid.Compare(c.Rows[i].Key, key) >= 0
		})
		if idx < len(c.Rows) && c.Rows[idx].Key == key {
			return c.Rows[idx].Value, true
		}
		return nil, false
	}
	return nil, false
}

// Manager owns the set of registered timelines and every currently
// pinned snapshot (spec §4.7). It reports the earliest pinned time
// through EarliestPinned; it does not advance a retention horizon or
// discard any history itself.
type Manager struct {
	mu        sync.Mutex
	timelines map[typeid.TypeID]timeline.Timeline
	pinned    map[*Handle]struct{}
}

// NewManager creates a snapshot manager over the given set of
// registered timelines, keyed by the TypeID each is the authoritative
// store for (spec §4.2's "exactly one DataTimeline instance per column
// type").
func NewManager(timelines map[typeid.TypeID]timeline.Timeline) *Manager {
	return &Manager{
		timelines: timelines,
		pinned:    make(map[*Handle]struct{}),
	}
}

// Take produces a new pinned Handle over every registered column as of
// at (spec §6 take_snapshot). Columns are walked in ascending TypeID
// order and rows within a column in ascending RowID order, so two
// managers holding identical state produce byte-identical handles.
func (m *Manager) Take(at extendedtime.ExtendedTime) *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]typeid.TypeID, 0, len(m.timelines))
	for id := range m.timelines {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	columns := make([]Column, 0, len(ids))
	for _, id := range ids {
		rows := m.timelines[id].SnapshotRaw(at)
		columns = append(columns, Column{TypeID: id, Rows: rows})
	}

	h := &Handle{at: at, columns: columns}
	m.pinned[h] = struct{}{}
	return h
}

// Release unpins h (spec §6 release_snapshot). Releasing an
// already-released or unknown handle is a no-op.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pinned, h)
}

// EarliestPinned returns the oldest ExtendedTime any currently pinned
// Handle was taken at, or ok == false if nothing is pinned. Nothing in
// this module passes the result to timeline.Timeline.DiscardBefore.
func (m *Manager) EarliestPinned() (extendedtime.ExtendedTime, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var earliest extendedtime.ExtendedTime
	found := false
	for h := range m.pinned {
		if !found || extendedtime.Less(h.at, earliest) {
			earliest = h.at
			found = true
		}
	}
	return earliest, found
}

// RunConsumers runs each consumer against h concurrently (spec §5
// "Parallelism that IS allowed (a)": snapshot consumers may run on
// other threads using the immutable handle). h is read-only and safe
// for concurrent use by every consumer; every consumer runs to
// completion, and the first error any of them returns is returned.
func RunConsumers(h *Handle, consumers ...func(*Handle) error) error {
	var g errgroup.Group
	for _, c := range consumers {
		c := c
		g.Go(func() error { return c(h) })
	}
	return g.Wait()
}

// DumpText renders h as a fixed, human-readable listing — one line per
// (column, key, value) triple in the handle's already-canonical order —
// for diffable debug output and golden-file tests.
func DumpText(h *Handle) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "snapshot at %s\n", h.at)
	for _, c := range h.columns {
		for _, r := range c.Rows {
			fmt.Fprintf(&b, "  column=%d key=%s value=%v\n", uint64(c.TypeID), r.Key, r.Value)
		}
	}
	return []byte(b.String())
}

// wireSnapshot is the canonical CBOR envelope. Field order and the
// canonical encoding mode (see Serialize) make two calls over
// identical Handles produce byte-identical output.
type wireSnapshot struct {
	At      wireTime     `cbor:"at"`
	Columns []wireColumn `cbor:"columns"`
}

type wireTime struct {
	Base      int64       `cbor:"base"`
	Iteration uint32      `cbor:"iteration"`
	ID        rowid.RowID `cbor:"id"`
}

type wireColumn struct {
	TypeID uint64    `cbor:"type_id"`
	Rows   []wireRow `cbor:"rows"`
}

type wireRow struct {
	Key   rowid.RowID `cbor:"key"`
	Value any         `cbor:"value"`
}

var canonicalEncMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: building canonical cbor encoder: %v", err))
	}
	return mode
}()

// Serialize encodes h in canonical CBOR form (spec §6 serialize_snapshot):
// deterministic map-key ordering and shortest-form integers, so
// byte-identical simulation state always serializes to byte-identical
// output regardless of platform or prior map iteration order.
func Serialize(h *Handle) ([]byte, error) {
	w := wireSnapshot{
		At: wireTime{Base: int64(h.at.Base), Iteration: uint32(h.at.Iteration), ID: h.at.ID},
	}
	for _, c := range h.columns {
		wc := wireColumn{TypeID: uint64(c.TypeID), Rows: make([]wireRow, 0, len(c.Rows))}
		for _, r := range c.Rows {
			wc.Rows = append(wc.Rows, wireRow{Key: r.Key, Value: r.Value})
		}
		w.Columns = append(w.Columns, wc)
	}
	data, err := canonicalEncMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("snapshot: serialize: %w", err)
	}
	return data, nil
}

// Deserialize decodes canonical CBOR snapshot data back into a
// detached Handle, resolving each column's value type through
// registry. It is not pinned against any Manager — callers that need
// GC protection for a deserialized handle must re-pin it themselves.
func Deserialize(data []byte, registry *typeid.Registry) (*Handle, error) {
	var w wireSnapshot
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("snapshot: deserialize: %w", err)
	}
	h := &Handle{at: extendedtime.ExtendedTime{
		Base:      extendedtime.Time(w.At.Base),
		Iteration: extendedtime.Iteration(w.At.Iteration),
		ID:        w.At.ID,
	}}
	for _, wc := range w.Columns {
		id := typeid.TypeID(wc.TypeID)
		if !registry.Registered(id) {
			return nil, &ErrSnapshotDeserializationMismatch{TypeID: id}
		}
		col := Column{TypeID: id, Rows: make([]timeline.RawEntry, 0, len(wc.Rows))}
		for _, wr := range wc.Rows {
			target := registry.MustZero(id)
			raw, err := cbor.Marshal(wr.Value)
			if err != nil {
				return nil, fmt.Errorf("snapshot: deserialize: re-encode row value: %w", err)
			}
			if err := cbor.Unmarshal(raw, target); err != nil {
				return nil, fmt.Errorf("snapshot: deserialize: decode row value for type %d: %w", wc.TypeID, err)
			}
			value := reflect.ValueOf(target).Elem().Interface()
			col.Rows = append(col.Rows, timeline.RawEntry{Key: wr.Key, Value: value})
		}
		h.columns = append(h.columns, col)
	}
	return h, nil
}
