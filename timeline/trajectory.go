package timeline

import (
	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/typeid"
)

// TrajectoryStore is the piecewise-constant trajectory built-in (spec
// §4.2): like FieldMap it answers "the value effective at T" from the
// latest write at or before T, but it also reports how much base time
// has elapsed since that write went into effect, which is what a
// physics predictor needs to extrapolate a position from a stored
// (position, velocity) pair without the timeline itself knowing
// anything about motion.
type TrajectoryStore[V any] struct {
	inner *FieldMap[V]
}

// NewTrajectoryStore creates an empty trajectory store for column.
func NewTrajectoryStore[V any](column typeid.TypeID) *TrajectoryStore[V] {
	return &TrajectoryStore[V]{inner: NewFieldMap[V](column)}
}

func (t *TrajectoryStore[V]) ColumnType() typeid.TypeID        { return t.inner.ColumnType() }
func (t *TrajectoryStore[V]) EdgeGranularity() EdgeGranularity { return t.inner.EdgeGranularity() }
func (t *TrajectoryStore[V]) Keys() []rowid.RowID              { return t.inner.Keys() }

func (t *TrajectoryStore[V]) EarliestRetained() (extendedtime.ExtendedTime, bool) {
	return t.inner.EarliestRetained()
}

func (t *TrajectoryStore[V]) DiscardBefore(horizon extendedtime.ExtendedTime, liveBelow func(rowid.RowID) bool) error {
	return t.inner.DiscardBefore(horizon, liveBelow)
}

func (t *TrajectoryStore[V]) Query(key rowid.RowID, at extendedtime.ExtendedTime) (V, bool) {
	return t.inner.Query(key, at)
}

func (t *TrajectoryStore[V]) Insert(op Operation[V]) []ChangedRegion { return t.inner.Insert(op) }
func (t *TrajectoryStore[V]) Remove(op Operation[V]) []ChangedRegion { return t.inner.Remove(op) }

func (t *TrajectoryStore[V]) Snapshot(at extendedtime.ExtendedTime) Snapshot[V] {
	return t.inner.Snapshot(at)
}

func (t *TrajectoryStore[V]) SnapshotRaw(at extendedtime.ExtendedTime) []RawEntry {
	return t.inner.SnapshotRaw(at)
}

// QueryWithAge returns the value effective at `at` along with the base
// time elapsed since the write that produced it took effect, so the
// caller can extrapolate (e.g. position + velocity*elapsed).
func (t *TrajectoryStore[V]) QueryWithAge(key rowid.RowID, at extendedtime.ExtendedTime) (value V, elapsed extendedtime.Time, ok bool) {
	t.inner.series.mu.RLock()
	defer t.inner.series.mu.RUnlock()
	s := t.inner.series.data[key]
	idx := s.search(at)
	if idx == 0 {
		var zero V
		return zero, 0, false
	}
	p := s[idx-1]
	return p.value, at.Base - p.time.Base, true
}
