package timeline

import (
	"sort"

	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/typeid"
)

// FieldMap is the last-write-wins built-in DataTimeline: for each
// RowID, Query returns the value of the most recent write at or before
// the requested time (spec §4.2).
type FieldMap[V any] struct {
	column typeid.TypeID
	series *keyedSeries[V]
}

// NewFieldMap creates an empty last-write-wins field map for column.
func NewFieldMap[V any](column typeid.TypeID) *FieldMap[V] {
	return &FieldMap[V]{column: column, series: newKeyedSeries[V]()}
}

func (f *FieldMap[V]) ColumnType() typeid.TypeID          { return f.column }
func (f *FieldMap[V]) EdgeGranularity() EdgeGranularity   { return PerKeyRange }
func (f *FieldMap[V]) Keys() []rowid.RowID                { return f.series.keys() }
func (f *FieldMap[V]) EarliestRetained() (extendedtime.ExtendedTime, bool) {
	return f.series.earliest()
}

func (f *FieldMap[V]) Query(key rowid.RowID, at extendedtime.ExtendedTime) (V, bool) {
	return f.series.query(key, at)
}

func (f *FieldMap[V]) Insert(op Operation[V]) []ChangedRegion {
	return []ChangedRegion{f.series.insert(op.Key, op.Time, op.Value)}
}

func (f *FieldMap[V]) Remove(op Operation[V]) []ChangedRegion {
	region, ok := f.series.remove(op.Key, op.Time)
	if !ok {
		return nil
	}
	return []ChangedRegion{region}
}

func (f *FieldMap[V]) DiscardBefore(horizon extendedtime.ExtendedTime, liveBelow func(rowid.RowID) bool) error {
	if key, blocked := f.series.discardBefore(horizon, liveBelow); blocked {
		return &ErrLiveReference{Column: f.column, Key: key, Before: horizon}
	}
	return nil
}

func (f *FieldMap[V]) SnapshotRaw(at extendedtime.ExtendedTime) []RawEntry {
	snap := f.Snapshot(at)
	keys := snap.Keys()
	out := make([]RawEntry, 0, len(keys))
	for _, k := range keys {
		v, _ := snap.Query(k)
		out = append(out, RawEntry{Key: k, Value: v})
	}
	return out
}

func (f *FieldMap[V]) Snapshot(at extendedtime.ExtendedTime) Snapshot[V] {
	f.series.mu.RLock()
	defer f.series.mu.RUnlock()
	frozen := make(map[rowid.RowID]V, len(f.series.data))
	for key, s := range f.series.data {
		if v, ok := s.effectiveAt(at); ok {
			frozen[key] = v
		}
	}
	return &fieldMapSnapshot[V]{at: at, frozen: frozen}
}

type fieldMapSnapshot[V any] struct {
	at     extendedtime.ExtendedTime
	frozen map[rowid.RowID]V
}

func (s *fieldMapSnapshot[V]) Query(key rowid.RowID) (V, bool) {
	v, ok := s.frozen[key]
	return v, ok
}

func (s *fieldMapSnapshot[V]) Keys() []rowid.RowID {
	keys := make([]rowid.RowID, 0, len(s.frozen))
	for k := range s.frozen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return rowid.Compare(keys[i], keys[j]) < 0 })
	return keys
}

func (s *fieldMapSnapshot[V]) Time() extendedtime.ExtendedTime { return s.at }
