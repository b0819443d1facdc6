package timeline

import (
	"sort"
	"sync"

	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/typeid"
)

// Interval is a half-open ExtendedTime range [Start, End).
type Interval struct {
	Start extendedtime.ExtendedTime
	End   extendedtime.ExtendedTime
}

// Contains reports whether t falls inside the interval.
func (iv Interval) Contains(t extendedtime.ExtendedTime) bool {
	return !extendedtime.Less(t, iv.Start) && extendedtime.Less(t, iv.End)
}

// IntervalSet is the interval-indexed built-in DataTimeline (spec
// §4.2): rather than one value effective from a write onward, each
// RowID holds a set of non-overlapping [Start, End) intervals, each
// carrying its own value — the shape needed for "is row R within
// collision window W" style queries.
type IntervalSet[V any] struct {
	column typeid.TypeID
	mu     sync.RWMutex
	data   map[rowid.RowID][]ivEntry[V]
}

type ivEntry[V any] struct {
	interval Interval
	value    V
}

// NewIntervalSet creates an empty interval set for column.
func NewIntervalSet[V any](column typeid.TypeID) *IntervalSet[V] {
	return &IntervalSet[V]{column: column, data: make(map[rowid.RowID][]ivEntry[V])}
}

func (s *IntervalSet[V]) ColumnType() typeid.TypeID          { return s.column }
func (s *IntervalSet[V]) EdgeGranularity() EdgeGranularity   { return PerKeyRange }

func (s *IntervalSet[V]) Keys() []rowid.RowID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]rowid.RowID, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return rowid.Compare(keys[i], keys[j]) < 0 })
	return keys
}

func (s *IntervalSet[V]) EarliestRetained() (extendedtime.ExtendedTime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var earliest extendedtime.ExtendedTime
	found := false
	for _, entries := range s.data {
		for _, e := range entries {
			if !found || extendedtime.Less(e.interval.Start, earliest) {
				earliest = e.interval.Start
				found = true
			}
		}
	}
	return earliest, found
}

func (s *IntervalSet[V]) DiscardBefore(horizon extendedtime.ExtendedTime, liveBelow func(rowid.RowID) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entries := range s.data {
		kept := entries[:0:0]
		for _, e := range entries {
			if extendedtime.Less(e.interval.End, horizon) {
				if liveBelow != nil && liveBelow(key) {
					return &ErrLiveReference{Column: s.column, Key: key, Before: horizon}
				}
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.data, key)
		} else {
			s.data[key] = kept
		}
	}
	return nil
}

// IntervalOperation is one retroactive write against an IntervalSet.
type IntervalOperation[V any] struct {
	Key      rowid.RowID
	Interval Interval
	Value    V
}

// Query returns the value of the interval containing `at`, if any.
func (s *IntervalSet[V]) Query(key rowid.RowID, at extendedtime.ExtendedTime) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.data[key] {
		if e.interval.Contains(at) {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

// Insert adds an interval. The returned region spans exactly the
// inserted interval — IntervalSet is the one built-in whose edges are
// naturally tight rather than open-ended, since the interval itself
// bounds the affected range.
func (s *IntervalSet[V]) Insert(op IntervalOperation[V]) []ChangedRegion {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[op.Key] = append(s.data[op.Key], ivEntry[V]{interval: op.Interval, value: op.Value})
	end := op.Interval.End
	return []ChangedRegion{{Key: op.Key, From: op.Interval.Start, To: &end}}
}

// Remove deletes the exact interval+value previously inserted, the
// inverse of Insert.
func (s *IntervalSet[V]) Remove(op IntervalOperation[V]) []ChangedRegion {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.data[op.Key]
	for i, e := range entries {
		if e.interval == op.Interval {
			entries = append(entries[:i], entries[i+1:]...)
			if len(entries) == 0 {
				delete(s.data, op.Key)
			} else {
				s.data[op.Key] = entries
			}
			end := op.Interval.End
			return []ChangedRegion{{Key: op.Key, From: op.Interval.Start, To: &end}}
		}
	}
	return nil
}

func (s *IntervalSet[V]) SnapshotRaw(at extendedtime.ExtendedTime) []RawEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]rowid.RowID, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return rowid.Compare(keys[i], keys[j]) < 0 })
	out := make([]RawEntry, 0, len(keys))
	for _, key := range keys {
		for _, e := range s.data[key] {
			if e.interval.Contains(at) {
				out = append(out, RawEntry{Key: key, Value: e.value})
				break
			}
		}
	}
	return out
}

func (s *IntervalSet[V]) Snapshot(at extendedtime.ExtendedTime) Snapshot[V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	frozen := make(map[rowid.RowID]V)
	for key, entries := range s.data {
		for _, e := range entries {
			if e.interval.Contains(at) {
				frozen[key] = e.value
				break
			}
		}
	}
	return &fieldMapSnapshot[V]{at: at, frozen: frozen}
}
