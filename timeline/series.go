package timeline

import (
	"sort"
	"sync"

	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/rowid"
)

// point is one stored (Time, Value) pair inside a key's series.
type point[V any] struct {
	time  extendedtime.ExtendedTime
	value V
}

// series is a sorted-by-ExtendedTime sequence of writes for one RowID.
// No example repo in the retrieval pack ships a balanced ordered-map or
// skip-list library (DESIGN.md); a sorted slice with binary search is
// the standard-library structure that stands in for it here. Series are
// small in practice (one per live row per column), so O(n) insert/
// remove is acceptable.
type series[V any] []point[V]

// search returns the index of the first point with time > at — i.e.
// the insertion point for a new write at `at`, and one past the
// point effective at `at` if one exists.
func (s series[V]) search(at extendedtime.ExtendedTime) int {
	return sort.Search(len(s), func(i int) bool {
		return extendedtime.Less(at, s[i].time)
	})
}

// effectiveAt returns the value of the latest point with time <= at.
func (s series[V]) effectiveAt(at extendedtime.ExtendedTime) (V, bool) {
	idx := s.search(at)
	if idx == 0 {
		var zero V
		return zero, false
	}
	return s[idx-1].value, true
}

// insert adds a point in sorted position and reports the ChangedRegion
// it opens: From the inserted time, To the next point's time if one
// follows (nil if this is now the last point).
func (s series[V]) insert(key rowid.RowID, t extendedtime.ExtendedTime, v V) (series[V], ChangedRegion) {
	idx := s.search(t)
	grown := make(series[V], len(s)+1)
	copy(grown, s[:idx])
	grown[idx] = point[V]{time: t, value: v}
	copy(grown[idx+1:], s[idx:])

	region := ChangedRegion{Key: key, From: t}
	if idx+1 < len(grown) {
		next := grown[idx+1].time
		region.To = &next
	}
	return grown, region
}

// remove deletes the point exactly at t (exact inverse of insert). It
// reports the ChangedRegion that reopens: From t (now answered by
// whatever point preceded it, or nothing), To the following point's
// time if any.
func (s series[V]) remove(key rowid.RowID, t extendedtime.ExtendedTime) (series[V], ChangedRegion, bool) {
	idx := s.search(t)
	if idx == 0 || !extendedtime.Equal(s[idx-1].time, t) {
		return s, ChangedRegion{}, false
	}
	removedIdx := idx - 1
	region := ChangedRegion{Key: key, From: t}
	if idx < len(s) {
		next := s[idx].time
		region.To = &next
	}
	shrunk := make(series[V], len(s)-1)
	copy(shrunk, s[:removedIdx])
	copy(shrunk[removedIdx:], s[idx:])
	return shrunk, region, true
}

// keyedSeries is the shared concurrency-safe, per-RowID series table
// every built-in timeline embeds, mirroring the mutex-guarded container
// shape of the teacher's capabilities/cache_lru.go and queue.StageQueue.
type keyedSeries[V any] struct {
	mu   sync.RWMutex
	data map[rowid.RowID]series[V]
}

func newKeyedSeries[V any]() *keyedSeries[V] {
	return &keyedSeries[V]{data: make(map[rowid.RowID]series[V])}
}

func (k *keyedSeries[V]) query(key rowid.RowID, at extendedtime.ExtendedTime) (V, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.data[key].effectiveAt(at)
}

func (k *keyedSeries[V]) insert(key rowid.RowID, t extendedtime.ExtendedTime, v V) ChangedRegion {
	k.mu.Lock()
	defer k.mu.Unlock()
	next, region := k.data[key].insert(key, t, v)
	k.data[key] = next
	return region
}

func (k *keyedSeries[V]) remove(key rowid.RowID, t extendedtime.ExtendedTime) (ChangedRegion, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	next, region, ok := k.data[key].remove(key, t)
	if !ok {
		return ChangedRegion{}, false
	}
	if len(next) == 0 {
		delete(k.data, key)
	} else {
		k.data[key] = next
	}
	return region, true
}

func (k *keyedSeries[V]) keys() []rowid.RowID {
	k.mu.RLock()
	defer k.mu.RUnlock()
	keys := make([]rowid.RowID, 0, len(k.data))
	for key := range k.data {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return rowid.Compare(keys[i], keys[j]) < 0 })
	return keys
}

func (k *keyedSeries[V]) earliest() (extendedtime.ExtendedTime, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	var earliest extendedtime.ExtendedTime
	found := false
	for _, s := range k.data {
		if len(s) == 0 {
			continue
		}
		if !found || extendedtime.Less(s[0].time, earliest) {
			earliest = s[0].time
			found = true
		}
	}
	return earliest, found
}

// discardBefore drops, for each key, every point older than the latest
// point at or before horizon; that one point is kept, and keys with at
// most one such point are left alone. Before cutting a key it asks
// liveBelow, and refuses (returning the offending key) if liveBelow
// reports that a live accessor still depends on that key's history.
func (k *keyedSeries[V]) discardBefore(horizon extendedtime.ExtendedTime, liveBelow func(rowid.RowID) bool) (rowid.RowID, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for key, s := range k.data {
		cut := s.search(horizon)
		if cut <= 1 {
			continue
		}
		if liveBelow != nil && liveBelow(key) {
			return key, true
		}
		// Keep one point at-or-before horizon so effectiveAt(horizon)
		// still answers correctly after the cut.
		kept := make(series[V], len(s)-(cut-1))
		copy(kept, s[cut-1:])
		k.data[key] = kept
	}
	return rowid.RowID{}, false
}
