// Package extendedtime defines the single total order the scheduler uses
// to sequence every event, predictor re-run, and invalidation in the
// engine.
package extendedtime

import (
	"fmt"

	"github.com/example/timesteward/rowid"
)

// Time is the base (wall-of-the-simulation) clock. It is a signed integer;
// the core never does arithmetic on it beyond comparison.
type Time int64

// Iteration breaks causal cycles among events that share the same Base.
// It is owned exclusively by the driver (see driver.Driver); user code
// must always construct an ExtendedTime with Iteration == 0.
type Iteration uint32

// ExtendedTime is the triple (Base, Iteration, ID). Lexicographic order on
// this triple is the one total order the scheduler uses: "same instant"
// ties are broken by ID, and causal cycles at one Base are broken by
// incrementing Iteration.
type ExtendedTime struct {
	Base      Time
	Iteration Iteration
	ID        rowid.RowID
}

// New constructs a user-facing ExtendedTime at Iteration 0. Only the
// driver is permitted to produce an ExtendedTime with a nonzero
// Iteration.
func New(base Time, id rowid.RowID) ExtendedTime {
	return ExtendedTime{Base: base, Iteration: 0, ID: id}
}

// NextIteration returns prev promoted to prev.Iteration+1 with newID as
// its id.
func NextIteration(prev ExtendedTime, newID rowid.RowID) ExtendedTime {
	return ExtendedTime{Base: prev.Base, Iteration: prev.Iteration + 1, ID: newID}
}

// Compare returns -1, 0, or 1 as a orders before, equal to, or after b,
// comparing Base, then Iteration, then ID.
func Compare(a, b ExtendedTime) int {
	if a.Base != b.Base {
		if a.Base < b.Base {
			return -1
		}
		return 1
	}
	if a.Iteration != b.Iteration {
		if a.Iteration < b.Iteration {
			return -1
		}
		return 1
	}
	return rowid.Compare(a.ID, b.ID)
}

// Less reports whether a orders strictly before b.
func Less(a, b ExtendedTime) bool {
	return Compare(a, b) < 0
}

// Equal reports whether a and b are the same point in the total order.
func Equal(a, b ExtendedTime) bool {
	return Compare(a, b) == 0
}

func (t ExtendedTime) String() string {
	return fmt.Sprintf("(%d, %d, %s)", t.Base, t.Iteration, t.ID)
}

// Min returns the ExtendedTime with Base == base that sorts before every
// other ExtendedTime with the same Base: used as a sentinel lower bound
// when scanning the dependency graph or the event queue.
func Min(base Time) ExtendedTime {
	return ExtendedTime{Base: base, Iteration: 0, ID: rowid.Zero}
}

// Max returns a sentinel ExtendedTime with Base == base that sorts after
// every ordinary ExtendedTime with the same Base.
func Max(base Time) ExtendedTime {
	return ExtendedTime{Base: base, Iteration: ^Iteration(0), ID: rowid.Max}
}
