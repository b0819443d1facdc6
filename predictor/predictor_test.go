package predictor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/timesteward/depgraph"
	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/typeid"
)

func TestRegisterIsIdempotentForTheSameTypeAndSubject(t *testing.T) {
	g := depgraph.New()
	table := New(g)
	subject := rowid.Derive([]byte("subject"))
	fn := func(acc *depgraph.Accessor, s rowid.RowID) Candidate { return Candidate{} }

	a := table.Register(typeid.TypeID(1), subject, fn)
	b := table.Register(typeid.TypeID(1), subject, fn)
	require.Same(t, a, b)
}

func TestRegisterMarksAFreshInstanceDirty(t *testing.T) {
	g := depgraph.New()
	table := New(g)
	subject := rowid.Derive([]byte("subject"))
	fn := func(acc *depgraph.Accessor, s rowid.RowID) Candidate { return Candidate{} }

	in := table.Register(typeid.TypeID(1), subject, fn)
	due := table.DueBy(extendedtime.New(100, rowid.Zero))
	require.Len(t, due, 1)
	require.Equal(t, in.Accessor, due[0].Accessor)
}

func TestInvokeRecordsLastResultOnlyWhenFound(t *testing.T) {
	g := depgraph.New()
	table := New(g)
	subject := rowid.Derive([]byte("subject"))
	want := extendedtime.New(50, rowid.Derive([]byte("event")))
	fn := func(acc *depgraph.Accessor, s rowid.RowID) Candidate {
		return Candidate{Time: want, TypeID: typeid.TypeID(9), Found: true}
	}

	in := table.Register(typeid.TypeID(1), subject, fn)
	acc := depgraph.NewAccessor(in.Accessor, extendedtime.New(0, rowid.Zero), g, nil)
	c := Invoke(in, acc)

	require.True(t, c.Found)
	last, ok := in.LastResult()
	require.True(t, ok)
	require.True(t, extendedtime.Equal(want, last))
}

func TestInvokeClearsLastResultWhenNotFound(t *testing.T) {
	g := depgraph.New()
	table := New(g)
	subject := rowid.Derive([]byte("subject"))
	fn := func(acc *depgraph.Accessor, s rowid.RowID) Candidate { return Candidate{Found: false} }

	in := table.Register(typeid.TypeID(1), subject, fn)
	acc := depgraph.NewAccessor(in.Accessor, extendedtime.New(0, rowid.Zero), g, nil)
	Invoke(in, acc)

	_, ok := in.LastResult()
	require.False(t, ok)
}

func TestMarkDirtyOnlyAffectsLiveInstances(t *testing.T) {
	g := depgraph.New()
	table := New(g)
	table.MarkDirty(depgraph.AccessorID(9999))
	require.False(t, table.AnyDirty(), "MarkDirty on an unknown accessor should be a no-op")
}

func TestDestroyRemovesTheInstanceFromEveryIndex(t *testing.T) {
	g := depgraph.New()
	table := New(g)
	subject := rowid.Derive([]byte("subject"))
	fn := func(acc *depgraph.Accessor, s rowid.RowID) Candidate { return Candidate{} }

	in := table.Register(typeid.TypeID(1), subject, fn)
	table.Destroy(in.Accessor)

	_, ok := table.Get(in.Accessor)
	require.False(t, ok)

	again := table.Register(typeid.TypeID(1), subject, fn)
	require.NotSame(t, in, again, "destroyed instance should not be returned by a fresh Register")
}

func TestDueByOnlyReturnsInstancesDueAtOrBeforeTheRequestedTime(t *testing.T) {
	g := depgraph.New()
	table := New(g)
	subject := rowid.Derive([]byte("subject"))
	predicted := extendedtime.New(100, rowid.Derive([]byte("event")))
	fn := func(acc *depgraph.Accessor, s rowid.RowID) Candidate {
		return Candidate{Time: predicted, TypeID: typeid.TypeID(9), Found: true}
	}

	in := table.Register(typeid.TypeID(1), subject, fn)
	table.DueBy(extendedtime.New(0, rowid.Zero))
	acc := depgraph.NewAccessor(in.Accessor, extendedtime.New(0, rowid.Zero), g, nil)
	Invoke(in, acc)
	require.False(t, table.AnyDirty(), "DueBy should have cleared the initial dirty flag")

	table.MarkDirty(in.Accessor)
	early := table.DueBy(extendedtime.New(50, rowid.Zero))
	require.Empty(t, early, "instance predicted for base 100 should not be due at base 50")

	table.MarkDirty(in.Accessor)
	late := table.DueBy(extendedtime.New(150, rowid.Zero))
	require.Len(t, late, 1)
}
