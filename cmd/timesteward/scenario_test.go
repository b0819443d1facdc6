package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/internal/tslog"
)

// spec §8 scenario 1: a ball moving at (+1,+1) bounces off the x=10 and
// y=10 walls, each exactly once, settling at velocity (-1,-1).
func TestWallCornerSettlesToTheExpectedFinalVelocity(t *testing.T) {
	e, err := wallCorner(tslog.Default())
	require.NoError(t, err)

	_, err = e.AdvanceTo(context.Background(), extendedtime.Time(20), nil)
	require.NoError(t, err)

	h := e.Snapshot(extendedtime.Time(20))
	defer e.ReleaseSnapshot(h)

	value, ok := h.Query(columnBall, ballID)
	require.True(t, ok)
	ball := value.(ballState)
	require.EqualValues(t, -1, ball.VelX, "x-wall bounce should have flipped VelX")
	require.EqualValues(t, -1, ball.VelY, "y-wall bounce should have flipped VelY")
}
