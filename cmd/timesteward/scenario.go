package main

import (
	"fmt"

	"github.com/example/timesteward/depgraph"
	"github.com/example/timesteward/engine"
	"github.com/example/timesteward/extendedtime"
	"github.com/example/timesteward/internal/tsconfig"
	"github.com/example/timesteward/internal/tslog"
	"github.com/example/timesteward/rowid"
	"github.com/example/timesteward/timeline"
	"github.com/example/timesteward/typeid"
)

// Column, event, and predictor TypeIDs for the two-wall-corner
// scenario (spec §8 scenario 1). Chosen arbitrarily by this program,
// the author of the registered types, per spec §9 "explicit
// registration."
const (
	columnBall     typeid.TypeID = 1
	eventBounce    typeid.TypeID = 2
	predictorWallX typeid.TypeID = 3
	predictorWallY typeid.TypeID = 4
)

// ballState is the one fixed-point motion record the scenario tracks:
// position, velocity, and the Time it became effective, so a predictor
// can extrapolate forward without ever touching a platform float (spec
// §9 "no platform floats... fixed-point or rational arithmetic").
type ballState struct {
	PosX, PosY int64
	VelX, VelY int64
	AsOf       extendedtime.Time
}

// bounceEvent flips the ball's velocity on one axis.
type bounceEvent struct {
	Axis byte // 'x' or 'y'
}

var ballID = rowid.Derive([]byte("two-wall-corner/ball"))

// wallCorner wires a fresh Engine for spec §8 scenario 1: a ball at
// (0,0) moving at (+1,+1) toward walls at x=10 and y=10.
func wallCorner(log *tslog.Logger) (*engine.Engine, error) {
	cfg := tsconfig.Default()
	cfg.IterationLimit = 64

	e, err := engine.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("scenario: new engine: %w", err)
	}

	ballTimeline := timeline.NewFieldMap[ballState](columnBall)
	if err := engine.RegisterTimeline[ballState](e, columnBall, "ball", ballTimeline); err != nil {
		return nil, fmt.Errorf("scenario: register ball timeline: %w", err)
	}

	bounce := engine.EventBody[bounceEvent](func(acc *depgraph.Accessor, mut *depgraph.Mutator, payload bounceEvent) {
		ball, ok := depgraph.Read[ballState](acc, ballTimeline, ballID, acc.ExecutedAt())
		if !ok {
			return
		}
		switch payload.Axis {
		case 'x':
			ball.VelX = -ball.VelX
		case 'y':
			ball.VelY = -ball.VelY
		}
		ball.AsOf = mut.At().Base
		depgraph.Write[ballState](mut, ballTimeline, ballID, ball)
	})
	if err := engine.RegisterEventType[bounceEvent](e, eventBounce, "bounce", bounce); err != nil {
		return nil, fmt.Errorf("scenario: register bounce event: %w", err)
	}

	if err := registerWallPredictor(e, ballTimeline, "wall-x", predictorWallX, 'x', 10); err != nil {
		return nil, err
	}
	if err := registerWallPredictor(e, ballTimeline, "wall-y", predictorWallY, 'y', 10); err != nil {
		return nil, err
	}

	initial := ballState{PosX: 0, PosY: 0, VelX: 1, VelY: 1, AsOf: 0}
	engine.SeedTimeline(e, ballTimeline, ballID, initial)

	return e, nil
}

func registerWallPredictor(e *engine.Engine, ballTimeline timeline.ValueTimeline[ballState], name string, predictorType typeid.TypeID, axis byte, wallCoord int64) error {
	fn := engine.PredictorFn[bounceEvent](func(acc *depgraph.Accessor, subject rowid.RowID) (extendedtime.ExtendedTime, typeid.TypeID, bounceEvent, bool) {
		ball, ok := depgraph.Read[ballState](acc, ballTimeline, subject, acc.ExecutedAt())
		if !ok {
			return extendedtime.ExtendedTime{}, 0, bounceEvent{}, false
		}
		var pos, vel int64
		if axis == 'x' {
			pos, vel = ball.PosX, ball.VelX
		} else {
			pos, vel = ball.PosY, ball.VelY
		}
		if vel == 0 {
			return extendedtime.ExtendedTime{}, 0, bounceEvent{}, false
		}
		remaining := (wallCoord - pos) / vel
		if remaining < 0 {
			return extendedtime.ExtendedTime{}, 0, bounceEvent{}, false
		}
		hitBase := ball.AsOf + extendedtime.Time(remaining)
		eventID := rowid.Derive([]byte(fmt.Sprintf("two-wall-corner/%c-wall-hit", axis)))
		return extendedtime.New(hitBase, eventID), eventBounce, bounceEvent{Axis: axis}, true
	})
	_, err := engine.RegisterPredictor[bounceEvent](e, predictorType, name, ballID, fn)
	return err
}
