package stage

import (
	"time"

	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/movement"
)

// LevelInfo describes a freshly loaded or restarted level.
type LevelInfo struct {
	ID      string
	W, H, D int
	Trigger Trigger
	Tick    time.Duration
	Policy  movement.Policy
	Units   grid.Units
	Restart bool
}

// Observer receives presentation callbacks. Calls arrive on the goroutine
// that drives the stage, while the turn is still reconciling; an observer
// that calls back into Step gets ErrTurnInProgress. Implementations must not
// block.
type Observer interface {
	OnMoveCommitted(id entity.ID, from, to grid.Vec3i, kind movement.Kind)
	OnFragileDestroyed(pos grid.Vec3i)
	OnGoalReached()
	OnUndoApplied()
	OnLevelLoaded(info LevelInfo)
	// OnRecord gets every turn, undo, restart and load record in order.
	OnRecord(r Record)
}

// NopObserver can be embedded to implement only some callbacks.
type NopObserver struct{}

func (NopObserver) OnMoveCommitted(entity.ID, grid.Vec3i, grid.Vec3i, movement.Kind) {}
func (NopObserver) OnFragileDestroyed(grid.Vec3i)                                   {}
func (NopObserver) OnGoalReached()                                                  {}
func (NopObserver) OnUndoApplied()                                                  {}
func (NopObserver) OnLevelLoaded(LevelInfo)                                         {}
func (NopObserver) OnRecord(Record)                                                 {}

// Observers fans every callback out in order. Nil entries are skipped.
type Observers []Observer

func (fan Observers) OnMoveCommitted(id entity.ID, from, to grid.Vec3i, kind movement.Kind) {
	for _, o := range fan {
		if o != nil {
			o.OnMoveCommitted(id, from, to, kind)
		}
	}
}

func (fan Observers) OnFragileDestroyed(pos grid.Vec3i) {
	for _, o := range fan {
		if o != nil {
			o.OnFragileDestroyed(pos)
		}
	}
}

func (fan Observers) OnGoalReached() {
	for _, o := range fan {
		if o != nil {
			o.OnGoalReached()
		}
	}
}

func (fan Observers) OnUndoApplied() {
	for _, o := range fan {
		if o != nil {
			o.OnUndoApplied()
		}
	}
}

func (fan Observers) OnLevelLoaded(info LevelInfo) {
	for _, o := range fan {
		if o != nil {
			o.OnLevelLoaded(info)
		}
	}
}

func (fan Observers) OnRecord(r Record) {
	for _, o := range fan {
		if o != nil {
			o.OnRecord(r)
		}
	}
}
