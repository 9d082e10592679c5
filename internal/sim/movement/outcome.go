package movement

import (
	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
)

type Kind uint8

const (
	Blocked Kind = iota
	Moved
	Pushed
	Teleported
	Fell
)

func (k Kind) String() string {
	switch k {
	case Blocked:
		return "BLOCKED"
	case Moved:
		return "MOVED"
	case Pushed:
		return "PUSHED"
	case Teleported:
		return "TELEPORTED"
	case Fell:
		return "FELL"
	default:
		return "UNKNOWN"
	}
}

func ParseKind(s string) (Kind, bool) {
	for k := Blocked; k <= Fell; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return Blocked, false
}

// Reason explains a Blocked outcome.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonNoEntity   Reason = "no_entity"
	ReasonNotActor   Reason = "not_actor"
	ReasonNoDir      Reason = "no_direction"
	ReasonBounds     Reason = "out_of_bounds"
	ReasonSolid      Reason = "solid"
	ReasonOccupied   Reason = "occupied"
	ReasonBoxStuck   Reason = "box_stuck"
	ReasonLedge      Reason = "ledge"
	ReasonNoFoothold Reason = "no_foothold"
	ReasonReserved   Reason = "reserved"
)

// BoxMove is the pushed box's part of a move.
type BoxMove struct {
	ID   entity.ID
	From grid.Vec3i
	To   grid.Vec3i
	Kind Kind
}

// Outcome is a planned move. Plan fills it in and reserves its cells;
// Commit applies it.
type Outcome struct {
	Entity entity.ID
	Actor  entity.Kind
	Kind   Kind
	Dir    grid.Dir
	From   grid.Vec3i
	To     grid.Vec3i
	Box    *BoxMove

	// Reversed is set when an autonomous actor turned around.
	Reversed bool
	Reason   Reason
	// Err is ErrReservationConflict-wrapping when a reservation was lost.
	Err error
}

func (o Outcome) Moved() bool { return o.Kind != Blocked }

// Burn records an entity removed by lava.
type Burn struct {
	ID   entity.ID
	Kind entity.Kind
	Pos  grid.Vec3i
}

// Effects are the grid-level consequences of committed moves.
type Effects struct {
	Fragile     []grid.Vec3i
	GoalReached bool
	Burned      []Burn
}

func (e *Effects) Merge(o Effects) {
	e.Fragile = append(e.Fragile, o.Fragile...)
	e.Burned = append(e.Burned, o.Burned...)
	e.GoalReached = e.GoalReached || o.GoalReached
}

// PlayerBurned reports whether any burned entity was a player.
func (e Effects) PlayerBurned() bool {
	for _, b := range e.Burned {
		if b.Kind == entity.Player {
			return true
		}
	}
	return false
}
