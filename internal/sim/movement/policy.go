package movement

import (
	"fmt"
	"strings"
)

type PortalMode uint8

const (
	// PortalFloor: standing on a teleport sends the entity to one layer
	// above the paired teleport.
	PortalFloor PortalMode = iota
	// PortalWalkIn: teleport cells are entered like empty space and send
	// the entity into the paired cell.
	PortalWalkIn
)

func (m PortalMode) String() string {
	if m == PortalWalkIn {
		return "walkin"
	}
	return "floor"
}

func ParsePortalMode(s string) (PortalMode, error) {
	switch strings.ToLower(s) {
	case "", "floor":
		return PortalFloor, nil
	case "walkin", "walk_in":
		return PortalWalkIn, nil
	default:
		return PortalFloor, fmt.Errorf("unknown portal mode %q", s)
	}
}

type Traversal uint8

const (
	Layered Traversal = iota
	// Column traversal moves onto the top of the neighbouring column and
	// never pushes.
	Column
)

func (t Traversal) String() string {
	if t == Column {
		return "column"
	}
	return "layered"
}

func ParseTraversal(s string) (Traversal, error) {
	switch strings.ToLower(s) {
	case "", "layered":
		return Layered, nil
	case "column":
		return Column, nil
	default:
		return Layered, fmt.Errorf("unknown traversal %q", s)
	}
}

// Policy holds the level-authoring rules that earlier revisions of the game
// disagreed on.
type Policy struct {
	GoalAirForBoxes   bool
	GoalAirForActors  bool
	Portal            PortalMode
	Traversal         Traversal
	RobotsAvoidLedges bool
}

func DefaultPolicy() Policy {
	return Policy{
		GoalAirForBoxes:   true,
		RobotsAvoidLedges: true,
	}
}
