package grid

// CellKind is the closed set of things a cell can hold.
type CellKind uint8

const (
	Empty CellKind = iota
	Wall
	Goal
	Box
	Fragile
	Lava
	Teleport
	OnOffSwitch
	SwitchPlate

	numKinds
)

var kindNames = [numKinds]string{
	Empty:       "EMPTY",
	Wall:        "WALL",
	Goal:        "GOAL",
	Box:         "BOX",
	Fragile:     "FRAGILE",
	Lava:        "LAVA",
	Teleport:    "TELEPORT",
	OnOffSwitch: "ONOFF_SWITCH",
	SwitchPlate: "SWITCH_PLATE",
}

func (k CellKind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return "UNKNOWN"
}

func (k CellKind) Valid() bool { return k < numKinds }

// ParseKind is the inverse of String.
func ParseKind(s string) (CellKind, bool) {
	for i, n := range kindNames {
		if n == s {
			return CellKind(i), true
		}
	}
	return Empty, false
}
