package grid

import (
	"fmt"
	"strings"
)

// Vec3i addresses a cell as (column, height, row).
type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

// Up is the cell one layer above v.
func (v Vec3i) Up() Vec3i { return Vec3i{X: v.X, Y: v.Y + 1, Z: v.Z} }

// Down is the support cell of v.
func (v Vec3i) Down() Vec3i { return Vec3i{X: v.X, Y: v.Y - 1, Z: v.Z} }

func (v Vec3i) Array() [3]int { return [3]int{v.X, v.Y, v.Z} }

func (v Vec3i) String() string { return fmt.Sprintf("(%d,%d,%d)", v.X, v.Y, v.Z) }

func FromArray(a [3]int) Vec3i { return Vec3i{X: a[0], Y: a[1], Z: a[2]} }

// Dir is one of the four horizontal directions. Vertical movement is never
// requested directly.
type Dir uint8

const (
	DirNone Dir = iota
	North       // +Z
	East        // +X
	South       // -Z
	West        // -X
)

// Dirs lists the cardinal directions in a fixed order.
var Dirs = [4]Dir{North, East, South, West}

func (d Dir) Delta() Vec3i {
	switch d {
	case North:
		return Vec3i{Z: 1}
	case East:
		return Vec3i{X: 1}
	case South:
		return Vec3i{Z: -1}
	case West:
		return Vec3i{X: -1}
	default:
		return Vec3i{}
	}
}

func (d Dir) Reverse() Dir {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	default:
		return DirNone
	}
}

// Clockwise turns d a quarter to the right seen from above: R, D, L, U.
func (d Dir) Clockwise() Dir {
	switch d {
	case East:
		return South
	case South:
		return West
	case West:
		return North
	case North:
		return East
	default:
		return DirNone
	}
}

// Code is the level-data letter for d: U, D, R or L.
func (d Dir) Code() byte {
	switch d {
	case North:
		return 'U'
	case South:
		return 'D'
	case East:
		return 'R'
	case West:
		return 'L'
	default:
		return 0
	}
}

func (d Dir) String() string {
	switch d {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	default:
		return "-"
	}
}

// ParseDirCode maps U/D/R/L to a direction.
func ParseDirCode(c byte) (Dir, bool) {
	switch c {
	case 'U':
		return North, true
	case 'D':
		return South, true
	case 'R':
		return East, true
	case 'L':
		return West, true
	default:
		return DirNone, false
	}
}

// ParseDir accepts either a level-data code or a compass name, in any case.
func ParseDir(s string) (Dir, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "U", "N", "NORTH", "UP":
		return North, true
	case "D", "S", "SOUTH", "DOWN":
		return South, true
	case "R", "E", "EAST", "RIGHT":
		return East, true
	case "L", "W", "WEST", "LEFT":
		return West, true
	default:
		return DirNone, false
	}
}
