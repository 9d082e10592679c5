package grid

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrOutOfBounds  = errors.New("grid: position out of bounds")
	ErrDimsMismatch = errors.New("grid: dimensions mismatch")
)

type OutOfBoundsError struct {
	Pos     Vec3i
	W, H, D int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("grid: %s outside %dx%dx%d", e.Pos, e.W, e.H, e.D)
}

func (e *OutOfBoundsError) Unwrap() error { return ErrOutOfBounds }

// Grid is the fixed-size cell store of one level.
//
// Static kinds live in one layer; box occupancy lives in a second layer that
// the turn scheduler rebuilds from entity positions, so a box resting inside
// a Goal or SwitchPlate cell never erases it.
type Grid struct {
	w, h, d int

	static []CellKind
	boxes  []bool
	arrows map[Vec3i]Dir

	switchOpen bool
}

func New(w, h, d int) (*Grid, error) {
	if w <= 0 || h <= 0 || d <= 0 {
		return nil, fmt.Errorf("grid: invalid dimensions %dx%dx%d", w, h, d)
	}
	n := w * h * d
	return &Grid{
		w:      w,
		h:      h,
		d:      d,
		static: make([]CellKind, n),
		boxes:  make([]bool, n),
		arrows: map[Vec3i]Dir{},
	}, nil
}

// Dims returns (columns, layers, rows).
func (g *Grid) Dims() (w, h, d int) { return g.w, g.h, g.d }

func (g *Grid) index(p Vec3i) int {
	return p.X + p.Z*g.w + p.Y*g.w*g.d
}

func (g *Grid) InBounds(p Vec3i) bool {
	return p.X >= 0 && p.X < g.w &&
		p.Y >= 0 && p.Y < g.h &&
		p.Z >= 0 && p.Z < g.d
}

func (g *Grid) oob(p Vec3i) error {
	return &OutOfBoundsError{Pos: p, W: g.w, H: g.h, D: g.d}
}

// CellAt reports Box for an occupied cell and the static kind otherwise.
func (g *Grid) CellAt(p Vec3i) (CellKind, error) {
	if !g.InBounds(p) {
		return Empty, g.oob(p)
	}
	i := g.index(p)
	if g.boxes[i] {
		return Box, nil
	}
	return g.static[i], nil
}

// Static ignores box occupancy.
func (g *Grid) Static(p Vec3i) (CellKind, error) {
	if !g.InBounds(p) {
		return Empty, g.oob(p)
	}
	return g.static[g.index(p)], nil
}

// SetCell overwrites p. Box marks occupancy; any other kind replaces the
// static layer and clears occupancy.
func (g *Grid) SetCell(p Vec3i, k CellKind) error {
	if !g.InBounds(p) {
		return g.oob(p)
	}
	if !k.Valid() {
		return fmt.Errorf("grid: invalid kind %d at %s", k, p)
	}
	i := g.index(p)
	if k == Box {
		g.boxes[i] = true
		return nil
	}
	g.static[i] = k
	g.boxes[i] = false
	return nil
}

// SetOccupied marks or clears box occupancy without touching the static layer.
func (g *Grid) SetOccupied(p Vec3i, occupied bool) error {
	if !g.InBounds(p) {
		return g.oob(p)
	}
	g.boxes[g.index(p)] = occupied
	return nil
}

// ClearOccupancy drops all Box bookkeeping.
func (g *Grid) ClearOccupancy() {
	for i := range g.boxes {
		g.boxes[i] = false
	}
}

func (g *Grid) SetArrow(p Vec3i, d Dir) error {
	if !g.InBounds(p) {
		return g.oob(p)
	}
	if d == DirNone {
		delete(g.arrows, p)
		return nil
	}
	g.arrows[p] = d
	return nil
}

// Arrow returns the redirect tile at p, if any.
func (g *Grid) Arrow(p Vec3i) (Dir, bool) {
	d, ok := g.arrows[p]
	return d, ok
}

// SwitchOpen reports whether OnOffSwitch cells are currently passable.
func (g *Grid) SwitchOpen() bool       { return g.switchOpen }
func (g *Grid) SetSwitchOpen(open bool) { g.switchOpen = open }

// Positions lists every cell holding k, in layer/row/column order. Static
// kinds are matched on the static layer, so a box parked on a teleport does
// not hide it.
func (g *Grid) Positions(k CellKind) []Vec3i {
	var out []Vec3i
	for i := range g.static {
		hit := g.static[i] == k
		if k == Box {
			hit = g.boxes[i]
		}
		if !hit {
			continue
		}
		x := i % g.w
		z := (i / g.w) % g.d
		y := i / (g.w * g.d)
		out = append(out, Vec3i{X: x, Y: y, Z: z})
	}
	return out
}

func (g *Grid) Count(k CellKind) int { return len(g.Positions(k)) }

// FindOtherOfKind returns the first cell of kind k that is not excluding.
// Teleport pairs rely on load-time validation that exactly two exist.
func (g *Grid) FindOtherOfKind(k CellKind, excluding Vec3i) (Vec3i, bool) {
	for _, p := range g.Positions(k) {
		if p != excluding {
			return p, true
		}
	}
	return Vec3i{}, false
}

// TopmostOccupiedLayer returns the highest non-empty layer of column (x, z),
// or 0 when the column is empty or out of bounds.
func (g *Grid) TopmostOccupiedLayer(x, z int) int {
	for y := g.h - 1; y >= 0; y-- {
		p := Vec3i{X: x, Y: y, Z: z}
		if !g.InBounds(p) {
			return 0
		}
		if c, _ := g.CellAt(p); c != Empty {
			return y
		}
	}
	return 0
}

// Snapshot is an immutable copy of the mutable grid state. Arrows are fixed
// at load time and are not part of it.
type Snapshot struct {
	W, H, D    int
	Static     []CellKind
	Boxes      []bool
	SwitchOpen bool
}

func (g *Grid) Snapshot() Snapshot {
	s := Snapshot{
		W:          g.w,
		H:          g.h,
		D:          g.d,
		Static:     make([]CellKind, len(g.static)),
		Boxes:      make([]bool, len(g.boxes)),
		SwitchOpen: g.switchOpen,
	}
	copy(s.Static, g.static)
	copy(s.Boxes, g.boxes)
	return s
}

func (g *Grid) Restore(s Snapshot) error {
	if s.W != g.w || s.H != g.h || s.D != g.d || len(s.Static) != len(g.static) || len(s.Boxes) != len(g.boxes) {
		return fmt.Errorf("%w: live %dx%dx%d, snapshot %dx%dx%d", ErrDimsMismatch, g.w, g.h, g.d, s.W, s.H, s.D)
	}
	copy(g.static, s.Static)
	copy(g.boxes, s.Boxes)
	g.switchOpen = s.SwitchOpen
	return nil
}

// WriteDigest feeds a canonical encoding of s into h.
func (s Snapshot) WriteDigest(h io.Writer) {
	var tmp [8]byte
	for _, v := range []int{s.W, s.H, s.D} {
		binary.LittleEndian.PutUint64(tmp[:], uint64(v))
		h.Write(tmp[:])
	}
	buf := make([]byte, len(s.Static))
	for i, k := range s.Static {
		buf[i] = byte(k)
		if s.Boxes[i] {
			buf[i] |= 0x80
		}
	}
	h.Write(buf)
	if s.SwitchOpen {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}

func (g *Grid) Digest() [32]byte {
	h := sha256.New()
	g.Snapshot().WriteDigest(h)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
