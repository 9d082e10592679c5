package grid

import "math"

// Vec3f is a world-space position.
type Vec3f struct {
	X, Y, Z float64
}

// Units converts between world units and grid indices.
type Units struct {
	CellSize    float64 // horizontal
	LayerHeight float64 // vertical
}

var DefaultUnits = Units{CellSize: 2.0, LayerHeight: 2.0}

func (u Units) GridToWorld(p Vec3i) Vec3f {
	return Vec3f{
		X: float64(p.X) * u.CellSize,
		Y: float64(p.Y) * u.LayerHeight,
		Z: float64(p.Z) * u.CellSize,
	}
}

// WorldToGrid snaps to the nearest cell; any position within half a cell of
// an aligned one maps back to it.
func (u Units) WorldToGrid(w Vec3f) Vec3i {
	return Vec3i{
		X: int(math.Round(w.X / u.CellSize)),
		Y: int(math.Round(w.Y / u.LayerHeight)),
		Z: int(math.Round(w.Z / u.CellSize)),
	}
}

func (u Units) Valid() bool { return u.CellSize > 0 && u.LayerHeight > 0 }
