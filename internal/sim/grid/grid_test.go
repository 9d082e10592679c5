package grid

import (
	"errors"
	"testing"
)

func mustGrid(t *testing.T, w, h, d int) *Grid {
	t.Helper()
	g, err := New(w, h, d)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestUnits_RoundTrip(t *testing.T) {
	g := mustGrid(t, 4, 3, 5)
	for _, u := range []Units{DefaultUnits, {CellSize: 1, LayerHeight: 0.5}} {
		w, h, d := g.Dims()
		for y := 0; y < h; y++ {
			for z := 0; z < d; z++ {
				for x := 0; x < w; x++ {
					p := Vec3i{X: x, Y: y, Z: z}
					if got := u.WorldToGrid(u.GridToWorld(p)); got != p {
						t.Fatalf("round trip %v with %+v: got %v", p, u, got)
					}
					wp := u.GridToWorld(p)
					wp.X += u.CellSize * 0.49
					wp.Z -= u.CellSize * 0.49
					wp.Y += u.LayerHeight * 0.3
					if got := u.WorldToGrid(wp); got != p {
						t.Fatalf("jittered %v: got %v", p, got)
					}
				}
			}
		}
	}
}

func TestCellAt_OutOfBounds(t *testing.T) {
	g := mustGrid(t, 2, 2, 2)
	for _, p := range []Vec3i{{X: -1}, {X: 2}, {Y: 2}, {Z: -1}} {
		_, err := g.CellAt(p)
		if !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("CellAt(%v): got %v want ErrOutOfBounds", p, err)
		}
		var oob *OutOfBoundsError
		if !errors.As(err, &oob) || oob.Pos != p {
			t.Fatalf("CellAt(%v): expected *OutOfBoundsError carrying pos, got %v", p, err)
		}
		if err := g.SetCell(p, Wall); !errors.Is(err, ErrOutOfBounds) {
			t.Fatalf("SetCell(%v): got %v", p, err)
		}
	}
}

func TestSetCell_BoxKeepsStaticLayer(t *testing.T) {
	g := mustGrid(t, 3, 1, 1)
	p := Vec3i{X: 1}
	_ = g.SetCell(p, Goal)
	_ = g.SetCell(p, Box)
	if k, _ := g.CellAt(p); k != Box {
		t.Fatalf("CellAt: got %v want BOX", k)
	}
	if k, _ := g.Static(p); k != Goal {
		t.Fatalf("Static: got %v want GOAL", k)
	}
	g.ClearOccupancy()
	if k, _ := g.CellAt(p); k != Goal {
		t.Fatalf("after ClearOccupancy: got %v want GOAL", k)
	}
	_ = g.SetCell(p, Box)
	_ = g.SetCell(p, Empty)
	if k, _ := g.CellAt(p); k != Empty {
		t.Fatalf("overwrite: got %v want EMPTY", k)
	}
}

func TestFindOtherOfKind(t *testing.T) {
	g := mustGrid(t, 4, 2, 4)
	a := Vec3i{X: 0, Y: 0, Z: 1}
	b := Vec3i{X: 3, Y: 1, Z: 2}
	_ = g.SetCell(a, Teleport)
	_ = g.SetCell(b, Teleport)

	if got, ok := g.FindOtherOfKind(Teleport, a); !ok || got != b {
		t.Fatalf("from a: got %v,%v want %v", got, ok, b)
	}
	if got, ok := g.FindOtherOfKind(Teleport, b); !ok || got != a {
		t.Fatalf("from b: got %v,%v want %v", got, ok, a)
	}
	if _, ok := g.FindOtherOfKind(Lava, a); ok {
		t.Fatalf("expected no lava")
	}
	if n := g.Count(Teleport); n != 2 {
		t.Fatalf("Count: got %d want 2", n)
	}
}

func TestTopmostOccupiedLayer(t *testing.T) {
	g := mustGrid(t, 2, 4, 2)
	if got := g.TopmostOccupiedLayer(0, 0); got != 0 {
		t.Fatalf("empty column: got %d want 0", got)
	}
	_ = g.SetCell(Vec3i{X: 1, Y: 0, Z: 1}, Wall)
	_ = g.SetCell(Vec3i{X: 1, Y: 2, Z: 1}, Box)
	if got := g.TopmostOccupiedLayer(1, 1); got != 2 {
		t.Fatalf("got %d want 2", got)
	}
	if got := g.TopmostOccupiedLayer(5, 5); got != 0 {
		t.Fatalf("out of bounds column: got %d want 0", got)
	}
}

func TestSnapshotRestore_Digest(t *testing.T) {
	g := mustGrid(t, 3, 2, 3)
	_ = g.SetCell(Vec3i{X: 1}, Fragile)
	_ = g.SetCell(Vec3i{X: 2, Y: 1}, Box)
	before := g.Digest()
	snap := g.Snapshot()

	_ = g.SetCell(Vec3i{X: 1}, Empty)
	g.SetSwitchOpen(true)
	if g.Digest() == before {
		t.Fatalf("digest unchanged after mutation")
	}
	if err := g.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if g.Digest() != before {
		t.Fatalf("digest mismatch after restore")
	}

	other := mustGrid(t, 2, 2, 2)
	if err := other.Restore(snap); !errors.Is(err, ErrDimsMismatch) {
		t.Fatalf("Restore into other dims: got %v", err)
	}
}

func TestParseDir(t *testing.T) {
	cases := map[string]Dir{"U": North, "north": North, "R": East, "d": South, "WEST": West}
	for in, want := range cases {
		got, ok := ParseDir(in)
		if !ok || got != want {
			t.Fatalf("ParseDir(%q): got %v,%v want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseDir("sideways"); ok {
		t.Fatalf("expected error")
	}
	for _, d := range Dirs {
		if d.Reverse().Reverse() != d {
			t.Fatalf("reverse not involutive for %v", d)
		}
		if got := d.Delta().Add(d.Reverse().Delta()); got != (Vec3i{}) {
			t.Fatalf("delta+reverse != 0 for %v", d)
		}
		if d.Clockwise().Clockwise() != d.Reverse() {
			t.Fatalf("two quarter turns != reverse for %v", d)
		}
	}
	if East.Clockwise() != South || North.Clockwise() != East {
		t.Fatalf("clockwise order: R->%v U->%v", East.Clockwise(), North.Clockwise())
	}
}
