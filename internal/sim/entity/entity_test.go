package entity

import (
	"testing"

	"voxelpush.ai/internal/sim/grid"
)

func TestRegistry_SpawnAndIndex(t *testing.T) {
	r := NewRegistry()
	a := r.Spawn(Player, grid.Vec3i{X: 1})
	b := r.SpawnFacing(Robot, grid.Vec3i{X: 2}, grid.East)
	if a != 1 || b != 2 {
		t.Fatalf("ids: got %d,%d want 1,2", a, b)
	}
	if id, ok := r.EntityAt(grid.Vec3i{X: 2}); !ok || id != b {
		t.Fatalf("EntityAt: got %d,%v", id, ok)
	}

	r.SetPosition(b, grid.Vec3i{X: 3})
	if _, ok := r.EntityAt(grid.Vec3i{X: 2}); ok {
		t.Fatalf("stale index entry at old position")
	}
	if id, ok := r.EntityAt(grid.Vec3i{X: 3}); !ok || id != b {
		t.Fatalf("EntityAt new: got %d,%v", id, ok)
	}
	if e, _ := r.Get(b); e.Facing != grid.East {
		t.Fatalf("facing: got %v", e.Facing)
	}

	r.Remove(a)
	if _, ok := r.PositionOf(a); ok {
		t.Fatalf("removed entity still present")
	}
	if _, ok := r.EntityAt(grid.Vec3i{X: 1}); ok {
		t.Fatalf("removed entity still indexed")
	}
	if r.Len() != 1 {
		t.Fatalf("Len: got %d want 1", r.Len())
	}
}

func TestRegistry_SwapDoesNotLoseIndex(t *testing.T) {
	r := NewRegistry()
	a := r.Spawn(Box, grid.Vec3i{X: 0})
	b := r.Spawn(Box, grid.Vec3i{X: 1})
	// a moves into b's cell before b moves out.
	r.SetPosition(a, grid.Vec3i{X: 1})
	r.SetPosition(b, grid.Vec3i{X: 2})
	if id, ok := r.EntityAt(grid.Vec3i{X: 1}); !ok || id != a {
		t.Fatalf("EntityAt(1): got %d,%v want %d", id, ok, a)
	}
	if id, ok := r.EntityAt(grid.Vec3i{X: 2}); !ok || id != b {
		t.Fatalf("EntityAt(2): got %d,%v want %d", id, ok, b)
	}
}

func TestRegistry_SortedAndRestore(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 5; i++ {
		r.Spawn(Box, grid.Vec3i{X: i})
	}
	st := r.State()
	r.Remove(3)
	r.SetPosition(1, grid.Vec3i{Z: 4})
	r.Spawn(Robot, grid.Vec3i{Y: 1})

	r.Restore(st)
	got := r.Sorted()
	if len(got) != 5 {
		t.Fatalf("len: got %d want 5", len(got))
	}
	for i, e := range got {
		if e.ID != ID(i+1) || e.Pos != (grid.Vec3i{X: i}) {
			t.Fatalf("entry %d: got %+v", i, e)
		}
	}
	if id := r.Spawn(Player, grid.Vec3i{}); id != 6 {
		t.Fatalf("next id after restore: got %d want 6", id)
	}
}
