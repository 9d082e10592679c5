package undo

import (
	"errors"
	"testing"

	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/movement"
)

func v(x, y, z int) grid.Vec3i { return grid.Vec3i{X: x, Y: y, Z: z} }

// fixture: a 5x3x5 room with a fragile tile, a box, a teleport pair and a
// pit, so single moves exercise every outcome kind.
func fixture(t *testing.T) (*grid.Grid, *entity.Registry, entity.ID) {
	t.Helper()
	g, err := grid.New(5, 3, 5)
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}
	for x := 0; x < 5; x++ {
		for z := 0; z < 5; z++ {
			_ = g.SetCell(v(x, 0, z), grid.Wall)
		}
	}
	_ = g.SetCell(v(2, 0, 2), grid.Fragile)
	_ = g.SetCell(v(2, 0, 3), grid.Teleport)
	_ = g.SetCell(v(4, 0, 4), grid.Teleport)
	_ = g.SetCell(v(2, 0, 0), grid.Empty)
	reg := entity.NewRegistry()
	p := reg.Spawn(entity.Player, v(2, 1, 2))
	reg.Spawn(entity.Box, v(3, 1, 2))
	_ = g.SetOccupied(v(3, 1, 2), true)
	reg.Spawn(entity.Box, v(2, 1, 1))
	_ = g.SetOccupied(v(2, 1, 1), true)
	return g, reg, p
}

func TestUndo_RestoresDigestForEveryMove(t *testing.T) {
	for _, d := range grid.Dirs {
		g, reg, p := fixture(t)
		m := NewManager(g, reg, 0)
		r := movement.NewResolver(g, reg, movement.DefaultPolicy())

		flags := Flags{Turn: 3}
		before := m.Capture(flags).Digest()
		m.Snapshot(flags)
		o, _ := r.Move(p, d)
		if o.Kind == movement.Blocked {
			t.Fatalf("dir %v: fixture move unexpectedly blocked (%s)", d, o.Reason)
		}
		if m.Capture(flags).Digest() == before {
			t.Fatalf("dir %v: move left the state unchanged", d)
		}
		got, ok := m.Undo()
		if !ok {
			t.Fatalf("dir %v: Undo returned false", d)
		}
		if got != flags {
			t.Fatalf("dir %v: flags got %+v want %+v", d, got, flags)
		}
		if after := m.Capture(flags).Digest(); after != before {
			t.Fatalf("dir %v: digest mismatch after undo", d)
		}
	}
}

func TestUndo_EmptyStack(t *testing.T) {
	g, reg, _ := fixture(t)
	m := NewManager(g, reg, 0)
	if _, ok := m.Undo(); ok {
		t.Fatalf("Undo on empty stack returned true")
	}
	if _, err := m.Pop(); !errors.Is(err, ErrStackEmpty) {
		t.Fatalf("Pop: got %v want ErrStackEmpty", err)
	}
}

func TestUndo_LimitDropsOldest(t *testing.T) {
	g, reg, _ := fixture(t)
	m := NewManager(g, reg, 2)
	for i := uint64(1); i <= 4; i++ {
		m.Snapshot(Flags{Turn: i})
	}
	if m.Len() != 2 {
		t.Fatalf("Len: got %d want 2", m.Len())
	}
	h := m.History()
	if h[0].Flags.Turn != 3 || h[1].Flags.Turn != 4 {
		t.Fatalf("history: got %d,%d want 3,4", h[0].Flags.Turn, h[1].Flags.Turn)
	}
	m.Clear()
	if m.Len() != 0 {
		t.Fatalf("Clear left %d", m.Len())
	}
}

func TestUndo_DimsMismatchPanics(t *testing.T) {
	g, reg, _ := fixture(t)
	m := NewManager(g, reg, 0)
	other, _ := grid.New(2, 2, 2)
	m.Push(Snapshot{Grid: other.Snapshot()})

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	m.Undo()
}
