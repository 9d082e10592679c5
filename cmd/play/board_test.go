package main

import (
	"testing"

	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/stagetest"
)

func TestBoard_TopDown(t *testing.T) {
	// Two rows deep: the player row is z=0 and renders at the bottom.
	h := stagetest.NewHarness(t, "view", "B,X,G\nB,B,B\n\nN,N,N\nP,N,N\n", stagetest.DefaultConfig())
	rows, err := board(h.S.View().State)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	if len(rows) != 2 || len(rows[0]) != 3 {
		t.Fatalf("dims: %d rows", len(rows))
	}
	bottom, top := rows[1], rows[0]
	if bottom[0].r != '@' || bottom[0].kind != "PLAYER" || bottom[0].layer != 1 {
		t.Fatalf("player column: %+v", bottom[0])
	}
	if bottom[1].r != '#' || bottom[1].layer != 0 {
		t.Fatalf("floor column: %+v", bottom[1])
	}
	if top[1].r != '%' || top[2].r != '*' {
		t.Fatalf("far row: %q %q", top[1].r, top[2].r)
	}
}

func TestBoard_RejectsBadCells(t *testing.T) {
	st := stagetest.NewHarness(t, "one", "B\n\nP\n", stagetest.DefaultConfig()).S.View().State
	st.Dims[0] = 5
	if _, err := board(st); err == nil {
		t.Fatalf("expected size error")
	}
}

func TestBoard_SetupOverlay(t *testing.T) {
	h := stagetest.NewHarness(t, "zones", "!pool R\nB,B,B\n\nP,Z,Z\n", stagetest.DefaultConfig())
	v := h.S.View()
	rows, err := board(v.State)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	overlaySetup(rows, v.Setup, 0)
	if rows[0][1].r != '+' || rows[0][2].r != ':' {
		t.Fatalf("zones: %q %q", rows[0][1].r, rows[0][2].r)
	}

	if _, err := h.S.Place(0, grid.Vec3i{X: 2, Y: 1, Z: 0}); err != nil {
		t.Fatalf("Place: %v", err)
	}
	v = h.S.View()
	rows, err = board(v.State)
	if err != nil {
		t.Fatalf("board: %v", err)
	}
	overlaySetup(rows, v.Setup, 1)
	if rows[0][2].r != '>' || rows[0][2].kind != "ARROW" {
		t.Fatalf("placed arrow: %+v", rows[0][2])
	}
}
