package main

import (
	"fmt"

	"voxelpush.ai/internal/persistence/snapshot"
	"voxelpush.ai/internal/sim/encoding"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/stage"
)

// glyph is one column of the level seen from above.
type glyph struct {
	r     rune
	kind  string
	layer int
}

var cellRunes = map[grid.CellKind]rune{
	grid.Wall:        '#',
	grid.Goal:        '*',
	grid.Box:         '$',
	grid.Fragile:     '~',
	grid.Lava:        '%',
	grid.Teleport:    'O',
	grid.OnOffSwitch: '|',
	grid.SwitchPlate: '_',
}

var entityRunes = map[string]rune{
	"PLAYER": '@',
	"BOX":    '$',
	"ROBOT":  'R',
}

// board flattens a state into rows of columns, north at the top. Each
// column shows its topmost entity, or else its topmost non-empty cell.
func board(st snapshot.StateV1) ([][]glyph, error) {
	w, h, d := st.Dims[0], st.Dims[1], st.Dims[2]
	cells, err := encoding.DecodeRLE(st.Cells, grid.SwitchPlate)
	if err != nil {
		return nil, fmt.Errorf("cells: %w", err)
	}
	if len(cells) != w*h*d {
		return nil, fmt.Errorf("cells: got %d want %d", len(cells), w*h*d)
	}

	rows := make([][]glyph, d)
	for z := 0; z < d; z++ {
		row := make([]glyph, w)
		for x := 0; x < w; x++ {
			g := glyph{r: ' ', layer: -1}
			for y := h - 1; y >= 0; y-- {
				k := cells[x+z*w+y*w*d]
				if k == grid.Empty {
					continue
				}
				g = glyph{r: cellRunes[k], kind: k.String(), layer: y}
				if k == grid.OnOffSwitch && st.SwitchOpen {
					g.r = '.'
				}
				break
			}
			row[x] = g
		}
		rows[d-1-z] = row
	}
	for _, e := range st.Entities {
		x, y, z := e.Pos[0], e.Pos[1], e.Pos[2]
		if x < 0 || x >= w || z < 0 || z >= d {
			continue
		}
		cur := &rows[d-1-z][x]
		if y < cur.layer {
			continue
		}
		r, ok := entityRunes[e.Kind]
		if !ok {
			r = '?'
		}
		*cur = glyph{r: r, kind: e.Kind, layer: y}
	}
	return rows, nil
}

var arrowRunes = map[string]rune{"U": '^', "R": '>', "D": 'v', "L": '<'}

// overlaySetup marks drop zones and placed arrows on rows built by board.
// Placed blocks are already walls. The zone at cursor is flagged.
func overlaySetup(rows [][]glyph, su *stage.SetupView, cursor int) {
	if su == nil {
		return
	}
	d := len(rows)
	at := func(p [3]int, y int) *glyph {
		x, z := p[0], p[2]
		if z < 0 || z >= d || x < 0 || x >= len(rows[d-1-z]) {
			return nil
		}
		g := &rows[d-1-z][x]
		if y < g.layer {
			return nil
		}
		return g
	}
	if !su.Started {
		for i, z := range su.Zones {
			g := at(z, z[1])
			if g == nil || g.layer == z[1] {
				continue
			}
			*g = glyph{r: ':', kind: "ZONE", layer: z[1]}
			if i == cursor {
				g.r = '+'
			}
		}
	}
	for _, gm := range su.Pool {
		r, ok := arrowRunes[gm.Dir]
		if !gm.Placed || gm.Kind != "ARROW" || !ok {
			continue
		}
		if g := at(gm.Pos, gm.Pos[1]); g != nil && (g.layer < gm.Pos[1] || g.kind == "ZONE") {
			*g = glyph{r: r, kind: "ARROW", layer: gm.Pos[1]}
		}
	}
}
