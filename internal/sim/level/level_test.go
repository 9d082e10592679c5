package level

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
)

func v(x, y, z int) grid.Vec3i { return grid.Vec3i{X: x, Y: y, Z: z} }

func TestParse_LayersAndFlippedRows(t *testing.T) {
	lv, err := ParseFile(filepath.Join("testdata", "1-1.txt"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if lv.ID != "1-1" || lv.W != 5 || lv.H != 2 || lv.D != 3 {
		t.Fatalf("header: got id=%s %dx%dx%d", lv.ID, lv.W, lv.H, lv.D)
	}
	// First row of the block is the far edge.
	if k := lv.At(v(4, 1, 2)); k != grid.Goal {
		t.Fatalf("goal: got %v", k)
	}
	want := []Spawn{
		{Kind: entity.Player, Pos: v(1, 1, 1), Facing: grid.East},
		{Kind: entity.Box, Pos: v(2, 1, 1)},
	}
	if len(lv.Spawns) != len(want) {
		t.Fatalf("spawns: got %+v", lv.Spawns)
	}
	for i := range want {
		if lv.Spawns[i] != want[i] {
			t.Fatalf("spawn %d: got %+v want %+v", i, lv.Spawns[i], want[i])
		}
	}

	g, err := lv.NewGrid()
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	if k, _ := g.CellAt(v(2, 1, 1)); k != grid.Box {
		t.Fatalf("box occupancy: got %v", k)
	}
	if k, _ := g.Static(v(1, 1, 1)); k != grid.Empty {
		t.Fatalf("player cell: got %v", k)
	}
}

func TestParse_ArrowsAndTeleports(t *testing.T) {
	lv, err := ParseFile(filepath.Join("testdata", "1-2.txt"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if d := lv.Arrows[v(2, 1, 1)]; d != grid.East {
		t.Fatalf("arrow: got %v", d)
	}
	if lv.Spawns[0].Kind != entity.Robot || lv.Spawns[0].Facing != grid.East {
		t.Fatalf("robot: got %+v", lv.Spawns[0])
	}
	g, _ := lv.NewGrid()
	if n := g.Count(grid.Teleport); n != 2 {
		t.Fatalf("teleports: got %d", n)
	}
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"ragged row":      "P,N\nN\n",
		"ragged layer":    "P,N\nN,N\n\nN,N\n",
		"unknown code":    "P,Q\n",
		"facing on box":   "P,MR\n",
		"one teleport":    "P,A\n",
		"three teleports": "P,A,A,A\n",
		"no actor":        "M,N\n",
		"empty":           "\n\n",
		"overlong line":   strings.Repeat("N,", 40000) + "P\n",
		"pool no zones":   "!pool U\nP,N\n",
		"bad gimmick":     "!pool Q\nP,Z\n",
		"unknown !":       "!spawn K\nP,N\n",
	}
	for name, src := range cases {
		_, err := Parse(name, strings.NewReader(src))
		if !errors.Is(err, ErrInvalidLevelData) {
			t.Fatalf("%s: got %v want ErrInvalidLevelData", name, err)
		}
		var ide *InvalidLevelDataError
		if !errors.As(err, &ide) || ide.Level != name {
			t.Fatalf("%s: missing detail: %v", name, err)
		}
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	lv, err := ParseFile(filepath.Join("testdata", "1-2.txt"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	var buf bytes.Buffer
	if err := lv.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	again, err := Parse(lv.ID, &buf)
	if err != nil {
		t.Fatalf("re-Parse: %v\n%s", err, buf.String())
	}
	g1, _ := lv.NewGrid()
	g2, _ := again.NewGrid()
	if g1.Digest() != g2.Digest() {
		t.Fatalf("grid digest changed across encode")
	}
	if len(again.Spawns) != len(lv.Spawns) || again.Spawns[0] != lv.Spawns[0] {
		t.Fatalf("spawns changed: %+v", again.Spawns)
	}
}

func TestParse_SetupPool(t *testing.T) {
	src := "!pool U,B\nB,B,B\n\nP,Z,Z\n"
	lv, err := Parse("setup", strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !lv.HasSetup() || len(lv.Zones) != 2 || lv.Zones[0] != v(1, 1, 0) || lv.Zones[1] != v(2, 1, 0) {
		t.Fatalf("zones: got %v", lv.Zones)
	}
	want := []Gimmick{{Kind: GimmickArrow, Dir: grid.North}, {Kind: GimmickBlock}}
	if len(lv.Pool) != 2 || lv.Pool[0] != want[0] || lv.Pool[1] != want[1] {
		t.Fatalf("pool: got %+v", lv.Pool)
	}
	if k := lv.At(v(1, 1, 0)); k != grid.Empty {
		t.Fatalf("zone cell: got %v", k)
	}

	var buf bytes.Buffer
	if err := lv.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	again, err := Parse("setup", &buf)
	if err != nil {
		t.Fatalf("re-Parse: %v\n%s", err, buf.String())
	}
	if len(again.Zones) != 2 || len(again.Pool) != 2 || again.Pool[1] != want[1] {
		t.Fatalf("setup lost across encode: %+v %+v", again.Zones, again.Pool)
	}
}

func TestManifestValidator_Concurrent(t *testing.T) {
	raw := []byte("name: x\nlevels:\n  - {id: a, file: a.txt}\n")
	errs := make(chan error, 8)
	for i := 0; i < cap(errs); i++ {
		go func() {
			_, err := ParseManifest(raw)
			errs <- err
		}()
	}
	for i := 0; i < cap(errs); i++ {
		if err := <-errs; err != nil {
			t.Fatalf("ParseManifest: %v", err)
		}
	}
}

func TestManifest_LoadAndValidate(t *testing.T) {
	m, err := LoadManifest(filepath.Join("testdata", "pack.yaml"))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Name != "starter" || len(m.Levels) != 2 {
		t.Fatalf("manifest: got %+v", m)
	}
	e, ok := m.Next("1-1")
	if !ok || e.ID != "1-2" || e.PortalMode != "walkin" || e.TickMs != 400 {
		t.Fatalf("Next: got %+v,%v", e, ok)
	}
	if _, ok := m.Next("1-2"); ok {
		t.Fatalf("Next past end")
	}
	lv, err := m.Load(e)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lv.ID != "1-2" {
		t.Fatalf("level id: got %s", lv.ID)
	}

	if _, err := LoadManifest(filepath.Join("testdata", "bad_manifest.yaml")); err == nil {
		t.Fatalf("expected schema violation for bad trigger")
	}
	if _, err := ParseManifest([]byte("name: x\nlevels: []\n")); err == nil {
		t.Fatalf("expected schema violation for empty levels")
	}
	if _, err := ParseManifest([]byte("name: x\nlevels:\n  - {id: a, file: a.txt}\n  - {id: a, file: b.txt}\n")); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
