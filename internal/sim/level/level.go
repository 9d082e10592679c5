// Package level reads authored level layouts and level-pack manifests.
//
// A layout is one block of comma-separated rows per grid layer, blocks
// separated by blank lines, bottom layer first. The first row of a block is
// the far edge (highest Z). Lines starting with '!' are directives; the only
// one is "!pool", which lists the gimmicks a player may place on drop-zone
// (Z) cells before the level starts.
package level

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
)

var ErrInvalidLevelData = errors.New("level: invalid level data")

// InvalidLevelDataError locates a malformed layout. Layer, Row and Col are
// -1 when the problem is not tied to one cell.
type InvalidLevelDataError struct {
	Level  string
	Layer  int
	Row    int
	Col    int
	Reason string
}

func (e *InvalidLevelDataError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "level %q", e.Level)
	if e.Layer >= 0 {
		fmt.Fprintf(&b, " layer %d", e.Layer)
	}
	if e.Row >= 0 {
		fmt.Fprintf(&b, " row %d", e.Row)
	}
	if e.Col >= 0 {
		fmt.Fprintf(&b, " col %d", e.Col)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func (e *InvalidLevelDataError) Unwrap() error { return ErrInvalidLevelData }

type Spawn struct {
	Kind   entity.Kind
	Pos    grid.Vec3i
	Facing grid.Dir
}

type GimmickKind uint8

const (
	GimmickArrow GimmickKind = iota + 1
	GimmickBlock
)

func (k GimmickKind) String() string {
	switch k {
	case GimmickArrow:
		return "ARROW"
	case GimmickBlock:
		return "BLOCK"
	default:
		return "UNKNOWN"
	}
}

// Gimmick is one placeable piece of the setup pool. Dir is set for arrows.
type Gimmick struct {
	Kind GimmickKind
	Dir  grid.Dir
}

// Code is the pool code: U, D, L, R for arrows, B for a block.
func (g Gimmick) Code() string {
	if g.Kind == GimmickBlock {
		return "B"
	}
	return string(g.Dir.Code())
}

func ParseGimmick(code string) (Gimmick, error) {
	if len(code) != 1 {
		return Gimmick{}, fmt.Errorf("bad gimmick %q", code)
	}
	if code[0] == 'B' {
		return Gimmick{Kind: GimmickBlock}, nil
	}
	d, ok := grid.ParseDirCode(code[0])
	if !ok {
		return Gimmick{}, fmt.Errorf("bad gimmick %q", code)
	}
	return Gimmick{Kind: GimmickArrow, Dir: d}, nil
}

// Level is a parsed layout. Cells uses the grid's static-layer indexing.
type Level struct {
	ID      string
	W, H, D int
	Cells   []grid.CellKind
	Arrows  map[grid.Vec3i]grid.Dir
	Spawns  []Spawn

	// Zones are the drop-zone cells in layer/row/column order, Pool the
	// gimmicks that may be placed on them.
	Zones []grid.Vec3i
	Pool  []Gimmick
}

// HasSetup reports whether the level opens with a placement phase.
func (l *Level) HasSetup() bool { return len(l.Zones) > 0 }

func (l *Level) IsZone(p grid.Vec3i) bool {
	for _, z := range l.Zones {
		if z == p {
			return true
		}
	}
	return false
}

func (l *Level) index(p grid.Vec3i) int { return p.X + p.Z*l.W + p.Y*l.W*l.D }

// At returns the static kind at p.
func (l *Level) At(p grid.Vec3i) grid.CellKind { return l.Cells[l.index(p)] }

// NewGrid builds a fresh grid with box occupancy marked for box spawns.
func (l *Level) NewGrid() (*grid.Grid, error) {
	g, err := grid.New(l.W, l.H, l.D)
	if err != nil {
		return nil, err
	}
	for y := 0; y < l.H; y++ {
		for z := 0; z < l.D; z++ {
			for x := 0; x < l.W; x++ {
				p := grid.Vec3i{X: x, Y: y, Z: z}
				if err := g.SetCell(p, l.At(p)); err != nil {
					return nil, err
				}
			}
		}
	}
	for p, d := range l.Arrows {
		if err := g.SetArrow(p, d); err != nil {
			return nil, err
		}
	}
	for _, s := range l.Spawns {
		if s.Kind == entity.Box {
			if err := g.SetOccupied(s.Pos, true); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// Populate spawns every entity into reg in layout order, so ids are stable
// across reloads.
func (l *Level) Populate(reg *entity.Registry) {
	for _, s := range l.Spawns {
		reg.SpawnFacing(s.Kind, s.Pos, s.Facing)
	}
}

func ParseFile(path string) (*Level, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Parse(id, f)
}

func Parse(id string, r io.Reader) (*Level, error) {
	bad := func(layer, row, col int, format string, args ...any) error {
		return &InvalidLevelDataError{Level: id, Layer: layer, Row: row, Col: col, Reason: fmt.Sprintf(format, args...)}
	}
	layers, directives, err := readBlocks(r)
	if err != nil {
		return nil, bad(-1, -1, -1, "read: %v", err)
	}
	if len(layers) == 0 {
		return nil, bad(-1, -1, -1, "no layers")
	}

	h := len(layers)
	d := len(layers[0])
	w := len(splitRow(layers[0][0]))
	if w == 0 {
		return nil, bad(0, 0, -1, "empty row")
	}
	lv := &Level{
		ID:     id,
		W:      w,
		H:      h,
		D:      d,
		Cells:  make([]grid.CellKind, w*h*d),
		Arrows: map[grid.Vec3i]grid.Dir{},
	}

	teleports := 0
	actors := 0
	for y, rows := range layers {
		if len(rows) != d {
			return nil, bad(y, -1, -1, "has %d rows, want %d", len(rows), d)
		}
		for i, line := range rows {
			codes := splitRow(line)
			if len(codes) != w {
				return nil, bad(y, i, -1, "has %d cells, want %d", len(codes), w)
			}
			z := d - 1 - i
			for x, code := range codes {
				p := grid.Vec3i{X: x, Y: y, Z: z}
				c, err := parseCode(code)
				if err != nil {
					return nil, bad(y, i, x, "%v", err)
				}
				lv.Cells[lv.index(p)] = c.kind
				if c.arrow != grid.DirNone {
					lv.Arrows[p] = c.arrow
				}
				if c.spawn != 0 {
					lv.Spawns = append(lv.Spawns, Spawn{Kind: c.spawn, Pos: p, Facing: c.facing})
					if c.spawn.Actor() {
						actors++
					}
				}
				if c.kind == grid.Teleport {
					teleports++
				}
				if c.zone {
					lv.Zones = append(lv.Zones, p)
				}
			}
		}
	}
	if teleports != 0 && teleports != 2 {
		return nil, bad(-1, -1, -1, "found %d teleport cells, want 0 or 2", teleports)
	}
	if actors == 0 {
		return nil, bad(-1, -1, -1, "no player or robot")
	}
	for _, dir := range directives {
		name, args, _ := strings.Cut(dir, " ")
		switch name {
		case "pool":
			for _, code := range splitRow(args) {
				gm, err := ParseGimmick(code)
				if err != nil {
					return nil, bad(-1, -1, -1, "pool: %v", err)
				}
				lv.Pool = append(lv.Pool, gm)
			}
		default:
			return nil, bad(-1, -1, -1, "unknown directive %q", "!"+name)
		}
	}
	if len(lv.Pool) > 0 && len(lv.Zones) == 0 {
		return nil, bad(-1, -1, -1, "gimmick pool without drop zones")
	}
	return lv, nil
}

// readBlocks groups non-blank lines into layers and collects directives
// without their leading '!'.
func readBlocks(r io.Reader) (layers [][]string, directives []string, err error) {
	var cur []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "!") {
			directives = append(directives, strings.TrimSpace(line[1:]))
			continue
		}
		if line == "" {
			if len(cur) > 0 {
				layers = append(layers, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	if len(cur) > 0 {
		layers = append(layers, cur)
	}
	return layers, directives, nil
}

func splitRow(line string) []string {
	parts := strings.Split(strings.TrimSuffix(line, ","), ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

type cellCode struct {
	kind   grid.CellKind
	spawn  entity.Kind
	facing grid.Dir
	arrow  grid.Dir
	zone   bool
}

func parseCode(code string) (cellCode, error) {
	var c cellCode
	if code == "" || len(code) > 2 {
		return c, fmt.Errorf("bad cell code %q", code)
	}
	switch code[0] {
	case 'N', '.':
		c.kind = grid.Empty
	case 'B', 'S':
		c.kind = grid.Wall
	case 'G':
		c.kind = grid.Goal
	case 'M':
		c.spawn = entity.Box
	case 'P':
		c.spawn = entity.Player
	case 'K':
		c.spawn = entity.Robot
	case 'F':
		c.kind = grid.Fragile
	case 'X':
		c.kind = grid.Lava
	case 'A':
		c.kind = grid.Teleport
	case 'H':
		c.kind = grid.OnOffSwitch
	case 'T':
		c.kind = grid.SwitchPlate
	case 'Z':
		c.zone = true
	case 'U', 'D', 'L', 'R':
		c.arrow, _ = grid.ParseDirCode(code[0])
	default:
		return c, fmt.Errorf("unknown cell code %q", code)
	}
	if len(code) == 2 {
		if c.spawn != entity.Player && c.spawn != entity.Robot {
			return c, fmt.Errorf("facing suffix on non-directional code %q", code)
		}
		f, ok := grid.ParseDirCode(code[1])
		if !ok {
			return c, fmt.Errorf("bad facing in %q", code)
		}
		c.facing = f
	} else if c.spawn == entity.Robot {
		c.facing = grid.North
	}
	return c, nil
}

// Encode writes l back in layout form. Spawns are written on their cells;
// a spawn on a non-empty static cell cannot be expressed and is an error.
func (l *Level) Encode(w io.Writer) error {
	spawnAt := make(map[grid.Vec3i]Spawn, len(l.Spawns))
	for _, s := range l.Spawns {
		spawnAt[s.Pos] = s
	}
	bw := bufio.NewWriter(w)
	if len(l.Pool) > 0 {
		codes := make([]string, len(l.Pool))
		for i, gm := range l.Pool {
			codes[i] = gm.Code()
		}
		bw.WriteString("!pool " + strings.Join(codes, ",") + "\n")
	}
	for y := 0; y < l.H; y++ {
		if y > 0 {
			bw.WriteString("\n")
		}
		for z := l.D - 1; z >= 0; z-- {
			for x := 0; x < l.W; x++ {
				if x > 0 {
					bw.WriteString(",")
				}
				p := grid.Vec3i{X: x, Y: y, Z: z}
				code, err := l.codeAt(p, spawnAt)
				if err != nil {
					return err
				}
				bw.WriteString(code)
			}
			bw.WriteString("\n")
		}
	}
	return bw.Flush()
}

func (l *Level) codeAt(p grid.Vec3i, spawnAt map[grid.Vec3i]Spawn) (string, error) {
	k := l.At(p)
	if s, ok := spawnAt[p]; ok {
		if k != grid.Empty {
			return "", fmt.Errorf("level %q: spawn at %s on %s", l.ID, p, k)
		}
		switch s.Kind {
		case entity.Box:
			return "M", nil
		case entity.Player:
			if s.Facing != grid.DirNone {
				return "P" + string(s.Facing.Code()), nil
			}
			return "P", nil
		default:
			return "K" + string(s.Facing.Code()), nil
		}
	}
	if d, ok := l.Arrows[p]; ok {
		return string(d.Code()), nil
	}
	if k == grid.Empty && l.IsZone(p) {
		return "Z", nil
	}
	switch k {
	case grid.Wall:
		return "B", nil
	case grid.Goal:
		return "G", nil
	case grid.Fragile:
		return "F", nil
	case grid.Lava:
		return "X", nil
	case grid.Teleport:
		return "A", nil
	case grid.OnOffSwitch:
		return "H", nil
	case grid.SwitchPlate:
		return "T", nil
	default:
		return "N", nil
	}
}
