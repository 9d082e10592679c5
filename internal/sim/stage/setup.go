package stage

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/level"
)

// setupState is the placement phase of a level with drop zones. Pieces from
// the pool are put on zones, arrows are turned, and Start ends the phase.
// Levels without zones have no setup state and start at once.
type setupState struct {
	pool    []level.Gimmick
	placed  []placement // by pool slot
	started bool
}

type placement struct {
	ok  bool
	pos grid.Vec3i
	dir grid.Dir
}

func newSetup(lv *level.Level) *setupState {
	if !lv.HasSetup() {
		return nil
	}
	return &setupState{
		pool:   lv.Pool,
		placed: make([]placement, len(lv.Pool)),
	}
}

// at returns the slot placed on p.
func (su *setupState) at(p grid.Vec3i) (int, bool) {
	for i, pl := range su.placed {
		if pl.ok && pl.pos == p {
			return i, true
		}
	}
	return 0, false
}

// put moves slot onto p, facing dir for arrows. Callers validate first.
func (su *setupState) put(g *grid.Grid, slot int, p grid.Vec3i, dir grid.Dir) {
	su.lift(g, slot)
	su.placed[slot] = placement{ok: true, pos: p, dir: dir}
	if su.pool[slot].Kind == level.GimmickBlock {
		_ = g.SetCell(p, grid.Wall)
		return
	}
	_ = g.SetArrow(p, dir)
}

func (su *setupState) lift(g *grid.Grid, slot int) {
	pl := su.placed[slot]
	if !pl.ok {
		return
	}
	if su.pool[slot].Kind == level.GimmickBlock {
		_ = g.SetCell(pl.pos, grid.Empty)
	} else {
		_ = g.SetArrow(pl.pos, grid.DirNone)
	}
	su.placed[slot] = placement{}
}

// digest folds the placements into a state digest. Placed blocks are
// already in the grid; arrows and the started flag are not.
func (su *setupState) digest(base [32]byte) [32]byte {
	h := sha256.New()
	h.Write(base[:])
	h.Write([]byte{boolByte(su.started)})
	var tmp [8]byte
	for _, pl := range su.placed {
		h.Write([]byte{boolByte(pl.ok), byte(pl.dir)})
		for _, v := range []int{pl.pos.X, pl.pos.Y, pl.pos.Z} {
			binary.LittleEndian.PutUint64(tmp[:], uint64(int64(v)))
			h.Write(tmp[:])
		}
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// InSetup reports whether the level is still waiting for Start.
func (s *Stage) InSetup() bool { return s.setup != nil && !s.setup.started }

func (s *Stage) checkSetup() error {
	if s.lv == nil {
		return ErrNoLevel
	}
	if s.phase != Idle {
		return ErrTurnInProgress
	}
	if !s.InSetup() {
		return ErrNotInSetup
	}
	return nil
}

// checkPlace validates putting slot on p against lv and the current
// placements.
func checkPlace(lv *level.Level, su *setupState, slot int, p grid.Vec3i) error {
	if slot < 0 || slot >= len(su.pool) {
		return fmt.Errorf("%w: no pool slot %d", ErrBadPlacement, slot)
	}
	if !lv.IsZone(p) {
		return fmt.Errorf("%w: %s is not a drop zone", ErrBadPlacement, p)
	}
	if other, ok := su.at(p); ok && other != slot {
		return fmt.Errorf("%w: %s already holds slot %d", ErrBadPlacement, p, other)
	}
	return nil
}

// Place puts pool slot on drop zone p. A slot that is already placed moves
// and keeps its arrow direction.
func (s *Stage) Place(slot int, p grid.Vec3i) (Record, error) {
	if err := s.checkSetup(); err != nil {
		return Record{}, err
	}
	su := s.setup
	if err := checkPlace(s.lv, su, slot, p); err != nil {
		return Record{}, err
	}
	if _, ok := s.reg.EntityAt(p); ok {
		return Record{}, fmt.Errorf("%w: %s is occupied", ErrBadPlacement, p)
	}
	dir := su.pool[slot].Dir
	if su.placed[slot].ok {
		dir = su.placed[slot].dir
	}
	su.put(s.g, slot, p, dir)
	// A lifted block may leave something unsupported.
	s.reconcile()

	rec := s.record(RecordPlace)
	rec.Setup = setupRecord(slot, su.placed[slot])
	s.obs.OnRecord(rec)
	return rec, nil
}

// Rotate turns the arrow placed on p a quarter clockwise.
func (s *Stage) Rotate(p grid.Vec3i) (Record, error) {
	if err := s.checkSetup(); err != nil {
		return Record{}, err
	}
	su := s.setup
	slot, ok := su.at(p)
	if !ok {
		return Record{}, fmt.Errorf("%w: nothing placed at %s", ErrBadPlacement, p)
	}
	if su.pool[slot].Kind != level.GimmickArrow {
		return Record{}, fmt.Errorf("%w: slot %d is not an arrow", ErrBadPlacement, slot)
	}
	su.put(s.g, slot, p, su.placed[slot].dir.Clockwise())

	rec := s.record(RecordRotate)
	rec.Setup = setupRecord(slot, su.placed[slot])
	s.obs.OnRecord(rec)
	return rec, nil
}

// Start ends the setup phase. Placements are fixed from here on.
func (s *Stage) Start() (Record, error) {
	if err := s.checkSetup(); err != nil {
		return Record{}, err
	}
	s.setup.started = true
	rec := s.record(RecordStart)
	s.obs.OnRecord(rec)
	return rec, nil
}

func setupRecord(slot int, pl placement) *SetupRecord {
	r := &SetupRecord{Slot: slot, Pos: pl.pos.Array()}
	if pl.dir != grid.DirNone {
		r.Dir = string(pl.dir.Code())
	}
	return r
}

// SetupView is the placement phase as clients see it.
type SetupView struct {
	Started bool
	Zones   [][3]int
	Pool    []GimmickView
}

type GimmickView struct {
	Slot   int
	Kind   string
	Dir    string
	Placed bool
	Pos    [3]int
}

func (s *Stage) setupView() *SetupView {
	su := s.setup
	if su == nil {
		return nil
	}
	v := &SetupView{
		Started: su.started,
		Zones:   make([][3]int, 0, len(s.lv.Zones)),
		Pool:    make([]GimmickView, 0, len(su.pool)),
	}
	for _, z := range s.lv.Zones {
		v.Zones = append(v.Zones, z.Array())
	}
	for i, gm := range su.pool {
		gv := GimmickView{Slot: i, Kind: gm.Kind.String()}
		dir := gm.Dir
		if pl := su.placed[i]; pl.ok {
			gv.Placed = true
			gv.Pos = pl.pos.Array()
			dir = pl.dir
		}
		if dir != grid.DirNone {
			gv.Dir = string(dir.Code())
		}
		v.Pool = append(v.Pool, gv)
	}
	return v
}
