package stage

import (
	"bytes"
	"fmt"
	"strings"

	"voxelpush.ai/internal/persistence/snapshot"
	"voxelpush.ai/internal/sim/encoding"
	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/movement"
	"voxelpush.ai/internal/sim/undo"
)

// Export captures the session, undo history included.
func (s *Stage) Export() (snapshot.SessionV1, error) {
	if s.lv == nil {
		return snapshot.SessionV1{}, ErrNoLevel
	}
	if s.phase != Idle {
		return snapshot.SessionV1{}, ErrTurnInProgress
	}
	var layout bytes.Buffer
	if err := s.lv.Encode(&layout); err != nil {
		return snapshot.SessionV1{}, fmt.Errorf("encode layout: %w", err)
	}
	p := s.cfg.Policy
	out := snapshot.SessionV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			LevelID: s.lv.ID,
			Turn:    s.turn,
			Cleared: s.goalReached,
		},
		Layout:  layout.String(),
		Trigger: s.cfg.Trigger.String(),
		TickMs:  int(s.cfg.Tick.Milliseconds()),
		Policy: snapshot.PolicyV1{
			GoalAirForBoxes:   p.GoalAirForBoxes,
			GoalAirForActors:  p.GoalAirForActors,
			PortalMode:        p.Portal.String(),
			Traversal:         p.Traversal.String(),
			RobotsAvoidLedges: p.RobotsAvoidLedges,
		},
		Current: encodeState(s.undo.Capture(s.flags())),
	}
	for _, h := range s.undo.History() {
		out.History = append(out.History, encodeState(h))
	}
	if su := s.setup; su != nil {
		out.Setup = &snapshot.SetupV1{Started: su.started}
		for i, pl := range su.placed {
			if !pl.ok {
				continue
			}
			r := setupRecord(i, pl)
			out.Setup.Placed = append(out.Setup.Placed, snapshot.PlacementV1{Slot: r.Slot, Pos: r.Pos, Dir: r.Dir})
		}
	}
	return out, nil
}

// Resume loads a saved session. cfg supplies what the session does not
// carry (units, undo limit). Every saved state is checked against the
// layout before anything is replaced, so a bad file leaves the stage as it
// was.
func (s *Stage) Resume(sess snapshot.SessionV1, cfg Config) error {
	if s.phase != Idle {
		return ErrTurnInProgress
	}
	lv, err := level.Parse(sess.Header.LevelID, strings.NewReader(sess.Layout))
	if err != nil {
		return err
	}
	if cfg.Trigger, err = ParseTrigger(sess.Trigger); err != nil {
		return err
	}
	if sess.TickMs > 0 {
		cfg.Tick = msDuration(sess.TickMs)
	}
	if cfg.Policy.Portal, err = movement.ParsePortalMode(sess.Policy.PortalMode); err != nil {
		return err
	}
	if cfg.Policy.Traversal, err = movement.ParseTraversal(sess.Policy.Traversal); err != nil {
		return err
	}
	cfg.Policy.GoalAirForBoxes = sess.Policy.GoalAirForBoxes
	cfg.Policy.GoalAirForActors = sess.Policy.GoalAirForActors
	cfg.Policy.RobotsAvoidLedges = sess.Policy.RobotsAvoidLedges

	cur, err := decodeState(sess.Current)
	if err != nil {
		return fmt.Errorf("session current: %w", err)
	}
	hist := make([]undo.Snapshot, 0, len(sess.History))
	for i, st := range sess.History {
		h, err := decodeState(st)
		if err != nil {
			return fmt.Errorf("session history %d: %w", i, err)
		}
		hist = append(hist, h)
	}
	if err := checkState(lv, cur); err != nil {
		return fmt.Errorf("session current: %w", err)
	}
	for i, h := range hist {
		if err := checkState(lv, h); err != nil {
			return fmt.Errorf("session history %d: %w", i, err)
		}
	}
	placed, err := decodeSetup(lv, sess.Setup)
	if err != nil {
		return err
	}

	if err := s.install(lv, cfg.normalize()); err != nil {
		return err
	}
	if s.setup != nil && sess.Setup != nil {
		for _, pl := range placed {
			s.setup.put(s.g, pl.slot, pl.pos, pl.dir)
		}
		s.setup.started = sess.Setup.Started
	}
	s.undo.Apply(cur)
	s.undo.SetHistory(hist)
	s.turn = cur.Flags.Turn
	s.goalReached = cur.Flags.GoalReached
	s.lost = cur.Flags.Lost
	s.emitLoaded(RecordLoad, false)
	return nil
}

// checkState rejects a decoded state that would not fit lv: other
// dimensions, entities outside the grid, shared ids or cells, and box
// occupancy that disagrees with the box entities.
func checkState(lv *level.Level, u undo.Snapshot) error {
	if u.Grid.W != lv.W || u.Grid.H != lv.H || u.Grid.D != lv.D {
		return fmt.Errorf("%w: layout %dx%dx%d, state %dx%dx%d", grid.ErrDimsMismatch,
			lv.W, lv.H, lv.D, u.Grid.W, u.Grid.H, u.Grid.D)
	}
	bad := func(format string, args ...any) error {
		return &level.InvalidLevelDataError{Level: lv.ID, Layer: -1, Row: -1, Col: -1, Reason: fmt.Sprintf(format, args...)}
	}
	ids := make(map[entity.ID]bool, len(u.Entities.Entities))
	cells := make(map[grid.Vec3i]entity.ID, len(u.Entities.Entities))
	boxes := 0
	for _, e := range u.Entities.Entities {
		p := e.Pos
		if p.X < 0 || p.X >= lv.W || p.Y < 0 || p.Y >= lv.H || p.Z < 0 || p.Z >= lv.D {
			return bad("entity %d at %s is outside the grid", e.ID, p)
		}
		if e.ID == 0 || e.ID >= u.Entities.NextID {
			return bad("entity id %d out of range (next %d)", e.ID, u.Entities.NextID)
		}
		if ids[e.ID] {
			return bad("duplicate entity id %d", e.ID)
		}
		ids[e.ID] = true
		if other, ok := cells[p]; ok {
			return bad("entities %d and %d share %s", other, e.ID, p)
		}
		cells[p] = e.ID
		if e.Kind == entity.Box {
			if !u.Grid.Boxes[p.X+p.Z*lv.W+p.Y*lv.W*lv.D] {
				return bad("box %d at %s not marked in occupancy", e.ID, p)
			}
			boxes++
		}
	}
	marked := 0
	for _, b := range u.Grid.Boxes {
		if b {
			marked++
		}
	}
	if marked != boxes {
		return bad("occupancy marks %d cells for %d boxes", marked, boxes)
	}
	return nil
}

type savedPlacement struct {
	slot int
	pos  grid.Vec3i
	dir  grid.Dir
}

// decodeSetup validates saved placements against the pool and drop zones
// of lv.
func decodeSetup(lv *level.Level, st *snapshot.SetupV1) ([]savedPlacement, error) {
	if st == nil {
		return nil, nil
	}
	if !lv.HasSetup() {
		return nil, fmt.Errorf("session setup: level %s has no drop zones", lv.ID)
	}
	su := newSetup(lv)
	var out []savedPlacement
	for _, p := range st.Placed {
		pos := grid.FromArray(p.Pos)
		if err := checkPlace(lv, su, p.Slot, pos); err != nil {
			return nil, fmt.Errorf("session setup: %w", err)
		}
		if su.placed[p.Slot].ok {
			return nil, fmt.Errorf("session setup: %w: slot %d placed twice", ErrBadPlacement, p.Slot)
		}
		dir := grid.DirNone
		if lv.Pool[p.Slot].Kind == level.GimmickArrow {
			var ok bool
			if len(p.Dir) == 1 {
				dir, ok = grid.ParseDirCode(p.Dir[0])
			}
			if !ok {
				return nil, fmt.Errorf("session setup: %w: slot %d has bad direction %q", ErrBadPlacement, p.Slot, p.Dir)
			}
		}
		su.placed[p.Slot] = placement{ok: true, pos: pos, dir: dir}
		out = append(out, savedPlacement{slot: p.Slot, pos: pos, dir: dir})
	}
	return out, nil
}

func encodeState(u undo.Snapshot) snapshot.StateV1 {
	st := snapshot.StateV1{
		Dims:        [3]int{u.Grid.W, u.Grid.H, u.Grid.D},
		Cells:       encoding.EncodeRLE(u.Grid.Static),
		Boxes:       encoding.EncodeBits(u.Grid.Boxes),
		SwitchOpen:  u.Grid.SwitchOpen,
		NextID:      uint32(u.Entities.NextID),
		GoalReached: u.Flags.GoalReached,
		Lost:        u.Flags.Lost,
		Turn:        u.Flags.Turn,
	}
	for _, e := range u.Entities.Entities {
		ev := snapshot.EntityV1{ID: uint32(e.ID), Kind: e.Kind.String(), Pos: e.Pos.Array()}
		if e.Facing != grid.DirNone {
			ev.Facing = string(e.Facing.Code())
		}
		st.Entities = append(st.Entities, ev)
	}
	return st
}

func decodeState(st snapshot.StateV1) (undo.Snapshot, error) {
	w, h, d := st.Dims[0], st.Dims[1], st.Dims[2]
	n := w * h * d
	cells, err := encoding.DecodeRLE(st.Cells, grid.SwitchPlate)
	if err != nil {
		return undo.Snapshot{}, fmt.Errorf("cells: %w", err)
	}
	boxes, err := encoding.DecodeBits(st.Boxes)
	if err != nil {
		return undo.Snapshot{}, fmt.Errorf("boxes: %w", err)
	}
	if len(cells) != n || len(boxes) != n {
		return undo.Snapshot{}, fmt.Errorf("layers: got %d cells, %d box flags, want %d", len(cells), len(boxes), n)
	}
	out := undo.Snapshot{
		Grid: grid.Snapshot{W: w, H: h, D: d, Static: cells, Boxes: boxes, SwitchOpen: st.SwitchOpen},
		Entities: entity.State{
			NextID: entity.ID(st.NextID),
		},
		Flags: undo.Flags{GoalReached: st.GoalReached, Lost: st.Lost, Turn: st.Turn},
	}
	for _, ev := range st.Entities {
		k, ok := entity.ParseKind(ev.Kind)
		if !ok {
			return undo.Snapshot{}, fmt.Errorf("entity %d: unknown kind %q", ev.ID, ev.Kind)
		}
		e := entity.Entity{ID: entity.ID(ev.ID), Kind: k, Pos: grid.FromArray(ev.Pos)}
		if ev.Facing != "" {
			f, ok := grid.ParseDirCode(ev.Facing[0])
			if !ok {
				return undo.Snapshot{}, fmt.Errorf("entity %d: bad facing %q", ev.ID, ev.Facing)
			}
			e.Facing = f
		}
		out.Entities.Entities = append(out.Entities.Entities, e)
	}
	return out, nil
}
