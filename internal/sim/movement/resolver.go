package movement

import (
	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
)

// Resolver decides and applies moves against one grid and registry.
//
// Planning reads only the pre-turn state plus the reservation table, so the
// result of a turn does not depend on commit order. Actors must be planned in
// ascending id order; the earlier plan wins a contested cell.
type Resolver struct {
	g   *grid.Grid
	reg *entity.Registry
	pol Policy
	res *Reservations
}

func NewResolver(g *grid.Grid, reg *entity.Registry, pol Policy) *Resolver {
	return &Resolver{g: g, reg: reg, pol: pol, res: NewReservations()}
}

func (r *Resolver) Policy() Policy               { return r.pol }
func (r *Resolver) Reservations() *Reservations { return r.res }

// Plan computes the outcome for id stepping in d and reserves its target
// cells. An autonomous actor whose step is blocked turns around and tries
// once more.
func (r *Resolver) Plan(id entity.ID, d grid.Dir, autonomous bool) Outcome {
	e, ok := r.reg.Get(id)
	if !ok {
		return Outcome{Entity: id, Kind: Blocked, Dir: d, Reason: ReasonNoEntity}
	}
	out := r.try(e, d)
	if out.Kind != Blocked || !autonomous || d == grid.DirNone {
		return out
	}
	back := r.try(e, d.Reverse())
	back.Reversed = true
	return back
}

// Move plans and commits a single actor's step outside a scheduled turn.
func (r *Resolver) Move(id entity.ID, d grid.Dir) (Outcome, Effects) {
	e, ok := r.reg.Get(id)
	auto := ok && e.Kind.Autonomous()
	o := r.Plan(id, d, auto)
	eff := r.Commit(o, auto)
	r.res.Clear()
	return o, eff
}

func (r *Resolver) try(e entity.Entity, d grid.Dir) Outcome {
	out := Outcome{Entity: e.ID, Actor: e.Kind, Kind: Blocked, Dir: d, From: e.Pos, To: e.Pos}
	if !e.Kind.Actor() {
		out.Reason = ReasonNotActor
		return out
	}
	if d == grid.DirNone {
		out.Reason = ReasonNoDir
		return out
	}
	if r.pol.Traversal == Column {
		return r.tryColumn(e, d, out)
	}

	next := e.Pos.Add(d.Delta())
	if !r.g.InBounds(next) {
		out.Reason = ReasonBounds
		return out
	}
	if !r.enterable(e.Kind, next) {
		out.Reason = ReasonSolid
		return out
	}

	var box *BoxMove
	if other, ok := r.occupant(next, e.ID); ok {
		oe, _ := r.reg.Get(other)
		if oe.Kind != entity.Box {
			out.Reason = ReasonOccupied
			return out
		}
		bm, ok := r.planPush(oe, d)
		if !ok {
			out.Reason = ReasonBoxStuck
			return out
		}
		box = &bm
	}

	dest, fell := r.drop(e.Kind, next, e.ID, true)
	if fell && e.Kind == entity.Robot && r.pol.RobotsAvoidLedges {
		out.Reason = ReasonLedge
		return out
	}
	dest, ported := r.teleport(e.Kind, dest, e.ID)

	claims := []Claim{{ID: e.ID, Cell: dest}}
	if box != nil {
		claims = append(claims, Claim{ID: box.ID, Cell: box.To})
	}
	if err := r.res.ReserveAll(claims...); err != nil {
		out.Reason = ReasonReserved
		out.Err = err
		return out
	}

	out.To = dest
	out.Box = box
	switch {
	case ported:
		out.Kind = Teleported
	case box != nil:
		out.Kind = Pushed
	case fell:
		out.Kind = Fell
	default:
		out.Kind = Moved
	}
	return out
}

// planPush checks whether the box can move one cell in d and where it ends up.
func (r *Resolver) planPush(b entity.Entity, d grid.Dir) (BoxMove, bool) {
	if r.res.Claimed(b.ID) {
		return BoxMove{}, false
	}
	if _, ok := r.occupant(b.Pos.Up(), b.ID); ok {
		return BoxMove{}, false
	}
	after := b.Pos.Add(d.Delta())
	if !r.g.InBounds(after) || !r.passable(entity.Box, after) {
		return BoxMove{}, false
	}
	if _, ok := r.occupant(after, b.ID); ok {
		return BoxMove{}, false
	}
	if _, ok := r.res.Holder(after); ok {
		return BoxMove{}, false
	}
	land, fell := r.drop(entity.Box, after, b.ID, true)
	land, ported := r.teleport(entity.Box, land, b.ID)

	bm := BoxMove{ID: b.ID, From: b.Pos, To: land, Kind: Moved}
	switch {
	case ported:
		bm.Kind = Teleported
	case fell:
		bm.Kind = Fell
	}
	return bm, true
}

// tryColumn steps onto the top of the neighbouring column.
func (r *Resolver) tryColumn(e entity.Entity, d grid.Dir, out Outcome) Outcome {
	next := e.Pos.Add(d.Delta())
	base := grid.Vec3i{X: next.X, Y: 0, Z: next.Z}
	if !r.g.InBounds(base) {
		out.Reason = ReasonBounds
		return out
	}
	top := r.g.TopmostOccupiedLayer(next.X, next.Z)
	topPos := grid.Vec3i{X: next.X, Y: top, Z: next.Z}
	dest := base
	if k := r.cell(topPos); k != grid.Empty {
		if !r.climbable(e.Kind, k) {
			out.Reason = ReasonNoFoothold
			return out
		}
		dest = topPos.Up()
	}
	if !r.g.InBounds(dest) {
		out.Reason = ReasonBounds
		return out
	}
	if _, ok := r.occupant(dest, e.ID); ok {
		out.Reason = ReasonOccupied
		return out
	}
	if err := r.res.Reserve(e.ID, dest); err != nil {
		out.Reason = ReasonReserved
		out.Err = err
		return out
	}
	out.To = dest
	out.Kind = Moved
	if dest.Y < e.Pos.Y {
		out.Kind = Fell
	}
	return out
}

func (r *Resolver) climbable(k entity.Kind, c grid.CellKind) bool {
	switch c {
	case grid.Wall, grid.Box, grid.Fragile, grid.OnOffSwitch, grid.Teleport:
		return true
	case grid.Goal:
		return k == entity.Player
	default:
		return false
	}
}

// drop descends from p while the cell below is air for kind k and holds no
// entity. The bottom of the grid is a floor. With useRes, a reserved cell
// counts as support.
func (r *Resolver) drop(k entity.Kind, p grid.Vec3i, self entity.ID, useRes bool) (grid.Vec3i, bool) {
	fell := false
	for p.Y > 0 {
		below := p.Down()
		if !r.passable(k, below) {
			break
		}
		if _, ok := r.occupant(below, self); ok {
			break
		}
		if useRes {
			if _, ok := r.res.Holder(below); ok {
				break
			}
		}
		p = below
		fell = true
	}
	return p, fell
}

// teleport relocates an entity that landed on (floor mode) or in (walk-in
// mode) a teleport. It happens at most once per move and is skipped when the
// far side is blocked.
func (r *Resolver) teleport(k entity.Kind, p grid.Vec3i, self entity.ID) (grid.Vec3i, bool) {
	var pad, target grid.Vec3i
	switch r.pol.Portal {
	case PortalWalkIn:
		if r.static(p) != grid.Teleport {
			return p, false
		}
		pad = p
	default:
		if p.Y == 0 || r.static(p.Down()) != grid.Teleport {
			return p, false
		}
		pad = p.Down()
	}
	pair, ok := r.g.FindOtherOfKind(grid.Teleport, pad)
	if !ok {
		return p, false
	}
	target = pair
	if r.pol.Portal != PortalWalkIn {
		target = pair.Up()
	}
	if !r.g.InBounds(target) {
		return p, false
	}
	if k == entity.Box {
		if !r.passable(k, target) {
			return p, false
		}
	} else if !r.enterable(k, target) {
		return p, false
	}
	if _, ok := r.occupant(target, self); ok {
		return p, false
	}
	if _, ok := r.res.Holder(target); ok {
		return p, false
	}
	land, _ := r.drop(k, target, self, true)
	return land, true
}

// enterable reports whether an actor of kind k may step horizontally into p.
func (r *Resolver) enterable(k entity.Kind, p grid.Vec3i) bool {
	switch r.static(p) {
	case grid.Empty, grid.SwitchPlate:
		return true
	case grid.Goal:
		return k != entity.Robot
	case grid.OnOffSwitch:
		return r.g.SwitchOpen()
	case grid.Teleport:
		return r.pol.Portal == PortalWalkIn
	default:
		return false
	}
}

// passable reports whether p is air for kind k, for falling and for box
// landing cells.
func (r *Resolver) passable(k entity.Kind, p grid.Vec3i) bool {
	switch r.static(p) {
	case grid.Empty, grid.SwitchPlate:
		return true
	case grid.Goal:
		if k == entity.Box {
			return r.pol.GoalAirForBoxes
		}
		return r.pol.GoalAirForActors
	case grid.OnOffSwitch:
		return r.g.SwitchOpen()
	case grid.Teleport:
		return r.pol.Portal == PortalWalkIn
	default:
		return false
	}
}

// occupant returns the entity at p other than self.
func (r *Resolver) occupant(p grid.Vec3i, self entity.ID) (entity.ID, bool) {
	id, ok := r.reg.EntityAt(p)
	if !ok || id == self {
		return 0, false
	}
	return id, true
}

// static panics on out-of-bounds reads: callers bounds-check first, so a
// failure here means the grid is being corrupted.
func (r *Resolver) static(p grid.Vec3i) grid.CellKind {
	k, err := r.g.Static(p)
	if err != nil {
		panic(err)
	}
	return k
}

func (r *Resolver) cell(p grid.Vec3i) grid.CellKind {
	k, err := r.g.CellAt(p)
	if err != nil {
		panic(err)
	}
	return k
}
