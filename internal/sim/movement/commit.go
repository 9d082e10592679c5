package movement

import (
	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
)

// Commit applies a planned outcome to the registry and grid. The pushed box
// is moved before its pusher.
//
// For blocked outcomes only facing changes: autonomous actors keep the
// reversed heading from their failed retry.
func (r *Resolver) Commit(o Outcome, autonomous bool) Effects {
	var eff Effects
	if _, ok := r.reg.Get(o.Entity); !ok {
		return eff
	}
	if o.Dir != grid.DirNone && (o.Kind != Blocked || autonomous) {
		r.reg.SetFacing(o.Entity, o.Dir)
	}
	if o.Kind == Blocked {
		return eff
	}

	var left []grid.Vec3i
	if o.Box != nil {
		r.reg.SetPosition(o.Box.ID, o.Box.To)
		_ = r.g.SetOccupied(o.Box.From, false)
		_ = r.g.SetOccupied(o.Box.To, true)
		left = append(left, o.Box.From)
	}
	r.reg.SetPosition(o.Entity, o.To)
	left = append(left, o.From)

	for _, from := range left {
		if p, ok := r.breakFragile(from); ok {
			eff.Fragile = append(eff.Fragile, p)
		}
	}

	if autonomous {
		if d, ok := r.g.Arrow(o.To); ok {
			r.reg.SetFacing(o.Entity, d)
		}
	}

	if o.Box != nil {
		eff.Merge(r.arrive(o.Box.ID))
	}
	eff.Merge(r.arrive(o.Entity))
	return eff
}

// breakFragile destroys the Fragile cell under a vacated position unless
// something stands on it again.
func (r *Resolver) breakFragile(from grid.Vec3i) (grid.Vec3i, bool) {
	if from.Y == 0 {
		return grid.Vec3i{}, false
	}
	below := from.Down()
	if r.static(below) != grid.Fragile {
		return grid.Vec3i{}, false
	}
	if _, ok := r.reg.EntityAt(from); ok {
		return grid.Vec3i{}, false
	}
	_ = r.g.SetCell(below, grid.Empty)
	return below, true
}

// arrive applies goal and lava rules to an entity at its final position.
func (r *Resolver) arrive(id entity.ID) Effects {
	var eff Effects
	e, ok := r.reg.Get(id)
	if !ok {
		return eff
	}
	var support grid.CellKind = grid.Wall
	if e.Pos.Y > 0 {
		support = r.static(e.Pos.Down())
	}
	if support == grid.Lava {
		r.reg.Remove(id)
		if e.Kind == entity.Box {
			_ = r.g.SetOccupied(e.Pos, false)
		}
		eff.Burned = append(eff.Burned, Burn{ID: id, Kind: e.Kind, Pos: e.Pos})
		return eff
	}
	if e.Kind == entity.Player && (r.static(e.Pos) == grid.Goal || support == grid.Goal) {
		eff.GoalReached = true
	}
	return eff
}

// Settle drops every unsupported entity until nothing moves, in ascending id
// order. It ignores reservations.
func (r *Resolver) Settle() ([]Outcome, Effects) {
	var (
		falls []Outcome
		eff   Effects
	)
	for changed := true; changed; {
		changed = false
		for _, e := range r.reg.Sorted() {
			land, fell := r.drop(e.Kind, e.Pos, e.ID, false)
			if !fell {
				continue
			}
			r.reg.SetPosition(e.ID, land)
			if e.Kind == entity.Box {
				_ = r.g.SetOccupied(e.Pos, false)
				_ = r.g.SetOccupied(land, true)
			}
			falls = append(falls, Outcome{
				Entity: e.ID,
				Actor:  e.Kind,
				Kind:   Fell,
				From:   e.Pos,
				To:     land,
			})
			eff.Merge(r.arrive(e.ID))
			changed = true
		}
	}
	return falls, eff
}

// Supported reports whether nothing under p would let an entity of kind k
// fall.
func (r *Resolver) Supported(k entity.Kind, p grid.Vec3i) bool {
	if !r.g.InBounds(p) {
		return false
	}
	_, fell := r.drop(k, p, 0, false)
	return !fell
}
