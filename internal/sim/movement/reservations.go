package movement

import (
	"errors"
	"fmt"

	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
)

var ErrReservationConflict = errors.New("movement: reservation conflict")

// ConflictError names the cell that was already held and by whom.
type ConflictError struct {
	Cell      grid.Vec3i
	Holder    entity.ID
	Requester entity.ID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("movement: cell %s held by %d, requested by %d", e.Cell, e.Holder, e.Requester)
}

func (e *ConflictError) Unwrap() error { return ErrReservationConflict }

// Claim binds one entity to the cell it will occupy after the turn.
type Claim struct {
	ID   entity.ID
	Cell grid.Vec3i
}

// Reservations is the per-turn table of target cells. At most one entity
// holds a cell, and an entity is claimed by at most one move.
type Reservations struct {
	cells   map[grid.Vec3i]entity.ID
	claimed map[entity.ID]grid.Vec3i
}

func NewReservations() *Reservations {
	return &Reservations{
		cells:   map[grid.Vec3i]entity.ID{},
		claimed: map[entity.ID]grid.Vec3i{},
	}
}

func (r *Reservations) Holder(p grid.Vec3i) (entity.ID, bool) {
	id, ok := r.cells[p]
	return id, ok
}

func (r *Reservations) Claimed(id entity.ID) bool {
	_, ok := r.claimed[id]
	return ok
}

func (r *Reservations) Reserve(id entity.ID, p grid.Vec3i) error {
	return r.ReserveAll(Claim{ID: id, Cell: p})
}

// ReserveAll takes every claim or none of them.
func (r *Reservations) ReserveAll(claims ...Claim) error {
	seen := make(map[grid.Vec3i]entity.ID, len(claims))
	for _, c := range claims {
		if h, ok := r.cells[c.Cell]; ok {
			return &ConflictError{Cell: c.Cell, Holder: h, Requester: c.ID}
		}
		if h, ok := seen[c.Cell]; ok {
			return &ConflictError{Cell: c.Cell, Holder: h, Requester: c.ID}
		}
		if cell, ok := r.claimed[c.ID]; ok {
			return &ConflictError{Cell: cell, Holder: c.ID, Requester: c.ID}
		}
		seen[c.Cell] = c.ID
	}
	for _, c := range claims {
		r.cells[c.Cell] = c.ID
		r.claimed[c.ID] = c.Cell
	}
	return nil
}

func (r *Reservations) Len() int { return len(r.cells) }

// Clear runs once per turn, at the settle point.
func (r *Reservations) Clear() {
	clear(r.cells)
	clear(r.claimed)
}
