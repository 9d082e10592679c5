package entity

import (
	"sort"

	"voxelpush.ai/internal/sim/grid"
)

type ID uint32

type Kind uint8

const (
	Player Kind = iota + 1
	Box
	Robot
)

func (k Kind) String() string {
	switch k {
	case Player:
		return "PLAYER"
	case Box:
		return "BOX"
	case Robot:
		return "ROBOT"
	default:
		return "UNKNOWN"
	}
}

// Autonomous kinds pick their own direction every turn.
func (k Kind) Autonomous() bool { return k == Robot }

// Actor kinds can request moves; boxes only get pushed.
func (k Kind) Actor() bool { return k == Player || k == Robot }

func ParseKind(s string) (Kind, bool) {
	switch s {
	case "PLAYER":
		return Player, true
	case "BOX":
		return Box, true
	case "ROBOT":
		return Robot, true
	default:
		return 0, false
	}
}

type Entity struct {
	ID     ID
	Kind   Kind
	Pos    grid.Vec3i
	Facing grid.Dir
}

// Registry owns the canonical position of every entity.
//
// It is a plain store: it never looks at cell kinds and accepts any
// position. Callers keep it consistent with the grid.
type Registry struct {
	byID   map[ID]*Entity
	at     map[grid.Vec3i]ID
	nextID ID
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   map[ID]*Entity{},
		at:     map[grid.Vec3i]ID{},
		nextID: 1,
	}
}

func (r *Registry) Spawn(kind Kind, pos grid.Vec3i) ID {
	return r.SpawnFacing(kind, pos, grid.DirNone)
}

func (r *Registry) SpawnFacing(kind Kind, pos grid.Vec3i, facing grid.Dir) ID {
	id := r.nextID
	r.nextID++
	r.byID[id] = &Entity{ID: id, Kind: kind, Pos: pos, Facing: facing}
	r.at[pos] = id
	return id
}

// Get returns a copy.
func (r *Registry) Get(id ID) (Entity, bool) {
	e, ok := r.byID[id]
	if !ok {
		return Entity{}, false
	}
	return *e, true
}

func (r *Registry) PositionOf(id ID) (grid.Vec3i, bool) {
	e, ok := r.byID[id]
	if !ok {
		return grid.Vec3i{}, false
	}
	return e.Pos, true
}

func (r *Registry) SetPosition(id ID, pos grid.Vec3i) {
	e, ok := r.byID[id]
	if !ok {
		return
	}
	if r.at[e.Pos] == id {
		delete(r.at, e.Pos)
	}
	e.Pos = pos
	r.at[pos] = id
}

func (r *Registry) SetFacing(id ID, d grid.Dir) {
	if e, ok := r.byID[id]; ok {
		e.Facing = d
	}
}

func (r *Registry) EntityAt(pos grid.Vec3i) (ID, bool) {
	id, ok := r.at[pos]
	return id, ok
}

func (r *Registry) Remove(id ID) {
	e, ok := r.byID[id]
	if !ok {
		return
	}
	if r.at[e.Pos] == id {
		delete(r.at, e.Pos)
	}
	delete(r.byID, id)
}

func (r *Registry) Len() int { return len(r.byID) }

// Sorted returns every entity in ascending id order. This is the iteration
// order the turn scheduler relies on.
func (r *Registry) Sorted() []Entity {
	out := make([]Entity, 0, len(r.byID))
	for _, e := range r.byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OfKind is Sorted filtered by kind.
func (r *Registry) OfKind(k Kind) []Entity {
	var out []Entity
	for _, e := range r.Sorted() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// State is a registry snapshot.
type State struct {
	NextID   ID
	Entities []Entity
}

func (r *Registry) State() State {
	return State{NextID: r.nextID, Entities: r.Sorted()}
}

func (r *Registry) Restore(s State) {
	r.byID = make(map[ID]*Entity, len(s.Entities))
	r.at = make(map[grid.Vec3i]ID, len(s.Entities))
	for _, e := range s.Entities {
		e := e
		r.byID[e.ID] = &e
		r.at[e.Pos] = e.ID
	}
	r.nextID = s.NextID
	if r.nextID == 0 {
		r.nextID = 1
	}
}
