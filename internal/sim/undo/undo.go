package undo

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"hash"

	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
)

var ErrStackEmpty = errors.New("undo: stack empty")

// Flags is the scheduler state that travels with a snapshot.
type Flags struct {
	GoalReached bool
	Lost        bool
	Turn        uint64
}

// Snapshot is a full copy of the mutable level state at a turn boundary.
type Snapshot struct {
	Grid     grid.Snapshot
	Entities entity.State
	Flags    Flags
}

// Digest is a bit-exact identity of s.
func (s Snapshot) Digest() [32]byte {
	h := sha256.New()
	s.Grid.WriteDigest(h)
	digestWriteU64(h, uint64(s.Entities.NextID))
	digestWriteU64(h, uint64(len(s.Entities.Entities)))
	for _, e := range s.Entities.Entities {
		digestWriteU64(h, uint64(e.ID))
		h.Write([]byte{byte(e.Kind), byte(e.Facing)})
		digestWriteI64(h, int64(e.Pos.X))
		digestWriteI64(h, int64(e.Pos.Y))
		digestWriteI64(h, int64(e.Pos.Z))
	}
	h.Write([]byte{boolByte(s.Flags.GoalReached), boolByte(s.Flags.Lost)})
	digestWriteU64(h, s.Flags.Turn)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func digestWriteU64(h hash.Hash, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hash.Hash, v int64) { digestWriteU64(h, uint64(v)) }

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Manager keeps a stack of snapshots of one grid and registry.
type Manager struct {
	g     *grid.Grid
	reg   *entity.Registry
	stack []Snapshot
	limit int
}

// NewManager returns a manager bound to g and reg. limit caps the stack
// depth; 0 means unbounded.
func NewManager(g *grid.Grid, reg *entity.Registry, limit int) *Manager {
	return &Manager{g: g, reg: reg, limit: limit}
}

// Capture copies the live state without pushing it.
func (m *Manager) Capture(f Flags) Snapshot {
	return Snapshot{Grid: m.g.Snapshot(), Entities: m.reg.State(), Flags: f}
}

// Snapshot captures the live state and pushes it.
func (m *Manager) Snapshot(f Flags) {
	m.Push(m.Capture(f))
}

func (m *Manager) Push(s Snapshot) {
	m.stack = append(m.stack, s)
	if m.limit > 0 && len(m.stack) > m.limit {
		drop := len(m.stack) - m.limit
		m.stack = append(m.stack[:0], m.stack[drop:]...)
	}
}

// Pop removes the most recent snapshot without restoring it.
func (m *Manager) Pop() (Snapshot, error) {
	if len(m.stack) == 0 {
		return Snapshot{}, ErrStackEmpty
	}
	s := m.stack[len(m.stack)-1]
	m.stack[len(m.stack)-1] = Snapshot{}
	m.stack = m.stack[:len(m.stack)-1]
	return s, nil
}

// Undo pops and restores the most recent snapshot, returning its flags.
// It reports false when there is nothing to undo.
func (m *Manager) Undo() (Flags, bool) {
	s, err := m.Pop()
	if err != nil {
		return Flags{}, false
	}
	m.Apply(s)
	return s.Flags, true
}

// Apply overwrites the live grid and registry with s. A snapshot taken from
// a grid of other dimensions is a programming error and panics.
func (m *Manager) Apply(s Snapshot) {
	if err := m.g.Restore(s.Grid); err != nil {
		panic(err)
	}
	m.reg.Restore(s.Entities)
}

func (m *Manager) Len() int { return len(m.stack) }

func (m *Manager) Clear() {
	clear(m.stack)
	m.stack = m.stack[:0]
}

// History returns the stack, oldest first.
func (m *Manager) History() []Snapshot {
	out := make([]Snapshot, len(m.stack))
	copy(out, m.stack)
	return out
}

// SetHistory replaces the stack, for resuming a saved session.
func (m *Manager) SetHistory(h []Snapshot) {
	m.Clear()
	for _, s := range h {
		m.Push(s)
	}
}
