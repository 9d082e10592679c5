package stagetest

import (
	"fmt"
	"strings"
	"testing"

	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/movement"
	"voxelpush.ai/internal/sim/stage"
)

// Harness drives a stage through its exported API only. Every call that
// stands for a player action opens a new frame first, the way Run does for
// input-triggered levels.
type Harness struct {
	T   *testing.T
	S   *stage.Stage
	Rec *Recorder
}

// NewHarness parses layout as level id and loads it with cfg.
func NewHarness(t *testing.T, id, layout string, cfg stage.Config) *Harness {
	t.Helper()
	lv, err := level.Parse(id, strings.NewReader(layout))
	if err != nil {
		t.Fatalf("parse %s: %v", id, err)
	}
	rec := &Recorder{}
	s := stage.New(cfg, rec)
	if err := s.Load(lv, cfg); err != nil {
		t.Fatalf("load %s: %v", id, err)
	}
	return &Harness{T: t, S: s, Rec: rec}
}

// DefaultConfig is the input-triggered config with default rules.
func DefaultConfig() stage.Config {
	return stage.Config{
		Trigger: stage.TriggerInput,
		Policy:  movement.DefaultPolicy(),
		Units:   grid.DefaultUnits,
	}
}

func (h *Harness) TryMove(d grid.Dir) (stage.Record, error) {
	h.S.AdvanceFrame()
	if err := h.S.RequestDirection(0, d); err != nil {
		return stage.Record{}, err
	}
	return h.S.Step()
}

func (h *Harness) Move(d grid.Dir) stage.Record {
	h.T.Helper()
	rec, err := h.TryMove(d)
	if err != nil {
		h.T.Fatalf("move %v: %v", d, err)
	}
	return rec
}

// Idle runs a turn with no player intent.
func (h *Harness) Idle() stage.Record {
	h.T.Helper()
	h.S.AdvanceFrame()
	rec, err := h.S.Step()
	if err != nil {
		h.T.Fatalf("idle step: %v", err)
	}
	return rec
}

func (h *Harness) Undo() bool {
	h.S.AdvanceFrame()
	return h.S.Undo()
}

func (h *Harness) Pos(id entity.ID) grid.Vec3i {
	h.T.Helper()
	p, ok := h.S.Registry().PositionOf(id)
	if !ok {
		h.T.Fatalf("entity %d missing", id)
	}
	return p
}

func (h *Harness) Present(id entity.ID) bool {
	_, ok := h.S.Registry().Get(id)
	return ok
}

func (h *Harness) Cell(p grid.Vec3i) grid.CellKind {
	h.T.Helper()
	k, err := h.S.Grid().CellAt(p)
	if err != nil {
		h.T.Fatalf("cell %v: %v", p, err)
	}
	return k
}

// Recorder is an observer that keeps every callback as a short line, and
// can call back into the stage from the goal callback.
type Recorder struct {
	Events  []string
	Records []stage.Record
	Goals   int
	Undos   int

	OnGoal func()
}

func (r *Recorder) OnMoveCommitted(id entity.ID, from, to grid.Vec3i, kind movement.Kind) {
	r.Events = append(r.Events, fmt.Sprintf("move %d %v->%v %s", id, from, to, kind))
}

func (r *Recorder) OnFragileDestroyed(pos grid.Vec3i) {
	r.Events = append(r.Events, fmt.Sprintf("fragile %v", pos))
}

func (r *Recorder) OnGoalReached() {
	r.Goals++
	r.Events = append(r.Events, "goal")
	if r.OnGoal != nil {
		r.OnGoal()
	}
}

func (r *Recorder) OnUndoApplied() {
	r.Undos++
	r.Events = append(r.Events, "undo")
}

func (r *Recorder) OnLevelLoaded(info stage.LevelInfo) {
	r.Events = append(r.Events, fmt.Sprintf("level %s restart=%v", info.ID, info.Restart))
}

func (r *Recorder) OnRecord(rec stage.Record) {
	r.Records = append(r.Records, rec)
}

// Has reports whether an event line was recorded.
func (r *Recorder) Has(line string) bool {
	for _, e := range r.Events {
		if e == line {
			return true
		}
	}
	return false
}

func (r *Recorder) Reset() {
	r.Events = nil
	r.Records = nil
}
