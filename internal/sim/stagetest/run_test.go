package stagetest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxelpush.ai/internal/persistence/snapshot"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/stage"
	"voxelpush.ai/internal/sim/undo"
)

type runner struct {
	t    *testing.T
	h    *Harness
	src  *stage.ManualSource
	stop context.CancelFunc
	done chan error
}

func startRun(t *testing.T, h *Harness) *runner {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{t: t, h: h, src: stage.NewManualSource(), stop: cancel, done: make(chan error, 1)}
	go func() { r.done <- h.S.Run(ctx, func(stage.Config) stage.Source { return r.src }) }()
	t.Cleanup(r.close)
	return r
}

func (r *runner) close() {
	r.stop()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		r.t.Fatalf("stage.Run did not exit")
	}
}

func (r *runner) send(in stage.Input) stage.Reply {
	r.t.Helper()
	reply := make(chan stage.Reply, 1)
	in.Reply = reply
	r.h.S.Inputs() <- in
	select {
	case rep := <-reply:
		return rep
	case <-time.After(2 * time.Second):
		r.t.Fatalf("no reply to %v", in.Kind)
		return stage.Reply{}
	}
}

func (r *runner) view() stage.View {
	r.t.Helper()
	rep := r.send(stage.Input{Kind: stage.InputQuery})
	if rep.View == nil {
		r.t.Fatalf("query returned no view")
	}
	return *rep.View
}

func (r *runner) playerPos() [3]int {
	r.t.Helper()
	for _, e := range r.view().State.Entities {
		if e.Kind == "PLAYER" {
			return e.Pos
		}
	}
	r.t.Fatalf("no player in view")
	return [3]int{}
}

func TestRun_TickModeWalksAndQueuesUndo(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Trigger = stage.TriggerTick
	h := NewHarness(t, "walk", "B,B,B,B,B\n\nP,N,N,N,N\n", cfg)
	r := startRun(t, h)

	rep := r.send(stage.Input{Kind: stage.InputMove, Dir: grid.East})
	if rep.Err != nil || rep.Record != nil {
		t.Fatalf("tick-mode move should only queue: %+v", rep)
	}
	if p := r.playerPos(); p != [3]int{0, 1, 0} {
		t.Fatalf("moved before tick: %v", p)
	}

	r.src.Tick()
	if p := r.playerPos(); p != [3]int{1, 1, 0} {
		t.Fatalf("after tick 1: %v", p)
	}
	r.src.Tick()
	if p := r.playerPos(); p != [3]int{2, 1, 0} {
		t.Fatalf("player did not keep walking: %v", p)
	}

	if rep := r.send(stage.Input{Kind: stage.InputUndo}); rep.Err != nil {
		t.Fatalf("queue undo: %v", rep.Err)
	}
	r.src.Tick()
	v := r.view()
	if p := r.playerPos(); p != [3]int{1, 1, 0} || v.State.Turn != 1 {
		t.Fatalf("undo tick: pos=%v turn=%d", p, v.State.Turn)
	}

	r.src.Tick()
	if p := r.playerPos(); p != [3]int{2, 1, 0} {
		t.Fatalf("walk after undo: %v", p)
	}
}

func TestRun_InputModeStepsPerInput(t *testing.T) {
	h := NewHarness(t, "corridor", corridor, DefaultConfig())
	next, err := level.Parse("next", strings.NewReader("B,B\n\nN,P\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	h.S.SetLoader(func(current, requested string) (*level.Level, stage.Config, error) {
		if current != "corridor" || requested != "" {
			return nil, stage.Config{}, errors.New("unexpected load request")
		}
		return next, DefaultConfig(), nil
	})
	r := startRun(t, h)

	rep := r.send(stage.Input{Kind: stage.InputMove, Dir: grid.East})
	if rep.Err != nil || rep.Record == nil || rep.Record.Kind != stage.RecordTurn || rep.Record.Turn != 1 {
		t.Fatalf("move reply: %+v", rep)
	}
	rep = r.send(stage.Input{Kind: stage.InputUndo})
	if rep.Err != nil || rep.Record == nil || rep.Record.Kind != stage.RecordUndo {
		t.Fatalf("undo reply: %+v", rep)
	}
	// Each input is its own frame, so this undo is refused for an empty stack
	// rather than coalesced.
	if rep := r.send(stage.Input{Kind: stage.InputUndo}); !errors.Is(rep.Err, undo.ErrStackEmpty) {
		t.Fatalf("second undo: got %v want ErrStackEmpty", rep.Err)
	}
	if rep := r.send(stage.Input{Kind: stage.InputMove, Entity: 99, Dir: grid.East}); !errors.Is(rep.Err, stage.ErrUnknownEntity) {
		t.Fatalf("unknown player: got %v", rep.Err)
	}

	rep = r.send(stage.Input{Kind: stage.InputExport})
	if rep.Err != nil || rep.Session == nil || rep.Session.Header.LevelID != "corridor" || rep.Session.Header.Turn != 0 {
		t.Fatalf("export reply: %+v", rep)
	}

	rep = r.send(stage.Input{Kind: stage.InputLoad})
	if rep.Err != nil || rep.View == nil || rep.View.LevelID != "next" {
		t.Fatalf("load reply: %+v", rep)
	}
	if p := r.playerPos(); p != [3]int{1, 1, 0} {
		t.Fatalf("next level player: %v", p)
	}
}

func TestExportResume_RoundTrip(t *testing.T) {
	h := NewHarness(t, "fragile", "B,F,B,B\n\nP,M,N,N\n", DefaultConfig())
	h.Move(grid.East)
	afterFirst := h.S.Digest()
	h.Move(grid.East)
	live := h.S.Digest()

	sess, err := h.S.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	path := filepath.Join(t.TempDir(), "fragile.snap.zst")
	if err := snapshot.WriteSession(path, sess); err != nil {
		t.Fatalf("WriteSession: %v", err)
	}
	back, err := snapshot.ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}

	s2 := stage.New(DefaultConfig(), nil)
	if err := s2.Resume(back, DefaultConfig()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if s2.Digest() != live {
		t.Fatalf("resumed digest differs")
	}
	if s2.UndoDepth() != 2 || s2.Turn() != 2 {
		t.Fatalf("resumed depth=%d turn=%d", s2.UndoDepth(), s2.Turn())
	}
	s2.AdvanceFrame()
	if !s2.Undo() || s2.Digest() != afterFirst {
		t.Fatalf("undo after resume did not restore the earlier turn")
	}

	// Tampered sessions are refused before the running level is touched.
	small := NewHarness(t, "small", "B,B\n\nP,N\n", DefaultConfig())
	small.Move(grid.East)
	other, err := small.S.Export()
	if err != nil {
		t.Fatalf("Export small: %v", err)
	}
	spliced := sess
	spliced.History = append([]snapshot.StateV1{sess.History[0]}, other.History...)
	s3 := stage.New(DefaultConfig(), nil)
	if err := s3.Resume(spliced, DefaultConfig()); !errors.Is(err, grid.ErrDimsMismatch) {
		t.Fatalf("spliced history: got %v", err)
	}
	if s3.Level() != nil {
		t.Fatalf("refused session installed a level")
	}

	stray := sess
	stray.Current.Entities = append([]snapshot.EntityV1(nil), sess.Current.Entities...)
	stray.Current.Entities[0].Pos = [3]int{9, 5, 0}
	if err := s2.Resume(stray, DefaultConfig()); !errors.Is(err, level.ErrInvalidLevelData) {
		t.Fatalf("entity outside grid: got %v", err)
	}
	if s2.Digest() != afterFirst || s2.UndoDepth() != 1 {
		t.Fatalf("refused session changed the running stage")
	}

	twin := sess
	twin.Current.Entities = append([]snapshot.EntityV1(nil), sess.Current.Entities...)
	twin.Current.Entities = append(twin.Current.Entities, twin.Current.Entities[0])
	if err := s3.Resume(twin, DefaultConfig()); !errors.Is(err, level.ErrInvalidLevelData) {
		t.Fatalf("duplicate entity: got %v", err)
	}
}

func TestReplay_ReproducesDigests(t *testing.T) {
	const layout = "B,F,B,B,B\n\nPR,M,N,N,KL\n"
	cfg := DefaultConfig()
	h := NewHarness(t, "mix", layout, cfg)
	h.Move(grid.East)
	h.Idle()
	h.Undo()
	h.Move(grid.East)
	if err := h.S.Restart(); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	h.Move(grid.East)

	lv, err := level.Parse("mix", strings.NewReader(layout))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := stage.New(cfg, nil)
	s.SetLoader(func(_, id string) (*level.Level, stage.Config, error) {
		if id != "mix" {
			return nil, stage.Config{}, errors.New("unknown level " + id)
		}
		return lv, cfg, nil
	})
	for _, rec := range h.Rec.Records {
		if err := s.Replay(rec); err != nil {
			t.Fatalf("replay: %v", err)
		}
	}
	if s.Digest() != h.S.Digest() {
		t.Fatalf("final digest differs")
	}

	bad := h.Rec.Records[1]
	bad.Digest = "00"
	s2 := stage.New(cfg, nil)
	s2.SetLoader(func(_, _ string) (*level.Level, stage.Config, error) { return lv, cfg, nil })
	if err := s2.Replay(h.Rec.Records[0]); err != nil {
		t.Fatalf("replay load: %v", err)
	}
	var div *stage.DivergenceError
	if err := s2.Replay(bad); !errors.As(err, &div) || div.Seq != bad.Seq {
		t.Fatalf("tampered digest: got %v", err)
	}
}
