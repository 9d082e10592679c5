package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxelpush.ai/internal/persistence/archive"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/movement"
	"voxelpush.ai/internal/sim/stage"
	"voxelpush.ai/internal/sim/tuning"
	"voxelpush.ai/internal/transport/ws"
)

func TestSessionSaver_ArchivesClearedLevel(t *testing.T) {
	dataDir := t.TempDir()
	lv, err := level.Parse("short", strings.NewReader("B,B\n\nP,G\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := stage.Config{Trigger: stage.TriggerInput, Policy: movement.DefaultPolicy()}

	logger := log.New(io.Discard, "", 0)
	saver := newSessionSaver(nil, dataDir, nil, nil, logger)
	s := stage.New(cfg, saver)
	saver.inputs = s.Inputs()
	if err := s.Load(lv, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx, nil)
	}()
	go saver.run(ctx)

	reply := make(chan stage.Reply, 1)
	s.Inputs() <- stage.Input{Kind: stage.InputMove, Dir: grid.East, Reply: reply}
	if rep := <-reply; rep.Err != nil || rep.Record == nil || !rep.Record.GoalReached {
		t.Fatalf("winning move: %+v", rep)
	}

	path, h, err := saver.Save(ctx)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if path != filepath.Join(dataDir, "sessions", "current.snap.zst") || h.LevelID != "short" {
		t.Fatalf("save: %s %+v", path, h)
	}

	deadline := time.Now().Add(3 * time.Second)
	var metas []string
	for time.Now().Before(deadline) {
		metas, _ = filepath.Glob(filepath.Join(dataDir, "archives", "short", "turn_*", "meta.json"))
		if len(metas) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(metas) != 1 {
		t.Fatalf("no archive written")
	}
	snaps, _ := filepath.Glob(filepath.Join(filepath.Dir(metas[0]), "*.snap.zst"))
	if len(snaps) != 1 {
		t.Fatalf("archived sessions: %v", snaps)
	}
	meta, err := archive.ReadMeta(snaps[0])
	if err != nil || meta.LevelID != "short" || meta.Turn != 1 {
		t.Fatalf("meta: %+v %v", meta, err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("current session: %v", err)
	}
	cancel()
	<-done
}

func TestWriteMetrics(t *testing.T) {
	v := &stage.View{LevelID: "1-1", UndoDepth: 2}
	v.State.Turn = 5
	var buf bytes.Buffer
	writeMetrics(&buf, metricsSource{view: v, hub: ws.NewHub()})
	out := buf.String()
	for _, want := range []string{
		`voxelpush_stage_turn{level="1-1"} 5`,
		`voxelpush_stage_undo_depth{level="1-1"} 2`,
		`voxelpush_ws_sessions 0`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "voxelpush_index_") {
		t.Fatalf("index metrics without an index")
	}
}

func TestShippedLevelsLoad(t *testing.T) {
	pack, err := level.LoadManifest(filepath.Join("..", "..", "levels", "pack.yaml"))
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	tune, err := tuning.Load(filepath.Join("..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	base, err := stage.ConfigFromTuning(tune)
	if err != nil {
		t.Fatalf("ConfigFromTuning: %v", err)
	}
	load := stage.PackLoader(pack, base)
	s := stage.New(base, nil)
	for _, e := range pack.Levels {
		lv, cfg, err := load("", e.ID)
		if err != nil {
			t.Fatalf("level %s: %v", e.ID, err)
		}
		if err := s.Load(lv, cfg); err != nil {
			t.Fatalf("load %s: %v", e.ID, err)
		}
		if s.Lost() || s.GoalReached() {
			t.Fatalf("level %s starts finished", e.ID)
		}
		if lv.HasSetup() != s.InSetup() {
			t.Fatalf("level %s: setup phase %v with %d drop zones", e.ID, s.InSetup(), len(lv.Zones))
		}
	}
}
