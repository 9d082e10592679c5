package log

import (
	"path/filepath"
	"testing"
	"time"

	"voxelpush.ai/internal/sim/stage"
)

func TestTurnLogger_WriteAndRead(t *testing.T) {
	dir := t.TempDir()
	var closed []string
	l := NewTurnLoggerWithOptions(dir, LoggerOptions{OnClose: func(p string) { closed = append(closed, p) }})

	in := []stage.Record{
		{Seq: 1, Kind: stage.RecordLoad, LevelID: "1-1", Digest: "aa"},
		{Seq: 2, Kind: stage.RecordTurn, LevelID: "1-1", Turn: 1, Digest: "bb",
			Intents: []stage.IntentRecord{{Entity: 1, Actor: "PLAYER", Dir: "R"}}},
	}
	for _, r := range in {
		l.OnRecord(r)
	}
	if err := l.Err(); err != nil {
		t.Fatalf("logger error: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("OnClose calls: got %v", closed)
	}

	files, err := ListFiles(filepath.Join(dir, "turns"), "turns")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0] != closed[0] {
		t.Fatalf("files: got %v want %v", files, closed)
	}
	var out []stage.Record
	if err := ReadRecords(files[0], func(r stage.Record) error {
		out = append(out, r)
		return nil
	}); err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(out) != 2 || out[1].Intents[0].Dir != "R" || out[1].Digest != "bb" {
		t.Fatalf("records: got %+v", out)
	}
}

func TestJSONLZstdWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "turns")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := ListFiles(dir, "turns")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	want := []string{
		filepath.Join(dir, "turns-2026-03-01-10.jsonl.zst"),
		filepath.Join(dir, "turns-2026-03-01-11.jsonl.zst"),
	}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Fatalf("files: got %v want %v", files, want)
	}
}

func TestAuditEntries(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	got := AuditEntries(stage.Record{
		Kind:    stage.RecordTurn,
		LevelID: "1-3",
		Turn:    4,
		Fragile: [][3]int{{1, 0, 0}},
		Burned:  []stage.BurnRecord{{Entity: 2, Kind: "BOX", Pos: [3]int{3, 1, 0}}},
	}, at)
	if len(got) != 2 || got[0].Kind != AuditFragile || got[1].Kind != AuditBurned || got[1].Entity != 2 {
		t.Fatalf("entries: %+v", got)
	}
	if *got[0].Pos != [3]int{1, 0, 0} {
		t.Fatalf("fragile pos: %v", *got[0].Pos)
	}

	got = AuditEntries(stage.Record{Kind: stage.RecordTurn, GoalReached: true}, at)
	if len(got) != 1 || got[0].Kind != AuditCleared {
		t.Fatalf("cleared: %+v", got)
	}
	if got := AuditEntries(stage.Record{Kind: stage.RecordUndo}, at); len(got) != 0 {
		t.Fatalf("undo should not audit: %+v", got)
	}

	got = AuditEntries(stage.Record{Kind: stage.RecordPlace, Setup: &stage.SetupRecord{Slot: 1, Pos: [3]int{2, 1, 0}}}, at)
	if len(got) != 1 || got[0].Kind != AuditPlaced || *got[0].Pos != [3]int{2, 1, 0} {
		t.Fatalf("placed: %+v", got)
	}
	if got := AuditEntries(stage.Record{Kind: stage.RecordRotate, Setup: &stage.SetupRecord{}}, at); len(got) != 0 {
		t.Fatalf("rotate should not audit: %+v", got)
	}
	if got := AuditEntries(stage.Record{Kind: stage.RecordStart}, at); len(got) != 1 || got[0].Kind != AuditStarted {
		t.Fatalf("started: %+v", got)
	}
}
