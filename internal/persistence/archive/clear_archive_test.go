package archive

import (
	"os"
	"path/filepath"
	"testing"

	"voxelpush.ai/internal/persistence/snapshot"
)

func TestArchiveClearedLevel_CopiesSession(t *testing.T) {
	dataDir := t.TempDir()
	src := filepath.Join(dataDir, "sessions", "1-1.snap.zst")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	want := []byte("dummy")
	if err := os.WriteFile(src, want, 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	sess := snapshot.SessionV1{
		Header:  snapshot.Header{Version: snapshot.Version, LevelID: "1-1", Turn: 12, Cleared: true},
		Layout:  "B,B\n\nP,G\n",
		Trigger: "input",
		History: make([]snapshot.StateV1, 3),
	}
	path, ok, err := ArchiveClearedLevel(dataDir, src, sess)
	if err != nil || !ok {
		t.Fatalf("archive: ok=%v err=%v", ok, err)
	}
	if want := filepath.Join(dataDir, "archives", "1-1", "turn_000012", "1-1.snap.zst"); path != want {
		t.Fatalf("path: got %s want %s", path, want)
	}
	got, err := os.ReadFile(path)
	if err != nil || string(got) != string(want) {
		t.Fatalf("archived content: %q %v", got, err)
	}
	layout, err := os.ReadFile(filepath.Join(filepath.Dir(path), "layout.txt"))
	if err != nil || string(layout) != sess.Layout {
		t.Fatalf("layout: %q %v", layout, err)
	}
	meta, err := ReadMeta(path)
	if err != nil {
		t.Fatalf("ReadMeta: %v", err)
	}
	if meta.LevelID != "1-1" || meta.Turn != 12 || meta.UndoDepth != 3 || meta.Snapshot != "1-1.snap.zst" {
		t.Fatalf("meta: %+v", meta)
	}
}

func TestArchiveClearedLevel_SkipsUnclearedAndEscapesID(t *testing.T) {
	dataDir := t.TempDir()
	src := filepath.Join(dataDir, "s.snap.zst")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatalf("write src: %v", err)
	}

	_, ok, err := ArchiveClearedLevel(dataDir, src, snapshot.SessionV1{Header: snapshot.Header{LevelID: "1-1", Turn: 3}})
	if err != nil || ok {
		t.Fatalf("uncleared session archived: ok=%v err=%v", ok, err)
	}

	path, ok, err := ArchiveClearedLevel(dataDir, src, snapshot.SessionV1{Header: snapshot.Header{LevelID: "../up", Turn: 1, Cleared: true}})
	if err != nil || !ok {
		t.Fatalf("archive: ok=%v err=%v", ok, err)
	}
	rel, err := filepath.Rel(filepath.Join(dataDir, "archives"), path)
	if err != nil || rel != filepath.Join(".._up", "turn_000001", "s.snap.zst") {
		t.Fatalf("escaped path: %s %v", rel, err)
	}
}
