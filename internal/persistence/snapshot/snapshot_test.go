package snapshot

import (
	"path/filepath"
	"testing"
)

func TestSession_WriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions", "1-1.snap.zst")
	in := SessionV1{
		Header:  Header{Version: Version, LevelID: "1-1", Turn: 7},
		Layout:  "P,N\n",
		Trigger: "input",
		Policy:  PolicyV1{GoalAirForBoxes: true, PortalMode: "floor", Traversal: "layered"},
		Current: StateV1{
			Dims:     [3]int{2, 1, 1},
			Cells:    "AAI=",
			NextID:   2,
			Entities: []EntityV1{{ID: 1, Kind: "PLAYER", Pos: [3]int{0, 0, 0}, Facing: "E"}},
			Turn:     7,
		},
		History: []StateV1{{Dims: [3]int{2, 1, 1}, Turn: 6}},
	}
	if err := WriteSession(path, in); err != nil {
		t.Fatalf("WriteSession: %v", err)
	}

	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h != in.Header {
		t.Fatalf("header: got %+v want %+v", h, in.Header)
	}

	out, err := ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}
	if out.Layout != in.Layout || out.Current.Turn != 7 || len(out.History) != 1 {
		t.Fatalf("session: got %+v", out)
	}
	if out.Current.Entities[0] != in.Current.Entities[0] {
		t.Fatalf("entity: got %+v", out.Current.Entities[0])
	}
}

func TestSession_RejectsUnknownVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.snap.zst")
	if err := WriteSession(path, SessionV1{Header: Header{Version: 99}}); err != nil {
		t.Fatalf("WriteSession: %v", err)
	}
	if _, err := ReadSession(path); err == nil {
		t.Fatalf("expected version error")
	}
}
