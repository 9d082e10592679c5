package main

import (
	"errors"
	"testing"

	persistlog "voxelpush.ai/internal/persistence/log"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/stage"
	"voxelpush.ai/internal/sim/stagetest"
)

func TestRewind_MatchesUndo(t *testing.T) {
	h := stagetest.NewHarness(t, "walk", "B,B,B,B\n\nP,N,N,N\n", stagetest.DefaultConfig())
	h.Move(grid.East)
	afterFirst := h.S.Digest()
	h.Move(grid.East)

	sess, err := h.S.Export()
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	out, err := rewind(sess, 1)
	if err != nil {
		t.Fatalf("rewind: %v", err)
	}
	if out.Header.Turn != 1 || len(out.History) != 1 || len(sess.History) != 2 {
		t.Fatalf("rewind: turn=%d history=%d (input history=%d)", out.Header.Turn, len(out.History), len(sess.History))
	}

	s := stage.New(stagetest.DefaultConfig(), nil)
	if err := s.Resume(out, stagetest.DefaultConfig()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if s.Digest() != afterFirst {
		t.Fatalf("rewound digest differs from the state after the first move")
	}

	if _, err := rewind(sess, 3); !errors.Is(err, errRewindDepth) {
		t.Fatalf("rewind past history: got %v", err)
	}
	if _, err := rewind(sess, 0); err == nil {
		t.Fatalf("rewind 0 should fail")
	}
}

func TestAuditFilter(t *testing.T) {
	e := persistlog.AuditEntry{Kind: persistlog.AuditFragile, LevelID: "1-1", Turn: 4}
	cases := []struct {
		f    auditFilter
		want bool
	}{
		{auditFilter{}, true},
		{auditFilter{LevelID: "1-1", Kind: "FRAGILE_DESTROYED"}, true},
		{auditFilter{LevelID: "1-2"}, false},
		{auditFilter{Kind: "BURNED"}, false},
		{auditFilter{SinceTurn: 4}, true},
		{auditFilter{SinceTurn: 5}, false},
	}
	for i, tc := range cases {
		if got := tc.f.match(e); got != tc.want {
			t.Fatalf("case %d: got %v want %v", i, got, tc.want)
		}
	}
}
