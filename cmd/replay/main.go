package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	persistlog "voxelpush.ai/internal/persistence/log"
	"voxelpush.ai/internal/persistence/snapshot"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/stage"
	"voxelpush.ai/internal/sim/tuning"
)

// errStop ends a scan early once -max records have been checked.
var errStop = errors.New("stop")

func main() {
	var (
		turnsDir   = flag.String("turns", "./data/turns", "dir containing turns-*.jsonl.zst")
		packPath   = flag.String("pack", "./levels/pack.yaml", "level pack manifest")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (defaults when missing)")
		snapPath   = flag.String("snapshot", "", "session file to start from (optional)")
		maxChecked = flag.Uint64("max", 0, "stop after checking this many records (0 = all)")
	)
	flag.Parse()

	if *turnsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -turns")
		os.Exit(2)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}
	base, err := stage.ConfigFromTuning(tune)
	if err != nil {
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(1)
	}
	pack, err := level.LoadManifest(*packPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load pack:", err)
		os.Exit(1)
	}

	s := stage.New(base, nil)
	s.SetLoader(stage.PackLoader(pack, base))

	v := &verifier{s: s, max: *maxChecked}
	if *snapPath != "" {
		sess, err := snapshot.ReadSession(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		if err := s.Resume(sess, base); err != nil {
			fmt.Fprintln(os.Stderr, "resume:", err)
			os.Exit(1)
		}
		v.anchor = s.Digest()
		fmt.Printf("snapshot v%d level=%s turn=%d cleared=%v undo=%d\n",
			sess.Header.Version, sess.Header.LevelID, sess.Header.Turn, sess.Header.Cleared, len(sess.History))
	}

	files, err := persistlog.ListFiles(*turnsDir, "turns")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list turns:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no turn files found in", *turnsDir)
		os.Exit(1)
	}

	for _, path := range files {
		err := persistlog.ReadRecords(path, v.record)
		if errors.Is(err, errStop) {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	if v.anchor != "" {
		fmt.Fprintln(os.Stderr, "snapshot state never appeared in the turn log")
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d skipped=%d resumes=%d files=%d\n", v.checked, v.skipped, v.resumes, len(files))
}

// verifier replays records in log order. A LOAD record that does not match
// a fresh load marks a server that resumed from a session; records after it
// are skipped until the next level load that can be reproduced.
type verifier struct {
	s   *stage.Stage
	max uint64

	// anchor is the digest of the resumed snapshot. Records are skipped
	// until one with this digest has been seen.
	anchor string
	synced bool

	checked uint64
	skipped uint64
	resumes uint64
}

func (v *verifier) record(r stage.Record) error {
	if v.max != 0 && v.checked >= v.max {
		return errStop
	}
	if v.anchor != "" {
		if r.Digest == v.anchor {
			v.anchor = ""
			v.synced = true
		}
		v.skipped++
		return nil
	}
	if !v.synced && r.Kind != stage.RecordLoad {
		v.skipped++
		return nil
	}

	err := v.s.Replay(r)
	var div *stage.DivergenceError
	switch {
	case err == nil:
		v.synced = true
		v.checked++
		return nil
	case r.Kind == stage.RecordLoad && (errors.As(err, &div) || !v.synced):
		if v.synced {
			v.resumes++
			fmt.Printf("resume point at seq %d level=%s turn=%d; skipping to next load\n", r.Seq, r.LevelID, r.Turn)
		}
		v.synced = false
		v.skipped++
		return nil
	default:
		return err
	}
}
