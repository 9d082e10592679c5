package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"voxelpush.ai/internal/persistence/archive"
	persistlog "voxelpush.ai/internal/persistence/log"
	"voxelpush.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rewind":
			rewindCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints saved sessions and archived clears.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	sessions, _ := filepath.Glob(filepath.Join(*dataDir, "sessions", "*.snap.zst"))
	sort.Strings(sessions)
	for _, path := range sessions {
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", filepath.Base(path), err)
			continue
		}
		fmt.Printf("session %s level=%s turn=%d cleared=%v\n", filepath.Base(path), h.LevelID, h.Turn, h.Cleared)
	}

	metas, _ := filepath.Glob(filepath.Join(*dataDir, "archives", "*", "turn_*", "meta.json"))
	sort.Strings(metas)
	for _, path := range metas {
		m, err := archive.ReadMeta(filepath.Dir(path))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			continue
		}
		fmt.Printf("clear level=%s turn=%d trigger=%s undo=%d at=%s\n", m.LevelID, m.Turn, m.Trigger, m.UndoDepth, m.CreatedAt)
	}
	if len(sessions)+len(metas) == 0 {
		fmt.Println("no sessions or archives under", *dataDir)
	}
}

// rewindCmd writes a copy of a session with the last n turns undone.
func rewindCmd(args []string) {
	fs := flag.NewFlagSet("rewind", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	sessPath := fs.String("session", "", "session file (optional; defaults to <data>/sessions/current.snap.zst)")
	turns := fs.Int("turns", 1, "number of undo steps to apply")
	outPath := fs.String("out", "", "output session path (optional)")
	_ = fs.Parse(args)

	in := strings.TrimSpace(*sessPath)
	if in == "" {
		in = filepath.Join(*dataDir, "sessions", "current.snap.zst")
	}
	sess, err := snapshot.ReadSession(in)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read session:", err)
		os.Exit(1)
	}
	before := sess.Header.Turn
	out, err := rewind(sess, *turns)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rewind:", err)
		os.Exit(2)
	}
	if strings.TrimSpace(*outPath) == "" {
		*outPath = strings.TrimSuffix(in, ".snap.zst") + fmt.Sprintf(".rewind-%d.snap.zst", out.Header.Turn)
	}
	if err := snapshot.WriteSession(*outPath, out); err != nil {
		fmt.Fprintln(os.Stderr, "write session:", err)
		os.Exit(1)
	}
	fmt.Printf("rewind ok: level=%s turn=%d->%d undo=%d out=%s\n", out.Header.LevelID, before, out.Header.Turn, len(out.History), *outPath)
}

var errRewindDepth = errors.New("not enough undo history")

// rewind pops n entries off the session's undo history, the same way n
// undos would.
func rewind(sess snapshot.SessionV1, n int) (snapshot.SessionV1, error) {
	if n <= 0 {
		return sess, fmt.Errorf("turns must be positive, got %d", n)
	}
	if n > len(sess.History) {
		return sess, fmt.Errorf("%w: have %d, want %d", errRewindDepth, len(sess.History), n)
	}
	keep := len(sess.History) - n
	sess.Current = sess.History[keep]
	sess.History = append([]snapshot.StateV1(nil), sess.History[:keep]...)
	sess.Header.Turn = sess.Current.Turn
	sess.Header.Cleared = sess.Current.GoalReached
	return sess, nil
}

// auditCmd prints audit entries matching the filters as JSON lines.
func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	levelID := fs.String("level", "", "level id filter (optional)")
	kind := fs.String("kind", "", "kind filter, e.g. FRAGILE_DESTROYED (optional)")
	sinceTurn := fs.Uint64("since_turn", 0, "skip entries before this turn")
	_ = fs.Parse(args)

	files, err := persistlog.ListFiles(filepath.Join(*dataDir, "audit"), "audit")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list audit:", err)
		os.Exit(1)
	}
	f := auditFilter{LevelID: *levelID, Kind: strings.ToUpper(*kind), SinceTurn: *sinceTurn}
	n := 0
	for _, path := range files {
		err := persistlog.ScanFile(path, func(line []byte) error {
			var e persistlog.AuditEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			if f.match(e) {
				n++
				printJSON(e)
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read audit:", err)
			os.Exit(1)
		}
	}
	fmt.Fprintf(os.Stderr, "audit: files=%d matched=%d\n", len(files), n)
}

type auditFilter struct {
	LevelID   string
	Kind      string
	SinceTurn uint64
}

func (f auditFilter) match(e persistlog.AuditEntry) bool {
	if f.LevelID != "" && e.LevelID != f.LevelID {
		return false
	}
	if f.Kind != "" && string(e.Kind) != f.Kind {
		return false
	}
	return e.Turn >= f.SinceTurn
}
