package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"voxelpush.ai/internal/persistence/snapshot"
)

type ClearMeta struct {
	LevelID   string `json:"level_id"`
	Turn      uint64 `json:"turn"`
	Trigger   string `json:"trigger"`
	UndoDepth int    `json:"undo_depth"`
	Snapshot  string `json:"snapshot"`
	Layout    string `json:"layout"`
	CreatedAt string `json:"created_at"`
}

// ArchiveClearedLevel copies the session file of a cleared level into
// `dataDir/archives/<level>/turn_<NNNNNN>/`, next to the level layout and
// a meta.json. Sessions that are not cleared are left alone and report
// archived=false.
func ArchiveClearedLevel(dataDir, sessionPath string, sess snapshot.SessionV1) (archivedPath string, archived bool, err error) {
	if !sess.Header.Cleared || sess.Header.LevelID == "" {
		return "", false, nil
	}
	dir := filepath.Join(dataDir, "archives", safeName(sess.Header.LevelID), fmt.Sprintf("turn_%06d", sess.Header.Turn))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(dir, filepath.Base(sessionPath))
	if err := copyFile(sessionPath, dst); err != nil {
		return "", false, err
	}
	if err := os.WriteFile(filepath.Join(dir, "layout.txt"), []byte(sess.Layout), 0o644); err != nil {
		return "", false, err
	}

	meta := ClearMeta{
		LevelID:   sess.Header.LevelID,
		Turn:      sess.Header.Turn,
		Trigger:   sess.Trigger,
		UndoDepth: len(sess.History),
		Snapshot:  filepath.Base(dst),
		Layout:    "layout.txt",
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return dst, true, nil
}

// ReadMeta loads the meta.json next to an archived session.
func ReadMeta(archivedPath string) (ClearMeta, error) {
	var m ClearMeta
	b, err := os.ReadFile(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// safeName keeps level ids usable as a single path element.
func safeName(id string) string {
	out := []rune(id)
	for i, r := range out {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			out[i] = '_'
		}
	}
	if s := string(out); s != "." && s != ".." {
		return s
	}
	return "_"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
