package indexdb

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"voxelpush.ai/internal/sim/level"
)

// UpsertLevels stores the canonical layout and digest of every level in a
// pack, so indexed records can be matched to the layout they ran on.
func (w *writer) UpsertLevels(ctx context.Context, m *level.Manifest) error {
	if w == nil || m == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	q := w.dialect.rebind(`INSERT INTO levels(level_id,pack,ord,file,trigger_mode,digest,layout,updated_at) VALUES(?,?,?,?,?,?,?,?)
		ON CONFLICT (level_id) DO UPDATE SET pack=excluded.pack, ord=excluded.ord, file=excluded.file,
			trigger_mode=excluded.trigger_mode, digest=excluded.digest, layout=excluded.layout, updated_at=excluded.updated_at`)
	for i, e := range m.Levels {
		lv, err := m.Load(e)
		if err != nil {
			return fmt.Errorf("level %s: %w", e.ID, err)
		}
		var buf bytes.Buffer
		if err := lv.Encode(&buf); err != nil {
			return fmt.Errorf("level %s: %w", e.ID, err)
		}
		sum := sha256.Sum256(buf.Bytes())
		trig := e.Trigger
		if trig == "" {
			trig = "default"
		}
		if _, err := tx.ExecContext(ctx, q, e.ID, m.Name, i, e.File, trig, hex.EncodeToString(sum[:]), buf.String(), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}
