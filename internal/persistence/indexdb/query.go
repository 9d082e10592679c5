package indexdb

import (
	"context"
)

type LevelSummary struct {
	LevelID  string `json:"level_id"`
	Turns    int64  `json:"turns"`
	Undos    int64  `json:"undos"`
	Restarts int64  `json:"restarts"`
	Clears   int64  `json:"clears"`
	Losses   int64  `json:"losses"`
	// BestTurns is the fewest turns of any clear, 0 when never cleared.
	BestTurns int64 `json:"best_turns"`
}

type RecordRow struct {
	Session string `json:"session"`
	Seq     int64  `json:"seq"`
	Kind    string `json:"kind"`
	LevelID string `json:"level_id"`
	Turn    int64  `json:"turn"`
	Digest  string `json:"digest"`
	Moves   int    `json:"moves"`
	Blocked int    `json:"blocked"`
}

func (w *writer) Summaries(ctx context.Context) ([]LevelSummary, error) {
	rows, err := w.db.QueryContext(ctx, w.dialect.rebind(`
		SELECT level_id,
			SUM(CASE WHEN kind='TURN' THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind='UNDO' THEN 1 ELSE 0 END),
			SUM(CASE WHEN kind='RESTART' THEN 1 ELSE 0 END),
			SUM(goal_reached),
			SUM(lost),
			COALESCE(MIN(CASE WHEN goal_reached=1 THEN turn END), 0)
		FROM records
		GROUP BY level_id
		ORDER BY level_id`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LevelSummary
	for rows.Next() {
		var s LevelSummary
		if err := rows.Scan(&s.LevelID, &s.Turns, &s.Undos, &s.Restarts, &s.Clears, &s.Losses, &s.BestTurns); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Records lists the latest records of a level, newest first. An empty
// levelID matches every level.
func (w *writer) Records(ctx context.Context, levelID string, limit int) ([]RecordRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := w.db.QueryContext(ctx, w.dialect.rebind(`
		SELECT session, seq, kind, level_id, turn, digest, moves, blocked
		FROM records
		WHERE (? = '' OR level_id = ?)
		ORDER BY session DESC, seq DESC
		LIMIT ?`), levelID, levelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordRow
	for rows.Next() {
		var r RecordRow
		if err := rows.Scan(&r.Session, &r.Seq, &r.Kind, &r.LevelID, &r.Turn, &r.Digest, &r.Moves, &r.Blocked); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
