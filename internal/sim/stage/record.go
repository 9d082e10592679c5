package stage

import (
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/movement"
)

type RecordKind string

const (
	RecordTurn    RecordKind = "TURN"
	RecordUndo    RecordKind = "UNDO"
	RecordRestart RecordKind = "RESTART"
	RecordLoad    RecordKind = "LOAD"
	RecordPlace   RecordKind = "PLACE"
	RecordRotate  RecordKind = "ROTATE"
	RecordStart   RecordKind = "START"
)

// Record is the log line for one state change. Digest is the state digest
// after the change; replaying the same records from the same level must
// reproduce it.
type Record struct {
	Seq     uint64     `json:"seq"`
	Kind    RecordKind `json:"kind"`
	LevelID string     `json:"level_id"`
	Turn    uint64     `json:"turn"`

	Intents []IntentRecord  `json:"intents,omitempty"`
	Moves   []MoveRecord    `json:"moves,omitempty"`
	Blocked []BlockedRecord `json:"blocked,omitempty"`
	Fragile [][3]int        `json:"fragile,omitempty"`
	Burned  []BurnRecord    `json:"burned,omitempty"`
	Setup   *SetupRecord    `json:"setup,omitempty"`

	GoalReached bool   `json:"goal_reached,omitempty"`
	Lost        bool   `json:"lost,omitempty"`
	Digest      string `json:"digest"`
}

// IntentRecord is the direction an actor was asked to move this turn.
type IntentRecord struct {
	Entity uint32 `json:"id"`
	Actor  string `json:"actor"`
	Dir    string `json:"dir"`
	Auto   bool   `json:"auto,omitempty"`
}

// SetupRecord is the placement a PLACE or ROTATE record left behind.
type SetupRecord struct {
	Slot int    `json:"slot"`
	Pos  [3]int `json:"pos"`
	Dir  string `json:"dir,omitempty"`
}

type MoveRecord struct {
	Entity   uint32 `json:"id"`
	Kind     string `json:"kind"`
	From     [3]int `json:"from"`
	To       [3]int `json:"to"`
	Reversed bool   `json:"reversed,omitempty"`
}

type BlockedRecord struct {
	Entity uint32 `json:"id"`
	Reason string `json:"reason"`
}

type BurnRecord struct {
	Entity uint32 `json:"id"`
	Kind   string `json:"kind"`
	Pos    [3]int `json:"pos"`
}

func moveRecords(plans []movement.Outcome, falls []movement.Outcome) ([]MoveRecord, []BlockedRecord) {
	var moves []MoveRecord
	var blocked []BlockedRecord
	for _, o := range plans {
		if !o.Moved() {
			blocked = append(blocked, BlockedRecord{Entity: uint32(o.Entity), Reason: string(o.Reason)})
			continue
		}
		if o.Box != nil {
			moves = append(moves, MoveRecord{
				Entity: uint32(o.Box.ID),
				Kind:   o.Box.Kind.String(),
				From:   o.Box.From.Array(),
				To:     o.Box.To.Array(),
			})
		}
		moves = append(moves, MoveRecord{
			Entity:   uint32(o.Entity),
			Kind:     o.Kind.String(),
			From:     o.From.Array(),
			To:       o.To.Array(),
			Reversed: o.Reversed,
		})
	}
	for _, o := range falls {
		moves = append(moves, MoveRecord{
			Entity: uint32(o.Entity),
			Kind:   o.Kind.String(),
			From:   o.From.Array(),
			To:     o.To.Array(),
		})
	}
	return moves, blocked
}

func cellRecords(ps []grid.Vec3i) [][3]int {
	if len(ps) == 0 {
		return nil
	}
	out := make([][3]int, len(ps))
	for i, p := range ps {
		out[i] = p.Array()
	}
	return out
}

func burnRecords(bs []movement.Burn) []BurnRecord {
	if len(bs) == 0 {
		return nil
	}
	out := make([]BurnRecord, len(bs))
	for i, b := range bs {
		out[i] = BurnRecord{Entity: uint32(b.ID), Kind: b.Kind.String(), Pos: b.Pos.Array()}
	}
	return out
}
