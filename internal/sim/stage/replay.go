package stage

import (
	"fmt"

	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
)

// DivergenceError reports a replayed record whose digest differs from the
// one that was logged.
type DivergenceError struct {
	Seq  uint64
	Kind RecordKind
	Turn uint64
	Want string
	Got  string
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("replay diverged at seq %d (%s turn %d): got %s want %s", e.Seq, e.Kind, e.Turn, e.Got, e.Want)
}

// Replay re-applies one logged record as its own frame and checks the
// resulting digest. LOAD records go through the loader.
func (s *Stage) Replay(r Record) error {
	s.AdvanceFrame()
	switch r.Kind {
	case RecordLoad:
		if s.loader == nil {
			return ErrNoLoader
		}
		lv, cfg, err := s.loader(s.LevelID(), r.LevelID)
		if err != nil {
			return fmt.Errorf("replay load %s: %w", r.LevelID, err)
		}
		if err := s.Load(lv, cfg); err != nil {
			return err
		}
	case RecordRestart:
		if err := s.Restart(); err != nil {
			return err
		}
	case RecordUndo:
		if _, err := s.TryUndo(); err != nil {
			return fmt.Errorf("replay undo at seq %d: %w", r.Seq, err)
		}
	case RecordPlace, RecordRotate:
		if r.Setup == nil {
			return fmt.Errorf("replay seq %d: %s without placement", r.Seq, r.Kind)
		}
		pos := grid.FromArray(r.Setup.Pos)
		var err error
		if r.Kind == RecordPlace {
			_, err = s.Place(r.Setup.Slot, pos)
		} else {
			_, err = s.Rotate(pos)
		}
		if err != nil {
			return fmt.Errorf("replay seq %d: %w", r.Seq, err)
		}
	case RecordStart:
		if _, err := s.Start(); err != nil {
			return fmt.Errorf("replay seq %d: %w", r.Seq, err)
		}
	case RecordTurn:
		for _, in := range r.Intents {
			if in.Actor != entity.Player.String() {
				continue
			}
			if len(in.Dir) != 1 {
				return fmt.Errorf("replay seq %d: bad direction %q", r.Seq, in.Dir)
			}
			d, ok := grid.ParseDirCode(in.Dir[0])
			if !ok {
				return fmt.Errorf("replay seq %d: bad direction %q", r.Seq, in.Dir)
			}
			if err := s.RequestDirection(entity.ID(in.Entity), d); err != nil {
				return fmt.Errorf("replay seq %d: %w", r.Seq, err)
			}
		}
		if _, err := s.Step(); err != nil {
			return fmt.Errorf("replay turn %d: %w", r.Turn, err)
		}
	default:
		return fmt.Errorf("replay seq %d: unknown record kind %q", r.Seq, r.Kind)
	}
	if got := s.Digest(); got != r.Digest {
		return &DivergenceError{Seq: r.Seq, Kind: r.Kind, Turn: r.Turn, Want: r.Digest, Got: got}
	}
	return nil
}
