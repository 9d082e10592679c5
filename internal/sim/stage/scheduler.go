package stage

import (
	"context"
	"fmt"
	"time"

	"voxelpush.ai/internal/persistence/snapshot"
	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
)

type InputKind uint8

const (
	InputMove InputKind = iota + 1
	InputUndo
	InputRestart
	InputLoad
	InputQuery
	// InputExport replies with a session copy for saving.
	InputExport
	// Setup phase: place a pool gimmick, turn a placed arrow, start play.
	InputPlace
	InputRotate
	InputStart
)

func (k InputKind) String() string {
	switch k {
	case InputMove:
		return "MOVE"
	case InputUndo:
		return "UNDO"
	case InputRestart:
		return "RESTART"
	case InputLoad:
		return "LOAD"
	case InputQuery:
		return "QUERY"
	case InputExport:
		return "EXPORT"
	case InputPlace:
		return "PLACE"
	case InputRotate:
		return "ROTATE"
	case InputStart:
		return "START"
	default:
		return "UNKNOWN"
	}
}

// Input is one event for a running stage. Reply, when set, should be
// buffered; a full reply channel drops the answer.
type Input struct {
	Kind   InputKind
	Entity entity.ID // 0 is the first player
	Dir    grid.Dir
	Level  string // InputLoad; empty loads the next level
	Slot   int        // InputPlace
	Pos    grid.Vec3i // InputPlace, InputRotate
	Reply  chan<- Reply
}

type Reply struct {
	// Record is set when the input changed state synchronously.
	Record *Record
	Err    error
	View   *View
	// Session answers InputExport.
	Session *snapshot.SessionV1
}

// View is a read-only copy of the live state.
type View struct {
	LevelID   string
	Trigger   Trigger
	Phase     Phase
	UndoDepth int
	Digest    string
	State     snapshot.StateV1
	// Setup is nil for levels without drop zones.
	Setup *SetupView
}

func (s *Stage) View() View {
	v := View{
		LevelID:   s.LevelID(),
		Trigger:   s.cfg.Trigger,
		Phase:     s.phase,
		UndoDepth: s.UndoDepth(),
		Digest:    s.Digest(),
	}
	if s.undo != nil {
		v.State = encodeState(s.undo.Capture(s.flags()))
		v.Setup = s.setupView()
	}
	return v
}

// Source paces turns for Run.
type Source interface {
	// Ticks fires a turn. A nil channel means turns follow input.
	Ticks() <-chan time.Time
	Stop()
}

// SourceFunc builds the source for a level's config. Run calls it again
// whenever a load changes the trigger or tick period.
type SourceFunc func(Config) Source

// DefaultSources ticks tick-driven levels on the wall clock.
func DefaultSources(cfg Config) Source {
	if cfg.Trigger == TriggerTick {
		return NewTickSource(cfg.Tick)
	}
	return InputSource{}
}

type TickSource struct {
	t *time.Ticker
}

func NewTickSource(d time.Duration) *TickSource {
	return &TickSource{t: time.NewTicker(d)}
}

func (ts *TickSource) Ticks() <-chan time.Time { return ts.t.C }
func (ts *TickSource) Stop()                   { ts.t.Stop() }

type InputSource struct{}

func (InputSource) Ticks() <-chan time.Time { return nil }
func (InputSource) Stop()                   {}

// ManualSource ticks only when Tick is called. Tests and replays use it.
type ManualSource struct {
	C chan time.Time
}

func NewManualSource() *ManualSource {
	return &ManualSource{C: make(chan time.Time)}
}

func (m *ManualSource) Ticks() <-chan time.Time { return m.C }
func (m *ManualSource) Stop()                   {}

// Tick blocks until Run accepts the tick.
func (m *ManualSource) Tick() { m.C <- time.Time{} }

// Inputs is the channel Run reads. Sends block when the buffer is full.
func (s *Stage) Inputs() chan<- Input { return s.inputs }

func (s *Stage) Stop() { s.stopOnce.Do(func() { close(s.stop) }) }

// Run drives the stage until ctx is done or Stop is called.
//
// With input-triggered levels every Input is one frame and a move input
// runs a turn right away. Setup inputs apply at once in both modes, and no
// turn runs before Start. With tick-driven levels inputs only turn the
// player or queue an undo or restart; each tick is one frame that applies a
// queued restart, else a queued undo, else runs a turn.
func (s *Stage) Run(ctx context.Context, sources SourceFunc) error {
	if sources == nil {
		sources = DefaultSources
	}
	src := sources(s.cfg)
	s.srcChanged = false
	defer func() { src.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case in := <-s.inputs:
			s.handleInput(in)
		case <-src.Ticks():
			s.tick()
		}
		if s.srcChanged {
			src.Stop()
			src = sources(s.cfg)
			s.srcChanged = false
		}
	}
}

func (s *Stage) handleInput(in Input) {
	tick := s.cfg.Trigger == TriggerTick
	var rep Reply
	switch in.Kind {
	case InputQuery:
		v := s.View()
		rep.View = &v
	case InputExport:
		sess, err := s.Export()
		rep.Err = err
		if err == nil {
			rep.Session = &sess
		}
	case InputLoad:
		s.AdvanceFrame()
		rep.Err = s.loadByID(in.Level)
		if rep.Err == nil {
			v := s.View()
			rep.View = &v
		}
	case InputMove:
		if err := s.RequestDirection(in.Entity, in.Dir); err != nil {
			rep.Err = err
			break
		}
		if tick {
			break
		}
		s.AdvanceFrame()
		rec, err := s.Step()
		rep.Err = err
		if err == nil {
			rep.Record = &rec
		}
	case InputPlace, InputRotate, InputStart:
		s.AdvanceFrame()
		var (
			rec Record
			err error
		)
		switch in.Kind {
		case InputPlace:
			rec, err = s.Place(in.Slot, in.Pos)
		case InputRotate:
			rec, err = s.Rotate(in.Pos)
		default:
			rec, err = s.Start()
		}
		rep.Err = err
		if err == nil {
			rep.Record = &rec
		}
	case InputUndo:
		if tick {
			if s.lv == nil {
				rep.Err = ErrNoLevel
				break
			}
			s.undoQueued = true
			break
		}
		s.AdvanceFrame()
		rec, err := s.TryUndo()
		rep.Err = err
		if err == nil {
			rep.Record = &rec
		}
	case InputRestart:
		if tick {
			if s.lv == nil {
				rep.Err = ErrNoLevel
				break
			}
			s.restartQueued = true
			break
		}
		s.AdvanceFrame()
		if rep.Err = s.Restart(); rep.Err == nil {
			v := s.View()
			rep.View = &v
		}
	default:
		rep.Err = fmt.Errorf("stage: unknown input kind %d", in.Kind)
	}
	if in.Reply != nil {
		select {
		case in.Reply <- rep:
		default:
		}
	}
}

func (s *Stage) tick() {
	if s.lv == nil {
		return
	}
	s.AdvanceFrame()
	switch {
	case s.restartQueued:
		s.restartQueued = false
		_ = s.Restart()
	case s.undoQueued:
		s.undoQueued = false
		_, _ = s.TryUndo()
	case s.goalReached || s.lost || s.InSetup():
	default:
		_, _ = s.Step()
	}
}

func (s *Stage) loadByID(id string) error {
	if s.loader == nil {
		return ErrNoLoader
	}
	lv, cfg, err := s.loader(s.LevelID(), id)
	if err != nil {
		return err
	}
	return s.Load(lv, cfg)
}
