// Package stage runs turns over one loaded level: it collects intents,
// resolves them in entity-id order, reconciles gravity and switches and
// keeps the undo history.
package stage

import (
	"encoding/hex"
	"fmt"
	"sync"

	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/movement"
	"voxelpush.ai/internal/sim/undo"
)

type Phase uint8

const (
	Idle Phase = iota
	Resolving
	Reconciling
)

func (p Phase) String() string {
	switch p {
	case Resolving:
		return "resolving"
	case Reconciling:
		return "reconciling"
	default:
		return "idle"
	}
}

// Stage is not safe for concurrent use. Run owns it; other goroutines talk
// to it through Inputs.
type Stage struct {
	cfg Config
	obs Observer

	lv       *level.Level
	g        *grid.Grid
	reg      *entity.Registry
	resolver *movement.Resolver
	undo     *undo.Manager
	setup    *setupState

	phase       Phase
	turn        uint64
	goalReached bool
	lost        bool
	seq         uint64

	pending map[entity.ID]grid.Dir
	// undone is set once an undo lands in the current frame.
	undone bool

	loader        Loader
	undoQueued    bool
	restartQueued bool
	srcChanged    bool

	inputs   chan Input
	stop     chan struct{}
	stopOnce sync.Once
}

// Loader resolves a level id into a layout and its config. An empty
// requested id means the level after current.
type Loader func(current, requested string) (*level.Level, Config, error)

func New(cfg Config, obs Observer) *Stage {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Stage{
		cfg:     cfg.normalize(),
		obs:     obs,
		pending: map[entity.ID]grid.Dir{},
		inputs:  make(chan Input, 256),
		stop:    make(chan struct{}),
	}
}

func (s *Stage) SetLoader(l Loader) { s.loader = l }

func (s *Stage) Config() Config             { return s.cfg }
func (s *Stage) Level() *level.Level        { return s.lv }
func (s *Stage) Grid() *grid.Grid           { return s.g }
func (s *Stage) Registry() *entity.Registry { return s.reg }
func (s *Stage) Phase() Phase               { return s.phase }
func (s *Stage) Turn() uint64               { return s.turn }
func (s *Stage) GoalReached() bool          { return s.goalReached }
func (s *Stage) Lost() bool                 { return s.lost }

func (s *Stage) UndoDepth() int {
	if s.undo == nil {
		return 0
	}
	return s.undo.Len()
}

func (s *Stage) LevelID() string {
	if s.lv == nil {
		return ""
	}
	return s.lv.ID
}

func (s *Stage) flags() undo.Flags {
	return undo.Flags{GoalReached: s.goalReached, Lost: s.lost, Turn: s.turn}
}

// Digest identifies the full live state, flags included.
func (s *Stage) Digest() string {
	if s.undo == nil {
		return ""
	}
	d := s.undo.Capture(s.flags()).Digest()
	if s.setup != nil {
		d = s.setup.digest(d)
	}
	return hex.EncodeToString(d[:])
}

// Load replaces the level. The old grid, registry and undo history are
// discarded. On error the stage keeps its previous level.
func (s *Stage) Load(lv *level.Level, cfg Config) error {
	if s.phase != Idle {
		return ErrTurnInProgress
	}
	if err := s.install(lv, cfg.normalize()); err != nil {
		return err
	}
	s.emitLoaded(RecordLoad, false)
	return nil
}

// Restart reloads the current level from its layout. Placed gimmicks go
// back to the pool.
func (s *Stage) Restart() error {
	if s.lv == nil {
		return ErrNoLevel
	}
	if s.phase != Idle {
		return ErrTurnInProgress
	}
	if err := s.install(s.lv, s.cfg); err != nil {
		return err
	}
	s.emitLoaded(RecordRestart, true)
	return nil
}

func (s *Stage) install(lv *level.Level, cfg Config) error {
	g, err := lv.NewGrid()
	if err != nil {
		return fmt.Errorf("load level %s: %w", lv.ID, err)
	}
	reg := entity.NewRegistry()
	lv.Populate(reg)

	if s.lv == nil || s.cfg.Trigger != cfg.Trigger || s.cfg.Tick != cfg.Tick {
		s.srcChanged = true
	}
	s.lv = lv
	s.cfg = cfg
	s.g = g
	s.reg = reg
	s.resolver = movement.NewResolver(g, reg, cfg.Policy)
	s.undo = undo.NewManager(g, reg, cfg.UndoLimit)
	s.setup = newSetup(lv)
	s.turn = 0
	s.goalReached = false
	s.lost = false
	s.undone = false
	s.undoQueued = false
	s.restartQueued = false
	clear(s.pending)

	// Authored layouts may leave entities hanging; settle them before turn 0.
	s.reconcile()
	return nil
}

func (s *Stage) emitLoaded(kind RecordKind, restart bool) {
	s.obs.OnLevelLoaded(LevelInfo{
		ID:      s.lv.ID,
		W:       s.lv.W,
		H:       s.lv.H,
		D:       s.lv.D,
		Trigger: s.cfg.Trigger,
		Tick:    s.cfg.Tick,
		Policy:  s.cfg.Policy,
		Units:   s.cfg.Units,
		Restart: restart,
	})
	s.obs.OnRecord(s.record(kind))
}

func (s *Stage) record(kind RecordKind) Record {
	s.seq++
	return Record{
		Seq:         s.seq,
		Kind:        kind,
		LevelID:     s.lv.ID,
		Turn:        s.turn,
		GoalReached: s.goalReached,
		Lost:        s.lost,
		Digest:      s.Digest(),
	}
}

// player resolves id 0 to the lowest-id player.
func (s *Stage) player(id entity.ID) (entity.Entity, error) {
	if id == 0 {
		ps := s.reg.OfKind(entity.Player)
		if len(ps) == 0 {
			return entity.Entity{}, ErrUnknownEntity
		}
		return ps[0], nil
	}
	e, ok := s.reg.Get(id)
	if !ok || e.Kind != entity.Player {
		return entity.Entity{}, fmt.Errorf("%w: %d", ErrUnknownEntity, id)
	}
	return e, nil
}

// RequestDirection sets the direction a player moves on the next turn. In
// tick-driven levels it also turns the player right away. id 0 means the
// first player.
func (s *Stage) RequestDirection(id entity.ID, d grid.Dir) error {
	if s.lv == nil {
		return ErrNoLevel
	}
	if d == grid.DirNone {
		return ErrNoDirection
	}
	if s.InSetup() {
		return ErrNotStarted
	}
	e, err := s.player(id)
	if err != nil {
		return err
	}
	s.pending[e.ID] = d
	if s.cfg.Trigger == TriggerTick {
		s.reg.SetFacing(e.ID, d)
	}
	return nil
}

// AdvanceFrame starts a new frame, which re-arms undo.
func (s *Stage) AdvanceFrame() { s.undone = false }

// Undo restores the state before the most recent moving turn. It reports
// false when nothing was undone.
func (s *Stage) Undo() bool {
	_, err := s.TryUndo()
	return err == nil
}

// TryUndo is Undo with the refusal reason. Undo is refused after a win,
// allowed after a loss, and applied at most once per frame.
func (s *Stage) TryUndo() (Record, error) {
	if s.lv == nil {
		return Record{}, ErrNoLevel
	}
	if s.phase != Idle {
		return Record{}, ErrTurnInProgress
	}
	if s.goalReached {
		return Record{}, ErrStageOver
	}
	if s.undone {
		return Record{}, ErrUndoCoalesced
	}
	snap, err := s.undo.Pop()
	if err != nil {
		return Record{}, err
	}
	s.undo.Apply(snap)
	s.turn = snap.Flags.Turn
	s.goalReached = snap.Flags.GoalReached
	s.lost = snap.Flags.Lost
	s.undone = true
	clear(s.pending)

	rec := s.record(RecordUndo)
	s.obs.OnUndoApplied()
	s.obs.OnRecord(rec)
	return rec, nil
}

type intent struct {
	id   entity.ID
	kind entity.Kind
	dir  grid.Dir
	auto bool
}

func (s *Stage) collectIntents() []intent {
	tick := s.cfg.Trigger == TriggerTick
	var out []intent
	for _, e := range s.reg.Sorted() {
		switch e.Kind {
		case entity.Player:
			d, ok := s.pending[e.ID]
			if !ok && tick && e.Facing != grid.DirNone {
				d, ok = e.Facing, true
			}
			if ok {
				out = append(out, intent{id: e.ID, kind: e.Kind, dir: d, auto: tick})
			}
		case entity.Robot:
			if e.Facing != grid.DirNone {
				out = append(out, intent{id: e.ID, kind: e.Kind, dir: e.Facing, auto: true})
			}
		}
	}
	clear(s.pending)
	return out
}

// Step runs one turn. A turn in which nothing moves still advances the turn
// counter but leaves no undo entry. Levels with drop zones refuse turns
// until Start.
func (s *Stage) Step() (Record, error) {
	if s.lv == nil {
		return Record{}, ErrNoLevel
	}
	if s.phase != Idle {
		return Record{}, ErrTurnInProgress
	}
	if s.InSetup() {
		return Record{}, ErrNotStarted
	}
	if s.goalReached || s.lost {
		return Record{}, ErrStageOver
	}

	s.phase = Resolving
	intents := s.collectIntents()
	plans := make([]movement.Outcome, 0, len(intents))
	moved := false
	for _, in := range intents {
		o := s.resolver.Plan(in.id, in.dir, in.auto)
		moved = moved || o.Moved()
		plans = append(plans, o)
	}
	if moved {
		s.undo.Snapshot(s.flags())
	}

	var eff movement.Effects
	for i, o := range plans {
		eff.Merge(s.resolver.Commit(o, intents[i].auto))
	}

	s.phase = Reconciling
	falls, settled := s.reconcile()
	eff.Merge(settled)

	s.turn++
	if eff.PlayerBurned() {
		s.lost = true
	}
	newGoal := false
	if !s.lost && eff.GoalReached && !s.goalReached {
		s.goalReached = true
		newGoal = true
	}

	rec := s.record(RecordTurn)
	for _, in := range intents {
		rec.Intents = append(rec.Intents, IntentRecord{
			Entity: uint32(in.id),
			Actor:  in.kind.String(),
			Dir:    string(in.dir.Code()),
			Auto:   in.auto,
		})
	}
	rec.Moves, rec.Blocked = moveRecords(plans, falls)
	rec.Fragile = cellRecords(eff.Fragile)
	rec.Burned = burnRecords(eff.Burned)

	for _, o := range plans {
		if !o.Moved() {
			continue
		}
		if o.Box != nil {
			s.obs.OnMoveCommitted(o.Box.ID, o.Box.From, o.Box.To, o.Box.Kind)
		}
		s.obs.OnMoveCommitted(o.Entity, o.From, o.To, o.Kind)
	}
	for _, o := range falls {
		s.obs.OnMoveCommitted(o.Entity, o.From, o.To, o.Kind)
	}
	for _, p := range eff.Fragile {
		s.obs.OnFragileDestroyed(p)
	}
	if newGoal {
		s.obs.OnGoalReached()
	}
	s.obs.OnRecord(rec)

	s.phase = Idle
	return rec, nil
}

// reconcile rebuilds box occupancy from the registry and settles gravity
// until switches and falls agree.
func (s *Stage) reconcile() ([]movement.Outcome, movement.Effects) {
	var (
		falls []movement.Outcome
		eff   movement.Effects
	)
	for {
		s.syncOccupancy()
		s.updateSwitch()
		f, e := s.resolver.Settle()
		eff.Merge(e)
		if len(f) == 0 {
			break
		}
		falls = append(falls, f...)
	}
	s.syncOccupancy()
	s.resolver.Reservations().Clear()
	return falls, eff
}

func (s *Stage) syncOccupancy() {
	s.g.ClearOccupancy()
	for _, e := range s.reg.OfKind(entity.Box) {
		_ = s.g.SetOccupied(e.Pos, true)
	}
}

// updateSwitch opens every OnOffSwitch while any entity rests on a switch
// plate, or while something is still inside an open switch cell.
func (s *Stage) updateSwitch() {
	open := false
	for _, e := range s.reg.Sorted() {
		k, err := s.g.Static(e.Pos)
		if err != nil {
			continue
		}
		if k == grid.SwitchPlate || k == grid.OnOffSwitch {
			open = true
			break
		}
	}
	s.g.SetSwitchOpen(open)
}
