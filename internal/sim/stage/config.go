package stage

import (
	"fmt"
	"time"

	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/movement"
	"voxelpush.ai/internal/sim/tuning"
)

// Trigger selects what advances a turn.
type Trigger uint8

const (
	TriggerInput Trigger = iota
	TriggerTick
)

func (t Trigger) String() string {
	if t == TriggerTick {
		return "tick"
	}
	return "input"
}

func ParseTrigger(s string) (Trigger, error) {
	switch s {
	case "", "input":
		return TriggerInput, nil
	case "tick":
		return TriggerTick, nil
	default:
		return TriggerInput, fmt.Errorf("unknown trigger %q", s)
	}
}

type Config struct {
	Trigger   Trigger
	Tick      time.Duration
	Policy    movement.Policy
	Units     grid.Units
	UndoLimit int
}

func ConfigFromTuning(t tuning.Tuning) (Config, error) {
	trig, err := ParseTrigger(t.Trigger)
	if err != nil {
		return Config{}, err
	}
	portal, err := movement.ParsePortalMode(t.PortalMode)
	if err != nil {
		return Config{}, err
	}
	trav, err := movement.ParseTraversal(t.Traversal)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Trigger: trig,
		Tick:    msDuration(t.TickMs),
		Policy: movement.Policy{
			GoalAirForBoxes:   t.GoalAirForBoxes,
			GoalAirForActors:  t.GoalAirForActors,
			Portal:            portal,
			Traversal:         trav,
			RobotsAvoidLedges: t.RobotsAvoidLedges,
		},
		Units:     grid.Units{CellSize: t.CellSize, LayerHeight: t.LayerHeight},
		UndoLimit: t.UndoLimit,
	}, nil
}

// WithEntry applies a manifest entry's overrides. Empty fields keep c.
func (c Config) WithEntry(e level.Entry) (Config, error) {
	if e.Trigger != "" {
		t, err := ParseTrigger(e.Trigger)
		if err != nil {
			return c, fmt.Errorf("level %s: %w", e.ID, err)
		}
		c.Trigger = t
	}
	if e.TickMs > 0 {
		c.Tick = msDuration(e.TickMs)
	}
	if e.GoalAirForBoxes != nil {
		c.Policy.GoalAirForBoxes = *e.GoalAirForBoxes
	}
	if e.GoalAirForActors != nil {
		c.Policy.GoalAirForActors = *e.GoalAirForActors
	}
	if e.PortalMode != "" {
		m, err := movement.ParsePortalMode(e.PortalMode)
		if err != nil {
			return c, fmt.Errorf("level %s: %w", e.ID, err)
		}
		c.Policy.Portal = m
	}
	if e.Traversal != "" {
		t, err := movement.ParseTraversal(e.Traversal)
		if err != nil {
			return c, fmt.Errorf("level %s: %w", e.ID, err)
		}
		c.Policy.Traversal = t
	}
	return c, nil
}

func (c Config) normalize() Config {
	if c.Tick <= 0 {
		c.Tick = 500 * time.Millisecond
	}
	if !c.Units.Valid() {
		c.Units = grid.DefaultUnits
	}
	return c
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
