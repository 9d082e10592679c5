package ws

import (
	"errors"

	"voxelpush.ai/internal/protocol"
	"voxelpush.ai/internal/sim/entity"
	"voxelpush.ai/internal/sim/grid"
	"voxelpush.ai/internal/sim/level"
	"voxelpush.ai/internal/sim/stage"
	"voxelpush.ai/internal/sim/undo"
)

func eventMsg(r stage.Record) protocol.EventMsg {
	ev := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Seq:             r.Seq,
		Kind:            string(r.Kind),
		LevelID:         r.LevelID,
		Turn:            r.Turn,
		Fragile:         r.Fragile,
		GoalReached:     r.GoalReached,
		Lost:            r.Lost,
		Digest:          r.Digest,
	}
	for _, m := range r.Moves {
		ev.Moves = append(ev.Moves, protocol.MoveEvent{ID: m.Entity, Kind: m.Kind, From: m.From, To: m.To})
	}
	for _, b := range r.Blocked {
		ev.Blocked = append(ev.Blocked, protocol.BlockedEvent{ID: b.Entity, Reason: b.Reason})
	}
	for _, b := range r.Burned {
		ev.Burned = append(ev.Burned, protocol.BurnEvent{ID: b.Entity, Kind: b.Kind, Pos: b.Pos})
	}
	if su := r.Setup; su != nil {
		ev.Setup = &protocol.SetupEvent{Slot: su.Slot, Pos: su.Pos, Dir: su.Dir}
	}
	return ev
}

func stateMsg(v stage.View) protocol.StateMsg {
	st := v.State
	out := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		LevelID:         v.LevelID,
		Turn:            st.Turn,
		Phase:           v.Phase.String(),
		Dims:            st.Dims,
		Cells:           st.Cells,
		Boxes:           st.Boxes,
		SwitchOpen:      st.SwitchOpen,
		Entities:        make([]protocol.EntityObs, 0, len(st.Entities)),
		GoalReached:     st.GoalReached,
		Lost:            st.Lost,
		UndoDepth:       v.UndoDepth,
		Digest:          v.Digest,
	}
	for _, e := range st.Entities {
		out.Entities = append(out.Entities, protocol.EntityObs{ID: e.ID, Kind: e.Kind, Pos: e.Pos, Facing: e.Facing})
	}
	if su := v.Setup; su != nil {
		obs := &protocol.SetupObs{
			Started: su.Started,
			Zones:   append(make([][3]int, 0, len(su.Zones)), su.Zones...),
			Pool:    make([]protocol.GimmickObs, 0, len(su.Pool)),
		}
		for _, g := range su.Pool {
			obs.Pool = append(obs.Pool, protocol.GimmickObs{Slot: g.Slot, Kind: g.Kind, Dir: g.Dir, Placed: g.Placed, Pos: g.Pos})
		}
		out.Setup = obs
	}
	return out
}

func welcomeMsg(sessionID, role string, info stage.LevelInfo) protocol.WelcomeMsg {
	w := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		Role:            role,
		LevelID:         info.ID,
		Trigger:         info.Trigger.String(),
		Dims:            [3]int{info.W, info.H, info.D},
	}
	if info.Trigger == stage.TriggerTick {
		w.TickMs = int(info.Tick.Milliseconds())
	}
	return w
}

// inputFor maps a wire INPUT to a stage input. The second result is a
// protocol error code when the message cannot be mapped.
func inputFor(in protocol.InputMsg) (stage.Input, string) {
	switch in.Action {
	case protocol.ActionMove:
		if len(in.Dir) != 1 {
			return stage.Input{}, protocol.ErrBadRequest
		}
		d, ok := grid.ParseDirCode(in.Dir[0])
		if !ok {
			return stage.Input{}, protocol.ErrBadRequest
		}
		return stage.Input{Kind: stage.InputMove, Entity: entity.ID(in.Player), Dir: d}, ""
	case protocol.ActionUndo:
		return stage.Input{Kind: stage.InputUndo}, ""
	case protocol.ActionRestart:
		return stage.Input{Kind: stage.InputRestart}, ""
	case protocol.ActionLoad:
		return stage.Input{Kind: stage.InputLoad, Level: in.Level}, ""
	case protocol.ActionState:
		return stage.Input{Kind: stage.InputQuery}, ""
	case protocol.ActionPlace:
		if in.Pos == nil || in.Slot < 0 {
			return stage.Input{}, protocol.ErrBadRequest
		}
		return stage.Input{Kind: stage.InputPlace, Slot: in.Slot, Pos: grid.FromArray(*in.Pos)}, ""
	case protocol.ActionRotate:
		if in.Pos == nil {
			return stage.Input{}, protocol.ErrBadRequest
		}
		return stage.Input{Kind: stage.InputRotate, Pos: grid.FromArray(*in.Pos)}, ""
	case protocol.ActionStart:
		return stage.Input{Kind: stage.InputStart}, ""
	default:
		return stage.Input{}, protocol.ErrBadRequest
	}
}

func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, stage.ErrTurnInProgress):
		return protocol.ErrInProgress
	case errors.Is(err, stage.ErrStageOver):
		return protocol.ErrStageOver
	case errors.Is(err, stage.ErrNoLevel):
		return protocol.ErrNoLevel
	case errors.Is(err, stage.ErrUnknownEntity):
		return protocol.ErrUnknownActor
	case errors.Is(err, stage.ErrNoDirection):
		return protocol.ErrBadRequest
	case errors.Is(err, stage.ErrUndoCoalesced):
		return protocol.ErrUndoLimited
	case errors.Is(err, stage.ErrNotStarted), errors.Is(err, stage.ErrNotInSetup):
		return protocol.ErrNotStarted
	case errors.Is(err, stage.ErrBadPlacement):
		return protocol.ErrBadPlacement
	case errors.Is(err, undo.ErrStackEmpty):
		return protocol.ErrUndoEmpty
	case errors.Is(err, stage.ErrUnknownLevel), errors.Is(err, stage.ErrNoLoader):
		return protocol.ErrLevelUnknown
	case errors.Is(err, level.ErrInvalidLevelData):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}
