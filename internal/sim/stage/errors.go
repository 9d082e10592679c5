package stage

import "errors"

var (
	ErrTurnInProgress = errors.New("stage: turn in progress")
	ErrStageOver      = errors.New("stage: stage over")
	ErrNoLevel        = errors.New("stage: no level loaded")
	ErrUnknownEntity  = errors.New("stage: unknown player")
	ErrNoDirection    = errors.New("stage: no direction")
	// ErrUndoCoalesced refuses a second undo inside one frame.
	ErrUndoCoalesced = errors.New("stage: undo already applied this frame")
	ErrNoLoader      = errors.New("stage: no level loader")
	// ErrUnknownLevel is what loaders wrap for ids they cannot resolve.
	ErrUnknownLevel = errors.New("stage: unknown level")

	// ErrNotStarted refuses turns and moves while gimmicks are being placed.
	ErrNotStarted   = errors.New("stage: level not started")
	ErrNotInSetup   = errors.New("stage: not in setup phase")
	ErrBadPlacement = errors.New("stage: bad placement")
)
