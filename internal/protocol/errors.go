package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session routing.
	ErrNoPermission = "E_NO_PERMISSION"
	ErrBusy         = "E_BUSY"
	ErrNoLevel      = "E_NO_LEVEL"
	ErrLevelUnknown = "E_LEVEL_UNKNOWN"

	// Rule layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrUnknownActor = "E_UNKNOWN_ACTOR"
	ErrStageOver    = "E_STAGE_OVER"
	ErrInProgress   = "E_IN_PROGRESS"
	ErrUndoEmpty    = "E_UNDO_EMPTY"
	ErrUndoLimited  = "E_UNDO_COALESCED"
	ErrBlocked      = "E_BLOCKED"
	ErrNotStarted   = "E_NOT_STARTED"
	ErrBadPlacement = "E_BAD_PLACEMENT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrNoPermission:    {},
	ErrBusy:            {},
	ErrNoLevel:         {},
	ErrLevelUnknown:    {},
	ErrBadRequest:      {},
	ErrUnknownActor:    {},
	ErrStageOver:       {},
	ErrInProgress:      {},
	ErrUndoEmpty:       {},
	ErrUndoLimited:     {},
	ErrBlocked:         {},
	ErrNotStarted:      {},
	ErrBadPlacement:    {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
