package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeInput   = "INPUT"
	TypeAck     = "ACK"
	TypeEvent   = "EVENT"
	TypeState   = "STATE"
	TypeError   = "ERROR"
)

// Input actions.
const (
	ActionMove    = "MOVE"
	ActionUndo    = "UNDO"
	ActionRestart = "RESTART"
	ActionLoad    = "LOAD"
	ActionState   = "STATE"

	// Setup phase of levels with drop zones.
	ActionPlace  = "PLACE"
	ActionRotate = "ROTATE"
	ActionStart  = "START"
)

// Session roles. Viewers only receive.
const (
	RoleViewer     = "viewer"
	RoleController = "controller"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
