package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type" jsonschema:"enum=HELLO"`
	ProtocolVersion string `json:"protocol_version" jsonschema:"minLength=1"`
	ClientName      string `json:"client_name" jsonschema:"minLength=1"`
	Role            string `json:"role,omitempty" jsonschema:"enum=viewer,enum=controller"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type" jsonschema:"enum=WELCOME"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	Role            string `json:"role" jsonschema:"enum=viewer,enum=controller"`
	LevelID         string `json:"level_id"`
	Trigger         string `json:"trigger" jsonschema:"enum=input,enum=tick"`
	TickMs          int    `json:"tick_ms,omitempty"`
	Dims            [3]int `json:"dims"`
}

// INPUT (client -> server). Dir is one of U, D, L, R. PLACE puts pool
// Slot on drop zone Pos; ROTATE turns the arrow at Pos.
type InputMsg struct {
	Type            string  `json:"type" jsonschema:"enum=INPUT"`
	ProtocolVersion string  `json:"protocol_version"`
	ReqID           string  `json:"req_id,omitempty"`
	Action          string  `json:"action" jsonschema:"enum=MOVE,enum=UNDO,enum=RESTART,enum=LOAD,enum=STATE,enum=PLACE,enum=ROTATE,enum=START"`
	Dir             string  `json:"dir,omitempty" jsonschema:"enum=U,enum=D,enum=L,enum=R"`
	Player          uint32  `json:"player,omitempty"`
	Level           string  `json:"level,omitempty"`
	Slot            int     `json:"slot,omitempty" jsonschema:"minimum=0"`
	Pos             *[3]int `json:"pos,omitempty"`
}

// ACK (server -> client) answers an INPUT with a req_id.
type AckMsg struct {
	Type            string `json:"type" jsonschema:"enum=ACK"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Turn            uint64 `json:"turn"`
}

// EVENT (server -> client): one committed turn, undo, restart, load or
// setup edit.
type EventMsg struct {
	Type            string `json:"type" jsonschema:"enum=EVENT"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Kind            string `json:"kind" jsonschema:"enum=TURN,enum=UNDO,enum=RESTART,enum=LOAD,enum=PLACE,enum=ROTATE,enum=START"`
	LevelID         string `json:"level_id"`
	Turn            uint64 `json:"turn"`

	Moves   []MoveEvent    `json:"moves,omitempty"`
	Blocked []BlockedEvent `json:"blocked,omitempty"`
	Fragile [][3]int       `json:"fragile,omitempty"`
	Burned  []BurnEvent    `json:"burned,omitempty"`
	Setup   *SetupEvent    `json:"setup,omitempty"`

	GoalReached bool   `json:"goal_reached,omitempty"`
	Lost        bool   `json:"lost,omitempty"`
	Digest      string `json:"digest"`
}

type MoveEvent struct {
	ID   uint32 `json:"id"`
	Kind string `json:"kind" jsonschema:"enum=MOVED,enum=PUSHED,enum=FELL,enum=TELEPORTED"`
	From [3]int `json:"from"`
	To   [3]int `json:"to"`
}

type BlockedEvent struct {
	ID     uint32 `json:"id"`
	Reason string `json:"reason"`
}

type SetupEvent struct {
	Slot int    `json:"slot"`
	Pos  [3]int `json:"pos"`
	Dir  string `json:"dir,omitempty" jsonschema:"enum=U,enum=D,enum=L,enum=R"`
}

type BurnEvent struct {
	ID   uint32 `json:"id"`
	Kind string `json:"kind"`
	Pos  [3]int `json:"pos"`
}

// STATE (server -> client): the full grid. Cells is the run-length encoded
// static layer and Boxes the box occupancy bitset, both base64.
type StateMsg struct {
	Type            string `json:"type" jsonschema:"enum=STATE"`
	ProtocolVersion string `json:"protocol_version"`
	LevelID         string `json:"level_id"`
	Turn            uint64 `json:"turn"`
	Phase           string `json:"phase"`
	Dims            [3]int `json:"dims"`
	Cells           string `json:"cells"`
	Boxes           string `json:"boxes"`
	SwitchOpen      bool   `json:"switch_open"`

	Entities []EntityObs `json:"entities"`
	Setup    *SetupObs   `json:"setup,omitempty"`

	GoalReached bool   `json:"goal_reached"`
	Lost        bool   `json:"lost"`
	UndoDepth   int    `json:"undo_depth"`
	Digest      string `json:"digest"`
}

type EntityObs struct {
	ID     uint32 `json:"id"`
	Kind   string `json:"kind" jsonschema:"enum=PLAYER,enum=BOX,enum=ROBOT"`
	Pos    [3]int `json:"pos"`
	Facing string `json:"facing,omitempty"`
}

// SetupObs is the placement phase of a level with drop zones.
type SetupObs struct {
	Started bool         `json:"started"`
	Zones   [][3]int     `json:"zones"`
	Pool    []GimmickObs `json:"pool"`
}

type GimmickObs struct {
	Slot   int    `json:"slot"`
	Kind   string `json:"kind" jsonschema:"enum=ARROW,enum=BLOCK"`
	Dir    string `json:"dir,omitempty"`
	Placed bool   `json:"placed"`
	Pos    [3]int `json:"pos"`
}

// ERROR (server -> client) for messages that cannot be routed at all.
type ErrorMsg struct {
	Type            string `json:"type" jsonschema:"enum=ERROR"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
