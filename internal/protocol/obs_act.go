package protocol

type ObsMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
	AgentID         string `json:"agent_id"`

	Self      SelfObs      `json:"self"`
	Inventory []ItemStack  `json:"inventory"`
	Equipment EquipmentObs `json:"equipment"`

	Voxels   VoxelsObs   `json:"voxels"`
	Entities []EntityObs `json:"entities"`
	Events   []Event     `json:"events"`
}

type SelfObs struct {
	Pos   [3]float64 `json:"pos"`
	Yaw   float64    `json:"yaw"`   // degrees
	Pitch float64    `json:"pitch"` // degrees
	HP    int        `json:"hp"`
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type EquipmentObs struct {
	MainHand string `json:"main_hand"`
}

type VoxelsObs struct {
	Center   [3]int         `json:"center"`
	Radius   int            `json:"radius"`
	Encoding string         `json:"encoding"` // "RLE" or "DELTA"
	Data     string         `json:"data,omitempty"`
	Ops      []VoxelDeltaOp `json:"ops,omitempty"`
}

const (
	EncodingRLE   = "RLE"
	EncodingDelta = "DELTA"
)

type VoxelDeltaOp struct {
	D [3]int `json:"d"` // delta from center (dx,dy,dz)
	B uint16 `json:"b"` // block palette id
}

type EntityObs struct {
	ID   string     `json:"id"`
	Type string     `json:"type"` // "AGENT", ...
	Name string     `json:"name,omitempty"`
	Pos  [3]float64 `json:"pos"`
}

const EntityAgent = "AGENT"

// Event types carried in ObsMsg.Events.
const (
	EventChat         = "CHAT"
	EventActionResult = "ACTION_RESULT"
)

type Event map[string]interface{}

func (e Event) Type() string { return e.Str("type") }

func (e Event) Str(key string) string {
	s, _ := e[key].(string)
	return s
}

func (e Event) Bool(key string) bool {
	b, _ := e[key].(bool)
	return b
}

// ACT (client -> server)
type ActMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	AgentID         string       `json:"agent_id"`
	Instants        []InstantReq `json:"instants,omitempty"`
	Tasks           []TaskReq    `json:"tasks,omitempty"`
	Cancel          []string     `json:"cancel,omitempty"`
}

// Instant and task types.
const (
	InstantSay     = "SAY"
	InstantEquip   = "EQUIP"
	InstantLook    = "LOOK"
	InstantControl = "CONTROL"

	TaskMoveTo = "MOVE_TO"
	TaskPlace  = "PLACE"
	TaskMine   = "MINE"
)

type InstantReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	Channel string `json:"channel,omitempty"`
	Text    string `json:"text,omitempty"`

	ItemID string `json:"item_id,omitempty"`

	Yaw   float64 `json:"yaw,omitempty"`
	Pitch float64 `json:"pitch,omitempty"`

	Control string `json:"control,omitempty"`
	State   bool   `json:"state,omitempty"`
}

type TaskReq struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	Target    [3]float64    `json:"target,omitempty"`
	Tolerance float64       `json:"tolerance,omitempty"`
	Movements *MovementsReq `json:"movements,omitempty"`

	BlockPos [3]int `json:"block_pos,omitempty"`
	ItemID   string `json:"item_id,omitempty"`
}

// MovementsReq constrains the server-side pathfinder for one MOVE_TO.
type MovementsReq struct {
	AllowDig   bool     `json:"allow_dig"`
	AllowPlace bool     `json:"allow_place"`
	Scaffold   []string `json:"scaffold,omitempty"`
	Avoid      []string `json:"avoid,omitempty"`
}
