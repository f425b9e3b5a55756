package protocol

import "encoding/json"

// HELLO (client -> server)
type HelloMsg struct {
	Type              string            `json:"type"`
	ProtocolVersion   string            `json:"protocol_version"`
	SupportedVersions []string          `json:"supported_versions,omitempty"`
	AgentName         string            `json:"agent_name"`
	Capabilities      HelloCapabilities `json:"capabilities"`
	Auth              *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	DeltaVoxels bool `json:"delta_voxels,omitempty"`
	MaxQueue    int  `json:"max_queue,omitempty"`
}

// Auth modes.
const (
	AuthOffline   = "offline"
	AuthMicrosoft = "microsoft"
)

type HelloAuth struct {
	Mode        string `json:"mode"`
	Token       string `json:"token,omitempty"`
	ResumeToken string `json:"resume_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SelectedVersion string      `json:"selected_version,omitempty"`
	AgentID         string      `json:"agent_id"`
	ResumeToken     string      `json:"resume_token"`
	WorldParams     WorldParams `json:"world_params"`
}

// Negotiated returns the version both sides agreed on.
func (w WelcomeMsg) Negotiated() string {
	if w.SelectedVersion != "" {
		return w.SelectedVersion
	}
	return w.ProtocolVersion
}

type WorldParams struct {
	TickRateHz int   `json:"tick_rate_hz"`
	Height     int   `json:"height"`
	ObsRadius  int   `json:"obs_radius"`
	Seed       int64 `json:"seed"`
}

// CATALOG (server -> client). Each catalog arrives as a single part.
type CatalogMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Name            string          `json:"name"` // e.g. "block_defs"
	Digest          string          `json:"digest"`
	Data            json.RawMessage `json:"data"`
}

const CatalogBlockDefs = "block_defs"

// BlockDef is one entry of the block_defs catalog; ID is the palette id
// used in voxel data.
type BlockDef struct {
	ID        uint16 `json:"id"`
	Name      string `json:"name"`
	Solid     bool   `json:"solid"`
	Breakable bool   `json:"breakable"`
}

// KICK (server -> client), followed by a close.
type KickMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Reason          string `json:"reason"`
	Code            string `json:"code,omitempty"`
}
