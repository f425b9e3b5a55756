// Package protocol holds the JSON frames exchanged with the world server
// over its websocket endpoint.
package protocol

import "encoding/json"

// Version is the newest world version this agent speaks.
const Version = "1.2"

// SupportedVersions lists every world version the agent can drive, newest
// first.
var SupportedVersions = []string{"1.2", "1.1", "1.0"}

func IsSupportedVersion(v string) bool {
	for _, s := range SupportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeCatalog = "CATALOG"
	TypeObs     = "OBS"
	TypeAct     = "ACT"
	TypeKick    = "KICK"
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
