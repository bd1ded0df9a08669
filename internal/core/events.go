package core

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire shape of every event on the server feed. Directory
// is the demux key; Payload carries a type tag plus type-specific
// properties.
type Envelope struct {
	Directory string  `json:"directory"`
	Payload   Payload `json:"payload"`
}

type Payload struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// Well-known event types on the feed.
const (
	EventServerConnected   = "server.connected"
	EventServerHeartbeat   = "server.heartbeat"
	EventMessageUpdated    = "message.updated"
	EventMessageRemoved    = "message.removed"
	EventPartUpdated       = "message.part.updated"
	EventPartRemoved       = "message.part.removed"
	EventSessionUpdated    = "session.updated"
	EventSessionDeleted    = "session.deleted"
	EventSessionStatus     = "session.status"
	EventPermissionAsked   = "permission.asked"
	EventPermissionReplied = "permission.replied"
	EventWorktreeReady     = "worktree.ready"
	EventWorktreeFailed    = "worktree.failed"
)

// Decode unmarshals the payload properties into the given typed struct.
func (p Payload) Decode(v any) error {
	if len(p.Properties) == 0 {
		return fmt.Errorf("core: event %s has no properties", p.Type)
	}
	if err := json.Unmarshal(p.Properties, v); err != nil {
		return fmt.Errorf("core: decode %s properties: %w", p.Type, err)
	}
	return nil
}

type MessageUpdated struct {
	Info Message `json:"info"`
}

type MessageRemoved struct {
	SessionID SessionID `json:"sessionID"`
	MessageID MessageID `json:"messageID"`
}

type PartUpdated struct {
	Part Part `json:"part"`
}

type PartRemoved struct {
	SessionID SessionID `json:"sessionID"`
	MessageID MessageID `json:"messageID"`
	PartID    PartID    `json:"partID"`
}

type SessionUpdated struct {
	Info Session `json:"info"`
}

type SessionDeleted struct {
	Info Session `json:"info"`
}

type SessionStatusChanged struct {
	SessionID SessionID     `json:"sessionID"`
	Status    SessionStatus `json:"status"`
}

type PermissionAsked struct {
	Permission Permission `json:"permission"`
}

type PermissionReplied struct {
	SessionID    SessionID          `json:"sessionID"`
	PermissionID PermissionID       `json:"permissionID"`
	Response     PermissionResponse `json:"response"`
}

type WorktreeEvent struct {
	Directory string `json:"directory"`
	Error     string `json:"error,omitempty"`
}
