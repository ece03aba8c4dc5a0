package models

import "time"

type MessageKind string

const (
	KindText       MessageKind = "text"
	KindFile       MessageKind = "file"
	KindTyping     MessageKind = "typing"
	KindStopTyping MessageKind = "stop-typing"
	KindSignaling  MessageKind = "signaling"
)

// Ephemeral kinds are UI hints: best-effort delivery, no retry, no
// ordering promise beyond "delivered or dropped".
func (k MessageKind) Ephemeral() bool {
	return k == KindTyping || k == KindStopTyping
}

// RoomMessage is the transient envelope carried by the signaling relay.
// Timestamp is assigned by the relay and is monotonically non-decreasing
// per room. The payload is opaque for signaling kinds.
type RoomMessage struct {
	RoomID     string          `json:"room_id"`
	SenderID   string          `json:"sender_id"`
	SenderType ParticipantType `json:"sender_type"`
	Kind       MessageKind     `json:"kind"`
	Payload    []byte          `json:"payload,omitempty"`
	FileName   string          `json:"file_name,omitempty"`
	MimeType   string          `json:"mime_type,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Seq        int64           `json:"seq"`
}
