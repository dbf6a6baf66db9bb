package models

import "encoding/json"

// Push event types delivered over the realtime connection. Unknown types are
// ignored for forward compatibility.
const (
	EventMessage         = "message"
	EventRequestCreated  = "request-created"
	EventRequestResolved = "request-resolved"
)

// PushEvent is the envelope of every realtime delivery.
type PushEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
