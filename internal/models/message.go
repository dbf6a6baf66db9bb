package models

import "time"

// Message is a direct message between two users. A message belongs to
// exactly one conversation, identified by the unordered sender/receiver pair.
type Message struct {
	ID         int       `json:"id"`
	SenderID   int       `json:"sender_id"`
	ReceiverID int       `json:"receiver_id"`
	Content    string    `json:"content"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`

	// LocalID tags an optimistic local send until the authoritative record
	// arrives; Pending is true while it awaits confirmation. Neither field
	// crosses the wire.
	LocalID string `json:"-"`
	Pending bool   `json:"-"`
}

// Counterpart returns the other party of the message relative to localID,
// and false if localID is neither sender nor receiver.
func (m Message) Counterpart(localID int) (int, bool) {
	switch localID {
	case m.SenderID:
		return m.ReceiverID, true
	case m.ReceiverID:
		return m.SenderID, true
	default:
		return 0, false
	}
}
