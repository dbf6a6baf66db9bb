package models

import "time"

// RequestStatus is the lifecycle state of a chat request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// ChatRequest asks a counterpart for permission to message. Once the status
// leaves pending the record is terminal and never reverts.
type ChatRequest struct {
	ID         int           `json:"id"`
	SenderID   int           `json:"sender_id"`
	ReceiverID int           `json:"receiver_id"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Terminal reports whether the request can no longer change.
func (r ChatRequest) Terminal() bool {
	return r.Status == RequestAccepted || r.Status == RequestRejected
}

// Counterpart returns the other party of the request relative to localID,
// and false if localID is not involved at all.
func (r ChatRequest) Counterpart(localID int) (int, bool) {
	switch localID {
	case r.SenderID:
		return r.ReceiverID, true
	case r.ReceiverID:
		return r.SenderID, true
	default:
		return 0, false
	}
}
