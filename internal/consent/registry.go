package consent

import (
	"go.uber.org/zap"

	"chat-client/internal/models"
)

// State is the consent edge toward one counterpart.
type State string

const (
	StateNone            State = "none"
	StatePendingOutgoing State = "pending-outgoing"
	StatePendingIncoming State = "pending-incoming"
	StateMutual          State = "mutual"
)

// Registry tracks, per counterpart, whether the local user may message them.
// Mutual consent is reported by two independent signals (mutual-like
// snapshots and request resolutions), so mutual is an absorbing state and
// every transition is idempotent: snapshots and push deltas may repeat the
// same fact in either order without regressing it.
type Registry struct {
	localID int
	edges   map[int]State
	log     *zap.Logger
}

// NewRegistry builds an empty registry for the given local user id.
func NewRegistry(localID int, log *zap.Logger) *Registry {
	return &Registry{
		localID: localID,
		edges:   make(map[int]State),
		log:     log,
	}
}

// StateOf returns the edge toward counterpartID, StateNone for unknown ids.
func (r *Registry) StateOf(counterpartID int) State {
	if s, ok := r.edges[counterpartID]; ok {
		return s
	}
	return StateNone
}

// IngestMutualSnapshot marks every listed counterpart mutual. Ids previously
// pending have had their accept race resolved server-side.
func (r *Registry) IngestMutualSnapshot(counterpartIDs []int) {
	for _, id := range counterpartIDs {
		r.edges[id] = StateMutual
	}
}

// IngestRequestSnapshot folds a full request listing into the edges. Pending
// requests set the matching pending direction, accepted requests advance to
// mutual (the same fact the mutual-like snapshot reports, via the other
// signal), and rejected requests reset the edge unless consent already
// exists independently. Terminal records apply before pending ones: the
// listing's order is not guaranteed, and an old rejection must not clobber a
// pending edge another record in the same batch establishes.
func (r *Registry) IngestRequestSnapshot(requests []models.ChatRequest) {
	for _, req := range requests {
		counterpart, ok := req.Counterpart(r.localID)
		if !ok {
			r.log.Warn("request snapshot entry does not involve local user",
				zap.Int("request_id", req.ID),
				zap.Int("sender_id", req.SenderID),
				zap.Int("receiver_id", req.ReceiverID))
			continue
		}

		switch req.Status {
		case models.RequestAccepted:
			r.edges[counterpart] = StateMutual
		case models.RequestRejected:
			if r.StateOf(counterpart) != StateMutual {
				r.edges[counterpart] = StateNone
			}
		}
	}

	for _, req := range requests {
		if req.Status != models.RequestPending {
			continue
		}
		counterpart, ok := req.Counterpart(r.localID)
		if !ok {
			continue
		}
		if r.StateOf(counterpart) == StateMutual {
			continue
		}
		if req.SenderID == r.localID {
			// An incoming pending stays actionable even when we also
			// have one outgoing toward the same counterpart.
			if r.StateOf(counterpart) == StatePendingIncoming {
				continue
			}
			r.edges[counterpart] = StatePendingOutgoing
		} else {
			r.edges[counterpart] = StatePendingIncoming
		}
	}
}

// ApplyRequestCreated advances the edge for a freshly created request. A
// request arriving after consent already exists is a benign race and leaves
// the edge untouched.
func (r *Registry) ApplyRequestCreated(req models.ChatRequest) {
	counterpart, ok := req.Counterpart(r.localID)
	if !ok {
		r.log.Warn("created request does not involve local user",
			zap.Int("request_id", req.ID))
		return
	}
	if r.StateOf(counterpart) == StateMutual {
		r.log.Debug("request created on an already-mutual edge, ignoring",
			zap.Int("counterpart_id", counterpart),
			zap.Int("request_id", req.ID))
		return
	}

	if req.SenderID == r.localID {
		// Do not shadow an actionable incoming request with our own
		// outgoing one; accepting theirs is the faster path to mutual.
		if r.StateOf(counterpart) == StatePendingIncoming {
			return
		}
		r.edges[counterpart] = StatePendingOutgoing
	} else {
		r.edges[counterpart] = StatePendingIncoming
	}
}

// ApplyRequestResolved advances the edge for a terminal request. Applying
// the same resolution twice is a no-op, and a rejection never regresses an
// edge that reached mutual through the like path.
func (r *Registry) ApplyRequestResolved(req models.ChatRequest, outcome models.RequestStatus) {
	counterpart, ok := req.Counterpart(r.localID)
	if !ok {
		r.log.Warn("resolved request does not involve local user",
			zap.Int("request_id", req.ID))
		return
	}

	switch outcome {
	case models.RequestAccepted:
		r.edges[counterpart] = StateMutual
	case models.RequestRejected:
		if r.StateOf(counterpart) != StateMutual {
			r.edges[counterpart] = StateNone
		}
	default:
		r.log.Warn("request resolved with non-terminal outcome, ignoring",
			zap.Int("request_id", req.ID),
			zap.String("outcome", string(outcome)))
	}
}
