package store

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"chat-client/internal/models"
)

// ErrMisrouted marks a message that involves neither the local user as
// sender nor as receiver. Such a delivery indicates a dispatch bug upstream
// and must not be silently filed into some conversation.
var ErrMisrouted = errors.New("message does not involve the local user")

// ConversationStore keeps the per-counterpart message log and unread
// accounting. Conversations are created lazily and never destroyed during a
// session, so unread badges stay addressable even for emptied logs.
//
// The store is not internally locked: the engine confines all mutation to
// its single serialized apply sequence.
type ConversationStore struct {
	session *Session
	logs    map[int][]models.Message
	unread  map[int]int
	primed  map[int]bool
	log     *zap.Logger
}

// NewConversationStore builds an empty store bound to the session.
func NewConversationStore(session *Session, log *zap.Logger) *ConversationStore {
	return &ConversationStore{
		session: session,
		logs:    make(map[int][]models.Message),
		unread:  make(map[int]int),
		primed:  make(map[int]bool),
		log:     log,
	}
}

// Prime replaces the log for a counterpart with an authoritative snapshot,
// deduplicated, time-sorted, and restricted to messages between the local
// user and that counterpart. Provisional local sends that have not been
// confirmed yet survive the replacement so an open conversation never loses
// a just-sent message to a racing load.
func (s *ConversationStore) Prime(counterpartID int, msgs []models.Message) {
	seen := make(map[int]struct{}, len(msgs))
	fresh := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if other, ok := m.Counterpart(s.session.LocalID()); !ok || other != counterpartID {
			s.log.Warn("dropping snapshot message from another conversation",
				zap.Int("message_id", m.ID),
				zap.Int("sender_id", m.SenderID),
				zap.Int("receiver_id", m.ReceiverID),
				zap.Int("counterpart_id", counterpartID))
			continue
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].CreatedAt.Before(fresh[j].CreatedAt)
	})

	for _, m := range s.logs[counterpartID] {
		if m.Pending {
			fresh = insertOrdered(fresh, m)
		}
	}

	s.logs[counterpartID] = fresh
	s.primed[counterpartID] = true
}

// Primed reports whether the counterpart's log has been loaded at least once.
func (s *ConversationStore) Primed(counterpartID int) bool {
	return s.primed[counterpartID]
}

// AppendIncoming files a confirmed message into its conversation. Duplicate
// ids collapse to one entry, since a message can arrive both as a send
// response and as a push echo. Messages for a conversation other than the
// selected one bump its unread counter, unless the local user sent them.
func (s *ConversationStore) AppendIncoming(msg models.Message) (int, error) {
	counterpart, ok := msg.Counterpart(s.session.LocalID())
	if !ok {
		return 0, errors.Wrapf(ErrMisrouted, "message %d from %d to %d", msg.ID, msg.SenderID, msg.ReceiverID)
	}

	for _, existing := range s.logs[counterpart] {
		if existing.ID == msg.ID && !existing.Pending {
			return counterpart, nil
		}
	}

	msg.Pending = false
	msg.LocalID = ""
	s.logs[counterpart] = insertOrdered(s.logs[counterpart], msg)

	if msg.SenderID != s.session.LocalID() && counterpart != s.session.Selected() {
		s.unread[counterpart]++
	}
	return counterpart, nil
}

// AppendLocal records an optimistic local send as a provisional entry and
// returns it. The entry carries a local id until Promote swaps in the
// authoritative record.
func (s *ConversationStore) AppendLocal(counterpartID int, content string) models.Message {
	msg := models.Message{
		SenderID:   s.session.LocalID(),
		ReceiverID: counterpartID,
		Content:    content,
		CreatedAt:  time.Now(),
		LocalID:    uuid.NewString(),
		Pending:    true,
	}
	s.logs[counterpartID] = append(s.logs[counterpartID], msg)
	return msg
}

// Promote replaces the provisional entry identified by localID with the
// authoritative message. If the push echo won the race and the id is already
// filed, the provisional entry is simply dropped.
func (s *ConversationStore) Promote(counterpartID int, localID string, authoritative models.Message) {
	log := s.logs[counterpartID]

	confirmed := false
	for _, m := range log {
		if m.ID == authoritative.ID && !m.Pending {
			confirmed = true
			break
		}
	}

	out := log[:0]
	promoted := false
	for _, m := range log {
		if m.Pending && m.LocalID == localID {
			if confirmed {
				continue // echo already filed, drop the provisional
			}
			authoritative.Pending = false
			authoritative.LocalID = ""
			out = append(out, authoritative)
			promoted = true
			continue
		}
		out = append(out, m)
	}
	s.logs[counterpartID] = out

	if promoted {
		// Confirmation may carry a server timestamp that lands elsewhere in
		// the order than the optimistic one did.
		sort.SliceStable(s.logs[counterpartID], func(i, j int) bool {
			return s.logs[counterpartID][i].CreatedAt.Before(s.logs[counterpartID][j].CreatedAt)
		})
	}
}

// MarkSelected opens the counterpart's conversation: the unread counter
// resets and the caller learns whether an initial load is still needed.
func (s *ConversationStore) MarkSelected(counterpartID int) (needLoad bool) {
	s.session.Select(counterpartID)
	s.unread[counterpartID] = 0
	return !s.primed[counterpartID]
}

// UnreadCount returns the unread badge for a counterpart.
func (s *ConversationStore) UnreadCount(counterpartID int) int {
	return s.unread[counterpartID]
}

// UnreadCounts returns a copy of all non-zero unread counters.
func (s *ConversationStore) UnreadCounts() map[int]int {
	out := make(map[int]int, len(s.unread))
	for id, n := range s.unread {
		if n > 0 {
			out[id] = n
		}
	}
	return out
}

// PrimeUnread seeds unread counters from the authoritative snapshot. The
// selected conversation, if any, stays at zero: the user is looking at it.
func (s *ConversationStore) PrimeUnread(counts map[int]int) {
	for id, n := range counts {
		if id == s.session.Selected() {
			continue
		}
		s.unread[id] = n
	}
}

// Messages returns a copy of the counterpart's ordered log.
func (s *ConversationStore) Messages(counterpartID int) []models.Message {
	log := s.logs[counterpartID]
	out := make([]models.Message, len(log))
	copy(out, log)
	return out
}

// insertOrdered places msg keeping non-decreasing creation time. Appending
// is the common case; a late out-of-order arrival walks back to its slot.
func insertOrdered(log []models.Message, msg models.Message) []models.Message {
	i := len(log)
	for i > 0 && log[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	log = append(log, models.Message{})
	copy(log[i+1:], log[i:])
	log[i] = msg
	return log
}
