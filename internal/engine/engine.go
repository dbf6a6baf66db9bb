package engine

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chat-client/internal/api"
	"chat-client/internal/consent"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/store"
	"chat-client/internal/telemetry"
	"chat-client/internal/ws"
)

// Bus is the push side the engine consumes. *ws.Bus satisfies it; tests
// substitute their own.
type Bus interface {
	On(eventType string, handler ws.Handler)
	Connect(ctx context.Context) error
	Disconnect()
}

// Options tune engine policy.
type Options struct {
	// AllowRerequest permits a new chat request toward a counterpart whose
	// earlier rejection reset the edge. Default in config is true; when
	// false the engine remembers rejections for the session.
	AllowRerequest bool
	Audit          *telemetry.AuditEmitter
}

// Engine reconciles authoritative snapshots with push deltas into one
// consistent view and gates every local action on the consent registry.
//
// All state behind mu mutates on one serialized sequence: push handlers,
// local actions, and snapshot ingestion each take the lock, and every apply
// is an idempotent, monotonic transition, so snapshots that finish after a
// push delta confirm state instead of rolling it back.
type Engine struct {
	mu sync.Mutex

	api     api.Client
	bus     Bus
	session *store.Session
	tracer  trace.Tracer
	log     *zap.Logger
	opts    Options

	registry      *consent.Registry
	conversations *store.ConversationStore
	directory     []models.User

	// pendingIncoming holds actionable requests addressed to the local
	// user, keyed by request id.
	pendingIncoming map[int]models.ChatRequest
	// resolvedRequests remembers request ids already resolved this session
	// so a slower snapshot cannot resurrect them.
	resolvedRequests map[int]struct{}
	// declinedBy remembers counterparts that rejected a request of ours,
	// consulted only when re-requesting is disallowed.
	declinedBy map[int]bool
	// loadSeq tags outstanding message loads per counterpart; only the
	// latest issued load for a key may prime the store.
	loadSeq map[int]uint64
}

// New builds an engine for an already-authenticated user. It fails with
// ErrNoIdentity when none is supplied; authentication itself is the API
// collaborator's job.
func New(client api.Client, bus Bus, local models.User, opts Options, log *zap.Logger) (*Engine, error) {
	if local.ID == 0 {
		return nil, ErrNoIdentity
	}
	session := store.NewSession(local)
	return &Engine{
		api:              client,
		bus:              bus,
		session:          session,
		tracer:           otel.Tracer("chat-client/engine"),
		log:              log,
		opts:             opts,
		registry:         consent.NewRegistry(local.ID, log),
		conversations:    store.NewConversationStore(session, log),
		pendingIncoming:  make(map[int]models.ChatRequest),
		resolvedRequests: make(map[int]struct{}),
		declinedBy:       make(map[int]bool),
		loadSeq:          make(map[int]uint64),
	}, nil
}

// Start subscribes the push handlers, opens the realtime connection, and
// primes every store from the authoritative snapshots. Handlers register
// before the first snapshot so no delta can slip between the two.
func (e *Engine) Start(ctx context.Context) error {
	e.bus.On(models.EventMessage, e.handleMessage)
	e.bus.On(models.EventRequestCreated, e.handleRequestCreated)
	e.bus.On(models.EventRequestResolved, e.handleRequestResolved)

	if err := e.bus.Connect(ctx); err != nil {
		return err
	}
	if err := e.Refresh(ctx); err != nil {
		return err
	}

	e.opts.Audit.Emit(ctx, "session_started", e.session.LocalID(), map[string]any{
		"username": e.session.LocalUser().Username,
	})
	return nil
}

// Close releases the realtime connection. Called exactly once at teardown.
func (e *Engine) Close(ctx context.Context) {
	e.bus.Disconnect()
	e.opts.Audit.Emit(ctx, "session_closed", e.session.LocalID(), nil)
}

// Refresh pulls the full snapshot set and folds it into the stores. Because
// every ingest step only adds or confirms state, a refresh that raced a push
// delta can never regress what the delta already advanced.
func (e *Engine) Refresh(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "engine.refresh")
	defer span.End()

	directory, err := e.api.ListDirectory(ctx)
	if err != nil {
		return err
	}
	mutual, err := e.api.ListMutualConsents(ctx)
	if err != nil {
		return err
	}
	requests, err := e.api.ListRequests(ctx)
	if err != nil {
		return err
	}
	unread, err := e.api.UnreadCounts(ctx)
	if err != nil {
		return err
	}

	mutualIDs := make([]int, 0, len(mutual))
	for _, u := range mutual {
		mutualIDs = append(mutualIDs, u.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.directory = directory
	e.registry.IngestMutualSnapshot(mutualIDs)

	// Drop snapshot records for requests a push delta already resolved:
	// deltas apply on top of snapshots, never the reverse.
	current := requests[:0]
	for _, req := range requests {
		if _, done := e.resolvedRequests[req.ID]; done {
			continue
		}
		current = append(current, req)
	}
	e.registry.IngestRequestSnapshot(current)

	e.pendingIncoming = make(map[int]models.ChatRequest)
	for _, req := range current {
		if req.Status == models.RequestPending && req.ReceiverID == e.session.LocalID() {
			e.pendingIncoming[req.ID] = req
		}
	}

	e.conversations.PrimeUnread(unread)
	return nil
}

// handleMessage files one pushed message delivery.
func (e *Engine) handleMessage(payload json.RawMessage) {
	var msg models.Message
	if err := json.Unmarshal(payload, &msg); err != nil || msg.ID == 0 {
		observability.IncMalformedEvent()
		e.log.Warn("dropping malformed message event", zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.conversations.AppendIncoming(msg); err != nil {
		e.log.Warn("rejecting misrouted message", zap.Error(err))
	}
}

// handleRequestCreated surfaces a pushed chat request.
func (e *Engine) handleRequestCreated(payload json.RawMessage) {
	var req models.ChatRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.ID == 0 {
		observability.IncMalformedEvent()
		e.log.Warn("dropping malformed request-created event", zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, done := e.resolvedRequests[req.ID]; done {
		return
	}
	e.registry.ApplyRequestCreated(req)
	if req.ReceiverID == e.session.LocalID() && !req.Terminal() {
		e.pendingIncoming[req.ID] = req
	}
}

// handleRequestResolved applies a pushed request resolution.
func (e *Engine) handleRequestResolved(payload json.RawMessage) {
	var req models.ChatRequest
	if err := json.Unmarshal(payload, &req); err != nil || req.ID == 0 {
		observability.IncMalformedEvent()
		e.log.Warn("dropping malformed request-resolved event", zap.Error(err))
		return
	}
	if !req.Terminal() {
		observability.IncMalformedEvent()
		e.log.Warn("dropping request-resolved event with non-terminal status",
			zap.Int("request_id", req.ID), zap.String("status", string(req.Status)))
		return
	}

	e.mu.Lock()
	e.applyResolutionLocked(req, req.Status)
	e.mu.Unlock()

	e.opts.Audit.Emit(context.Background(), "consent_updated", e.session.LocalID(), map[string]any{
		"request_id": req.ID,
		"outcome":    string(req.Status),
	})
}

func (e *Engine) applyResolutionLocked(req models.ChatRequest, outcome models.RequestStatus) {
	e.registry.ApplyRequestResolved(req, outcome)
	e.resolvedRequests[req.ID] = struct{}{}
	delete(e.pendingIncoming, req.ID)
	if outcome == models.RequestRejected && req.SenderID == e.session.LocalID() {
		e.declinedBy[req.ReceiverID] = true
	}
}

// Contacts recomputes the consent partition of the directory.
func (e *Engine) Contacts() consent.Partition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return consent.PartitionDirectory(e.registry, e.directory, e.session.LocalID())
}

// ConsentState reports the edge toward a counterpart.
func (e *Engine) ConsentState(counterpartID int) consent.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.StateOf(counterpartID)
}

// PendingRequests lists the actionable incoming requests, oldest first.
func (e *Engine) PendingRequests() []models.ChatRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ChatRequest, 0, len(e.pendingIncoming))
	for _, req := range e.pendingIncoming {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Messages returns the ordered log of a conversation.
func (e *Engine) Messages(counterpartID int) []models.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversations.Messages(counterpartID)
}

// UnreadCount returns the unread badge for one counterpart.
func (e *Engine) UnreadCount(counterpartID int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversations.UnreadCount(counterpartID)
}

// UnreadCounts returns all non-zero unread badges.
func (e *Engine) UnreadCounts() map[int]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conversations.UnreadCounts()
}

// LocalUser returns the session identity.
func (e *Engine) LocalUser() models.User {
	return e.session.LocalUser()
}

// Selected returns the open conversation's counterpart id, 0 if none.
func (e *Engine) Selected() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Selected()
}

// Select opens a conversation, zeroing its unread badge, and loads its
// history on first open. Each load is tagged with a per-counterpart
// sequence; a response whose tag is no longer the latest, or whose target is
// no longer selected, is discarded so a stale load can never overwrite a
// fresher view.
func (e *Engine) Select(ctx context.Context, counterpartID int) error {
	ctx, span := e.tracer.Start(ctx, "engine.select")
	defer span.End()

	e.mu.Lock()
	needLoad := e.conversations.MarkSelected(counterpartID)
	e.loadSeq[counterpartID]++
	seq := e.loadSeq[counterpartID]
	e.mu.Unlock()

	if !needLoad {
		return nil
	}

	msgs, err := e.api.ListMessages(ctx, counterpartID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loadSeq[counterpartID] != seq || e.session.Selected() != counterpartID {
		observability.IncStaleResponse()
		e.log.Debug("discarding stale message load",
			zap.Int("counterpart_id", counterpartID), zap.Uint64("seq", seq))
		return nil
	}
	e.conversations.Prime(counterpartID, msgs)
	return nil
}

// Deselect closes the open conversation. Messages for it count as unread
// again until it is reopened.
func (e *Engine) Deselect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Deselect()
}
