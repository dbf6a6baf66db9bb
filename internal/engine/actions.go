package engine

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"chat-client/internal/consent"
	"chat-client/internal/models"
)

// SendMessage delivers a message to a counterpart after the consent gate.
// The send is optimistic: a provisional entry lands in the conversation
// before the call, the authoritative record promotes it, and duplicate
// suppression absorbs the later push echo. On transport failure the
// provisional entry stays visible; the next snapshot reconciles it.
func (e *Engine) SendMessage(ctx context.Context, counterpartID int, content string) (models.Message, error) {
	e.mu.Lock()
	state := e.registry.StateOf(counterpartID)
	if state != consent.StateMutual {
		e.mu.Unlock()
		return models.Message{}, errors.Wrapf(ErrNotPermitted, "consent state is %q", state)
	}
	provisional := e.conversations.AppendLocal(counterpartID, content)
	e.mu.Unlock()

	msg, err := e.api.SendMessage(ctx, counterpartID, content)
	if err != nil {
		e.log.Warn("message send failed, keeping provisional entry",
			zap.Int("counterpart_id", counterpartID), zap.Error(err))
		return models.Message{}, err
	}

	e.mu.Lock()
	e.conversations.Promote(counterpartID, provisional.LocalID, msg)
	e.mu.Unlock()
	return msg, nil
}

// SendRequest asks a counterpart for messaging consent. Only a none edge may
// emit a request; pending and mutual edges fail with the matching sentinel.
func (e *Engine) SendRequest(ctx context.Context, counterpartID int) (models.ChatRequest, error) {
	e.mu.Lock()
	switch e.registry.StateOf(counterpartID) {
	case consent.StateMutual:
		e.mu.Unlock()
		return models.ChatRequest{}, ErrAlreadyMutual
	case consent.StatePendingOutgoing, consent.StatePendingIncoming:
		e.mu.Unlock()
		return models.ChatRequest{}, ErrAlreadyPending
	}
	if !e.opts.AllowRerequest && e.declinedBy[counterpartID] {
		e.mu.Unlock()
		return models.ChatRequest{}, ErrRequestDeclined
	}
	e.mu.Unlock()

	req, err := e.api.CreateRequest(ctx, counterpartID)
	if err != nil {
		return models.ChatRequest{}, err
	}

	e.mu.Lock()
	e.registry.ApplyRequestCreated(req)
	e.mu.Unlock()

	e.opts.Audit.Emit(ctx, "request_sent", e.session.LocalID(), map[string]any{
		"request_id":  req.ID,
		"receiver_id": counterpartID,
	})
	return req, nil
}

// RespondRequest accepts or rejects an actionable incoming request. The
// resolution applied locally is the server-confirmed record, so the edge
// advances from the same fact the push echo will later repeat.
func (e *Engine) RespondRequest(ctx context.Context, requestID int, outcome models.RequestStatus) error {
	if outcome != models.RequestAccepted && outcome != models.RequestRejected {
		return errors.Errorf("invalid outcome %q", outcome)
	}

	e.mu.Lock()
	if _, ok := e.pendingIncoming[requestID]; !ok {
		e.mu.Unlock()
		return errors.Wrapf(ErrUnknownRequest, "request %d", requestID)
	}
	e.mu.Unlock()

	resolved, err := e.api.ResolveRequest(ctx, requestID, outcome)
	if err != nil {
		return err
	}
	if !resolved.Terminal() {
		resolved.Status = outcome
	}

	e.mu.Lock()
	e.applyResolutionLocked(resolved, resolved.Status)
	e.mu.Unlock()

	e.opts.Audit.Emit(ctx, "request_resolved", e.session.LocalID(), map[string]any{
		"request_id": requestID,
		"outcome":    string(outcome),
	})
	return nil
}
