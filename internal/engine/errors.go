package engine

import "github.com/pkg/errors"

// User-visible failure modes of the local-action flow. Malformed push
// payloads and stale load responses are absorbed at the reconciliation layer
// and never surface as errors.
var (
	ErrNoIdentity      = errors.New("session started without an authenticated user")
	ErrNotPermitted    = errors.New("messaging requires mutual consent")
	ErrAlreadyPending  = errors.New("a chat request toward this counterpart is already pending")
	ErrAlreadyMutual   = errors.New("consent with this counterpart is already mutual")
	ErrRequestDeclined = errors.New("counterpart declined a previous chat request")
	ErrUnknownRequest  = errors.New("no actionable request with this id")
)
