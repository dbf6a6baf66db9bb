package store

import "chat-client/internal/models"

// Session holds the authenticated local user and the single currently
// selected conversation for the lifetime of the process. It is owned by the
// engine and torn down with it; there is no ambient global.
type Session struct {
	local    models.User
	selected int // counterpart id, 0 when no conversation is open
}

// NewSession binds a session to an already-authenticated user.
func NewSession(local models.User) *Session {
	return &Session{local: local}
}

// LocalUser returns the authenticated user.
func (s *Session) LocalUser() models.User { return s.local }

// LocalID returns the authenticated user's id.
func (s *Session) LocalID() int { return s.local.ID }

// Selected returns the open conversation's counterpart id, 0 if none.
func (s *Session) Selected() int { return s.selected }

// Select points the session at a counterpart's conversation.
func (s *Session) Select(counterpartID int) { s.selected = counterpartID }

// Deselect closes the open conversation pointer.
func (s *Session) Deselect() { s.selected = 0 }
