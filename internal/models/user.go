package models

// User is a directory entry served by the backend. Immutable once fetched
// within a session.
type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}
