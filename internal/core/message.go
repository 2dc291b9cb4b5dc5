package core

import "time"

// Identity is an authenticated principal as handed over by the transport.
type Identity struct {
	UserID    int64
	FirstName string
	LastName  string
}

// Authenticated reports whether the identity carries a real user.
func (i Identity) Authenticated() bool {
	return i.UserID > 0
}

// Message is the domain model for an accepted chat message.
// It is never mutated after creation.
type Message struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	FirstName string    `json:"user_first_name"`
	LastName  string    `json:"user_last_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
