package core

import (
	"context"
	"time"
)

// RoomDirectory resolves room existence and participants.
// The relay never owns room membership truth; it only asks.
type RoomDirectory interface {
	// RoomExists reports whether the room is known.
	RoomExists(ctx context.Context, roomID int64) (bool, error)

	// IsMember reports whether the user is a participant of the room.
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
}

// History is the durable per-room message log.
type History interface {
	// Append adds a message to the end of the room log.
	Append(ctx context.Context, roomID int64, msg Message) error

	// Recent returns the room's messages, oldest first.
	Recent(ctx context.Context, roomID int64) ([]Message, error)
}

// Limiter gates accepted sends per user.
// Allow must not mutate state; Record is called only after a send completed.
type Limiter interface {
	Allow(ctx context.Context, userID int64) bool
	Record(ctx context.Context, userID int64, at time.Time) error
}

// Member is a live recipient registered in a Group.
type Member interface {
	// SessionID uniquely identifies the member within a process.
	SessionID() string

	// Deliver enqueues an event without blocking.
	Deliver(event *Event) error
}

// Group tracks live members per room and fans messages out to them.
// Implementations may span several processes.
type Group interface {
	// Join adds the member to the room. Joining twice is a no-op.
	Join(ctx context.Context, roomID int64, m Member) error

	// Leave removes the member from the room. Leaving a room the member
	// never joined is not an error.
	Leave(ctx context.Context, roomID int64, m Member) error

	// Broadcast delivers the message to every member of the room,
	// including members registered by other processes.
	Broadcast(ctx context.Context, roomID int64, msg Message) error
}
