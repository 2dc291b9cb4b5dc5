package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventChatMessage delivers a room message, live or replayed.
	EventChatMessage EventKind = iota
	// EventError notifies a single client about a recoverable error.
	EventError
)

// Event is queued on a session and written to its client.
type Event struct {
	Kind    EventKind
	Room    int64
	Message Message
	Error   *CoreError
}

// MessageEvent wraps an accepted message for delivery to a room.
func MessageEvent(roomID int64, msg Message) *Event {
	return &Event{Kind: EventChatMessage, Room: roomID, Message: msg}
}

func errorEvent(roomID int64, err *CoreError) *Event {
	return &Event{Kind: EventError, Room: roomID, Error: err}
}
