package proto

// InvalidFormatText is sent when an inbound frame cannot be decoded.
const InvalidFormatText = "Invalid message format."

// Inbound is a chat frame coming from the client.
// Message is a pointer so a missing field can be told apart from "".
type Inbound struct {
	Message *string `json:"message"`
}

// ChatMessage is delivered to every connection in the room.
type ChatMessage struct {
	Message       string `json:"message"`
	UserFirstName string `json:"user_first_name"`
	UserLastName  string `json:"user_last_name"`
	UserID        int64  `json:"user_id"`
}

// Error is sent to a single connection.
type Error struct {
	Error string `json:"error"`
}
