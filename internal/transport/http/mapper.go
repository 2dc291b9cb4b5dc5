package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/proto"
)

// inboundText extracts the chat text from a client frame.
// ok is false when the frame is not a JSON object with a string "message".
func inboundText(data []byte) (string, bool) {
	var inbound proto.Inbound
	if err := json.Unmarshal(data, &inbound); err != nil {
		return "", false
	}
	if inbound.Message == nil {
		return "", false
	}
	return *inbound.Message, true
}

func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventChatMessage:
		return proto.ChatMessage{
			Message:       event.Message.Content,
			UserFirstName: event.Message.FirstName,
			UserLastName:  event.Message.LastName,
			UserID:        event.Message.UserID,
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Error{Error: "unknown error"}
		}
		return proto.Error{Error: event.Error.Message}
	default:
		return proto.Error{Error: "unknown event"}
	}
}

// connectStatus maps a rejected handshake to the HTTP status sent before
// the upgrade.
func connectStatus(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotMember):
		return http.StatusForbidden
	case errors.Is(err, core.ErrRoomNotFound):
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}
