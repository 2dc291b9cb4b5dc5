package core

import "errors"

const (
	// ErrCodeRateLimited marks the error event sent to a throttled client.
	ErrCodeRateLimited = "rate_limited"
	// ErrCodeBadRequest marks the error event sent for a malformed frame.
	ErrCodeBadRequest = "bad_request"
)

// RateLimitedText is the literal error shown to a throttled client.
const RateLimitedText = "You are sending messages too quickly. Please wait a moment."

var (
	ErrUnauthenticated = errors.New("identity not authenticated")
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotMember       = errors.New("not a room participant")
	ErrRateLimited     = errors.New("rate limited")
	ErrNotJoined       = errors.New("session not joined")
	ErrSessionClosed   = errors.New("session closed")
	ErrSlowConsumer    = errors.New("slow consumer")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
