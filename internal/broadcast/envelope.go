package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/vovakirdan/chatrelay/internal/core"
)

const (
	lockStripes      = 64
	defaultOpTimeout = 2 * time.Second
)

// Option customises a pub/sub backed group.
type Option func(*options)

type options struct {
	timeout time.Duration
}

// WithTimeout bounds how long a first join waits for the broker to
// confirm the room subscription.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{timeout: defaultOpTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// envelope is the payload published between relay processes.
type envelope struct {
	Room    int64        `json:"room"`
	Message core.Message `json:"message"`
}

func encodeEnvelope(roomID int64, msg core.Message) ([]byte, error) {
	data, err := json.Marshal(envelope{Room: roomID, Message: msg})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// roomLocks serialises membership transitions and (un)subscribes of the
// same room without a global lock.
type roomLocks [lockStripes]sync.Mutex

func (l *roomLocks) lock(roomID int64) func() {
	idx := roomID % lockStripes
	if idx < 0 {
		idx = -idx
	}
	mu := &l[idx]
	mu.Lock()
	return mu.Unlock
}
