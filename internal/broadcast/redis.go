package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/core"
)

// Redis fans messages out through Redis pub/sub so members connected to
// other processes receive them. Each process subscribes to a room's
// channel only while it has local members in that room.
type Redis struct {
	client  goredis.UniversalClient
	prefix  string
	local   *Local
	pubsub  *goredis.PubSub
	locks   roomLocks
	opts    options
	log     *zerolog.Logger
	stopped chan struct{}

	mu      sync.Mutex
	waiters map[string]chan struct{}
	closed  bool
}

// NewRedis starts a pub/sub backed group on client. Channels are named
// "{prefix}chat_{room}".
func NewRedis(ctx context.Context, client goredis.UniversalClient, prefix string, logger *zerolog.Logger, opts ...Option) (*Redis, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	r := &Redis{
		client:  client,
		prefix:  prefix,
		local:   NewLocal(logger),
		opts:    buildOptions(opts),
		log:     logger,
		stopped: make(chan struct{}),
		waiters: make(map[string]chan struct{}),
	}

	// Subscribing to a control channel up front keeps the connection in
	// subscriber mode from the start.
	r.pubsub = client.Subscribe(ctx, r.controlChannel())
	if _, err := r.pubsub.Receive(ctx); err != nil {
		_ = r.pubsub.Close()
		return nil, fmt.Errorf("subscribe redis: %w", err)
	}

	go r.receive()
	return r, nil
}

func (r *Redis) controlChannel() string {
	return r.prefix + "chat_control"
}

// Channel returns the pub/sub channel of a room.
func (r *Redis) Channel(roomID int64) string {
	return fmt.Sprintf("%schat_%d", r.prefix, roomID)
}

// Join implements core.Group. The first local member of a room waits
// until the subscription is confirmed, at most the configured timeout.
func (r *Redis) Join(ctx context.Context, roomID int64, m core.Member) error {
	unlock := r.locks.lock(roomID)
	defer unlock()

	if !r.local.add(roomID, m) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.timeout)
	defer cancel()

	channel := r.Channel(roomID)
	confirmed := r.expect(channel)
	if err := r.pubsub.Subscribe(ctx, channel); err != nil {
		r.forget(channel)
		r.local.remove(roomID, m)
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	select {
	case <-confirmed:
		return nil
	case <-ctx.Done():
		r.forget(channel)
		r.local.remove(roomID, m)
		uctx, ucancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.timeout)
		_ = r.pubsub.Unsubscribe(uctx, channel)
		ucancel()
		return fmt.Errorf("subscribe %s: %w", channel, ctx.Err())
	}
}

// Leave implements core.Group.
func (r *Redis) Leave(ctx context.Context, roomID int64, m core.Member) error {
	unlock := r.locks.lock(roomID)
	defer unlock()

	if !r.local.remove(roomID, m) {
		return nil
	}
	channel := r.Channel(roomID)
	if err := r.pubsub.Unsubscribe(ctx, channel); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", channel, err)
	}
	return nil
}

// Broadcast implements core.Group. Local members receive the message
// through the subscription like everyone else.
func (r *Redis) Broadcast(ctx context.Context, roomID int64, msg core.Message) error {
	data, err := encodeEnvelope(roomID, msg)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.Channel(roomID), data).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Members returns how many members the room has in this process.
func (r *Redis) Members(roomID int64) int {
	return r.local.Members(roomID)
}

// Close stops the receive loop and drops every subscription.
func (r *Redis) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	err := r.pubsub.Close()
	<-r.stopped
	return err
}

func (r *Redis) expect(channel string) <-chan struct{} {
	ch := make(chan struct{})
	r.mu.Lock()
	r.waiters[channel] = ch
	r.mu.Unlock()
	return ch
}

func (r *Redis) forget(channel string) {
	r.mu.Lock()
	delete(r.waiters, channel)
	r.mu.Unlock()
}

func (r *Redis) confirm(channel string) {
	r.mu.Lock()
	if ch, ok := r.waiters[channel]; ok {
		close(ch)
		delete(r.waiters, channel)
	}
	r.mu.Unlock()
}

func (r *Redis) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Redis) receive() {
	defer close(r.stopped)
	ctx := context.Background()

	for {
		raw, err := r.pubsub.Receive(ctx)
		if err != nil {
			if r.isClosed() || errors.Is(err, goredis.ErrClosed) {
				return
			}
			// go-redis reconnects and resubscribes on the next call.
			r.log.Warn().Err(err).Msg("redis pubsub receive")
			time.Sleep(100 * time.Millisecond)
			continue
		}

		switch msg := raw.(type) {
		case *goredis.Subscription:
			if msg.Kind == "subscribe" {
				r.confirm(msg.Channel)
			}
		case *goredis.Message:
			r.dispatch(msg)
		}
	}
}

func (r *Redis) dispatch(msg *goredis.Message) {
	env, err := decodeEnvelope([]byte(msg.Payload))
	if err != nil {
		r.log.Warn().Err(err).Str("channel", msg.Channel).Msg("drop pubsub message")
		return
	}
	if want := strings.TrimPrefix(msg.Channel, r.prefix+"chat_"); want != strconv.FormatInt(env.Room, 10) {
		r.log.Warn().Str("channel", msg.Channel).Int64("room_id", env.Room).Msg("room mismatch in pubsub message")
		return
	}
	r.local.deliver(env.Room, env.Message)
}
