package broadcast

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/core"
)

// NATS fans messages out over NATS subjects "{prefix}.chat.{room}".
// A process holds a subscription for a room only while it has local
// members there. NATS runs a subscription's handler serially, which keeps
// per-room delivery order.
type NATS struct {
	conn   *nats.Conn
	prefix string
	local  *Local
	locks  roomLocks
	opts   options
	log    *zerolog.Logger

	mu   sync.Mutex
	subs map[int64]*nats.Subscription
}

// NewNATS creates a NATS backed group on an established connection.
func NewNATS(conn *nats.Conn, prefix string, logger *zerolog.Logger, opts ...Option) *NATS {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &NATS{
		conn:   conn,
		prefix: prefix,
		local:  NewLocal(logger),
		opts:   buildOptions(opts),
		log:    logger,
		subs:   make(map[int64]*nats.Subscription),
	}
}

// Subject returns the subject of a room.
func (n *NATS) Subject(roomID int64) string {
	if n.prefix == "" {
		return fmt.Sprintf("chat.%d", roomID)
	}
	return fmt.Sprintf("%s.chat.%d", n.prefix, roomID)
}

// Join implements core.Group.
func (n *NATS) Join(ctx context.Context, roomID int64, m core.Member) error {
	unlock := n.locks.lock(roomID)
	defer unlock()

	if !n.local.add(roomID, m) {
		return nil
	}

	subject := n.Subject(roomID)
	sub, err := n.conn.Subscribe(subject, n.handler(roomID))
	if err != nil {
		n.local.remove(roomID, m)
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	// Make sure the server has registered interest before returning.
	fctx, cancel := context.WithTimeout(ctx, n.opts.timeout)
	defer cancel()
	if err := n.conn.FlushWithContext(fctx); err != nil {
		_ = sub.Unsubscribe()
		n.local.remove(roomID, m)
		return fmt.Errorf("flush subscribe %s: %w", subject, err)
	}

	n.mu.Lock()
	n.subs[roomID] = sub
	n.mu.Unlock()
	return nil
}

// Leave implements core.Group.
func (n *NATS) Leave(_ context.Context, roomID int64, m core.Member) error {
	unlock := n.locks.lock(roomID)
	defer unlock()

	if !n.local.remove(roomID, m) {
		return nil
	}

	n.mu.Lock()
	sub, ok := n.subs[roomID]
	delete(n.subs, roomID)
	n.mu.Unlock()
	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", sub.Subject, err)
	}
	return nil
}

// Broadcast implements core.Group.
func (n *NATS) Broadcast(_ context.Context, roomID int64, msg core.Message) error {
	data, err := encodeEnvelope(roomID, msg)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.Subject(roomID), data); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Members returns how many members the room has in this process.
func (n *NATS) Members(roomID int64) int {
	return n.local.Members(roomID)
}

// Close drops every subscription. The connection stays open.
func (n *NATS) Close() error {
	n.mu.Lock()
	subs := n.subs
	n.subs = make(map[int64]*nats.Subscription)
	n.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			n.log.Warn().Err(err).Str("subject", sub.Subject).Msg("unsubscribe")
		}
	}
	return nil
}

func (n *NATS) handler(roomID int64) nats.MsgHandler {
	return func(msg *nats.Msg) {
		env, err := decodeEnvelope(msg.Data)
		if err != nil {
			n.log.Warn().Err(err).Str("subject", msg.Subject).Msg("drop nats message")
			return
		}
		if env.Room != roomID {
			n.log.Warn().Str("subject", msg.Subject).Int64("room_id", env.Room).Msg("room mismatch in nats message")
			return
		}
		n.local.deliver(roomID, env.Message)
	}
}
