package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is a session lifecycle stage.
type State int32

const (
	StateConnecting State = iota
	StateJoined
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one live connection scoped to a single room.
type Session struct {
	id       string
	identity Identity
	roomID   int64
	joinedAt time.Time

	relay  *Relay
	state  atomic.Int32
	events chan *Event
	replay []Message

	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
	cause     error

	log zerolog.Logger
}

func newSession(r *Relay, id Identity, roomID int64) *Session {
	sid := uuid.NewString()
	s := &Session{
		id:       sid,
		identity: id,
		roomID:   roomID,
		joinedAt: r.opts.Now(),
		relay:    r,
		events:   make(chan *Event, r.opts.SessionBuffer),
		done:     make(chan struct{}),
		log: r.log.With().
			Str("session_id", sid).
			Int64("user_id", id.UserID).
			Int64("room_id", roomID).
			Logger(),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// SessionID implements Member.
func (s *Session) SessionID() string { return s.id }

// Identity returns the principal that owns the session.
func (s *Session) Identity() Identity { return s.identity }

// RoomID returns the room the session is attached to.
func (s *Session) RoomID() int64 { return s.roomID }

// JoinedAt returns the handshake time.
func (s *Session) JoinedAt() time.Time { return s.joinedAt }

// State returns the current lifecycle stage.
func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session stops accepting deliveries.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the session stopped, or nil while it is live.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.cause
	default:
		return nil
	}
}

// Deliver implements Member. It never blocks: a full queue kicks the
// session instead of stalling the rest of the room.
func (s *Session) Deliver(event *Event) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.events <- event:
		return nil
	default:
		s.log.Warn().Msg("outbound queue full, dropping session")
		s.stop(ErrSlowConsumer)
		return ErrSlowConsumer
	}
}

// Notify queues an error event for this client only. It shares the queue
// with room messages, so it is written after anything already pending.
func (s *Session) Notify(code, message string) error {
	return s.Deliver(errorEvent(s.roomID, coreError(code, message)))
}

// Send handles one inbound chat message from the client.
// Steps after the append are best effort: a failure is logged and earlier
// effects stay.
func (s *Session) Send(ctx context.Context, text string) error {
	if s.State() != StateJoined {
		return ErrNotJoined
	}
	r := s.relay

	if !r.limiter.Allow(ctx, s.identity.UserID) {
		s.log.Info().Msg("rate-limited user tried to send a message")
		if err := s.Notify(ErrCodeRateLimited, RateLimitedText); err != nil {
			s.log.Warn().Err(err).Msg("deliver rate-limit error")
		}
		return ErrRateLimited
	}

	msg := Message{
		ID:        r.opts.NewID(),
		UserID:    s.identity.UserID,
		FirstName: s.identity.FirstName,
		LastName:  s.identity.LastName,
		Content:   text,
		Timestamp: r.opts.Now(),
	}

	if err := r.history.Append(ctx, s.roomID, msg); err != nil {
		s.log.Error().Err(err).Msg("append message")
		return fmt.Errorf("append message: %w", err)
	}

	if err := r.group.Broadcast(ctx, s.roomID, msg); err != nil {
		s.log.Error().Err(err).Str("message_id", msg.ID).Msg("broadcast message")
	}

	if err := r.limiter.Record(ctx, s.identity.UserID, msg.Timestamp); err != nil {
		s.log.Error().Err(err).Msg("record send timestamp")
	}

	s.log.Debug().Str("message_id", msg.ID).Msg("message sent")
	return nil
}

// WritePump writes the join history oldest first and then every queued
// event until the session stops or ctx is cancelled.
func (s *Session) WritePump(ctx context.Context, write func(context.Context, *Event) error) error {
	replayed := make(map[string]struct{}, len(s.replay))
	for _, msg := range s.replay {
		if err := write(ctx, MessageEvent(s.roomID, msg)); err != nil {
			return fmt.Errorf("replay history: %w", err)
		}
		if msg.ID != "" {
			replayed[msg.ID] = struct{}{}
		}
	}
	s.replay = nil

	for {
		select {
		case ev := <-s.events:
			if ev.Kind == EventChatMessage && len(replayed) > 0 {
				if _, dup := replayed[ev.Message.ID]; dup {
					delete(replayed, ev.Message.ID)
					continue
				}
			}
			if err := write(ctx, ev); err != nil {
				return err
			}
		case <-s.done:
			return s.cause
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close deregisters the session and releases it. Calling Close more than
// once is a no-op. Release happens even if deregistration fails.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		defer func() {
			s.stop(ErrSessionClosed)
			s.state.Store(int32(StateClosed))
			s.log.Info().Msg("session closed")
		}()

		tctx, cancel := s.relay.teardownContext(ctx)
		defer cancel()
		if err := s.relay.group.Leave(tctx, s.roomID, s); err != nil {
			s.log.Error().Err(err).Msg("leave group")
		}
	})
}

func (s *Session) stop(cause error) {
	s.doneOnce.Do(func() {
		s.cause = cause
		close(s.done)
	})
}
