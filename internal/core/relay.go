package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultSessionBuffer   = 64
	defaultTeardownTimeout = 5 * time.Second
)

// Options tune relay behaviour. Zero values select defaults.
type Options struct {
	// EnforceMembership rejects identities that are not room participants.
	EnforceMembership bool
	// SessionBuffer is the per-session outbound queue length.
	SessionBuffer int
	// TeardownTimeout bounds group deregistration on close.
	TeardownTimeout time.Duration
	// Now returns the current time; used for message timestamps.
	Now func() time.Time
	// NewID generates message ids.
	NewID func() string
}

// Relay accepts connections and turns them into sessions bound to one room.
type Relay struct {
	directory RoomDirectory
	history   History
	limiter   Limiter
	group     Group
	log       *zerolog.Logger
	opts      Options
}

// NewRelay creates a relay over the given collaborators.
func NewRelay(directory RoomDirectory, history History, limiter Limiter, group Group, logger *zerolog.Logger, opts Options) *Relay {
	if opts.SessionBuffer <= 0 {
		opts.SessionBuffer = defaultSessionBuffer
	}
	if opts.TeardownTimeout <= 0 {
		opts.TeardownTimeout = defaultTeardownTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Relay{
		directory: directory,
		history:   history,
		limiter:   limiter,
		group:     group,
		log:       logger,
		opts:      opts,
	}
}

// Connect runs the join handshake for an identity and a room.
// On success the returned session is Joined and holds the room history
// to be written before any live traffic. On failure nothing stays
// registered and the caller must refuse the connection.
func (r *Relay) Connect(ctx context.Context, id Identity, roomID int64) (*Session, error) {
	if !id.Authenticated() {
		return nil, ErrUnauthenticated
	}

	exists, err := r.directory.RoomExists(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("check room: %w", err)
	}
	if !exists {
		r.log.Info().Int64("user_id", id.UserID).Int64("room_id", roomID).Msg("connect to non-existent room")
		return nil, ErrRoomNotFound
	}

	if r.opts.EnforceMembership {
		member, err := r.directory.IsMember(ctx, roomID, id.UserID)
		if err != nil {
			return nil, fmt.Errorf("check membership: %w", err)
		}
		if !member {
			r.log.Info().Int64("user_id", id.UserID).Int64("room_id", roomID).Msg("connect by non-participant")
			return nil, ErrNotMember
		}
	}

	s := newSession(r, id, roomID)
	if err := r.group.Join(ctx, roomID, s); err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("join group: %w", err)
	}
	s.state.Store(int32(StateJoined))

	// Joining before reading history means nothing accepted in between is
	// lost; duplicates are dropped by the write pump.
	replay, err := r.history.Recent(ctx, roomID)
	if err != nil {
		s.log.Error().Err(err).Msg("load history")
		replay = nil
	}
	s.replay = replay

	s.log.Info().Int("history", len(replay)).Msg("session joined")
	return s, nil
}

func (r *Relay) teardownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.opts.TeardownTimeout)
}
