// Package history is the durable, room-scoped, append-only message log.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/store"
)

const defaultOpTimeout = 2 * time.Second

// Config controls key naming and retention.
type Config struct {
	// Namespace is prepended to every key, e.g. "test:".
	Namespace string
	// ReplayLimit caps how many of the newest messages Recent returns.
	// Zero returns the whole log.
	ReplayLimit int
	// Retain trims the log to the newest Retain messages on append.
	// Zero keeps everything.
	Retain int
	// OpTimeout bounds every store round trip.
	OpTimeout time.Duration
}

// Store implements core.History over a store.KV.
type Store struct {
	kv  store.KV
	cfg Config
	log *zerolog.Logger
}

// New creates a message store.
func New(kv store.KV, cfg Config, logger *zerolog.Logger) *Store {
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = defaultOpTimeout
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Store{kv: kv, cfg: cfg, log: logger}
}

// Key returns the list key holding a room's messages.
func (s *Store) Key(roomID int64) string {
	return fmt.Sprintf("%sroom_%d_messages", s.cfg.Namespace, roomID)
}

// Append stores msg at the end of the room log.
func (s *Store) Append(ctx context.Context, roomID int64, msg core.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	key := s.Key(roomID)
	if err := s.kv.RPush(ctx, key, string(data)); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	if s.cfg.Retain > 0 {
		if err := s.kv.LTrim(ctx, key, -int64(s.cfg.Retain), -1); err != nil {
			// The message is stored; an oversized log is not fatal.
			s.log.Warn().Err(err).Int64("room_id", roomID).Msg("trim room log")
		}
	}
	return nil
}

// Recent returns the room's messages oldest first, capped by ReplayLimit.
func (s *Store) Recent(ctx context.Context, roomID int64) ([]core.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	start := int64(0)
	if s.cfg.ReplayLimit > 0 {
		start = -int64(s.cfg.ReplayLimit)
	}

	raw, err := s.kv.LRange(ctx, s.Key(roomID), start, -1)
	if err != nil {
		return nil, fmt.Errorf("read room log: %w", err)
	}

	messages := make([]core.Message, 0, len(raw))
	for _, item := range raw {
		var msg core.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			s.log.Warn().Err(err).Int64("room_id", roomID).Msg("skip corrupt message")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Clear removes the whole room log. Operational reset only.
func (s *Store) Clear(ctx context.Context, roomID int64) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	if err := s.kv.Del(ctx, s.Key(roomID)); err != nil {
		return fmt.Errorf("clear room log: %w", err)
	}
	s.log.Info().Int64("room_id", roomID).Msg("room log cleared")
	return nil
}
