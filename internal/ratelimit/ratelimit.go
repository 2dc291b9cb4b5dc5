// Package ratelimit enforces a minimum interval between accepted sends
// per user, shared across every room and session of that user.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/store"
)

// Interval is the minimum gap between two accepted sends of one user.
const Interval = time.Second

const defaultOpTimeout = 2 * time.Second

// Limiter implements core.Limiter over a store.KV.
//
// Allow and Record are separate steps, so two concurrent sends from the
// same user can both be allowed. The limit is a throttle, not a hard cap.
type Limiter struct {
	kv        store.KV
	namespace string
	timeout   time.Duration
	now       func() time.Time
	log       *zerolog.Logger
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithNamespace prefixes every key.
func WithNamespace(ns string) Option {
	return func(l *Limiter) { l.namespace = ns }
}

// WithTimeout bounds each store round trip.
func WithTimeout(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// New creates a limiter.
func New(kv store.KV, logger *zerolog.Logger, opts ...Option) *Limiter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := &Limiter{
		kv:      kv,
		timeout: defaultOpTimeout,
		now:     time.Now,
		log:     logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key returns the store key holding a user's last accepted send.
func (l *Limiter) Key(userID int64) string {
	return fmt.Sprintf("%suser_%d_last_message_timestamp", l.namespace, userID)
}

// Allow reports whether the user may send now. It never mutates state and
// fails closed when the store cannot answer.
func (l *Limiter) Allow(ctx context.Context, userID int64) bool {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	raw, err := l.kv.Get(ctx, l.Key(userID))
	if errors.Is(err, store.ErrNotFound) {
		return true
	}
	if err != nil {
		l.log.Error().Err(err).Int64("user_id", userID).Msg("rate limit check")
		return false
	}

	last, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		l.log.Error().Err(err).Int64("user_id", userID).Str("value", raw).Msg("parse last send timestamp")
		return false
	}
	return l.now().Sub(last) >= Interval
}

// Record stores at as the user's last accepted send.
func (l *Limiter) Record(ctx context.Context, userID int64, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.kv.Set(ctx, l.Key(userID), at.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record send: %w", err)
	}
	return nil
}
