// Package store defines the durable key/value collaborator used by the
// message history and the rate limiter.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// KV is a minimal list and scalar key/value store. List indexes follow
// Redis semantics: zero based, negative values count from the tail and
// stop is inclusive.
type KV interface {
	// RPush appends values to the tail of the list at key.
	RPush(ctx context.Context, key string, values ...string) error

	// LRange returns list elements between start and stop inclusive.
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// LTrim keeps only elements between start and stop inclusive.
	LTrim(ctx context.Context, key string, start, stop int64) error

	// Get returns the scalar value at key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set overwrites the scalar value at key.
	Set(ctx context.Context, key, value string) error

	// Del removes keys of any type. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error

	// Close releases the underlying client.
	Close() error
}

// Span resolves Redis style start/stop indexes against a list of length n.
// It returns a half-open [from, to) range; from >= to means empty.
func Span(n, start, stop int64) (from, to int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0
	}
	return start, stop + 1
}
