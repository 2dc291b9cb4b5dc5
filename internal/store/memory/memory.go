// Package memory is a process-local store.KV used for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/vovakirdan/chatrelay/internal/store"
)

// Store keeps lists and scalars in maps guarded by one mutex.
type Store struct {
	mu      sync.RWMutex
	lists   map[string][]string
	scalars map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{
		lists:   make(map[string][]string),
		scalars: make(map[string]string),
	}
}

func (s *Store) RPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[key] = append(s.lists[key], values...)
	return nil
}

func (s *Store) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.lists[key]
	from, to := store.Span(int64(len(list)), start, stop)
	out := make([]string, to-from)
	copy(out, list[from:to])
	return out, nil
}

func (s *Store) LTrim(_ context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	from, to := store.Span(int64(len(list)), start, stop)
	if from >= to {
		delete(s.lists, key)
		return nil
	}
	kept := make([]string, to-from)
	copy(kept, list[from:to])
	s.lists[key] = kept
	return nil
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.scalars[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scalars[key] = value
	return nil
}

func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.lists, k)
		delete(s.scalars, k)
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
