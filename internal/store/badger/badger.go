// Package badger implements store.KV on an embedded BadgerDB.
//
// Lists are kept as one entry per element keyed "l:{key}:{seq}" plus a
// "m:{key}" record holding the head and tail sequence numbers. Scalars
// live under "k:{key}". Every operation is a single transaction.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/vovakirdan/chatrelay/internal/store"
)

const maxConflictRetries = 8

// Store is a store.KV backed by BadgerDB.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) a database in dir. An empty dir keeps
// everything in memory.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

type listMeta struct {
	head uint64
	tail uint64 // exclusive
}

func (m listMeta) len() int64 { return int64(m.tail - m.head) }

func metaKey(key string) []byte   { return []byte("m:" + key) }
func scalarKey(key string) []byte { return []byte("k:" + key) }
func elemKey(key string, seq uint64) []byte {
	return []byte(fmt.Sprintf("l:%s:%020d", key, seq))
}

func readMeta(txn *badger.Txn, key string) (listMeta, error) {
	item, err := txn.Get(metaKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return listMeta{}, nil
	}
	if err != nil {
		return listMeta{}, err
	}
	var m listMeta
	err = item.Value(func(v []byte) error {
		if len(v) != 16 {
			return fmt.Errorf("corrupt list meta for %s", key)
		}
		m.head = binary.BigEndian.Uint64(v[:8])
		m.tail = binary.BigEndian.Uint64(v[8:])
		return nil
	})
	return m, err
}

func writeMeta(txn *badger.Txn, key string, m listMeta) error {
	if m.head >= m.tail {
		err := txn.Delete(metaKey(key))
		return err
	}
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], m.head)
	binary.BigEndian.PutUint64(buf[8:], m.tail)
	return txn.Set(metaKey(key), buf)
}

func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for range maxConflictRetries {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return badger.ErrConflict
}

func (s *Store) RPush(ctx context.Context, key string, values ...string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		m, err := readMeta(txn, key)
		if err != nil {
			return err
		}
		for _, v := range values {
			if err := txn.Set(elemKey(key, m.tail), []byte(v)); err != nil {
				return err
			}
			m.tail++
		}
		return writeMeta(txn, key, m)
	})
	if err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		m, err := readMeta(txn, key)
		if err != nil {
			return err
		}
		from, to := store.Span(m.len(), start, stop)
		out = make([]string, 0, to-from)
		for i := from; i < to; i++ {
			item, err := txn.Get(elemKey(key, m.head+uint64(i)))
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}
	return out, nil
}

func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		m, err := readMeta(txn, key)
		if err != nil {
			return err
		}
		from, to := store.Span(m.len(), start, stop)
		keep := listMeta{head: m.head + uint64(from), tail: m.head + uint64(to)}
		if from >= to {
			keep = listMeta{}
		}
		for seq := m.head; seq < m.tail; seq++ {
			if keep.head < keep.tail && seq >= keep.head && seq < keep.tail {
				continue
			}
			if err := txn.Delete(elemKey(key, seq)); err != nil {
				return err
			}
		}
		return writeMeta(txn, key, keep)
	})
	if err != nil {
		return fmt.Errorf("ltrim %s: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var out string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(scalarKey(key))
		if err != nil {
			return err
		}
		v, err := item.ValueCopy(nil)
		out = string(v)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return out, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(scalarKey(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Del(ctx context.Context, keys ...string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		for _, key := range keys {
			m, err := readMeta(txn, key)
			if err != nil {
				return err
			}
			for seq := m.head; seq < m.tail; seq++ {
				if err := txn.Delete(elemKey(key, seq)); err != nil {
					return err
				}
			}
			if err := txn.Delete(metaKey(key)); err != nil {
				return err
			}
			if err := txn.Delete(scalarKey(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
