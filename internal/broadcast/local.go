// Package broadcast provides core.Group backends: an in-process registry
// and pub/sub backed variants that span several relay processes.
package broadcast

import (
	"context"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/core"
)

type roomSet struct {
	mu      sync.RWMutex
	members map[string]core.Member
	dead    bool
}

func newRoomSet() *roomSet {
	return &roomSet{members: make(map[string]core.Member)}
}

// Local keeps live members per room inside this process. Rooms are
// independent: each has its own lock, and the room table is a concurrent
// map, so traffic in one room never waits on another.
type Local struct {
	rooms *xsync.MapOf[int64, *roomSet]
	log   *zerolog.Logger
}

// NewLocal creates an empty in-process group.
func NewLocal(logger *zerolog.Logger) *Local {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Local{
		rooms: xsync.NewMapOf[int64, *roomSet](),
		log:   logger,
	}
}

// Join implements core.Group.
func (l *Local) Join(_ context.Context, roomID int64, m core.Member) error {
	l.add(roomID, m)
	return nil
}

// Leave implements core.Group.
func (l *Local) Leave(_ context.Context, roomID int64, m core.Member) error {
	l.remove(roomID, m)
	return nil
}

// Broadcast implements core.Group.
func (l *Local) Broadcast(_ context.Context, roomID int64, msg core.Message) error {
	l.deliver(roomID, msg)
	return nil
}

// Members returns how many members the room has in this process.
func (l *Local) Members(roomID int64) int {
	rs, ok := l.rooms.Load(roomID)
	if !ok {
		return 0
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.members)
}

// add registers m and reports whether the room went from empty to
// non-empty in this process.
func (l *Local) add(roomID int64, m core.Member) bool {
	for {
		rs, _ := l.rooms.LoadOrCompute(roomID, newRoomSet)
		rs.mu.Lock()
		if rs.dead {
			// Lost a race with the last leave; the set is being dropped.
			rs.mu.Unlock()
			continue
		}
		first := len(rs.members) == 0
		rs.members[m.SessionID()] = m
		rs.mu.Unlock()
		return first
	}
}

// remove unregisters m and reports whether the room became empty.
func (l *Local) remove(roomID int64, m core.Member) bool {
	rs, ok := l.rooms.Load(roomID)
	if !ok {
		return false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, ok := rs.members[m.SessionID()]; !ok || rs.dead {
		return false
	}
	delete(rs.members, m.SessionID())
	if len(rs.members) > 0 {
		return false
	}
	rs.dead = true
	l.rooms.Compute(roomID, func(cur *roomSet, loaded bool) (*roomSet, bool) {
		return cur, loaded && cur == rs
	})
	return true
}

// deliver enqueues msg on every local member of the room. Enqueueing never
// blocks, so one dead or slow member cannot hold up the others.
func (l *Local) deliver(roomID int64, msg core.Message) int {
	rs, ok := l.rooms.Load(roomID)
	if !ok {
		return 0
	}
	rs.mu.RLock()
	members := make([]core.Member, 0, len(rs.members))
	for _, m := range rs.members {
		members = append(members, m)
	}
	rs.mu.RUnlock()

	ev := core.MessageEvent(roomID, msg)
	delivered := 0
	for _, m := range members {
		if err := m.Deliver(ev); err != nil {
			l.log.Warn().Err(err).
				Str("session_id", m.SessionID()).
				Int64("room_id", roomID).
				Msg("deliver message")
			continue
		}
		delivered++
	}
	return delivered
}
