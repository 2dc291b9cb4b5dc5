package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/chatrelay/internal/broadcast"
	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/history"
	"github.com/vovakirdan/chatrelay/internal/ratelimit"
	"github.com/vovakirdan/chatrelay/internal/store/memory"
)

type fakeDirectory struct {
	rooms map[int64][]int64
	err   error
}

func (d *fakeDirectory) RoomExists(_ context.Context, roomID int64) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	_, ok := d.rooms[roomID]
	return ok, nil
}

func (d *fakeDirectory) IsMember(_ context.Context, roomID, userID int64) (bool, error) {
	for _, id := range d.rooms[roomID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	relay     *core.Relay
	directory *fakeDirectory
	history   *history.Store
	group     *broadcast.Local
	clock     *fakeClock
	kv        *memory.Store
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	opts    core.Options
	history core.History
	group   core.Group
}

func withOptions(opts core.Options) fixtureOption {
	return func(c *fixtureConfig) { c.opts = opts }
}

func withHistory(h core.History) fixtureOption {
	return func(c *fixtureConfig) { c.history = h }
}

func withGroup(g core.Group) fixtureOption {
	return func(c *fixtureConfig) { c.group = g }
}

func newFixture(t *testing.T, options ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		directory: &fakeDirectory{rooms: map[int64][]int64{
			7: {1, 2, 3},
			8: {1, 2},
		}},
		clock: &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		kv:    memory.New(),
		group: broadcast.NewLocal(nil),
	}
	f.history = history.New(f.kv, history.Config{}, nil)

	cfg := fixtureConfig{history: f.history, group: f.group}
	for _, o := range options {
		o(&cfg)
	}
	cfg.opts.Now = f.clock.Now

	limiter := ratelimit.New(f.kv, nil, ratelimit.WithClock(f.clock.Now))
	f.relay = core.NewRelay(f.directory, cfg.history, limiter, cfg.group, nil, cfg.opts)
	return f
}

var (
	alice = core.Identity{UserID: 1, FirstName: "Alice", LastName: "Anders"}
	bob   = core.Identity{UserID: 2, FirstName: "Bob", LastName: "Brown"}
	carol = core.Identity{UserID: 3, FirstName: "Carol", LastName: "Clark"}
)

func (f *fixture) connect(t *testing.T, id core.Identity, roomID int64) *core.Session {
	t.Helper()
	s, err := f.relay.Connect(context.Background(), id, roomID)
	if err != nil {
		t.Fatalf("connect %d to room %d: %v", id.UserID, roomID, err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

// pump runs the session's write pump and exposes written events.
func pump(t *testing.T, s *core.Session) <-chan *core.Event {
	t.Helper()

	out := make(chan *core.Event, 64)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.WritePump(ctx, func(_ context.Context, ev *core.Event) error {
			out <- ev
			return nil
		})
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return out
}

func mustEvent(t *testing.T, ch <-chan *core.Event, kind core.EventKind) *core.Event {
	t.Helper()

	select {
	case ev := <-ch:
		if ev.Kind != kind {
			t.Fatalf("expected event kind %v, got %+v", kind, ev)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("expected event kind %v not received", kind)
		return nil
	}
}

func mustNoEvent(t *testing.T, ch <-chan *core.Event) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

type failingHistory struct {
	appendErr error
	recentErr error
	inner     core.History
}

func (h *failingHistory) Append(ctx context.Context, roomID int64, msg core.Message) error {
	if h.appendErr != nil {
		return h.appendErr
	}
	return h.inner.Append(ctx, roomID, msg)
}

func (h *failingHistory) Recent(ctx context.Context, roomID int64) ([]core.Message, error) {
	if h.recentErr != nil {
		return nil, h.recentErr
	}
	return h.inner.Recent(ctx, roomID)
}

// leaveFailingGroup wraps a group whose Leave always errors.
type leaveFailingGroup struct {
	core.Group
	leaves int
}

func (g *leaveFailingGroup) Leave(ctx context.Context, roomID int64, m core.Member) error {
	g.leaves++
	_ = g.Group.Leave(ctx, roomID, m)
	return errors.New("pubsub unreachable")
}
