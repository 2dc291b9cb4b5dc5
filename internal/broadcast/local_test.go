package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestLocalFanOutIsRoomScoped(t *testing.T) {
	ctx := context.Background()
	g := NewLocal(nil)

	a, b, other := newMember("a"), newMember("b"), newMember("other")
	_ = g.Join(ctx, 7, a)
	_ = g.Join(ctx, 7, b)
	_ = g.Join(ctx, 8, other)

	if err := g.Broadcast(ctx, 7, chat("hi")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	for _, m := range []*fakeMember{a, b} {
		ev := mustReceive(t, m)
		if ev.Message.Content != "hi" || ev.Room != 7 {
			t.Fatalf("unexpected event for %s: %+v", m.id, ev)
		}
	}
	mustNotReceive(t, other)
}

func TestLocalJoinIdempotentLeaveNoop(t *testing.T) {
	ctx := context.Background()
	g := NewLocal(nil)
	a := newMember("a")

	_ = g.Join(ctx, 1, a)
	_ = g.Join(ctx, 1, a)
	if n := g.Members(1); n != 1 {
		t.Fatalf("expected 1 member after double join, got %d", n)
	}

	_ = g.Broadcast(ctx, 1, chat("once"))
	mustReceive(t, a)
	mustNotReceive(t, a)

	if err := g.Leave(ctx, 2, a); err != nil {
		t.Fatalf("leave of unknown room should be a no-op, got %v", err)
	}
	if err := g.Leave(ctx, 1, a); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := g.Leave(ctx, 1, a); err != nil {
		t.Fatalf("second leave should be a no-op, got %v", err)
	}
	if n := g.Members(1); n != 0 {
		t.Fatalf("expected empty room, got %d", n)
	}

	_ = g.Broadcast(ctx, 1, chat("after leave"))
	mustNotReceive(t, a)
}

func TestLocalFailingMemberDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	g := NewLocal(nil)

	dead := newMember("dead")
	dead.fail = errors.New("connection reset")
	_ = g.Join(ctx, 1, dead)

	alive := make([]*fakeMember, 5)
	for i := range alive {
		alive[i] = newMember(fmt.Sprintf("m%d", i))
		_ = g.Join(ctx, 1, alive[i])
	}

	_ = g.Broadcast(ctx, 1, chat("still here"))
	for _, m := range alive {
		mustReceive(t, m)
	}
}

func TestLocalPreservesSendOrderPerMember(t *testing.T) {
	ctx := context.Background()
	g := NewLocal(nil)
	m := newMember("m")
	_ = g.Join(ctx, 1, m)

	for i := range 10 {
		_ = g.Broadcast(ctx, 1, chat(fmt.Sprint(i)))
	}
	for i := range 10 {
		ev := mustReceive(t, m)
		if ev.Message.Content != fmt.Sprint(i) {
			t.Fatalf("out of order: got %q at %d", ev.Message.Content, i)
		}
	}
}

func TestLocalConcurrentJoinLeave(t *testing.T) {
	ctx := context.Background()
	g := NewLocal(nil)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := newMember(fmt.Sprintf("m%d", i))
			room := int64(i % 3)
			_ = g.Join(ctx, room, m)
			_ = g.Broadcast(ctx, room, chat("x"))
			_ = g.Leave(ctx, room, m)
		}(i)
	}
	wg.Wait()

	for room := int64(0); room < 3; room++ {
		if n := g.Members(room); n != 0 {
			t.Fatalf("room %d still has %d members", room, n)
		}
	}
}
