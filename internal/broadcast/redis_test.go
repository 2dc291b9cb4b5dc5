package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newRedisGroup(t *testing.T, addr string, opts ...Option) *Redis {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	g, err := NewRedis(context.Background(), client, "test:", nil, opts...)
	if err != nil {
		t.Fatalf("new redis group: %v", err)
	}
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestRedisFanOutAcrossProcesses(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	nodeA := newRedisGroup(t, mr.Addr())
	nodeB := newRedisGroup(t, mr.Addr())

	alice, bob, carol := newMember("alice"), newMember("bob"), newMember("carol")
	if err := nodeA.Join(ctx, 7, alice); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := nodeB.Join(ctx, 7, bob); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := nodeB.Join(ctx, 8, carol); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := nodeA.Broadcast(ctx, 7, chat("hi")); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	if ev := mustReceive(t, alice); ev.Message.Content != "hi" {
		t.Fatalf("sender got %+v", ev)
	}
	if ev := mustReceive(t, bob); ev.Message.Content != "hi" || ev.Room != 7 {
		t.Fatalf("remote member got %+v", ev)
	}
	mustNotReceive(t, carol)
}

func TestRedisUnsubscribesWhenRoomEmpties(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	nodeA := newRedisGroup(t, mr.Addr())
	nodeB := newRedisGroup(t, mr.Addr())

	bob := newMember("bob")
	_ = nodeB.Join(ctx, 3, bob)
	if err := nodeB.Leave(ctx, 3, bob); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := nodeB.Leave(ctx, 3, bob); err != nil {
		t.Fatalf("second leave should be a no-op, got %v", err)
	}

	_ = nodeA.Broadcast(ctx, 3, chat("nobody home"))
	mustNotReceive(t, bob)

	if nodeB.Members(3) != 0 {
		t.Fatalf("expected no local members")
	}
}

func TestRedisPreservesOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	nodeA := newRedisGroup(t, mr.Addr())
	nodeB := newRedisGroup(t, mr.Addr())

	bob := newMember("bob")
	_ = nodeB.Join(ctx, 1, bob)

	texts := []string{"one", "two", "three", "four"}
	for _, text := range texts {
		if err := nodeA.Broadcast(ctx, 1, chat(text)); err != nil {
			t.Fatalf("broadcast: %v", err)
		}
	}
	for _, want := range texts {
		if ev := mustReceive(t, bob); ev.Message.Content != want {
			t.Fatalf("got %q, want %q", ev.Message.Content, want)
		}
	}
}

func TestRedisJoinIsBounded(t *testing.T) {
	mr := miniredis.RunT(t)
	g := newRedisGroup(t, mr.Addr(), WithTimeout(200*time.Millisecond))
	mr.Close()

	start := time.Now()
	err := g.Join(context.Background(), 6, newMember("bob"))
	if err == nil {
		t.Fatalf("expected join to fail without a server")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("join took %s", elapsed)
	}
	if got := g.Members(6); got != 0 {
		t.Fatalf("failed join left %d members", got)
	}

	// The stripe lock is released, so the room can still be used.
	done := make(chan struct{})
	go func() {
		_ = g.Leave(context.Background(), 6, newMember("carol"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("room lock still held after failed join")
	}
}
