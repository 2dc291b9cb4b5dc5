package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/broadcast"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/directory"
	"github.com/vovakirdan/chatrelay/internal/history"
	"github.com/vovakirdan/chatrelay/internal/ratelimit"
	"github.com/vovakirdan/chatrelay/internal/store/memory"
)

const testSecret = "test-secret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	server  *httptest.Server
	auth    *auth.Service
	rooms   *directory.SQLite
	history *history.Store
	group   *broadcast.Local
	clock   *testClock
}

// newTestEnv starts a relay backed by in-memory stores. Room 1 holds
// users 1 and 2, room 2 holds users 1, 2 and 3.
func newTestEnv(t *testing.T, opts core.Options) *testEnv {
	t.Helper()

	rooms, err := directory.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	t.Cleanup(func() { _ = rooms.Close() })

	ctx := context.Background()
	if _, err := rooms.CreateRoom(ctx, 1, 2); err != nil {
		t.Fatalf("seed room: %v", err)
	}
	if _, err := rooms.CreateRoom(ctx, 1, 2, 3); err != nil {
		t.Fatalf("seed room: %v", err)
	}

	disabledLogger := zerolog.New(nil)
	clock := &testClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}

	kv := memory.New()
	hist := history.New(kv, history.Config{}, &disabledLogger)
	limiter := ratelimit.New(kv, &disabledLogger, ratelimit.WithClock(clock.Now))
	group := broadcast.NewLocal(&disabledLogger)

	opts.Now = clock.Now
	relay := core.NewRelay(rooms, hist, limiter, group, &disabledLogger, opts)

	authService := auth.NewService(&auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})

	cfg := config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
		WriteTimeout:      time.Second,
		MaxMessageBytes:   1 << 16,
	}
	server := NewServer(relay, authService, rooms, hist, &cfg, &disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, auth: authService, rooms: rooms, history: hist, group: group, clock: clock}
}

// waitMembers polls until the room has n live members in this process.
func (e *testEnv) waitMembers(t *testing.T, roomID int64, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for e.group.Members(roomID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("room %d has %d members, want %d", roomID, e.group.Members(roomID), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (e *testEnv) token(t *testing.T, claims auth.Claims) string {
	t.Helper()
	token, err := e.auth.IssueToken(claims)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) wsURL(path string) string {
	return strings.Replace(e.server.URL, "http", "ws", 1) + path
}

// dial opens a chat socket for the user. It fails the test on any
// handshake error.
func (e *testEnv) dial(t *testing.T, claims auth.Claims, roomID string) *websocket.Conn {
	t.Helper()

	conn, resp, err := e.tryDial(t, e.token(t, claims), roomID)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial room %s: %v (status %d)", roomID, err, status)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func (e *testEnv) tryDial(t *testing.T, token, roomID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": {"Bearer " + token}}
	}
	return websocket.Dial(ctx, e.wsURL("/ws/chat/"+roomID), opts)
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readFrame reads one JSON frame into a generic map.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var frame map[string]any
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read: %v", err)
	}
	return frame
}

// expectSilence asserts nothing arrives for a short while. A timed out
// read closes the connection, so call it last on a given conn.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	var frame map[string]any
	if err := wsjson.Read(ctx, conn, &frame); err == nil {
		t.Fatalf("unexpected frame %v", frame)
	}
}

var (
	alice = auth.Claims{UserID: 1, FirstName: "Alice", LastName: "Anders"}
	bob   = auth.Claims{UserID: 2, FirstName: "Bob", LastName: "Brown"}
	carol = auth.Claims{UserID: 3, FirstName: "Carol", LastName: "Clark"}
	root  = auth.Claims{UserID: 99, FirstName: "Root", Admin: true}
)
