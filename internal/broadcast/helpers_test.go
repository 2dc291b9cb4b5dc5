package broadcast

import (
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/chatrelay/internal/core"
)

type fakeMember struct {
	id     string
	events chan *core.Event
	fail   error
}

func newMember(id string) *fakeMember {
	return &fakeMember{id: id, events: make(chan *core.Event, 16)}
}

func (f *fakeMember) SessionID() string { return f.id }

func (f *fakeMember) Deliver(ev *core.Event) error {
	if f.fail != nil {
		return f.fail
	}
	select {
	case f.events <- ev:
		return nil
	default:
		return errors.New("full")
	}
}

func mustReceive(t *testing.T, m *fakeMember) *core.Event {
	t.Helper()
	select {
	case ev := <-m.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("member %s received nothing", m.id)
		return nil
	}
}

func mustNotReceive(t *testing.T, m *fakeMember) {
	t.Helper()
	select {
	case ev := <-m.events:
		t.Fatalf("member %s received unexpected event %+v", m.id, ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func chat(text string) core.Message {
	return core.Message{ID: text, UserID: 1, FirstName: "Ada", LastName: "L", Content: text, Timestamp: time.Now().UTC()}
}
