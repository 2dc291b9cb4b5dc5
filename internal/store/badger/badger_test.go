package badger

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/vovakirdan/chatrelay/internal/store"
)

func TestListSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	st, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, v := range []string{"one", "two", "three"} {
		if err := st.RPush(ctx, "room_7_messages", v); err != nil {
			t.Fatalf("rpush: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	got, err := st.LRange(ctx, "room_7_messages", 0, -1)
	if err != nil {
		t.Fatalf("lrange: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"one", "two", "three"}) {
		t.Fatalf("unexpected list: %v", got)
	}

	got, _ = st.LRange(ctx, "room_7_messages", -1, -1)
	if !reflect.DeepEqual(got, []string{"three"}) {
		t.Fatalf("unexpected tail: %v", got)
	}
}

func TestTrimKeepsNewest(t *testing.T) {
	st, err := Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	_ = st.RPush(ctx, "l", "a", "b", "c", "d", "e")
	if err := st.LTrim(ctx, "l", -2, -1); err != nil {
		t.Fatalf("ltrim: %v", err)
	}
	got, _ := st.LRange(ctx, "l", 0, -1)
	if !reflect.DeepEqual(got, []string{"d", "e"}) {
		t.Fatalf("unexpected list after trim: %v", got)
	}

	// Appends continue after the trimmed tail.
	_ = st.RPush(ctx, "l", "f")
	got, _ = st.LRange(ctx, "l", 0, -1)
	if !reflect.DeepEqual(got, []string{"d", "e", "f"}) {
		t.Fatalf("unexpected list after push: %v", got)
	}
}

func TestScalarsAndDelete(t *testing.T) {
	st, err := Open("")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	if _, err := st.Get(ctx, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := st.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, err := st.Get(ctx, "k"); err != nil || v != "v" {
		t.Fatalf("get = %q, %v", v, err)
	}

	_ = st.RPush(ctx, "l", "x", "y")
	if err := st.Del(ctx, "k", "l"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := st.Get(ctx, "k"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted scalar, got %v", err)
	}
	if got, _ := st.LRange(ctx, "l", 0, -1); len(got) != 0 {
		t.Fatalf("expected deleted list, got %v", got)
	}
}
