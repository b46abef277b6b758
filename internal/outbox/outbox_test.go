package outbox

import (
	"context"
	"errors"
	"testing"

	"readshift/pkg/domain"
	"readshift/pkg/kv"
)

func enqueueCreate(t *testing.T, o *Outbox, bookID int64, text string) Entry {
	t.Helper()
	e, err := o.Enqueue(context.Background(), Entry{
		Op:        OpCreate,
		BookID:    bookID,
		Highlight: domain.Highlight{ChapterIndex: 0, Text: text, Color: domain.ColorYellow},
	})
	if err != nil {
		t.Fatalf("enqueue %s: %v", text, err)
	}
	return e
}

func TestFlushReplaysInOrder(t *testing.T) {
	ctx := context.Background()
	o := New(kv.NewMemoryStore(), 3)
	enqueueCreate(t, o, 1, "first")
	enqueueCreate(t, o, 1, "second")
	if _, err := o.Enqueue(ctx, Entry{Op: OpDelete, BookID: 1, HighlightID: 9}); err != nil {
		t.Fatalf("enqueue delete: %v", err)
	}

	var seen []string
	res := o.Flush(ctx, func(_ context.Context, e Entry) error {
		if e.Op == OpDelete {
			seen = append(seen, "delete")
			return nil
		}
		seen = append(seen, e.Highlight.Text)
		return nil
	})
	if res.Err != nil || res.Replayed != 3 || res.Remaining != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := []string{"first", "second", "delete"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("replay order %v, want %v", seen, want)
		}
	}
	pending, _ := o.Pending(ctx)
	if len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %d", len(pending))
	}
}

func TestFlushStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	o := New(kv.NewMemoryStore(), 3)
	enqueueCreate(t, o, 1, "ok")
	enqueueCreate(t, o, 1, "boom")
	enqueueCreate(t, o, 1, "never")

	var calls []string
	res := o.Flush(ctx, func(_ context.Context, e Entry) error {
		calls = append(calls, e.Highlight.Text)
		if e.Highlight.Text == "boom" {
			return errors.New("server down")
		}
		return nil
	})
	if res.Err == nil || res.Replayed != 1 || res.Remaining != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(calls) != 2 {
		t.Fatalf("flush should stop after the failure, calls=%v", calls)
	}
	pending, _ := o.Pending(ctx)
	if len(pending) != 2 || pending[0].Highlight.Text != "boom" || pending[0].Attempts != 1 {
		t.Fatalf("unexpected pending: %+v", pending)
	}
	if pending[0].LastError != "server down" {
		t.Fatalf("last error not recorded: %q", pending[0].LastError)
	}
}

func TestFlushDropsAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	o := New(kv.NewMemoryStore(), 2)
	enqueueCreate(t, o, 1, "poison")
	enqueueCreate(t, o, 1, "next")

	fail := func(_ context.Context, e Entry) error { return errors.New("rejected") }
	if res := o.Flush(ctx, fail); res.Dropped != 0 || res.Remaining != 2 {
		t.Fatalf("first flush: %+v", res)
	}
	if res := o.Flush(ctx, fail); res.Dropped != 1 || res.Remaining != 1 {
		t.Fatalf("second flush: %+v", res)
	}
	pending, _ := o.Pending(ctx)
	if len(pending) != 1 || pending[0].Highlight.Text != "next" {
		t.Fatalf("unexpected pending: %+v", pending)
	}
}

func TestCancelCreate(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	o := New(store, 0)
	enqueueCreate(t, o, 4, "keep")
	enqueueCreate(t, o, 4, "cancel me")

	found, err := o.CancelCreate(ctx, 4, 0, "cancel me", domain.ColorYellow)
	if err != nil || !found {
		t.Fatalf("cancel: found=%v err=%v", found, err)
	}
	found, _ = o.CancelCreate(ctx, 4, 0, "cancel me", domain.ColorYellow)
	if found {
		t.Fatal("second cancel should find nothing")
	}

	replayed := 0
	o.Flush(ctx, func(_ context.Context, e Entry) error {
		if e.Highlight.Text == "cancel me" {
			t.Fatal("cancelled create reached the replayer")
		}
		replayed++
		return nil
	})
	if replayed != 1 {
		t.Fatalf("replayed %d, want 1", replayed)
	}
	if _, err := store.Get(ctx, Key); !errors.Is(err, kv.ErrNotFound) {
		t.Fatalf("drained outbox should delete its key, got %v", err)
	}
}

func TestPendingSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	enqueueCreate(t, New(store, 0), 2, "persisted")
	enqueueCreate(t, New(store, 0), 3, "other book")

	pending, err := New(store, 0).PendingForBook(ctx, 2)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Highlight.Text != "persisted" || pending[0].ID == "" {
		t.Fatalf("unexpected pending: %+v", pending)
	}
}

func TestEnqueueRejectsUnknownOp(t *testing.T) {
	if _, err := New(kv.NewMemoryStore(), 0).Enqueue(context.Background(), Entry{Op: "update"}); err == nil {
		t.Fatal("expected error")
	}
}
