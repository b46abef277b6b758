package highlight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"readshift/internal/api"
	"readshift/internal/outbox"
	"readshift/internal/render"
	"readshift/pkg/domain"
	"readshift/pkg/kv"
)

type wire struct {
	ID           int64     `json:"id"`
	BookID       int64     `json:"book_id"`
	Text         string    `json:"highlighted_text"`
	ChapterIndex int       `json:"chapter_index"`
	Color        string    `json:"color"`
	CreatedAt    time.Time `json:"created_at"`
}

// backend is a minimal highlight server that can be switched off.
type backend struct {
	mu      sync.Mutex
	nextID  int64
	items   []wire
	down    atomic.Bool
	garbled atomic.Bool
	creates atomic.Int32
	deletes atomic.Int32
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if b.down.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "maintenance"})
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/highlights/":
		var in wire
		_ = json.NewDecoder(r.Body).Decode(&in)
		b.nextID++
		in.ID = b.nextID
		in.CreatedAt = time.Now().UTC()
		b.items = append(b.items, in)
		b.creates.Add(1)
		if b.garbled.Load() {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":`))
			return
		}
		_ = json.NewEncoder(w).Encode(in)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/highlights/book/"):
		bookID, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/highlights/book/"), 10, 64)
		out := []wire{}
		for _, it := range b.items {
			if it.BookID == bookID {
				out = append(out, it)
			}
		}
		_ = json.NewEncoder(w).Encode(out)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/highlights/"):
		id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/highlights/"), 10, 64)
		b.deletes.Add(1)
		for i, it := range b.items {
			if it.ID == id {
				b.items = append(b.items[:i], b.items[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Highlight not found"})
	default:
		http.NotFound(w, r)
	}
}

type staticSession struct{}

func (staticSession) AccessToken() string         { return "tok" }
func (staticSession) Clear(context.Context) error { return nil }

func newService(t *testing.T, store kv.Store) (*Service, *backend) {
	t.Helper()
	b := &backend{}
	srv := httptest.NewServer(b)
	t.Cleanup(srv.Close)
	client := api.NewClient(srv.URL, staticSession{})
	return NewService(client, store, outbox.New(store, 3)), b
}

func span(text, color string) Span {
	return Span{BookID: 1, ChapterID: 10, ChapterIndex: 0, Text: text, Color: color}
}

func TestCreateThenListIncludesHighlightOnce(t *testing.T) {
	ctx := context.Background()
	svc, b := newService(t, kv.NewMemoryStore())

	h, err := svc.Create(ctx, span("  call me Ishmael ", domain.ColorYellow))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if h.ID == 0 || h.Pending || h.Text != "call me Ishmael" {
		t.Fatalf("unexpected highlight: %+v", h)
	}
	listing, err := svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listing.Source != SourceRemote || len(listing.Highlights) != 1 {
		t.Fatalf("unexpected listing: %+v", listing)
	}
	if got := b.creates.Load(); got != 1 {
		t.Fatalf("expected one remote create, got %d", got)
	}
}

func TestCreateWithBackendDownFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	svc, b := newService(t, store)
	b.down.Store(true)

	h, err := svc.Create(ctx, span("offline words", domain.ColorBlue))
	if err != nil {
		t.Fatalf("create should not fail when the backend is down: %v", err)
	}
	if !h.Pending || h.ID != 0 {
		t.Fatalf("expected pending local record: %+v", h)
	}
	listing, err := svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listing.Source != SourceLocal || len(listing.Highlights) != 1 || listing.RemoteErr == nil {
		t.Fatalf("unexpected listing: %+v", listing)
	}
	pending, _ := svc.outbox.Pending(ctx)
	if len(pending) != 1 || pending[0].Op != outbox.OpCreate {
		t.Fatalf("expected queued create, got %+v", pending)
	}

	b.down.Store(false)
	res := svc.Sync(ctx)
	if res.Err != nil || res.Replayed != 1 {
		t.Fatalf("sync: %+v", res)
	}
	local, _ := svc.Local(ctx, 1)
	if len(local) != 1 || local[0].Pending || local[0].ID == 0 {
		t.Fatalf("backup not reconciled after sync: %+v", local)
	}
}

func TestCreateWithUnreadableReplyIsNotQueued(t *testing.T) {
	ctx := context.Background()
	svc, b := newService(t, kv.NewMemoryStore())
	b.garbled.Store(true)

	h, err := svc.Create(ctx, span("the spice must flow", domain.ColorGreen))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if h.Pending {
		t.Fatalf("stored highlight marked pending: %+v", h)
	}
	if pending, _ := svc.outbox.Pending(ctx); len(pending) != 0 {
		t.Fatalf("expected empty outbox, got %+v", pending)
	}
	listing, err := svc.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listing.Source != SourceRemote || len(listing.Highlights) != 1 || listing.Highlights[0].ID == 0 {
		t.Fatalf("unexpected listing: %+v", listing)
	}
	if got := b.creates.Load(); got != 1 {
		t.Fatalf("expected one remote create, got %d", got)
	}
}

func TestSyncWithUnreadableReplyCountsAsReplayed(t *testing.T) {
	ctx := context.Background()
	svc, b := newService(t, kv.NewMemoryStore())
	b.down.Store(true)
	if _, err := svc.Create(ctx, span("offline words", domain.ColorBlue)); err != nil {
		t.Fatalf("create: %v", err)
	}

	b.down.Store(false)
	b.garbled.Store(true)
	res := svc.Sync(ctx)
	if res.Err != nil || res.Replayed != 1 {
		t.Fatalf("sync: %+v", res)
	}
	if res := svc.Sync(ctx); res.Replayed != 0 {
		t.Fatalf("second sync replayed again: %+v", res)
	}
	if got := b.creates.Load(); got != 1 {
		t.Fatalf("expected one remote create, got %d", got)
	}
	local, _ := svc.Local(ctx, 1)
	if len(local) != 1 || local[0].Pending {
		t.Fatalf("backup still pending: %+v", local)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, b := newService(t, kv.NewMemoryStore())
	ctx := context.Background()
	if _, err := svc.Create(ctx, span(" ab ", domain.ColorYellow)); !errors.Is(err, ErrSelectionTooShort) {
		t.Fatalf("expected ErrSelectionTooShort, got %v", err)
	}
	if _, err := svc.Create(ctx, span("long enough", "purple")); !errors.Is(err, ErrInvalidColor) {
		t.Fatalf("expected ErrInvalidColor, got %v", err)
	}
	if b.creates.Load() != 0 {
		t.Fatal("invalid selections must not reach the backend")
	}
}

func TestRemoveDeletesOnceAndCleansDocumentAndBackup(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	store, err := kv.NewRedisStore(mr.Addr(), "", "test")
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	svc, b := newService(t, store)

	root := render.Chapter(domain.Chapter{Title: "One", RawText: "It was the best of times"}, 0)
	marker := render.HighlightText(root, "best of times", domain.ColorGreen)
	if _, err := svc.Create(ctx, span("best of times", domain.ColorGreen)); err != nil {
		t.Fatalf("create: %v", err)
	}

	text, color := render.Unwrap(marker)
	res, err := svc.Remove(ctx, span(text, color))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !res.Deleted || b.deletes.Load() != 1 {
		t.Fatalf("expected exactly one delete: %+v deletes=%d", res, b.deletes.Load())
	}
	if len(render.Markers(root)) != 0 {
		t.Fatal("marker still in document")
	}
	local, _ := svc.Local(ctx, 1)
	if len(local) != 0 {
		t.Fatalf("backup not cleaned: %+v", local)
	}
	if !mr.Exists("test:" + BackupKey(1)) {
		t.Fatal("backup key should persist as an empty list")
	}
}

func TestRemoveWithoutIDIssuesNoDelete(t *testing.T) {
	ctx := context.Background()
	svc, b := newService(t, kv.NewMemoryStore())

	b.down.Store(true)
	if _, err := svc.Create(ctx, span("never synced", domain.ColorPink)); err != nil {
		t.Fatalf("create: %v", err)
	}
	res, err := svc.Remove(ctx, span("never synced", domain.ColorPink))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !res.Cancelled || res.Deleted || b.deletes.Load() != 0 {
		t.Fatalf("unexpected result: %+v deletes=%d", res, b.deletes.Load())
	}

	b.down.Store(false)
	svc.Sync(ctx)
	if b.creates.Load() != 0 {
		t.Fatal("a cancelled create reached the backend")
	}
}

func TestRemoveQueuesDeleteWhenBackendFails(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	svc, b := newService(t, store)
	if _, err := svc.Create(ctx, span("queued delete", domain.ColorYellow)); err != nil {
		t.Fatalf("create: %v", err)
	}

	b.down.Store(true)
	res, err := svc.Remove(ctx, span("queued delete", domain.ColorYellow))
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if !res.Queued {
		t.Fatalf("expected queued delete: %+v", res)
	}
	b.down.Store(false)
	if r := svc.Sync(ctx); r.Replayed != 1 {
		t.Fatalf("sync: %+v", r)
	}
	if after, _ := svc.List(ctx, 1); len(after.Highlights) != 0 {
		t.Fatalf("highlight survived: %+v", after.Highlights)
	}
}

func TestApplyFiltersByChapter(t *testing.T) {
	root := render.Chapter(domain.Chapter{RawText: "red fish\nblue fish"}, 1)
	n := ApplyListing([]domain.Highlight{
		{ChapterIndex: 1, Text: "fish", Color: domain.ColorYellow},
		{ChapterIndex: 1, Text: "fish", Color: domain.ColorBlue},
		{ChapterIndex: 0, Text: "red", Color: domain.ColorPink},
		{ChapterIndex: 1, Text: "absent", Color: domain.ColorPink},
	}, 1, root)
	if n != 2 {
		t.Fatalf("applied %d, want 2", n)
	}
	markers := render.Markers(root)
	if render.Attr(markers[0].Parent, "id") != "para-0" || render.Attr(markers[1].Parent, "id") != "para-1" {
		t.Fatal("duplicate text should wrap successive occurrences")
	}
}
