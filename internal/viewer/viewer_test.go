package viewer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"readshift/internal/api"
	"readshift/internal/highlight"
	"readshift/internal/render"
	"readshift/pkg/domain"
)

type fakeBooks struct {
	book      domain.Book
	chapters  []domain.Chapter
	bookErr   error
	bookmarks []domain.Bookmark
}

func (f *fakeBooks) GetBook(context.Context, int64) (domain.Book, error) {
	return f.book, f.bookErr
}

func (f *fakeBooks) ListChapters(context.Context, int64) ([]domain.Chapter, error) {
	return f.chapters, nil
}

func (f *fakeBooks) CreateBookmark(_ context.Context, in api.BookmarkInput) (domain.Bookmark, error) {
	bm := domain.Bookmark{ID: int64(len(f.bookmarks) + 1), BookID: in.BookID, Title: in.Title, ChapterIndex: in.ChapterIndex}
	f.bookmarks = append(f.bookmarks, bm)
	return bm, nil
}

func (f *fakeBooks) ListBookmarks(context.Context, int64) ([]domain.Bookmark, error) {
	return f.bookmarks, nil
}

func (f *fakeBooks) DeleteBookmark(_ context.Context, id int64) error {
	for i, bm := range f.bookmarks {
		if bm.ID == id {
			f.bookmarks = append(f.bookmarks[:i], f.bookmarks[i+1:]...)
			return nil
		}
	}
	return &api.APIError{Status: 404, Message: "Bookmark not found"}
}

type fakeHighlights struct {
	mu      sync.Mutex
	items   []domain.Highlight
	removed []highlight.Span

	// entered and release hold the next List call.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeHighlights) Create(_ context.Context, s highlight.Span) (domain.Highlight, error) {
	text, err := highlight.Normalize(s.Text, s.Color)
	if err != nil {
		return domain.Highlight{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	h := domain.Highlight{ID: int64(len(f.items) + 1), ChapterIndex: s.ChapterIndex, Text: text, Color: s.Color}
	f.items = append(f.items, h)
	return h, nil
}

func (f *fakeHighlights) List(context.Context, int64) (highlight.Listing, error) {
	f.mu.Lock()
	entered, release := f.entered, f.release
	f.entered, f.release = nil, nil
	f.mu.Unlock()
	if release != nil {
		entered <- struct{}{}
		<-release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return highlight.Listing{Highlights: append([]domain.Highlight(nil), f.items...), Source: highlight.SourceRemote}, nil
}

func (f *fakeHighlights) Remove(_ context.Context, s highlight.Span) (highlight.RemoveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, s)
	for i, h := range f.items {
		if h.Matches(s.ChapterIndex, s.Text, s.Color) {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return highlight.RemoveResult{Deleted: true}, nil
		}
	}
	return highlight.RemoveResult{}, nil
}

func sampleBooks() *fakeBooks {
	return &fakeBooks{
		book: domain.Book{ID: 3, Title: "Moby Dick"},
		chapters: []domain.Chapter{
			{ID: 30, Title: "Loomings", RawText: "Call me Ishmael.\nSome years ago.", PageStart: 5, PageEnd: 10, WordCount: 6},
			{ID: 31, Title: "The Carpet-Bag", RawText: "I stuffed a shirt or two.", PageStart: 11, PageEnd: 20, WordCount: 7},
			{ID: 32, RawText: ""},
		},
	}
}

func TestPageNumber(t *testing.T) {
	chapters := []domain.Chapter{{PageStart: 5, PageEnd: 10}, {PageStart: 11, PageEnd: 20}, {}}
	cases := []struct{ index, want int }{{0, 5}, {1, 11}, {2, 3}}
	for _, tc := range cases {
		if got := PageNumber(chapters, tc.index); got != tc.want {
			t.Errorf("PageNumber(%d) = %d, want %d", tc.index, got, tc.want)
		}
	}
}

func TestChapterEntries(t *testing.T) {
	entries := ChapterEntries(sampleBooks().chapters, 1)
	if entries[0].Info != "Pages 5-10" || entries[0].Label() != "Pages 5-10 • 6 words" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
	if entries[2].Info != "Chapter 3" || entries[2].Title != "Chapter 3" {
		t.Fatalf("unexpected fallback entry: %+v", entries[2])
	}
	if !entries[1].Active || entries[0].Active {
		t.Fatal("active flag wrong")
	}
}

func TestLoadAndNavigate(t *testing.T) {
	ctx := context.Background()
	v := New(sampleBooks(), &fakeHighlights{}, "")
	var snaps []Snapshot
	v.OnChange(func(s Snapshot) { snaps = append(snaps, s) })

	if err := v.Load(ctx, 3, 9); err != nil {
		t.Fatalf("load: %v", err)
	}
	s := v.Snapshot()
	if s.ChapterIndex != 0 || s.PageNumber != 5 || s.HasPrev || !s.HasNext || s.Color != domain.ColorYellow {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
	if err := v.Next(ctx); err != nil {
		t.Fatalf("next: %v", err)
	}
	if s := v.Snapshot(); s.PageNumber != 11 || s.Progress < 66 || s.Progress > 67 {
		t.Fatalf("after next: page %d progress %.2f", s.PageNumber, s.Progress)
	}
	_ = v.Next(ctx)
	_ = v.Next(ctx)
	s = v.Snapshot()
	if s.ChapterIndex != 2 || s.HasNext || s.Progress != 100 {
		t.Fatalf("expected to stop at the last chapter: %+v", s)
	}
	if !strings.Contains(s.Text, render.EmptyChapterNotice) {
		t.Fatalf("expected empty notice, got %q", s.Text)
	}
	if err := v.Open(ctx, -1); err != nil || v.Current() != 2 {
		t.Fatal("out of range open must be ignored")
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 published snapshots, got %d", len(snaps))
	}
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	if err := New(&fakeBooks{book: domain.Book{ID: 1}}, &fakeHighlights{}, "").Load(ctx, 1, 0); !errors.Is(err, ErrNoChapters) {
		t.Fatalf("expected ErrNoChapters, got %v", err)
	}
	books := sampleBooks()
	books.bookErr = &api.APIError{Status: 404, Message: "Book not found"}
	err := New(books, &fakeHighlights{}, "").Load(ctx, 1, 0)
	if api.StatusCode(err) != 404 {
		t.Fatalf("expected wrapped 404, got %v", err)
	}
}

func TestSelectCreatesThenRemoves(t *testing.T) {
	ctx := context.Background()
	hl := &fakeHighlights{}
	v := New(sampleBooks(), hl, domain.ColorGreen)
	if err := v.Load(ctx, 3, 0); err != nil {
		t.Fatalf("load: %v", err)
	}

	out, err := v.Select(ctx, Selection{Text: " Ishmael "})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if out.Action != ActionCreated || out.Highlight.Color != domain.ColorGreen {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !strings.Contains(v.Snapshot().HTML, `<span class="highlight green"`) {
		t.Fatal("marker not rendered")
	}

	out, err = v.Select(ctx, Selection{Text: "Ishm"})
	if err != nil {
		t.Fatalf("select inside marker: %v", err)
	}
	if out.Action != ActionRemoved || len(hl.removed) != 1 || hl.removed[0].Text != "Ishmael" {
		t.Fatalf("expected removal of the whole highlight: %+v %+v", out, hl.removed)
	}
	if strings.Contains(v.Snapshot().HTML, "highlight") {
		t.Fatal("marker still rendered")
	}
	if _, err := v.Select(ctx, Selection{Text: "ab"}); !errors.Is(err, highlight.ErrSelectionTooShort) {
		t.Fatalf("expected ErrSelectionTooShort, got %v", err)
	}
	if _, err := v.Select(ctx, Selection{Text: "whale"}); !errors.Is(err, render.ErrTextNotFound) {
		t.Fatalf("expected ErrTextNotFound, got %v", err)
	}
}

func TestHighlightsReappearWhenChapterReopens(t *testing.T) {
	ctx := context.Background()
	hl := &fakeHighlights{}
	v := New(sampleBooks(), hl, domain.ColorBlue)
	_ = v.Load(ctx, 3, 0)
	if _, err := v.Select(ctx, Selection{Text: "Some years", Paragraph: render.ParagraphID(1)}); err != nil {
		t.Fatalf("select: %v", err)
	}
	_ = v.Next(ctx)
	_ = v.Prev(ctx)
	if !strings.Contains(v.Snapshot().HTML, ">Some years</span>") {
		t.Fatalf("highlight not re-applied: %s", v.Snapshot().HTML)
	}

	entries, err := v.Highlights(ctx)
	if err != nil || len(entries) != 1 || entries[0].ChapterTitle != "Loomings" {
		t.Fatalf("highlights tab: %+v %v", entries, err)
	}
	if _, err := v.RemoveHighlight(ctx, "Some years", domain.ColorBlue); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(hl.items) != 0 {
		t.Fatal("highlight not removed")
	}
}

func TestBookmarks(t *testing.T) {
	ctx := context.Background()
	books := sampleBooks()
	v := New(books, &fakeHighlights{}, "")
	_ = v.Load(ctx, 3, 1)

	bm, err := v.AddBookmark(ctx, "  ")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if bm.Title != "Chapter 2" || bm.ChapterIndex != 1 {
		t.Fatalf("unexpected bookmark: %+v", bm)
	}
	list, _ := v.Bookmarks(ctx)
	if len(list) != 1 || list[0].ChapterTitle != "The Carpet-Bag" {
		t.Fatalf("unexpected list: %+v", list)
	}
	_ = v.Open(ctx, 0)
	if err := v.GoToBookmark(ctx, bm); err != nil || v.Current() != 1 {
		t.Fatalf("go to bookmark: %v current=%d", err, v.Current())
	}
	if err := v.DeleteBookmark(ctx, bm.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestBookmarkDuringLoadIsRejected(t *testing.T) {
	ctx := context.Background()
	books := sampleBooks()
	entered, release := make(chan struct{}), make(chan struct{})
	hl := &fakeHighlights{entered: entered, release: release}
	v := New(books, hl, domain.ColorYellow)

	done := make(chan error, 1)
	go func() { done <- v.Load(ctx, 3, 1) }()
	<-entered
	if _, err := v.AddBookmark(ctx, ""); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded while loading, got %v", err)
	}
	if got := v.Current(); got != -1 {
		t.Fatalf("current while loading = %d", got)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("load: %v", err)
	}

	bm, err := v.AddBookmark(ctx, "")
	if err != nil {
		t.Fatalf("add bookmark: %v", err)
	}
	if bm.Title != "Chapter 2" || bm.ChapterIndex != 1 {
		t.Fatalf("unexpected bookmark: %+v", bm)
	}
}

func TestExcerptTruncation(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("x", 150)
	hl := &fakeHighlights{items: []domain.Highlight{{ID: 1, Text: long, Color: domain.ColorPink, ChapterIndex: 7}}}
	v := New(sampleBooks(), hl, "")
	_ = v.Load(ctx, 3, 0)
	entries, _ := v.Highlights(ctx)
	if entries[0].Excerpt != strings.Repeat("x", 100)+"..." || entries[0].ChapterTitle != "Chapter 8" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}
