package viewer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"readshift/internal/api"
	"readshift/internal/render"
	"readshift/internal/util"
	"readshift/pkg/domain"
)

const excerptLength = 100

// BookmarkEntry is a bookmark with the title of the chapter it points at.
type BookmarkEntry struct {
	domain.Bookmark
	ChapterTitle string
}

// Label falls back to the chapter title when the bookmark has none.
func (e BookmarkEntry) Label() string {
	if strings.TrimSpace(e.Title) != "" {
		return e.Title
	}
	return e.ChapterTitle
}

// HighlightEntry is one row of the highlights tab.
type HighlightEntry struct {
	domain.Highlight
	Excerpt      string
	ChapterTitle string
}

// AddBookmark bookmarks the open chapter. A blank title becomes "Chapter N".
func (v *Viewer) AddBookmark(ctx context.Context, title string) (domain.Bookmark, error) {
	v.mu.Lock()
	if v.chapters == nil || v.current < 0 || v.current >= len(v.chapters) {
		v.mu.Unlock()
		return domain.Bookmark{}, ErrNotLoaded
	}
	in := api.BookmarkInput{
		BookID:       v.book.ID,
		ChapterID:    v.chapters[v.current].ID,
		Title:        strings.TrimSpace(title),
		ChapterIndex: v.current,
	}
	v.mu.Unlock()
	if in.Title == "" {
		in.Title = fmt.Sprintf("Chapter %d", in.ChapterIndex+1)
	}
	return v.books.CreateBookmark(ctx, in)
}

func (v *Viewer) Bookmarks(ctx context.Context) ([]BookmarkEntry, error) {
	bookID, chapters, err := v.loaded()
	if err != nil {
		return nil, err
	}
	list, err := v.books.ListBookmarks(ctx, bookID)
	if err != nil {
		return nil, err
	}
	out := make([]BookmarkEntry, 0, len(list))
	for _, bm := range list {
		out = append(out, BookmarkEntry{Bookmark: bm, ChapterTitle: chapterTitle(chapters, bm.ChapterIndex)})
	}
	return out, nil
}

func (v *Viewer) DeleteBookmark(ctx context.Context, id int64) error {
	return v.books.DeleteBookmark(ctx, id)
}

// GoToBookmark opens the chapter a bookmark points at.
func (v *Viewer) GoToBookmark(ctx context.Context, bm domain.Bookmark) error {
	return v.Open(ctx, bm.ChapterIndex)
}

// Highlights lists every highlight of the book for the highlights tab.
func (v *Viewer) Highlights(ctx context.Context) ([]HighlightEntry, error) {
	bookID, chapters, err := v.loaded()
	if err != nil {
		return nil, err
	}
	listing, err := v.highlights.List(ctx, bookID)
	if err != nil {
		return nil, err
	}
	out := make([]HighlightEntry, 0, len(listing.Highlights))
	for _, h := range listing.Highlights {
		out = append(out, HighlightEntry{
			Highlight:    h,
			Excerpt:      util.Truncate(h.Text, excerptLength),
			ChapterTitle: chapterTitle(chapters, h.ChapterIndex),
		})
	}
	return out, nil
}

func (v *Viewer) loaded() (int64, []domain.Chapter, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.chapters == nil {
		return 0, nil, ErrNotLoaded
	}
	return v.book.ID, v.chapters, nil
}

func chapterTitle(chapters []domain.Chapter, i int) string {
	if i >= 0 && i < len(chapters) {
		return render.ChapterTitle(chapters[i], i)
	}
	return fmt.Sprintf("Chapter %d", i+1)
}

// FormatDate renders a timestamp as a short date, "Unknown" when zero.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return t.Local().Format("2006-01-02")
}
