// Package viewer is the text book reader: chapter navigation, highlights
// and bookmarks over one loaded book.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"readshift/internal/api"
	"readshift/internal/highlight"
	"readshift/internal/render"
	"readshift/internal/util"
	"readshift/pkg/domain"
)

// NoChaptersMessage is shown when a book has not been extracted yet.
const NoChaptersMessage = "No chapters found. Please extract text first."

var (
	ErrNoChapters = errors.New("no chapters found")
	ErrNotLoaded  = errors.New("no book loaded")
)

// Books is the server API the viewer reads from.
type Books interface {
	GetBook(ctx context.Context, id int64) (domain.Book, error)
	ListChapters(ctx context.Context, bookID int64) ([]domain.Chapter, error)
	CreateBookmark(ctx context.Context, in api.BookmarkInput) (domain.Bookmark, error)
	ListBookmarks(ctx context.Context, bookID int64) ([]domain.Bookmark, error)
	DeleteBookmark(ctx context.Context, id int64) error
}

// Highlights is the reconciliation service.
type Highlights interface {
	Create(ctx context.Context, span highlight.Span) (domain.Highlight, error)
	List(ctx context.Context, bookID int64) (highlight.Listing, error)
	Remove(ctx context.Context, span highlight.Span) (highlight.RemoveResult, error)
}

// Selection is text the reader picked, optionally limited to one paragraph id.
type Selection struct {
	Text      string
	Paragraph string
}

// Action says what a selection did.
type Action string

const (
	ActionCreated Action = "created"
	ActionRemoved Action = "removed"
)

type Outcome struct {
	Action    Action
	Highlight domain.Highlight
}

// Viewer is safe for concurrent use. Observers run outside its lock.
type Viewer struct {
	books      Books
	highlights Highlights

	mu       sync.Mutex
	book     domain.Book
	chapters []domain.Chapter
	current  int
	color    string
	doc      *html.Node
	observer func(Snapshot)
}

// New returns a viewer using color for new highlights; an invalid color
// falls back to yellow.
func New(books Books, highlights Highlights, color string) *Viewer {
	if !domain.ValidColor(color) {
		color = domain.ColorYellow
	}
	return &Viewer{books: books, highlights: highlights, color: color}
}

// OnChange registers fn to receive a snapshot after every state change.
func (v *Viewer) OnChange(fn func(Snapshot)) {
	v.mu.Lock()
	v.observer = fn
	v.mu.Unlock()
}

// Load fetches the book and its chapters concurrently and opens chapter
// start, or the first chapter when start is out of range.
func (v *Viewer) Load(ctx context.Context, bookID int64, start int) error {
	var (
		book     domain.Book
		chapters []domain.Chapter
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := v.books.GetBook(gctx, bookID)
		if err != nil {
			return fmt.Errorf("load book: %w", err)
		}
		book = b
		return nil
	})
	g.Go(func() error {
		list, err := v.books.ListChapters(gctx, bookID)
		if err != nil {
			return fmt.Errorf("load chapters: %w", err)
		}
		chapters = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if len(chapters) == 0 {
		return ErrNoChapters
	}
	if start < 0 || start >= len(chapters) {
		start = 0
	}
	doc := v.renderChapter(ctx, book.ID, chapters[start], start)

	// The book, chapters and position change together.
	v.mu.Lock()
	v.book = book
	v.chapters = chapters
	v.current = start
	v.doc = doc
	v.mu.Unlock()
	v.publish()
	return nil
}

// Open shows chapter i. Out of range indices are ignored.
func (v *Viewer) Open(ctx context.Context, i int) error {
	v.mu.Lock()
	if i < 0 || i >= len(v.chapters) {
		v.mu.Unlock()
		return nil
	}
	ch := v.chapters[i]
	bookID := v.book.ID
	v.mu.Unlock()

	doc := v.renderChapter(ctx, bookID, ch, i)

	v.mu.Lock()
	if v.book.ID != bookID || i >= len(v.chapters) {
		// A different book was loaded meanwhile.
		v.mu.Unlock()
		return nil
	}
	v.current = i
	v.doc = doc
	v.mu.Unlock()
	v.publish()
	return nil
}

func (v *Viewer) renderChapter(ctx context.Context, bookID int64, ch domain.Chapter, i int) *html.Node {
	doc := render.Chapter(ch, i)
	if ch.RawText == "" {
		return doc
	}
	listing, err := v.highlights.List(ctx, bookID)
	if err != nil {
		util.LoggerFromContext(ctx).Warn("load highlights failed", "book_id", bookID, "err", err)
		return doc
	}
	highlight.ApplyListing(listing.Highlights, i, doc)
	return doc
}

func (v *Viewer) Next(ctx context.Context) error {
	return v.Open(ctx, v.Current()+1)
}

func (v *Viewer) Prev(ctx context.Context) error {
	return v.Open(ctx, v.Current()-1)
}

// Current returns the open chapter index, -1 before Load.
func (v *Viewer) Current() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.chapters == nil {
		return -1
	}
	return v.current
}

func (v *Viewer) Book() domain.Book {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.book
}

func (v *Viewer) Chapters() []domain.Chapter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.Chapter(nil), v.chapters...)
}

// SetColor changes the color used for new highlights.
func (v *Viewer) SetColor(color string) error {
	if !domain.ValidColor(color) {
		return fmt.Errorf("%w: %q", highlight.ErrInvalidColor, color)
	}
	v.mu.Lock()
	v.color = color
	v.mu.Unlock()
	v.publish()
	return nil
}

// Select acts on a selection the way a click-drag does in the reader: text
// inside an existing highlight removes it, anything else becomes a new
// highlight in the current color.
func (v *Viewer) Select(ctx context.Context, sel Selection) (Outcome, error) {
	text := strings.TrimSpace(sel.Text)
	if utf8.RuneCountInString(text) < highlight.MinSelectionLength {
		return Outcome{}, highlight.ErrSelectionTooShort
	}

	v.mu.Lock()
	if v.doc == nil {
		v.mu.Unlock()
		return Outcome{}, ErrNotLoaded
	}
	node, offset, err := render.Locate(v.doc, text, sel.Paragraph)
	if err != nil {
		v.mu.Unlock()
		return Outcome{}, err
	}
	if marker := render.EnclosingMarker(node); marker != nil {
		span := v.unwrapLocked(marker)
		v.mu.Unlock()
		if _, err := v.highlights.Remove(ctx, span); err != nil {
			return Outcome{}, err
		}
		v.publish()
		return Outcome{Action: ActionRemoved, Highlight: domain.Highlight{
			ChapterIndex: span.ChapterIndex, Text: span.Text, Color: span.Color,
		}}, nil
	}

	marker := render.WrapAt(node, offset, len(text), v.color)
	span := v.spanLocked(text, v.color)
	v.mu.Unlock()

	h, err := v.highlights.Create(ctx, span)
	if err != nil {
		v.mu.Lock()
		render.Unwrap(marker)
		v.mu.Unlock()
		return Outcome{}, err
	}
	v.publish()
	return Outcome{Action: ActionCreated, Highlight: h}, nil
}

// RemoveHighlight removes the highlight with the given text and color from
// the open chapter, whether or not it is currently rendered.
func (v *Viewer) RemoveHighlight(ctx context.Context, text, color string) (highlight.RemoveResult, error) {
	v.mu.Lock()
	if v.doc == nil {
		v.mu.Unlock()
		return highlight.RemoveResult{}, ErrNotLoaded
	}
	var span highlight.Span
	if marker := render.FindMarker(v.doc, text, color); marker != nil {
		span = v.unwrapLocked(marker)
	} else {
		span = v.spanLocked(text, color)
	}
	v.mu.Unlock()

	res, err := v.highlights.Remove(ctx, span)
	if err != nil {
		return res, err
	}
	v.publish()
	return res, nil
}

func (v *Viewer) unwrapLocked(marker *html.Node) highlight.Span {
	text, color := render.Unwrap(marker)
	return v.spanLocked(text, color)
}

func (v *Viewer) spanLocked(text, color string) highlight.Span {
	span := highlight.Span{
		BookID:       v.book.ID,
		ChapterIndex: v.current,
		Text:         text,
		Color:        color,
	}
	if v.current >= 0 && v.current < len(v.chapters) {
		span.ChapterID = v.chapters[v.current].ID
	}
	return span
}

func (v *Viewer) publish() {
	v.mu.Lock()
	fn := v.observer
	v.mu.Unlock()
	if fn != nil {
		fn(v.Snapshot())
	}
}
