// Package pdfview backs the PDF screen: book details, server-side text
// extraction and links into the text reader.
package pdfview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"readshift/internal/util"
	"readshift/pkg/domain"
)

// Status of the extraction panel.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

var (
	ErrExtractionInProgress = errors.New("extraction already in progress")
	ErrNotLoaded            = errors.New("no book loaded")
)

// NoChaptersMessage is shown when extraction produced nothing.
const NoChaptersMessage = "No chapters found. Try extracting text again."

type Backend interface {
	GetBook(ctx context.Context, id int64) (domain.Book, error)
	Extract(ctx context.Context, id int64) (domain.Extraction, error)
	ListChapters(ctx context.Context, bookID int64) ([]domain.Chapter, error)
}

// Info is the details panel.
type Info struct {
	Title    string
	Author   string
	Pages    string
	FileSize string
	Uploaded string
	Format   string
	FileURL  string
}

// ChapterLink points into the text reader.
type ChapterLink struct {
	Index int
	Title string
	Pages string
	URL   string
}

// Snapshot is the PDF screen state.
type Snapshot struct {
	Book     domain.Book
	Info     Info
	Status   Status
	Message  string
	Running  bool
	Chapters []ChapterLink
}

type Viewer struct {
	backend     Backend
	baseURL     string
	reloadDelay time.Duration

	mu       sync.Mutex
	book     domain.Book
	loaded   bool
	status   Status
	message  string
	running  bool
	chapters []ChapterLink
	observer func(Snapshot)
}

// New returns a viewer. baseURL is the service root used to build the file
// URL; reloadDelay is the pause between a finished extraction and the
// chapter reload.
func New(backend Backend, baseURL string, reloadDelay time.Duration) *Viewer {
	return &Viewer{
		backend:     backend,
		baseURL:     strings.TrimRight(baseURL, "/"),
		reloadDelay: reloadDelay,
		status:      StatusPending,
	}
}

func (v *Viewer) OnChange(fn func(Snapshot)) {
	v.mu.Lock()
	v.observer = fn
	v.mu.Unlock()
}

// Load fetches the book metadata and any chapters already extracted.
func (v *Viewer) Load(ctx context.Context, bookID int64) error {
	book, err := v.backend.GetBook(ctx, bookID)
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}
	v.mu.Lock()
	v.book = book
	v.loaded = true
	v.mu.Unlock()
	if _, err := v.LoadChapters(ctx); err != nil {
		util.LoggerFromContext(ctx).Debug("no chapters yet", "book_id", bookID, "err", err)
	}
	v.publish()
	return nil
}

// Info renders the details panel with the same fallbacks as the library.
func (v *Viewer) Info() Info {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.infoLocked()
}

func (v *Viewer) infoLocked() Info {
	b := v.book
	info := Info{
		Title:    orDefault(b.Title, "Unknown"),
		Author:   orDefault(b.Author, "Unknown"),
		Pages:    "Unknown",
		FileSize: util.FormatFileSize(b.FileSize),
		Uploaded: "Unknown",
		Format:   "PDF",
	}
	if b.TotalPages > 0 {
		info.Pages = fmt.Sprint(b.TotalPages)
	}
	if !b.CreatedAt.IsZero() {
		info.Uploaded = b.CreatedAt.Local().Format("2006-01-02")
	}
	if b.FilePath != "" {
		info.FileURL = v.baseURL + "/" + strings.TrimLeft(b.FilePath, "/")
	}
	return info
}

// Extract asks the server to extract the book's text and reloads the
// chapter list once it reports success. Only one extraction runs at a time.
func (v *Viewer) Extract(ctx context.Context) error {
	v.mu.Lock()
	if !v.loaded {
		v.mu.Unlock()
		return ErrNotLoaded
	}
	if v.running {
		v.mu.Unlock()
		return ErrExtractionInProgress
	}
	v.running = true
	bookID := v.book.ID
	v.setStatusLocked(StatusProcessing, "Starting text extraction...")
	v.mu.Unlock()
	v.publish()

	logger := util.LoggerFromContext(ctx)
	res, err := v.backend.Extract(ctx, bookID)

	v.mu.Lock()
	v.running = false
	if err != nil {
		v.setStatusLocked(StatusError, "Extraction failed: "+err.Error())
	} else {
		v.setStatusLocked(StatusComplete, "Text extraction completed! Advanced features are now available.")
	}
	v.mu.Unlock()
	v.publish()
	if err != nil {
		logger.Warn("extraction failed", "book_id", bookID, "err", err)
		return err
	}
	logger.Info("extraction completed", "book_id", bookID, "chapters", res.ChapterCount)

	if v.reloadDelay > 0 {
		timer := time.NewTimer(v.reloadDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	_, err = v.LoadChapters(ctx)
	v.publish()
	return err
}

// LoadChapters refreshes the chapter links.
func (v *Viewer) LoadChapters(ctx context.Context) ([]ChapterLink, error) {
	v.mu.Lock()
	bookID := v.book.ID
	v.mu.Unlock()

	chapters, err := v.backend.ListChapters(ctx, bookID)
	if err != nil {
		return nil, err
	}
	links := make([]ChapterLink, 0, len(chapters))
	for i, ch := range chapters {
		link := ChapterLink{Index: i, Title: ch.Title, URL: ReaderURL(bookID, i)}
		if ch.PageStart > 0 {
			link.Pages = fmt.Sprintf("Pages %d-%d", ch.PageStart, ch.PageEnd)
		}
		links = append(links, link)
	}
	v.mu.Lock()
	v.chapters = links
	v.mu.Unlock()
	return links, nil
}

// ReaderURL is the text reader page for a chapter. Chapter 0 is the
// reader's default and is left out.
func ReaderURL(bookID int64, chapter int) string {
	if chapter > 0 {
		return fmt.Sprintf("/books/%d/read?chapter=%d", bookID, chapter)
	}
	return fmt.Sprintf("/books/%d/read", bookID)
}

func (v *Viewer) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{
		Book:     v.book,
		Info:     v.infoLocked(),
		Status:   v.status,
		Message:  v.message,
		Running:  v.running,
		Chapters: append([]ChapterLink(nil), v.chapters...),
	}
}

func (v *Viewer) setStatusLocked(s Status, msg string) {
	v.status = s
	v.message = msg
}

func (v *Viewer) publish() {
	v.mu.Lock()
	fn := v.observer
	v.mu.Unlock()
	if fn != nil {
		fn(v.Snapshot())
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
