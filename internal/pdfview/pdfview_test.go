package pdfview

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"readshift/pkg/domain"
)

type fakeBackend struct {
	book     domain.Book
	chapters []domain.Chapter
	extract  func(ctx context.Context) (domain.Extraction, error)
}

func (f *fakeBackend) GetBook(context.Context, int64) (domain.Book, error) { return f.book, nil }

func (f *fakeBackend) Extract(ctx context.Context, _ int64) (domain.Extraction, error) {
	return f.extract(ctx)
}

func (f *fakeBackend) ListChapters(context.Context, int64) ([]domain.Chapter, error) {
	return f.chapters, nil
}

func TestInfoFallbacks(t *testing.T) {
	b := &fakeBackend{book: domain.Book{ID: 2, FileSize: 1536, FilePath: "uploads/2/a.pdf"}}
	v := New(b, "http://api.local/", 0)
	if err := v.Load(context.Background(), 2); err != nil {
		t.Fatalf("load: %v", err)
	}
	info := v.Info()
	want := Info{
		Title:    "Unknown",
		Author:   "Unknown",
		Pages:    "Unknown",
		FileSize: "1.5 KB",
		Uploaded: "Unknown",
		Format:   "PDF",
		FileURL:  "http://api.local/uploads/2/a.pdf",
	}
	if info != want {
		t.Fatalf("got %+v\nwant %+v", info, want)
	}
}

func TestExtractReloadsChapters(t *testing.T) {
	b := &fakeBackend{book: domain.Book{ID: 4, Title: "Dune"}}
	b.extract = func(context.Context) (domain.Extraction, error) {
		b.chapters = []domain.Chapter{{Title: "One", PageStart: 1, PageEnd: 9}, {Title: "Two"}}
		return domain.Extraction{ChapterCount: 2}, nil
	}
	v := New(b, "", 0)
	var statuses []Status
	v.OnChange(func(s Snapshot) { statuses = append(statuses, s.Status) })
	ctx := context.Background()
	if err := v.Load(ctx, 4); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s := v.Snapshot(); s.Status != StatusPending || len(s.Chapters) != 0 {
		t.Fatalf("unexpected initial state: %+v", s)
	}
	if err := v.Extract(ctx); err != nil {
		t.Fatalf("extract: %v", err)
	}
	s := v.Snapshot()
	if s.Status != StatusComplete || len(s.Chapters) != 2 {
		t.Fatalf("unexpected state: %+v", s)
	}
	if s.Chapters[0].URL != "/books/4/read" || s.Chapters[1].URL != "/books/4/read?chapter=1" {
		t.Fatalf("unexpected links: %+v", s.Chapters)
	}
	if s.Chapters[0].Pages != "Pages 1-9" || s.Chapters[1].Pages != "" {
		t.Fatalf("unexpected page labels: %+v", s.Chapters)
	}
	want := []Status{StatusPending, StatusProcessing, StatusComplete, StatusComplete}
	if len(statuses) != len(want) {
		t.Fatalf("statuses %v, want %v", statuses, want)
	}
}

func TestExtractRefusesConcurrentRuns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	b := &fakeBackend{book: domain.Book{ID: 1}}
	b.extract = func(context.Context) (domain.Extraction, error) {
		close(started)
		<-release
		return domain.Extraction{}, errors.New("boom")
	}
	v := New(b, "", time.Hour)
	ctx := context.Background()
	_ = v.Load(ctx, 1)

	done := make(chan error, 1)
	go func() { done <- v.Extract(ctx) }()
	<-started
	if err := v.Extract(ctx); !errors.Is(err, ErrExtractionInProgress) {
		t.Fatalf("expected ErrExtractionInProgress, got %v", err)
	}
	close(release)
	if err := <-done; err == nil {
		t.Fatal("expected extraction error")
	}
	s := v.Snapshot()
	if s.Status != StatusError || s.Message != "Extraction failed: boom" || s.Running {
		t.Fatalf("unexpected state: %+v", s)
	}
}

func TestExtractBeforeLoad(t *testing.T) {
	if err := New(&fakeBackend{}, "", 0).Extract(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("expected ErrNotLoaded, got %v", err)
	}
}

func TestInspectRejectsNonPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	if err := os.WriteFile(path, []byte("just text"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Inspect(path); err == nil {
		t.Fatal("expected error for a non-PDF file")
	}
	if _, err := Inspect(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Fatal("expected error for a missing file")
	}
}

func TestInspectReadsPageText(t *testing.T) {
	doc, err := Inspect(filepath.Join("testdata", "sample.pdf"))
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if doc.Pages != 1 || len(doc.Text) != 1 {
		t.Fatalf("unexpected page count: %d pages, %d texts", doc.Pages, len(doc.Text))
	}
	if !strings.Contains(doc.Text[0], "Ishmael") {
		t.Fatalf("page text = %q", doc.Text[0])
	}
	if doc.Words() == 0 {
		t.Fatal("expected words")
	}
}
