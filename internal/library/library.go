// Package library is the book list screen: upload, extraction, deletion
// and statistics.
package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"readshift/internal/api"
	"readshift/internal/util"
	"readshift/pkg/domain"
)

var (
	ErrLoginRequired = errors.New("Please login first")
	ErrMissingInput  = errors.New("Please select a file and enter a title")
	ErrNoBookID      = errors.New("Failed to get book ID from upload response")
)

// Backend is the part of the API the library uses.
type Backend interface {
	ListBooks(ctx context.Context) (api.BookList, error)
	UploadBook(ctx context.Context, filename string, r io.Reader, meta domain.BookMeta) (api.UploadResult, error)
	DeleteBook(ctx context.Context, id int64) (api.Result, error)
	ExtractText(ctx context.Context, id int64) (domain.Extraction, error)
	BookStats(ctx context.Context) (domain.BookStats, error)
}

// Session reports whether a user is logged in.
type Session interface {
	LoggedIn() bool
}

// UserError carries a message meant for the reader next to the cause.
type UserError struct {
	Message string
	Err     error
}

func (e *UserError) Error() string { return e.Message }
func (e *UserError) Unwrap() error { return e.Err }

type Library struct {
	backend      Backend
	session      Session
	handoff      *Handoff
	extractDelay time.Duration
}

// New returns a library. extractDelay is the pause between an upload and
// the automatic text extraction.
func New(backend Backend, session Session, handoff *Handoff, extractDelay time.Duration) *Library {
	return &Library{backend: backend, session: session, handoff: handoff, extractDelay: extractDelay}
}

// List returns the user's books. Without a session it returns nothing and
// no error, like the logged-out library.
func (l *Library) List(ctx context.Context) (api.BookList, error) {
	if !l.session.LoggedIn() {
		return api.BookList{Books: []domain.Book{}}, nil
	}
	return l.backend.ListBooks(ctx)
}

// UploadRequest is one file with its metadata.
type UploadRequest struct {
	Filename string
	File     io.Reader
	Meta     domain.BookMeta
}

// UploadResult reports the upload and the automatic extraction that
// follows it. ExtractErr set means the book was stored but not extracted.
type UploadResult struct {
	Book       api.UploadResult
	Extraction domain.Extraction
	ExtractErr error
}

// Warning is the message shown when extraction failed after the upload.
func (r UploadResult) Warning() string {
	if r.ExtractErr == nil {
		return ""
	}
	return "Book uploaded, but text extraction failed: " + r.ExtractErr.Error()
}

// Upload stores a book and then extracts its text after the configured delay.
func (l *Library) Upload(ctx context.Context, req UploadRequest) (UploadResult, error) {
	if !l.session.LoggedIn() {
		return UploadResult{}, ErrLoginRequired
	}
	req.Meta.Title = strings.TrimSpace(req.Meta.Title)
	if req.File == nil || strings.TrimSpace(req.Filename) == "" || req.Meta.Title == "" {
		return UploadResult{}, ErrMissingInput
	}
	logger := util.LoggerFromContext(ctx)

	book, err := l.backend.UploadBook(ctx, req.Filename, req.File, req.Meta)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload book: %w", err)
	}
	res := UploadResult{Book: book}
	bookID := book.BookIDOrZero()
	if bookID == 0 {
		return res, ErrNoBookID
	}
	logger.Info("book uploaded", "book_id", bookID, "title", req.Meta.Title)

	if l.extractDelay > 0 {
		timer := time.NewTimer(l.extractDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			res.ExtractErr = ctx.Err()
			return res, nil
		case <-timer.C:
		}
	}
	res.Extraction, res.ExtractErr = l.backend.ExtractText(ctx, bookID)
	if res.ExtractErr != nil {
		logger.Warn("extraction after upload failed", "book_id", bookID, "err", res.ExtractErr)
	}
	return res, nil
}

// Extract runs text extraction for a book.
func (l *Library) Extract(ctx context.Context, bookID int64) (domain.Extraction, error) {
	if !l.session.LoggedIn() {
		return domain.Extraction{}, ErrLoginRequired
	}
	return l.backend.ExtractText(ctx, bookID)
}

// Delete removes a book and returns the server's confirmation message.
// Failures come back as *UserError with a reader-facing message.
func (l *Library) Delete(ctx context.Context, bookID int64) (string, error) {
	res, err := l.backend.DeleteBook(ctx, bookID)
	if err != nil {
		return "", deleteError(err)
	}
	if msg := res.Message(); msg != "" {
		return msg, nil
	}
	return "Book deleted successfully", nil
}

func deleteError(err error) error {
	msg := err.Error()
	switch {
	case api.StatusCode(err) == http.StatusForbidden || strings.Contains(msg, "403"):
		return &UserError{Message: "You do not have permission to delete this book.", Err: err}
	case api.StatusCode(err) == http.StatusNotFound || strings.Contains(msg, "404"):
		return &UserError{Message: "Book not found or already deleted.", Err: err}
	case msg != "":
		return &UserError{Message: "Failed to delete book. " + msg, Err: err}
	}
	return &UserError{Message: "Failed to delete book. Please try again later.", Err: err}
}

// Stats returns the user's totals. Without a session it returns zeros.
func (l *Library) Stats(ctx context.Context) (domain.BookStats, error) {
	if !l.session.LoggedIn() {
		return domain.BookStats{}, nil
	}
	return l.backend.BookStats(ctx)
}

// StartChat leaves the book id for the chat screen to pick up.
func (l *Library) StartChat(ctx context.Context, bookID int64) error {
	return l.handoff.Put(ctx, bookID)
}
