// Package highlight keeps highlights consistent between the server, the
// local backup list and the outbox of writes that have not landed yet.
package highlight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"readshift/internal/api"
	"readshift/internal/outbox"
	"readshift/internal/render"
	"readshift/internal/util"
	"readshift/pkg/domain"
	"readshift/pkg/kv"
)

// MinSelectionLength is the shortest trimmed selection that can be highlighted.
const MinSelectionLength = 3

var (
	ErrSelectionTooShort = errors.New("selection too short to highlight")
	ErrInvalidColor      = errors.New("invalid highlight color")
)

// Remote is the server side of highlights.
type Remote interface {
	CreateHighlight(ctx context.Context, in api.HighlightInput) (domain.Highlight, error)
	ListHighlights(ctx context.Context, bookID int64) ([]domain.Highlight, error)
	DeleteHighlight(ctx context.Context, id int64) error
}

// Source says which side answered a listing.
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Listing is the result of List. Exactly one source is used; the two are
// never merged.
type Listing struct {
	Highlights []domain.Highlight
	Source     Source
	// RemoteErr is the reason the local backup was used.
	RemoteErr error
}

// Span identifies a highlight inside a book.
type Span struct {
	BookID       int64
	ChapterID    int64
	ChapterIndex int
	Text         string
	Color        string
	Note         string
}

// RemoveResult reports what Remove did besides editing the backup.
type RemoveResult struct {
	Deleted   bool
	Queued    bool
	Cancelled bool
}

type Service struct {
	remote Remote
	store  kv.Store
	outbox *outbox.Outbox
	now    func() time.Time

	mu sync.Mutex
}

func NewService(remote Remote, store kv.Store, ob *outbox.Outbox) *Service {
	return &Service{remote: remote, store: store, outbox: ob, now: time.Now}
}

// BackupKey is the kv key of a book's local highlight list.
func BackupKey(bookID int64) string {
	return fmt.Sprintf("highlights_%d", bookID)
}

// Normalize validates a selection and returns the trimmed text.
func Normalize(text, color string) (string, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < MinSelectionLength {
		return "", ErrSelectionTooShort
	}
	if !domain.ValidColor(color) {
		return "", fmt.Errorf("%w: %q", ErrInvalidColor, color)
	}
	return text, nil
}

// Create stores a highlight. A remote failure is not returned: the record
// is kept locally as pending and queued for the next sync.
func (s *Service) Create(ctx context.Context, span Span) (domain.Highlight, error) {
	text, err := Normalize(span.Text, span.Color)
	if err != nil {
		return domain.Highlight{}, err
	}
	h := domain.Highlight{
		ChapterIndex: span.ChapterIndex,
		Text:         text,
		Color:        span.Color,
		Note:         span.Note,
		Timestamp:    s.now().UTC(),
	}
	logger := util.LoggerFromContext(ctx)

	created, remoteErr := s.remote.CreateHighlight(ctx, inputFor(span.BookID, span.ChapterID, h))
	switch {
	case remoteErr == nil:
		h.ID = created.ID
	case accepted(remoteErr):
		// The next remote listing carries the id.
		logger.Warn("create highlight reply unreadable", "book_id", span.BookID, "err", remoteErr)
	default:
		logger.Warn("create highlight failed, keeping local copy", "book_id", span.BookID, "err", remoteErr)
		h.Pending = true
	}
	if err := s.appendBackup(ctx, span.BookID, h); err != nil {
		return domain.Highlight{}, err
	}
	if h.Pending {
		if _, err := s.outbox.Enqueue(ctx, outbox.Entry{
			Op:        outbox.OpCreate,
			BookID:    span.BookID,
			ChapterID: span.ChapterID,
			Highlight: h,
		}); err != nil {
			return domain.Highlight{}, err
		}
	}
	return h, nil
}

// List flushes pending writes, then asks the server. When the server cannot
// answer the local backup list is returned instead.
func (s *Service) List(ctx context.Context, bookID int64) (Listing, error) {
	if res := s.Sync(ctx); res.Err != nil {
		util.LoggerFromContext(ctx).Debug("outbox flush before list incomplete", "err", res.Err)
	}
	remote, err := s.remote.ListHighlights(ctx, bookID)
	if err == nil {
		if remote == nil {
			remote = []domain.Highlight{}
		}
		return Listing{Highlights: remote, Source: SourceRemote}, nil
	}
	local, localErr := s.Local(ctx, bookID)
	if localErr != nil {
		return Listing{}, errors.Join(err, localErr)
	}
	return Listing{Highlights: local, Source: SourceLocal, RemoteErr: err}, nil
}

// Local returns the backup list of a book.
func (s *Service) Local(ctx context.Context, bookID int64) ([]domain.Highlight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadBackup(ctx, bookID)
}

// Remove forgets the highlight covering the given span. At most one remote
// delete is issued, and only when the record has a server id.
func (s *Service) Remove(ctx context.Context, span Span) (RemoveResult, error) {
	var res RemoveResult
	logger := util.LoggerFromContext(ctx)

	listing, err := s.List(ctx, span.BookID)
	if err != nil {
		logger.Warn("list highlights before remove failed", "book_id", span.BookID, "err", err)
	}
	var target *domain.Highlight
	for i := range listing.Highlights {
		if listing.Highlights[i].Matches(span.ChapterIndex, span.Text, span.Color) {
			target = &listing.Highlights[i]
			break
		}
	}

	if target != nil && target.ID != 0 {
		if err := s.remote.DeleteHighlight(ctx, target.ID); err != nil {
			logger.Warn("delete highlight failed, queued", "highlight_id", target.ID, "err", err)
			if _, qerr := s.outbox.Enqueue(ctx, outbox.Entry{
				Op:          outbox.OpDelete,
				BookID:      span.BookID,
				HighlightID: target.ID,
				Highlight:   *target,
			}); qerr != nil {
				return res, qerr
			}
			res.Queued = true
		} else {
			res.Deleted = true
		}
	} else {
		cancelled, err := s.outbox.CancelCreate(ctx, span.BookID, span.ChapterIndex, span.Text, span.Color)
		if err != nil {
			return res, err
		}
		res.Cancelled = cancelled
	}

	// The backup is matched on chapter and text only.
	if err := s.editBackup(ctx, span.BookID, func(list []domain.Highlight) []domain.Highlight {
		out := list[:0]
		for _, h := range list {
			if h.ChapterIndex == span.ChapterIndex && h.Text == span.Text {
				continue
			}
			out = append(out, h)
		}
		return out
	}); err != nil {
		return res, err
	}
	return res, nil
}

// Apply wraps every highlight of the chapter in a marker inside root and
// returns how many were placed.
func (s *Service) Apply(ctx context.Context, bookID int64, chapterIndex int, root *html.Node) (int, error) {
	listing, err := s.List(ctx, bookID)
	if err != nil {
		return 0, err
	}
	return ApplyListing(listing.Highlights, chapterIndex, root), nil
}

// ApplyListing places the highlights of one chapter into root. Each
// highlight wraps the first unhighlighted occurrence of its text.
func ApplyListing(highlights []domain.Highlight, chapterIndex int, root *html.Node) int {
	applied := 0
	for _, h := range highlights {
		if h.ChapterIndex != chapterIndex {
			continue
		}
		if render.HighlightText(root, h.Text, h.Color) != nil {
			applied++
		}
	}
	return applied
}

// Sync replays queued writes in order.
func (s *Service) Sync(ctx context.Context) outbox.FlushResult {
	return s.outbox.Flush(ctx, s.replay)
}

func (s *Service) replay(ctx context.Context, e outbox.Entry) error {
	switch e.Op {
	case outbox.OpCreate:
		created, err := s.remote.CreateHighlight(ctx, inputFor(e.BookID, e.ChapterID, e.Highlight))
		if err != nil && !accepted(err) {
			return err
		}
		return s.editBackup(ctx, e.BookID, func(list []domain.Highlight) []domain.Highlight {
			for i := range list {
				h := &list[i]
				if h.Pending && h.Matches(e.Highlight.ChapterIndex, e.Highlight.Text, e.Highlight.Color) {
					h.ID = created.ID
					h.Pending = false
					break
				}
			}
			return list
		})
	case outbox.OpDelete:
		err := s.remote.DeleteHighlight(ctx, e.HighlightID)
		if api.StatusCode(err) == http.StatusNotFound {
			return nil
		}
		return err
	}
	return fmt.Errorf("unknown outbox op %q", e.Op)
}

// accepted reports whether a failed write still reached the server: the
// response was 2xx but its body could not be decoded.
func accepted(err error) bool {
	return errors.Is(err, api.ErrDecode)
}

func inputFor(bookID, chapterID int64, h domain.Highlight) api.HighlightInput {
	in := api.HighlightInput{
		BookID:       bookID,
		ChapterID:    chapterID,
		Text:         h.Text,
		ChapterIndex: h.ChapterIndex,
		Color:        h.Color,
	}
	if h.Note != "" {
		note := h.Note
		in.Note = &note
	}
	return in
}

func (s *Service) appendBackup(ctx context.Context, bookID int64, h domain.Highlight) error {
	return s.editBackup(ctx, bookID, func(list []domain.Highlight) []domain.Highlight {
		return append(list, h)
	})
}

func (s *Service) editBackup(ctx context.Context, bookID int64, fn func([]domain.Highlight) []domain.Highlight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.loadBackup(ctx, bookID)
	if err != nil {
		return err
	}
	if err := kv.SetJSON(ctx, s.store, BackupKey(bookID), fn(list)); err != nil {
		return fmt.Errorf("save highlight backup: %w", err)
	}
	return nil
}

func (s *Service) loadBackup(ctx context.Context, bookID int64) ([]domain.Highlight, error) {
	list := []domain.Highlight{}
	if _, err := kv.GetJSON(ctx, s.store, BackupKey(bookID), &list); err != nil {
		return nil, fmt.Errorf("load highlight backup: %w", err)
	}
	return list, nil
}
