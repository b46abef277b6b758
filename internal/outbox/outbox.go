// Package outbox queues highlight writes that could not reach the server
// and replays them in order.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"readshift/internal/util"
	"readshift/pkg/domain"
	"readshift/pkg/kv"
)

// Key is where the queue lives in the kv store.
const Key = "highlight_outbox"

// DefaultMaxAttempts bounds replays of one entry when no limit is configured.
const DefaultMaxAttempts = 5

type Op string

const (
	OpCreate Op = "create"
	OpDelete Op = "delete"
)

// Entry is one deferred write. Create entries carry the highlight, delete
// entries carry HighlightID.
type Entry struct {
	ID          string           `json:"id"`
	Op          Op               `json:"op"`
	BookID      int64            `json:"book_id"`
	ChapterID   int64            `json:"chapter_id,omitempty"`
	Highlight   domain.Highlight `json:"highlight"`
	HighlightID int64            `json:"highlight_id,omitempty"`
	Attempts    int              `json:"attempts"`
	LastError   string           `json:"last_error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Replayer sends one entry to the server.
type Replayer func(ctx context.Context, e Entry) error

// FlushResult summarizes one flush.
type FlushResult struct {
	Replayed  int
	Dropped   int
	Remaining int
	Err       error
}

// Outbox is safe for concurrent use. Flushes are serialized; enqueues may
// run while a flush is in progress.
type Outbox struct {
	store       kv.Store
	maxAttempts int
	now         func() time.Time

	mu      sync.Mutex
	flushMu sync.Mutex
}

// New returns an outbox over store. maxAttempts <= 0 selects the default.
func New(store kv.Store, maxAttempts int) *Outbox {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Outbox{store: store, maxAttempts: maxAttempts, now: time.Now}
}

// Enqueue appends e and returns it with its id and timestamp filled in.
func (o *Outbox) Enqueue(ctx context.Context, e Entry) (Entry, error) {
	if e.Op != OpCreate && e.Op != OpDelete {
		return Entry{}, fmt.Errorf("outbox: unknown op %q", e.Op)
	}
	if e.ID == "" {
		e.ID = util.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = o.now().UTC()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	entries, err := o.load(ctx)
	if err != nil {
		return Entry{}, err
	}
	entries = append(entries, e)
	if err := o.save(ctx, entries); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Pending returns the queued entries in replay order.
func (o *Outbox) Pending(ctx context.Context) ([]Entry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.load(ctx)
}

// PendingForBook filters Pending to one book.
func (o *Outbox) PendingForBook(ctx context.Context, bookID int64) ([]Entry, error) {
	entries, err := o.Pending(ctx)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.BookID == bookID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Remove drops the entry with the given id. Missing ids are ignored.
func (o *Outbox) Remove(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.update(ctx, func(entries []Entry) []Entry {
		return removeWhere(entries, func(e Entry) bool { return e.ID == id })
	})
}

// CancelCreate removes the first queued create for the same span and
// reports whether one was found.
func (o *Outbox) CancelCreate(ctx context.Context, bookID int64, chapterIndex int, text, color string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	found := false
	err := o.update(ctx, func(entries []Entry) []Entry {
		for i, e := range entries {
			if e.Op == OpCreate && e.BookID == bookID && e.Highlight.Matches(chapterIndex, text, color) {
				found = true
				return append(entries[:i], entries[i+1:]...)
			}
		}
		return entries
	})
	return found, err
}

// Flush replays entries in order. The first failure stops the flush; an
// entry that has failed maxAttempts times is dropped.
func (o *Outbox) Flush(ctx context.Context, replay Replayer) FlushResult {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	logger := util.LoggerFromContext(ctx)
	var res FlushResult
	snapshot, err := o.Pending(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	for i, e := range snapshot {
		if err := ctx.Err(); err != nil {
			res.Err = err
			res.Remaining = len(snapshot) - i
			break
		}
		replayErr := replay(ctx, e)
		if replayErr == nil {
			if err := o.Remove(ctx, e.ID); err != nil {
				res.Err = err
				res.Remaining = len(snapshot) - i
				break
			}
			res.Replayed++
			continue
		}

		e.Attempts++
		e.LastError = replayErr.Error()
		drop := e.Attempts >= o.maxAttempts
		if drop {
			logger.Warn("outbox entry dropped",
				slog.String("entry_id", e.ID),
				slog.String("op", string(e.Op)),
				slog.Int64("book_id", e.BookID),
				slog.Int("attempts", e.Attempts),
				slog.String("err", e.LastError),
			)
			err = o.Remove(ctx, e.ID)
			res.Dropped++
		} else {
			logger.Info("outbox replay failed", "entry_id", e.ID, "attempts", e.Attempts, "err", replayErr)
			err = o.replace(ctx, e)
		}
		res.Err = errors.Join(replayErr, err)
		res.Remaining = len(snapshot) - i
		if drop {
			res.Remaining--
		}
		break
	}
	return res
}

func (o *Outbox) replace(ctx context.Context, updated Entry) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.update(ctx, func(entries []Entry) []Entry {
		for i := range entries {
			if entries[i].ID == updated.ID {
				entries[i] = updated
			}
		}
		return entries
	})
}

func (o *Outbox) update(ctx context.Context, fn func([]Entry) []Entry) error {
	entries, err := o.load(ctx)
	if err != nil {
		return err
	}
	return o.save(ctx, fn(entries))
}

func (o *Outbox) load(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if _, err := kv.GetJSON(ctx, o.store, Key, &entries); err != nil {
		return nil, fmt.Errorf("load outbox: %w", err)
	}
	return entries, nil
}

func (o *Outbox) save(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		if err := o.store.Delete(ctx, Key); err != nil {
			return fmt.Errorf("save outbox: %w", err)
		}
		return nil
	}
	if err := kv.SetJSON(ctx, o.store, Key, entries); err != nil {
		return fmt.Errorf("save outbox: %w", err)
	}
	return nil
}

func removeWhere(entries []Entry, match func(Entry) bool) []Entry {
	out := entries[:0]
	for _, e := range entries {
		if !match(e) {
			out = append(out, e)
		}
	}
	return out
}
