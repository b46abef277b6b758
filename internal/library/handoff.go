package library

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"readshift/pkg/kv"
)

// HandoffKey holds the book a chat should be started for.
const HandoffKey = "chatBookId"

// Handoff passes a book id from the library to the chat screen once.
type Handoff struct {
	store kv.Store
}

func NewHandoff(store kv.Store) *Handoff {
	return &Handoff{store: store}
}

func (h *Handoff) Put(ctx context.Context, bookID int64) error {
	if bookID <= 0 {
		return errors.New("invalid book id")
	}
	return h.store.Set(ctx, HandoffKey, []byte(strconv.FormatInt(bookID, 10)))
}

// Take reads and removes the pending book id. ok is false when none is
// pending or the stored value is not a number.
func (h *Handoff) Take(ctx context.Context) (int64, bool, error) {
	raw, found, err := kv.GetString(ctx, h.store, HandoffKey)
	if err != nil || !found {
		return 0, false, err
	}
	if err := h.store.Delete(ctx, HandoffKey); err != nil {
		return 0, false, err
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false, nil
	}
	return id, true, nil
}
