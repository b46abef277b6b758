package api

import (
	"context"
	"net/http"

	"readshift/pkg/domain"
)

// HighlightInput is the create payload.
type HighlightInput struct {
	BookID       int64   `json:"book_id"`
	ChapterID    int64   `json:"chapter_id,omitempty"`
	Text         string  `json:"highlighted_text"`
	ChapterIndex int     `json:"chapter_index"`
	Color        string  `json:"color"`
	Note         *string `json:"note"`
}

type wireHighlight struct {
	ID           int64       `json:"id"`
	BookID       int64       `json:"book_id"`
	ChapterID    int64       `json:"chapter_id"`
	Text         string      `json:"highlighted_text"`
	ChapterIndex int         `json:"chapter_index"`
	Color        string      `json:"color"`
	Note         string      `json:"note"`
	CreatedAt    domain.Time `json:"created_at"`
}

func (w wireHighlight) toDomain() domain.Highlight {
	return domain.Highlight{
		ID:           w.ID,
		ChapterIndex: w.ChapterIndex,
		Text:         w.Text,
		Color:        w.Color,
		Note:         w.Note,
		Timestamp:    w.CreatedAt.Time,
	}
}

// CreateHighlight stores a highlight and returns it with the server id.
func (c *Client) CreateHighlight(ctx context.Context, in HighlightInput) (domain.Highlight, error) {
	var out wireHighlight
	if err := c.Do(ctx, http.MethodPost, "/highlights/", in, true, &out); err != nil {
		return domain.Highlight{}, err
	}
	return out.toDomain(), nil
}

func (c *Client) ListHighlights(ctx context.Context, bookID int64) ([]domain.Highlight, error) {
	var wire []wireHighlight
	if err := c.Do(ctx, http.MethodGet, idPath("/highlights/book/%d", bookID), nil, true, &wire); err != nil {
		return nil, err
	}
	out := make([]domain.Highlight, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toDomain())
	}
	return out, nil
}

func (c *Client) DeleteHighlight(ctx context.Context, id int64) error {
	return c.Do(ctx, http.MethodDelete, idPath("/highlights/%d", id), nil, true, nil)
}

// BookmarkInput is the create payload for a bookmark.
type BookmarkInput struct {
	BookID       int64  `json:"book_id"`
	ChapterID    int64  `json:"chapter_id,omitempty"`
	Title        string `json:"title"`
	ChapterIndex int    `json:"chapter_index"`
	Position     int    `json:"position"`
}

func (c *Client) CreateBookmark(ctx context.Context, in BookmarkInput) (domain.Bookmark, error) {
	var out domain.Bookmark
	if err := c.Do(ctx, http.MethodPost, "/highlights/bookmarks", in, true, &out); err != nil {
		return domain.Bookmark{}, err
	}
	return out, nil
}

func (c *Client) ListBookmarks(ctx context.Context, bookID int64) ([]domain.Bookmark, error) {
	var out []domain.Bookmark
	if err := c.Do(ctx, http.MethodGet, idPath("/highlights/bookmarks/book/%d", bookID), nil, true, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteBookmark(ctx context.Context, id int64) error {
	return c.Do(ctx, http.MethodDelete, idPath("/highlights/bookmarks/%d", id), nil, true, nil)
}
