package library

import (
	"strconv"
	"strings"

	"readshift/internal/util"
	"readshift/pkg/domain"
)

// Card is a book as the library lists it, with display fallbacks applied.
type Card struct {
	ID       int64
	Title    string
	Author   string
	Genre    string
	Pages    string
	Chapters int
	Size     string
	Tags     string
}

func NewCard(b domain.Book) Card {
	c := Card{
		ID:       b.ID,
		Title:    b.Title,
		Author:   "Unknown",
		Genre:    "Not specified",
		Pages:    "Not processed",
		Chapters: b.ChapterCount,
		Size:     util.FormatFileSize(b.FileSize),
		Tags:     "None",
	}
	if b.Author != "" {
		c.Author = b.Author
	}
	if b.Genre != "" {
		c.Genre = b.Genre
	}
	if b.PageCount > 0 {
		c.Pages = strconv.Itoa(b.PageCount)
	}
	if len(b.Tags) > 0 {
		c.Tags = strings.Join(b.Tags, ", ")
	}
	return c
}

// Cards converts a book list.
func Cards(books []domain.Book) []Card {
	out := make([]Card, 0, len(books))
	for _, b := range books {
		out = append(out, NewCard(b))
	}
	return out
}
