package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"readshift/pkg/domain"
)

// BookList is the response of the book listing.
type BookList struct {
	Books []domain.Book `json:"books"`
	Total int           `json:"total"`
}

// UploadResult is the upload response. Older servers report book_id
// instead of id.
type UploadResult struct {
	domain.Book
	BookID int64 `json:"book_id,omitempty"`
}

// BookIDOrZero returns whichever id the server reported.
func (r UploadResult) BookIDOrZero() int64 {
	if r.ID != 0 {
		return r.ID
	}
	return r.BookID
}

// UploadBook sends the file as multipart field "file" with metadata in the
// query string.
func (c *Client) UploadBook(ctx context.Context, filename string, r io.Reader, meta domain.BookMeta) (UploadResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return UploadResult{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return UploadResult{}, fmt.Errorf("read upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return UploadResult{}, err
	}

	path := "/books/upload" + query(map[string]string{
		"title":  meta.Title,
		"author": meta.Author,
		"genre":  meta.Genre,
		"tags":   meta.Tags,
	})
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var res UploadResult
	if err := c.send(req, true, &res); err != nil {
		return UploadResult{}, err
	}
	return res, nil
}

func (c *Client) ListBooks(ctx context.Context) (BookList, error) {
	var out BookList
	if err := c.Do(ctx, http.MethodGet, "/books/", nil, true, &out); err != nil {
		return BookList{}, err
	}
	if out.Books == nil {
		out.Books = []domain.Book{}
	}
	return out, nil
}

func (c *Client) GetBook(ctx context.Context, id int64) (domain.Book, error) {
	var book domain.Book
	if err := c.Do(ctx, http.MethodGet, idPath("/books/%d", id), nil, true, &book); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

func (c *Client) DeleteBook(ctx context.Context, id int64) (Result, error) {
	return c.result(ctx, http.MethodDelete, idPath("/books/%d", id), nil, true)
}

func (c *Client) BookStats(ctx context.Context) (domain.BookStats, error) {
	var stats domain.BookStats
	if err := c.Do(ctx, http.MethodGet, "/books/user/stats", nil, true, &stats); err != nil {
		return domain.BookStats{}, err
	}
	return stats, nil
}

type extractRequest struct {
	BookID          int64  `json:"book_id"`
	ExtractChapters bool   `json:"extract_chapters"`
	DetectionMethod string `json:"chapter_detection_method"`
}

// ExtractText asks the server to split the book into chapters.
func (c *Client) ExtractText(ctx context.Context, id int64) (domain.Extraction, error) {
	body := extractRequest{BookID: id, ExtractChapters: true, DetectionMethod: "auto"}
	var out domain.Extraction
	if err := c.Do(ctx, http.MethodPost, idPath("/books/%d/extract-text", id), body, true, &out); err != nil {
		return domain.Extraction{}, err
	}
	return out, nil
}

// Extract is the extraction entry point used by the PDF viewer.
func (c *Client) Extract(ctx context.Context, id int64) (domain.Extraction, error) {
	var out domain.Extraction
	if err := c.Do(ctx, http.MethodPost, idPath("/books/%d/extract", id), nil, true, &out); err != nil {
		return domain.Extraction{}, err
	}
	return out, nil
}

// ListChapters returns chapters in reading order.
func (c *Client) ListChapters(ctx context.Context, bookID int64) ([]domain.Chapter, error) {
	var chapters []domain.Chapter
	if err := c.Do(ctx, http.MethodGet, idPath("/books/%d/chapters", bookID), nil, true, &chapters); err != nil {
		return nil, err
	}
	return chapters, nil
}
