package pdfview

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Document is what Inspect reads from a local PDF.
type Document struct {
	Pages int
	// Text holds the plain text of each page, empty for pages that could
	// not be decoded.
	Text []string
}

// Words counts whitespace separated words across all pages.
func (d Document) Words() int {
	n := 0
	for _, t := range d.Text {
		n += len(strings.Fields(t))
	}
	return n
}

// Inspect opens a PDF on disk and extracts per-page plain text.
func Inspect(path string) (Document, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	total := reader.NumPage()
	doc := Document{Pages: total, Text: make([]string, total)}
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip pages the library cannot decode.
			continue
		}
		doc.Text[i-1] = strings.TrimSpace(text)
	}
	return doc, nil
}
