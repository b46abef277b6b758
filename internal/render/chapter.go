// Package render builds the HTML node trees the viewers display and edits
// highlight markers inside them.
package render

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"readshift/pkg/domain"
)

// PageContentID is the id of the element that holds a rendered chapter.
const PageContentID = "page-content"

// EmptyChapterNotice is shown for a chapter without text.
const EmptyChapterNotice = "No text content available for this chapter."

// ChapterTitle falls back to "Chapter N" (1-based) when the chapter has no title.
func ChapterTitle(ch domain.Chapter, index int) string {
	if t := strings.TrimSpace(ch.Title); t != "" {
		return t
	}
	return fmt.Sprintf("Chapter %d", index+1)
}

// Paragraphs splits raw chapter text on newlines and drops blank lines.
func Paragraphs(raw string) []string {
	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if p := strings.TrimSpace(line); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParagraphID is the element id of the i-th paragraph.
func ParagraphID(i int) string {
	return fmt.Sprintf("para-%d", i)
}

// Chapter renders ch as
//
//	<div id="page-content"><div class="chapter-header">title</div><p id="para-0">...</p>...</div>
//
// Text is stored in text nodes, so it is escaped when rendered.
func Chapter(ch domain.Chapter, index int) *html.Node {
	root := Element(atom.Div, "id", PageContentID)
	header := Element(atom.Div, "class", "chapter-header")
	header.AppendChild(TextNode(ChapterTitle(ch, index)))
	root.AppendChild(header)

	if ch.RawText == "" {
		p := Element(atom.P)
		em := Element(atom.Em)
		em.AppendChild(TextNode(EmptyChapterNotice))
		p.AppendChild(em)
		root.AppendChild(p)
		return root
	}
	for i, para := range Paragraphs(ch.RawText) {
		p := Element(atom.P, "id", ParagraphID(i))
		p.AppendChild(TextNode(para))
		root.AppendChild(p)
	}
	return root
}

// Element creates an element node with attributes given as key/value pairs.
func Element(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

func TextNode(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// Attr returns the value of key on n.
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// FindByID returns the first element under root with the given id.
func FindByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && Attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Text concatenates every text node under n.
func Text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// PlainText renders the chapter for a terminal: header, a blank line, then
// one paragraph per block element.
func PlainText(root *html.Node) string {
	var blocks []string
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if t := strings.TrimSpace(Text(c)); t != "" {
			blocks = append(blocks, t)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// HTML renders n to a string.
func HTML(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// walk visits nodes depth first in document order until visit returns false.
func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if n == nil {
		return true
	}
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}
