package render

import (
	"errors"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"readshift/pkg/domain"
)

// MarkerClass is the class every highlight marker carries besides its color.
const MarkerClass = "highlight"

const markerTitle = "Double-click to remove highlight"

// ErrTextNotFound is returned when a selection does not occur in the page.
var ErrTextNotFound = errors.New("selected text not found in chapter")

// NewMarker returns <span class="highlight COLOR">text</span>.
func NewMarker(text, color string) *html.Node {
	span := Element(atom.Span, "class", MarkerClass+" "+color, "title", markerTitle)
	span.AppendChild(TextNode(text))
	return span
}

// IsMarker reports whether n is a highlight marker element.
func IsMarker(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode || n.DataAtom != atom.Span {
		return false
	}
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == MarkerClass {
			return true
		}
	}
	return false
}

// MarkerColor returns the first known color class of a marker.
func MarkerColor(n *html.Node) string {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if domain.ValidColor(c) {
			return c
		}
	}
	return ""
}

// EnclosingMarker returns the marker n is part of, or nil.
func EnclosingMarker(n *html.Node) *html.Node {
	for ; n != nil; n = n.Parent {
		if IsMarker(n) {
			return n
		}
	}
	return nil
}

// Markers lists the markers under root in document order.
func Markers(root *html.Node) []*html.Node {
	var out []*html.Node
	walk(root, func(n *html.Node) bool {
		if IsMarker(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// FindMarker returns the first marker with the given text and color.
func FindMarker(root *html.Node, text, color string) *html.Node {
	for _, m := range Markers(root) {
		if Text(m) == text && MarkerColor(m) == color {
			return m
		}
	}
	return nil
}

// Locate finds the first text node under root containing text, including
// text already inside markers, and the byte offset of the match. When
// scopeID is set the search is limited to that element.
func Locate(root *html.Node, text, scopeID string) (*html.Node, int, error) {
	if scopeID != "" {
		root = FindByID(root, scopeID)
		if root == nil {
			return nil, 0, ErrTextNotFound
		}
	}
	var (
		found  *html.Node
		offset int
	)
	walk(root, func(n *html.Node) bool {
		if n.Type != html.TextNode {
			return true
		}
		if i := strings.Index(n.Data, text); i >= 0 {
			found, offset = n, i
			return false
		}
		return true
	})
	if found == nil {
		return nil, 0, ErrTextNotFound
	}
	return found, offset, nil
}

// HighlightText wraps the first literal occurrence of text in the first
// matching text node under root, skipping text that is already highlighted.
// It returns the new marker, or nil when text does not occur.
func HighlightText(root *html.Node, text, color string) *html.Node {
	if text == "" {
		return nil
	}
	var target *html.Node
	offset := -1
	walk(root, func(n *html.Node) bool {
		if IsMarker(n) {
			return true
		}
		if n.Type != html.TextNode || EnclosingMarker(n) != nil {
			return true
		}
		if i := strings.Index(n.Data, text); i >= 0 {
			target, offset = n, i
			return false
		}
		return true
	})
	if target == nil {
		return nil
	}
	return WrapAt(target, offset, len(text), color)
}

// WrapAt splits the text node tn around [offset, offset+length) and puts
// that span in a marker, which it returns.
func WrapAt(tn *html.Node, offset, length int, color string) *html.Node {
	parent := tn.Parent
	content := tn.Data
	before := content[:offset]
	match := content[offset : offset+length]
	after := content[offset+length:]

	marker := NewMarker(match, color)
	if before != "" {
		parent.InsertBefore(TextNode(before), tn)
	}
	parent.InsertBefore(marker, tn)
	if after != "" {
		parent.InsertBefore(TextNode(after), tn)
	}
	parent.RemoveChild(tn)
	return marker
}

// Unwrap replaces a marker with its plain text, merging it into adjacent
// text nodes, and returns the text and color the marker had.
func Unwrap(marker *html.Node) (text, color string) {
	text, color = Text(marker), MarkerColor(marker)
	parent := marker.Parent
	if parent == nil {
		return text, color
	}
	merged := text
	prev, next := marker.PrevSibling, marker.NextSibling
	if prev != nil && prev.Type == html.TextNode {
		merged = prev.Data + merged
		parent.RemoveChild(prev)
	}
	if next != nil && next.Type == html.TextNode {
		merged += next.Data
		parent.RemoveChild(next)
	}
	parent.InsertBefore(TextNode(merged), marker)
	parent.RemoveChild(marker)
	return text, color
}
