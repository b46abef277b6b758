package viewer

import (
	"readshift/internal/render"
	"readshift/pkg/domain"
)

// Snapshot is the reader state a view renders from.
type Snapshot struct {
	Book         domain.Book
	ChapterIndex int
	ChapterCount int
	ChapterTitle string
	PageNumber   int
	Progress     float64
	Color        string
	HasPrev      bool
	HasNext      bool
	Chapters     []ChapterEntry
	// HTML is the rendered page content, Text the same for a terminal.
	HTML string
	Text string
}

func (v *Viewer) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := Snapshot{
		Book:         v.book,
		ChapterIndex: v.current,
		ChapterCount: len(v.chapters),
		Color:        v.color,
	}
	if v.chapters == nil || v.current < 0 {
		return s
	}
	s.ChapterTitle = render.ChapterTitle(v.chapters[v.current], v.current)
	s.PageNumber = PageNumber(v.chapters, v.current)
	s.Progress = Progress(v.current, len(v.chapters))
	s.HasPrev = v.current > 0
	s.HasNext = v.current < len(v.chapters)-1
	s.Chapters = ChapterEntries(v.chapters, v.current)
	if v.doc != nil {
		s.HTML, _ = render.HTML(v.doc)
		s.Text = render.PlainText(v.doc)
	}
	return s
}
