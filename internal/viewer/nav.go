package viewer

import (
	"fmt"

	"readshift/internal/render"
	"readshift/pkg/domain"
)

// PageNumber is the page shown for chapter i: its first page when known,
// otherwise i+1.
func PageNumber(chapters []domain.Chapter, i int) int {
	if i >= 0 && i < len(chapters) && chapters[i].PageStart > 0 {
		return chapters[i].PageStart
	}
	return i + 1
}

// Progress is the share of chapters read up to and including i, in percent.
func Progress(i, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(i+1) / float64(total) * 100
}

// ChapterEntry is one row of the chapter sidebar.
type ChapterEntry struct {
	Index     int
	Title     string
	Info      string
	WordCount int
	Active    bool
}

// Label renders the entry the way the sidebar shows it.
func (e ChapterEntry) Label() string {
	return fmt.Sprintf("%s • %d words", e.Info, e.WordCount)
}

// ChapterEntries builds the sidebar for chapters with current marked active.
func ChapterEntries(chapters []domain.Chapter, current int) []ChapterEntry {
	out := make([]ChapterEntry, 0, len(chapters))
	for i, ch := range chapters {
		info := fmt.Sprintf("Chapter %d", i+1)
		if ch.PageStart > 0 && ch.PageEnd > 0 {
			info = fmt.Sprintf("Pages %d-%d", ch.PageStart, ch.PageEnd)
		}
		out = append(out, ChapterEntry{
			Index:     i,
			Title:     render.ChapterTitle(ch, i),
			Info:      info,
			WordCount: ch.WordCount,
			Active:    i == current,
		})
	}
	return out
}
