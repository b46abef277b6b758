package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"readshift/internal/highlight"
	"readshift/internal/viewer"
	"readshift/pkg/domain"
)

// loadViewer opens a book at a 1-based chapter number.
func (r *runner) loadViewer(ctx context.Context, rawID string, chapter int) (*viewer.Viewer, error) {
	id, err := parseID(rawID, "book")
	if err != nil {
		return nil, err
	}
	v := r.app.Viewer()
	if err := v.Load(ctx, id, chapter-1); err != nil {
		if errors.Is(err, viewer.ErrNoChapters) {
			return nil, errors.New(viewer.NoChaptersMessage)
		}
		return nil, err
	}
	return v, nil
}

func (r *runner) readCmd() *cobra.Command {
	var chapter int
	var interactive, toc bool
	cmd := &cobra.Command{
		Use:   "read <book-id>",
		Short: "Read a book chapter by chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := r.loadViewer(cmd.Context(), args[0], chapter)
			if err != nil {
				return err
			}
			if toc {
				r.printTOC(v.Snapshot())
				return nil
			}
			if interactive {
				return r.readLoop(cmd.Context(), v)
			}
			r.printPage(v.Snapshot())
			return nil
		},
	}
	cmd.Flags().IntVarP(&chapter, "chapter", "c", 1, "chapter number")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "navigate, highlight and bookmark interactively")
	cmd.Flags().BoolVar(&toc, "toc", false, "print the chapter list only")
	return cmd
}

func (r *runner) printPage(s viewer.Snapshot) {
	r.printf("%s | %s | Chapter %d of %d | Page %d | %.0f%%\n\n", s.Book.Title, s.ChapterTitle, s.ChapterIndex+1, s.ChapterCount, s.PageNumber, s.Progress)
	r.println(s.Text)
	r.println()
	var nav []string
	if s.HasPrev {
		nav = append(nav, fmt.Sprintf("previous: --chapter %d", s.ChapterIndex))
	}
	if s.HasNext {
		nav = append(nav, fmt.Sprintf("next: --chapter %d", s.ChapterIndex+2))
	}
	if len(nav) > 0 {
		r.printf("(%s)\n", strings.Join(nav, ", "))
	}
}

func (r *runner) printTOC(s viewer.Snapshot) {
	r.println(s.Book.Title)
	for _, e := range s.Chapters {
		marker := " "
		if e.Active {
			marker = ">"
		}
		r.printf("%s %2d. %s (%s)\n", marker, e.Index+1, e.Title, e.Label())
	}
}

const (
	actionNext      = "Next chapter"
	actionPrev      = "Previous chapter"
	actionGoto      = "Go to chapter"
	actionHighlight = "Highlight text"
	actionRemove    = "Remove highlight"
	actionColor     = "Change highlight color"
	actionBookmark  = "Add bookmark"
	actionBookmarks = "Bookmarks"
	actionList      = "Highlights"
	actionQuit      = "Quit"
)

var readActions = []string{
	actionNext, actionPrev, actionGoto, actionHighlight, actionRemove,
	actionColor, actionBookmark, actionBookmarks, actionList, actionQuit,
}

func (r *runner) readLoop(ctx context.Context, v *viewer.Viewer) error {
	r.printPage(v.Snapshot())
	for {
		i, err := r.prompt.Select("Reader", readActions)
		if quit(err) {
			return nil
		}
		if err != nil {
			return err
		}
		done, err := r.readAction(ctx, v, readActions[i])
		if done {
			return nil
		}
		if err != nil {
			fmt.Fprintf(r.errOut, "Error: %v\n", err)
		}
	}
}

func (r *runner) readAction(ctx context.Context, v *viewer.Viewer, action string) (bool, error) {
	switch action {
	case actionNext:
		if err := v.Next(ctx); err != nil {
			return false, err
		}
		r.printPage(v.Snapshot())
	case actionPrev:
		if err := v.Prev(ctx); err != nil {
			return false, err
		}
		r.printPage(v.Snapshot())
	case actionGoto:
		r.printTOC(v.Snapshot())
		raw, err := r.prompt.Input("Chapter number", strconv.Itoa(v.Current()+1))
		if err != nil {
			return quit(err), err
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return false, fmt.Errorf("invalid chapter %q", raw)
		}
		if err := v.Open(ctx, n-1); err != nil {
			return false, err
		}
		r.printPage(v.Snapshot())
	case actionHighlight, actionRemove:
		text, err := r.prompt.Input("Text", "")
		if err != nil {
			return quit(err), err
		}
		if action == actionHighlight {
			out, err := v.Select(ctx, viewer.Selection{Text: text})
			if err != nil {
				return false, err
			}
			r.printOutcome(out)
			return false, nil
		}
		res, err := v.RemoveHighlight(ctx, strings.TrimSpace(text), v.Snapshot().Color)
		if err != nil {
			return false, err
		}
		r.printRemoval(res)
	case actionColor:
		i, err := r.prompt.Select("Color", domain.Colors)
		if err != nil {
			return quit(err), err
		}
		return false, v.SetColor(domain.Colors[i])
	case actionBookmark:
		title, err := r.prompt.Input("Bookmark title", "")
		if err != nil {
			return quit(err), err
		}
		bm, err := v.AddBookmark(ctx, title)
		if err != nil {
			return false, err
		}
		r.printf("Bookmark %q added.\n", bm.Title)
	case actionBookmarks:
		entries, err := v.Bookmarks(ctx)
		if err != nil {
			return false, err
		}
		r.printBookmarks(entries)
	case actionList:
		entries, err := v.Highlights(ctx)
		if err != nil {
			return false, err
		}
		r.printHighlights(entries)
	case actionQuit:
		return true, nil
	}
	return false, nil
}

func (r *runner) highlightCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "highlight",
		Short: "Create, list and remove highlights",
	}

	var addChapter int
	var addColor, paragraph string
	add := &cobra.Command{
		Use:   "add <book-id> <text>",
		Short: "Highlight text in a chapter; text inside an existing highlight removes it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := r.loadViewer(cmd.Context(), args[0], addChapter)
			if err != nil {
				return err
			}
			if addColor != "" {
				if err := v.SetColor(strings.ToLower(addColor)); err != nil {
					return err
				}
			}
			out, err := v.Select(cmd.Context(), viewer.Selection{Text: strings.Join(args[1:], " "), Paragraph: paragraph})
			if err != nil {
				return err
			}
			r.printOutcome(out)
			return nil
		},
	}
	add.Flags().IntVarP(&addChapter, "chapter", "c", 1, "chapter number")
	add.Flags().StringVar(&addColor, "color", "", "highlight color (yellow, green, blue, pink)")
	add.Flags().StringVar(&paragraph, "paragraph", "", "limit the match to one paragraph id, e.g. para-2")

	list := &cobra.Command{
		Use:   "list <book-id>",
		Short: "List a book's highlights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := r.loadViewer(cmd.Context(), args[0], 1)
			if err != nil {
				return err
			}
			entries, err := v.Highlights(cmd.Context())
			if err != nil {
				return err
			}
			r.printHighlights(entries)
			pending, err := r.app.Outbox.PendingForBook(cmd.Context(), v.Book().ID)
			if err == nil && len(pending) > 0 {
				r.printf("%d change(s) waiting to sync.\n", len(pending))
			}
			return nil
		},
	}

	var rmChapter int
	var rmColor string
	remove := &cobra.Command{
		Use:   "remove <book-id> <text>",
		Short: "Remove a highlight",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := r.loadViewer(cmd.Context(), args[0], rmChapter)
			if err != nil {
				return err
			}
			color := strings.ToLower(rmColor)
			if color == "" {
				color = r.app.Config.HighlightColor
			}
			if !domain.ValidColor(color) {
				return fmt.Errorf("%w: %q", highlight.ErrInvalidColor, color)
			}
			res, err := v.RemoveHighlight(cmd.Context(), strings.Join(args[1:], " "), color)
			if err != nil {
				return err
			}
			r.printRemoval(res)
			return nil
		},
	}
	remove.Flags().IntVarP(&rmChapter, "chapter", "c", 1, "chapter number")
	remove.Flags().StringVar(&rmColor, "color", "", "color of the highlight (defaults to the configured color)")

	cmd.AddCommand(add, list, remove)
	return cmd
}

func (r *runner) printOutcome(out viewer.Outcome) {
	h := out.Highlight
	if out.Action == viewer.ActionRemoved {
		r.printf("Removed %s highlight %q.\n", h.Color, h.Text)
		return
	}
	r.printf("Highlighted %q in %s.\n", h.Text, h.Color)
	if h.Pending {
		r.println("The server is unreachable; the highlight is saved locally and will sync later.")
	}
}

func (r *runner) printRemoval(res highlight.RemoveResult) {
	switch {
	case res.Deleted:
		r.println("Highlight removed.")
	case res.Queued:
		r.println("Highlight removed locally; the server delete will be retried on sync.")
	case res.Cancelled:
		r.println("Unsynced highlight discarded.")
	default:
		r.println("Highlight removed locally.")
	}
}

func (r *runner) printHighlights(entries []viewer.HighlightEntry) {
	if len(entries) == 0 {
		r.println("No highlights yet.")
		return
	}
	for _, e := range entries {
		state := ""
		if e.Pending {
			state = " (not synced)"
		}
		r.printf("[%s] %s: %q %s%s\n", e.Color, e.ChapterTitle, e.Excerpt, viewer.FormatDate(e.Timestamp), state)
	}
}

func (r *runner) bookmarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookmark",
		Short: "Manage bookmarks",
	}

	var chapter int
	var title string
	add := &cobra.Command{
		Use:   "add <book-id>",
		Short: "Bookmark a chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := r.loadViewer(cmd.Context(), args[0], chapter)
			if err != nil {
				return err
			}
			bm, err := v.AddBookmark(cmd.Context(), title)
			if err != nil {
				return err
			}
			r.printf("Bookmark %d %q added.\n", bm.ID, bm.Title)
			return nil
		},
	}
	add.Flags().IntVarP(&chapter, "chapter", "c", 1, "chapter number")
	add.Flags().StringVar(&title, "title", "", "bookmark title (defaults to the chapter number)")

	list := &cobra.Command{
		Use:   "list <book-id>",
		Short: "List a book's bookmarks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := r.loadViewer(cmd.Context(), args[0], 1)
			if err != nil {
				return err
			}
			entries, err := v.Bookmarks(cmd.Context())
			if err != nil {
				return err
			}
			r.printBookmarks(entries)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <bookmark-id>",
		Short: "Delete a bookmark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "bookmark")
			if err != nil {
				return err
			}
			if err := r.app.Viewer().DeleteBookmark(cmd.Context(), id); err != nil {
				return err
			}
			r.println("Bookmark deleted.")
			return nil
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

func (r *runner) printBookmarks(entries []viewer.BookmarkEntry) {
	if len(entries) == 0 {
		r.println("No bookmarks yet.")
		return
	}
	for _, e := range entries {
		r.printf("%d. %s (%s, chapter %d) %s\n", e.ID, e.Label(), e.ChapterTitle, e.ChapterIndex+1, viewer.FormatDate(e.CreatedAt.Time))
	}
}

func (r *runner) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Send highlight changes made while offline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res := r.app.Highlights.Sync(cmd.Context())
			r.printf("Synced %d, dropped %d, remaining %d.\n", res.Replayed, res.Dropped, res.Remaining)
			if res.Err != nil {
				return fmt.Errorf("sync stopped: %w", res.Err)
			}
			return nil
		},
	}
}
