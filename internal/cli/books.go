package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"readshift/internal/library"
	"readshift/internal/pdfview"
	"readshift/internal/util"
	"readshift/pkg/domain"
)

func (r *runner) booksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "books",
		Aliases: []string{"library"},
		Short:   "Manage your library",
	}
	cmd.AddCommand(r.booksListCmd(), r.booksShowCmd(), r.booksUploadCmd(), r.booksDeleteCmd(), r.booksExtractCmd(), r.booksStatsCmd())
	return cmd
}

func (r *runner) booksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your books",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !r.app.Session.LoggedIn() {
				r.println(library.ErrLoginRequired.Error())
				return nil
			}
			list, err := r.app.Library.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(list.Books) == 0 {
				r.println("No books yet. Upload one with `readshift books upload <file>`.")
				return nil
			}
			tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tGENRE\tPAGES\tCHAPTERS\tSIZE\tTAGS")
			for _, c := range library.Cards(list.Books) {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n", c.ID, c.Title, c.Author, c.Genre, c.Pages, c.Chapters, c.Size, c.Tags)
			}
			return tw.Flush()
		},
	}
}

func (r *runner) booksShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <book-id>",
		Short: "Show one book and its chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			book, err := r.app.Client.GetBook(cmd.Context(), id)
			if err != nil {
				return err
			}
			c := library.NewCard(book)
			r.printf("%s\nAuthor: %s\nGenre: %s\nPages: %s\nChapters: %d\nSize: %s\nTags: %s\n",
				c.Title, c.Author, c.Genre, c.Pages, c.Chapters, c.Size, c.Tags)
			return nil
		},
	}
}

func (r *runner) booksUploadCmd() *cobra.Command {
	var meta domain.BookMeta
	var quiet bool
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a book and extract its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return err
			}
			if meta.Title == "" {
				meta.Title = trimExt(filepath.Base(path))
			}

			var body io.Reader = f
			if !quiet {
				bar := progressbar.NewOptions64(info.Size(),
					progressbar.OptionSetWriter(r.errOut),
					progressbar.OptionSetDescription("Uploading"),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowBytes(true),
					progressbar.OptionClearOnFinish(),
				)
				defer bar.Close()
				body = io.TeeReader(f, bar)
			}

			res, err := r.app.Library.Upload(cmd.Context(), library.UploadRequest{
				Filename: filepath.Base(path),
				File:     body,
				Meta:     meta,
			})
			if err != nil {
				return err
			}
			r.printf("Uploaded %q as book %d (%s).\n", meta.Title, res.Book.BookIDOrZero(), util.FormatFileSize(info.Size()))
			if w := res.Warning(); w != "" {
				fmt.Fprintln(r.errOut, w)
				return nil
			}
			r.printf("Text extracted: %d chapters.\n", res.Extraction.ChapterCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&meta.Title, "title", "", "book title (defaults to the file name)")
	cmd.Flags().StringVar(&meta.Author, "author", "", "author")
	cmd.Flags().StringVar(&meta.Genre, "genre", "", "genre")
	cmd.Flags().StringVar(&meta.Tags, "tags", "", "comma separated tags")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "no progress bar")
	return cmd
}

func (r *runner) booksDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <book-id>",
		Short: "Delete a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			ok, err := r.confirm(yes, "Are you sure you want to delete this book? This action cannot be undone")
			if err != nil || !ok {
				return err
			}
			msg, err := r.app.Library.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			r.println(msg)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func (r *runner) booksExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <book-id>",
		Short: "Extract a book's text into chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			res, err := r.app.Library.Extract(cmd.Context(), id)
			if err != nil {
				return err
			}
			r.println(messageOr(res.Message, "Text extraction completed."))
			if res.ChapterCount > 0 {
				r.printf("Chapters: %d\n", res.ChapterCount)
			}
			return nil
		},
	}
}

func (r *runner) booksStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show library totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := r.app.Library.Stats(cmd.Context())
			if err != nil {
				return err
			}
			r.printf("Books: %d\nPages: %d\nChapters: %d\nWords: %d\n", s.TotalBooks, s.TotalPages, s.TotalChapters, s.TotalWords)
			return nil
		},
	}
}

func (r *runner) pdfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf",
		Short: "PDF details and server-side extraction",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "info <book-id>",
		Short: "Show PDF details and extracted chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			v := r.app.PDFViewer()
			if err := v.Load(cmd.Context(), id); err != nil {
				return err
			}
			r.printPDF(v.Snapshot())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "extract <book-id>",
		Short: "Extract text and list the resulting chapters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			v := r.app.PDFViewer()
			if err := v.Load(cmd.Context(), id); err != nil {
				return err
			}
			last := ""
			v.OnChange(func(s pdfview.Snapshot) {
				if s.Message != "" && s.Message != last {
					last = s.Message
					r.println(s.Message)
				}
			})
			if err := v.Extract(cmd.Context()); err != nil {
				return err
			}
			r.printChapterLinks(v.Snapshot().Chapters)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <file>",
		Short: "Read page count and text from a local PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := pdfview.Inspect(args[0])
			if err != nil {
				return err
			}
			r.printf("Pages: %d\nWords: %d\n", doc.Pages, doc.Words())
			for i, text := range doc.Text {
				if text == "" {
					continue
				}
				r.printf("--- page %d ---\n%s\n", i+1, util.Truncate(text, 200))
			}
			return nil
		},
	})
	return cmd
}

func (r *runner) printPDF(s pdfview.Snapshot) {
	i := s.Info
	r.printf("%s\nAuthor: %s\nPages: %s\nFile size: %s\nUploaded: %s\nFormat: %s\n", i.Title, i.Author, i.Pages, i.FileSize, i.Uploaded, i.Format)
	if i.FileURL != "" {
		r.printf("File: %s\n", i.FileURL)
	}
	r.printChapterLinks(s.Chapters)
}

func (r *runner) printChapterLinks(links []pdfview.ChapterLink) {
	if len(links) == 0 {
		r.println(pdfview.NoChaptersMessage)
		return
	}
	r.println("Chapters:")
	for _, l := range links {
		line := fmt.Sprintf("  %d. %s", l.Index+1, l.Title)
		if l.Pages != "" {
			line += " (" + l.Pages + ")"
		}
		r.println(line)
	}
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
