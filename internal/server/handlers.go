package server

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"readshift/internal/account"
	"readshift/internal/api"
	"readshift/internal/chat"
	"readshift/internal/highlight"
	"readshift/internal/library"
	"readshift/internal/pdfview"
	"readshift/internal/render"
	"readshift/internal/util"
	"readshift/internal/viewer"
	"readshift/pkg/domain"
)

type libraryPage struct {
	Status account.Status
	Cards  []library.Card
	Error  string
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := libraryPage{}
	if s.deps.Account != nil {
		page.Status = s.deps.Account.Status(ctx)
	}
	list, err := s.deps.Library.List(ctx)
	if err != nil {
		if api.IsAuthError(err) {
			s.fail(w, r, err)
			return
		}
		util.LoggerFromContext(ctx).Warn("list books failed", "err", err)
		page.Error = "Failed to load books"
	}
	page.Cards = library.Cards(list.Books)
	s.render(w, r, "library.html", page)
}

type readerPage struct {
	Snapshot   viewer.Snapshot
	Content    template.HTML
	Highlights []viewer.HighlightEntry
	Colors     []string
	Notice     string
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	bookID, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	chapter, _ := strconv.Atoi(r.URL.Query().Get("chapter"))
	v := s.newViewer()
	if err := v.Load(r.Context(), bookID, chapter); err != nil {
		if errors.Is(err, viewer.ErrNoChapters) {
			s.render(w, r, "reader.html", readerPage{Notice: viewer.NoChaptersMessage})
			return
		}
		s.fail(w, r, err)
		return
	}
	s.renderReader(w, r, v, r.URL.Query().Get("notice"))
}

func (s *Server) renderReader(w http.ResponseWriter, r *http.Request, v *viewer.Viewer, notice string) {
	snap := v.Snapshot()
	entries, err := v.Highlights(r.Context())
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("list highlights failed", "err", err)
	}
	s.render(w, r, "reader.html", readerPage{
		Snapshot: snap,
		// Built from the chapter node tree, which escapes all book text.
		Content:    template.HTML(snap.HTML),
		Highlights: entries,
		Colors:     domain.Colors,
		Notice:     notice,
	})
}

// handleHighlight is the form equivalent of selecting text in the reader.
func (s *Server) handleHighlight(w http.ResponseWriter, r *http.Request) {
	v, chapter, ok := s.loadForForm(w, r)
	if !ok {
		return
	}
	if color := r.PostFormValue("color"); color != "" {
		if err := v.SetColor(color); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	out, err := v.Select(r.Context(), viewer.Selection{
		Text:      r.PostFormValue("text"),
		Paragraph: r.PostFormValue("paragraph"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.backToReader(w, r, chapter, fmt.Sprintf("Highlight %s", out.Action))
}

func (s *Server) handleRemoveHighlight(w http.ResponseWriter, r *http.Request) {
	v, chapter, ok := s.loadForForm(w, r)
	if !ok {
		return
	}
	text := strings.TrimSpace(r.PostFormValue("text"))
	if text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if _, err := v.RemoveHighlight(r.Context(), text, r.PostFormValue("color")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.backToReader(w, r, chapter, "Highlight removed")
}

func (s *Server) loadForForm(w http.ResponseWriter, r *http.Request) (*viewer.Viewer, int, bool) {
	bookID, ok := bookIDParam(w, r)
	if !ok {
		return nil, 0, false
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return nil, 0, false
	}
	chapter, _ := strconv.Atoi(r.PostFormValue("chapter"))
	v := s.newViewer()
	if err := v.Load(r.Context(), bookID, chapter); err != nil {
		s.fail(w, r, err)
		return nil, 0, false
	}
	return v, v.Current(), true
}

func (s *Server) backToReader(w http.ResponseWriter, r *http.Request, chapter int, notice string) {
	target := fmt.Sprintf("/books/%s/read?chapter=%d&notice=%s", chi.URLParam(r, "id"), chapter, url.QueryEscape(notice))
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	bookID, ok := bookIDParam(w, r)
	if !ok {
		return
	}
	v := pdfview.New(s.deps.Client, s.deps.Client.BaseURL(), 0)
	if err := v.Load(r.Context(), bookID); err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, "pdf.html", v.Snapshot())
}

type conversationPage struct {
	Snapshot chat.Snapshot
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	c := chat.New(s.deps.Client, s.deps.Session, nil)
	if err := c.Init(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := c.Select(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, r, "conversation.html", conversationPage{Snapshot: c.Snapshot()})
}

func (s *Server) newViewer() *viewer.Viewer {
	return viewer.New(s.deps.Client, s.deps.Highlights, s.deps.Color)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.pages.ExecuteTemplate(w, name, data); err != nil {
		util.LoggerFromContext(r.Context()).Error("render page failed", "page", name, "err", err)
	}
}

// fail maps controller errors to a status code and a short message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chat.ErrNotLoggedIn), errors.Is(err, library.ErrLoginRequired), api.IsAuthError(err):
		status = http.StatusUnauthorized
		err = library.ErrLoginRequired
	case errors.Is(err, highlight.ErrSelectionTooShort), errors.Is(err, highlight.ErrInvalidColor), errors.Is(err, render.ErrTextNotFound):
		status = http.StatusBadRequest
	case api.StatusCode(err) != 0:
		status = api.StatusCode(err)
	}
	util.LoggerFromContext(r.Context()).Warn("page failed", "path", r.URL.Path, "status", status, "err", err)
	http.Error(w, err.Error(), status)
}

func bookIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid book id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
