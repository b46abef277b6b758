// Package server is the local preview: the library, reader, PDF and chat
// screens rendered as HTML pages from the same controllers the CLI drives.
package server

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"readshift/internal/account"
	"readshift/internal/api"
	"readshift/internal/chat"
	"readshift/internal/highlight"
	"readshift/internal/library"
	"readshift/internal/util"
)

//go:embed templates/*.html
var templateFS embed.FS

// Session is what the pages need to know about the login.
type Session interface {
	LoggedIn() bool
}

// Deps are the shared services behind every page.
type Deps struct {
	Client     *api.Client
	Session    Session
	Highlights *highlight.Service
	Library    *library.Library
	Account    *account.Account
	// Color is used for highlights made from the reader page.
	Color string
}

type Server struct {
	deps       Deps
	pages      *template.Template
	router     chi.Router
	httpServer *http.Server
}

func New(deps Deps) (*Server, error) {
	pages, err := template.New("pages").Funcs(template.FuncMap{
		"percent":  func(f float64) int { return int(f + 0.5) },
		"inc":      func(i int) int { return i + 1 },
		"dec":      func(i int) int { return i - 1 },
		"relative": func(t time.Time) string { return chat.FormatRelative(t, time.Now()) },
		// Message HTML comes from goldmark with raw HTML disabled.
		"rendered": func(s string) template.HTML { return template.HTML(s) },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{deps: deps, pages: pages}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(util.WithRequestID)
	r.Use(func(next http.Handler) http.Handler { return util.WithRequestLog("preview", next) })
	r.Use(middleware.Recoverer)
	r.Use(util.WithSecurityHeaders)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/", s.handleLibrary)
	r.Route("/books/{id}", func(r chi.Router) {
		r.Get("/read", s.handleRead)
		r.Post("/highlights", s.handleHighlight)
		r.Post("/highlights/remove", s.handleRemoveHighlight)
		r.Get("/pdf", s.handlePDF)
	})
	r.Get("/conversations/{id}", s.handleConversation)
	return r
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("preview server listening", "addr", addr)
		errCh <- s.httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
