// Package cli is the readshift command line: the app wiring shared by every
// command and the cobra command tree on top of it.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"readshift/internal/account"
	"readshift/internal/api"
	"readshift/internal/chat"
	"readshift/internal/config"
	"readshift/internal/highlight"
	"readshift/internal/library"
	"readshift/internal/outbox"
	"readshift/internal/pdfview"
	"readshift/internal/session"
	"readshift/internal/viewer"
	"readshift/pkg/kv"
)

// SessionExpiredMessage is printed when the server rejects the stored token.
const SessionExpiredMessage = "Session expired. Please login again."

// App holds the services one command invocation works with.
type App struct {
	Config     config.FileConfig
	Store      kv.Store
	Session    *session.Store
	Client     *api.Client
	Outbox     *outbox.Outbox
	Highlights *highlight.Service
	Account    *account.Account
	Library    *library.Library
	Handoff    *library.Handoff

	out     io.Writer
	errOut  io.Writer
	prompt  Prompter
	closers []io.Closer
}

// NewApp opens the store and builds the API client and controllers.
func NewApp(ctx context.Context, cfg config.FileConfig, out, errOut io.Writer, prompt Prompter) (*App, error) {
	store, err := kv.Open(cfg.KV())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a := &App{Config: cfg, Store: store, out: out, errOut: errOut, prompt: prompt}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.Session, err = session.Open(ctx, store)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}
	a.Client = api.NewClient(cfg.APIBaseURL, a.Session,
		api.WithTimeout(cfg.Timeout()),
		api.WithUnauthorized(func() {
			fmt.Fprintln(a.errOut, SessionExpiredMessage)
		}),
	)
	a.Outbox = outbox.New(store, cfg.OutboxMaxAttempts)
	a.Highlights = highlight.NewService(a.Client, store, a.Outbox)
	a.Account = account.New(a.Client, a.Session)
	a.Handoff = library.NewHandoff(store)
	a.Library = library.New(a.Client, a.Session, a.Handoff, cfg.ExtractWait())
	return a, nil
}

func (a *App) Viewer() *viewer.Viewer {
	return viewer.New(a.Client, a.Highlights, a.Config.HighlightColor)
}

func (a *App) PDFViewer() *pdfview.Viewer {
	return pdfview.New(a.Client, a.Config.APIBaseURL, a.Config.ExtractWait())
}

func (a *App) Chat() *chat.Controller {
	return chat.New(a.Client, a.Session, a.Handoff)
}

// Close releases the store connection, if any.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
