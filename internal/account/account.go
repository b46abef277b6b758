// Package account is the authentication screen: registration, login,
// profile, email verification, password reset and OAuth.
package account

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"readshift/internal/api"
	"readshift/internal/util"
	"readshift/pkg/domain"
)

// DefaultProvider is the OAuth provider used when none is named.
const DefaultProvider = "google"

var (
	ErrMissingFields        = errors.New("all fields are required")
	ErrNotLoggedIn          = errors.New("not logged in")
	ErrUnrecognizedCallback = errors.New("callback url carries neither a verification token nor an oauth code")
)

type Backend interface {
	Health(ctx context.Context) error
	Register(ctx context.Context, reg domain.Registration) (domain.User, error)
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Logout(ctx context.Context) error
	Me(ctx context.Context) (domain.User, error)
	UpdateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error)
	SendVerification(ctx context.Context, email string) (api.Result, error)
	VerifyEmail(ctx context.Context, token string) (api.Result, error)
	RequestPasswordReset(ctx context.Context, email string) (api.Result, error)
	OAuthURL(ctx context.Context, provider string) (api.OAuthStart, error)
	OAuthCallback(ctx context.Context, provider, code string) (api.LoginResult, error)
}

type Session interface {
	Save(ctx context.Context, access, refresh string) error
	Clear(ctx context.Context) error
	LoggedIn() bool
	Preview() string
}

type Account struct {
	backend Backend
	session Session
}

func New(backend Backend, session Session) *Account {
	return &Account{backend: backend, session: session}
}

func (a *Account) Register(ctx context.Context, reg domain.Registration) (domain.User, error) {
	reg.FirstName = strings.TrimSpace(reg.FirstName)
	reg.LastName = strings.TrimSpace(reg.LastName)
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.FirstName == "" || reg.LastName == "" || reg.Email == "" || reg.Password == "" {
		return domain.User{}, ErrMissingFields
	}
	return a.backend.Register(ctx, reg)
}

// Login authenticates and stores the returned tokens.
func (a *Account) Login(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.User{}, ErrMissingFields
	}
	res, err := a.backend.Login(ctx, email, password)
	if err != nil {
		return domain.User{}, err
	}
	if err := a.session.Save(ctx, res.AccessToken, res.RefreshToken); err != nil {
		return domain.User{}, fmt.Errorf("save session: %w", err)
	}
	util.LoggerFromContext(ctx).Info("logged in", "user_id", res.User.ID)
	return res.User, nil
}

// Logout tells the server when a session exists and always clears it locally.
func (a *Account) Logout(ctx context.Context) error {
	if a.session.LoggedIn() {
		if err := a.backend.Logout(ctx); err != nil {
			util.LoggerFromContext(ctx).Info("remote logout failed", "err", err)
		}
	}
	return a.session.Clear(ctx)
}

// Me returns the current user. An auth failure logs the session out.
func (a *Account) Me(ctx context.Context) (domain.User, error) {
	if !a.session.LoggedIn() {
		return domain.User{}, ErrNotLoggedIn
	}
	user, err := a.backend.Me(ctx)
	if err != nil {
		if api.IsAuthError(err) {
			if cerr := a.session.Clear(ctx); cerr != nil {
				return domain.User{}, errors.Join(err, cerr)
			}
		}
		return domain.User{}, err
	}
	return user, nil
}

func (a *Account) UpdateProfile(ctx context.Context, p domain.Profile) (domain.Profile, error) {
	if !a.session.LoggedIn() {
		return domain.Profile{}, ErrNotLoggedIn
	}
	return a.backend.UpdateProfile(ctx, p)
}

// SendVerification looks up the current user's email and asks the server to
// mail a verification link to it.
func (a *Account) SendVerification(ctx context.Context) (api.Result, error) {
	user, err := a.Me(ctx)
	if err != nil {
		return nil, err
	}
	return a.backend.SendVerification(ctx, user.Email)
}

func (a *Account) RequestPasswordReset(ctx context.Context, email string) (api.Result, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrMissingFields
	}
	return a.backend.RequestPasswordReset(ctx, email)
}

func (a *Account) VerifyEmail(ctx context.Context, token string) (api.Result, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingFields
	}
	return a.backend.VerifyEmail(ctx, token)
}

// OAuthURL starts an OAuth login and returns where to send the browser.
func (a *Account) OAuthURL(ctx context.Context, provider string) (api.OAuthStart, error) {
	return a.backend.OAuthURL(ctx, providerOrDefault(provider))
}

// OAuthCallback finishes an OAuth login and stores the tokens.
func (a *Account) OAuthCallback(ctx context.Context, provider, code string) (domain.User, error) {
	if strings.TrimSpace(code) == "" {
		return domain.User{}, ErrMissingFields
	}
	res, err := a.backend.OAuthCallback(ctx, providerOrDefault(provider), code)
	if err != nil {
		return domain.User{}, err
	}
	if err := a.session.Save(ctx, res.AccessToken, res.RefreshToken); err != nil {
		return domain.User{}, fmt.Errorf("save session: %w", err)
	}
	return res.User, nil
}

// CallbackKind says which flow a callback URL belonged to.
type CallbackKind string

const (
	CallbackVerifyEmail CallbackKind = "verify-email"
	CallbackOAuth       CallbackKind = "oauth"
)

type CallbackResult struct {
	Kind   CallbackKind
	Result api.Result
	User   domain.User
}

// HandleCallbackURL dispatches a link the user followed from an email or an
// OAuth provider: .../verify-email?token=... or .../oauth/callback[/provider]?code=...
func (a *Account) HandleCallbackURL(ctx context.Context, raw string) (CallbackResult, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return CallbackResult{}, fmt.Errorf("parse callback url: %w", err)
	}
	q := u.Query()
	switch {
	case strings.Contains(u.Path, "verify-email") && q.Get("token") != "":
		res, err := a.VerifyEmail(ctx, q.Get("token"))
		return CallbackResult{Kind: CallbackVerifyEmail, Result: res}, err
	case strings.Contains(u.Path, "oauth/callback") && q.Get("code") != "":
		provider := ""
		if _, rest, ok := strings.Cut(u.Path, "oauth/callback/"); ok {
			provider = strings.Trim(rest, "/")
		}
		user, err := a.OAuthCallback(ctx, provider, q.Get("code"))
		return CallbackResult{Kind: CallbackOAuth, User: user}, err
	}
	return CallbackResult{}, ErrUnrecognizedCallback
}

func providerOrDefault(p string) string {
	if p = strings.TrimSpace(p); p != "" {
		return p
	}
	return DefaultProvider
}
