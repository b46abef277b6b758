package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"readshift/pkg/domain"
)

// Result is a loosely typed response body for endpoints that only report
// a message.
type Result map[string]any

// Message returns the "message" field when present.
func (r Result) Message() string {
	if r == nil {
		return ""
	}
	msg, _ := r["message"].(string)
	return msg
}

// LoginResult is returned by login and the OAuth callback.
type LoginResult struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type,omitempty"`
	User         domain.User `json:"user"`
}

// OAuthStart is returned when initiating an OAuth login.
type OAuthStart struct {
	AuthorizationURL string `json:"authorization_url"`
	Message          string `json:"message"`
}

// Health pings the service. A non-2xx status is returned as *APIError.
func (c *Client) Health(ctx context.Context) error {
	return c.Do(ctx, http.MethodGet, "/health", nil, false, nil)
}

func (c *Client) Register(ctx context.Context, reg domain.Registration) (domain.User, error) {
	var user domain.User
	if err := c.Do(ctx, http.MethodPost, "/auth/register", reg, false, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var res LoginResult
	if err := c.Do(ctx, http.MethodPost, "/auth/login", body, false, &res); err != nil {
		return LoginResult{}, err
	}
	return res, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/auth/logout", nil, true, nil)
}

// Me returns the user the session belongs to.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var user domain.User
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, true, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	var out domain.Profile
	if err := c.Do(ctx, http.MethodPost, "/auth/profile", profile, true, &out); err != nil {
		return domain.Profile{}, err
	}
	return out, nil
}

func (c *Client) SendVerification(ctx context.Context, email string) (Result, error) {
	return c.result(ctx, http.MethodPost, "/auth/send-verification", map[string]string{"email": email}, false)
}

func (c *Client) VerifyEmail(ctx context.Context, token string) (Result, error) {
	return c.result(ctx, http.MethodPost, "/auth/verify-email", map[string]string{"token": token}, false)
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) (Result, error) {
	return c.result(ctx, http.MethodPost, "/auth/request-password-reset", map[string]string{"email": email}, false)
}

func (c *Client) OAuthURL(ctx context.Context, provider string) (OAuthStart, error) {
	var out OAuthStart
	path := "/auth/oauth/" + url.PathEscape(strings.ToLower(provider))
	if err := c.Do(ctx, http.MethodGet, path, nil, false, &out); err != nil {
		return OAuthStart{}, err
	}
	return out, nil
}

// OAuthCallback exchanges an authorization code for a session.
func (c *Client) OAuthCallback(ctx context.Context, provider, code string) (LoginResult, error) {
	path := "/auth/oauth/callback/" + url.PathEscape(strings.ToLower(provider)) + query(map[string]string{"code": code})
	var res LoginResult
	if err := c.Do(ctx, http.MethodGet, path, nil, false, &res); err != nil {
		return LoginResult{}, err
	}
	return res, nil
}

func (c *Client) result(ctx context.Context, method, path string, body any, auth bool) (Result, error) {
	var out Result
	if err := c.Do(ctx, method, path, body, auth, &out); err != nil {
		return nil, err
	}
	return out, nil
}
